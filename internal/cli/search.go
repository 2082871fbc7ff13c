package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchKeyword string
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <document-id>",
	Short: "Keyword search within one document",
	Long: `Print the sentences of a document that contain the keyword,
case-insensitively. A document that was registered but never ingested is
extracted first.

Examples:
  docrag search 3f1c... -w cat`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchKeyword, "word", "w", "", "keyword (required)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	_ = searchCmd.MarkFlagRequired("word")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id := args[0]
	if _, err := a.extract.EnsureIngested(commandContext(cmd), id); err != nil {
		return err
	}
	matches, err := a.retrieve.KeywordSearch(id, searchKeyword)
	if err != nil {
		return err
	}

	if searchJSON {
		output, _ := json.MarshalIndent(map[string]any{"document_id": id, "matching_text": matches}, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	if len(matches) == 0 {
		fmt.Println("No matching text found.")
		return nil
	}
	for _, m := range matches {
		fmt.Printf("- %s\n", m)
	}
	return nil
}
