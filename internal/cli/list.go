package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents in the store",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openStoreApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHUNKS\tINGESTED\tSOURCE")
	for _, d := range a.registry.List() {
		fmt.Fprintf(w, "%s\t%d\t%v\t%s\n", d.ID, len(d.Chunks), d.Ingested, d.SourceRef)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	st := a.registry.Stats()
	fmt.Printf("\n%d documents, %d chunks, %d vectors (dimension %d)\n",
		st.TotalDocs, st.TotalChunks, st.TotalVectors, st.Dimension)
	return nil
}
