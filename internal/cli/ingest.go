package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docrag/internal/adapter/fs"
	"docrag/internal/domain"
)

var ingestForce bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Register and ingest documents",
	Long: `Register every matching document under path (or the single file path)
and ingest its text into the store. Documents are keyed by their absolute
path; unchanged files are skipped unless --force is given.

Examples:
  docrag ingest .                 # Ingest the current directory
  docrag ingest ./docs/unit-6.pdf # Ingest one file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-extract files even when unchanged")
}

type ingestResult struct {
	registered int
	ingested   int
	skipped    int
	chunks     int
	errors     []string
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	ctx := commandContext(cmd)
	cfg := GetConfig()

	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	fmt.Printf("Scanning %s...\n", path)
	files, err := walker.Walk(ctx, path)
	if err != nil {
		return fmt.Errorf("path scan failed: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No matching documents found.")
		return nil
	}

	dbPath := storePath()
	a, err := newApp(ctx, cfg, logger, dbPath)
	if err != nil {
		return err
	}
	defer a.Close()

	known := make(map[string]domain.Document)
	for _, d := range a.registry.List() {
		known[d.SourceRef] = d
	}

	bar := newProgressBar(len(files), "Ingesting")
	start := time.Now()
	var result ingestResult

	for i, f := range files {
		doc, ok := known[f.Path]
		if !ok {
			doc, err = a.registry.Create(f.Path)
			if err != nil {
				result.errors = append(result.errors, fmt.Sprintf("%s: %v", f.Path, err))
				continue
			}
			result.registered++
		}

		if !ingestForce && doc.Ingested && doc.IngestedFrom == f.Path && doc.UpdatedAt.Unix() >= f.ModTime {
			result.skipped++
		} else {
			ingested, err := a.extract.Extract(ctx, doc.ID, true)
			if err != nil {
				logger.Warn("ingest failed", zap.String("path", f.Path), zap.Error(err))
				result.errors = append(result.errors, fmt.Sprintf("%s: %v", f.Path, err))
			} else {
				result.ingested++
				result.chunks += len(ingested.Chunks)
			}
		}

		_ = bar.Set(i + 1)
		if elapsed := time.Since(start); i+1 < len(files) && elapsed > 0 {
			rate := float64(i+1) / elapsed.Seconds()
			eta := time.Duration(float64(len(files)-i-1)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
		}
	}

	stats := a.registry.Stats()
	fmt.Printf("\nIngest complete:\n")
	fmt.Printf("  Documents registered: %d\n", result.registered)
	fmt.Printf("  Documents ingested:   %d\n", result.ingested)
	fmt.Printf("  Documents skipped:    %d (unchanged)\n", result.skipped)
	fmt.Printf("  Chunks created:       %d\n", result.chunks)
	fmt.Printf("  Vectors in index:     %d\n", stats.TotalVectors)

	if len(result.errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nStore: %s\n", dbPath)
	return nil
}

func newProgressBar(total int, label string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", label)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
