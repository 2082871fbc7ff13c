package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docrag/internal/server"
)

var (
	serveAddr  string
	serveStore string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API. Documents live in memory unless a store path is
configured, in which case every change is written through to it and the
registry is restored from it on start-up.

Examples:
  docrag serve
  docrag serve --addr :9000 --store ./data/index.db`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "bolt store path (default from config; empty keeps documents in memory)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveStore != "" {
		cfg.Store.Path = serveStore
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("starting docrag",
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Path),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", a.batcher.ModelName()),
	)

	srv := server.New(cfg.Server, server.Deps{
		Registry:      a.registry,
		Retrieve:      a.retrieve,
		Extract:       a.extract,
		DefaultSource: cfg.Ingest.DefaultSource,
		TopK:          cfg.Retrieve.TopK,
		Logger:        logger,
	})
	return srv.Run(ctx)
}
