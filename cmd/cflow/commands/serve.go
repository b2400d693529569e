package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/internal/server"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service in the foreground",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Addr = addr
		}
		verbose, _ := cmd.Flags().GetBool("verbose")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Serve(ctx, cfg, verbose, Version)
	},
}

// Serve runs the HTTP service described by cfg until ctx is canceled. The
// result cache is loaded from and saved to cfg.CachePath when one is set.
func Serve(ctx context.Context, cfg *config.Config, verbose bool, version string) error {
	logger, err := cfg.NewLogger(verbose)
	if err != nil {
		return err
	}

	conv := flowchart.New(cfg.ConverterOptions(logger))
	if cfg.CachePath != "" {
		if err := conv.LoadCache(cfg.CachePath); err != nil {
			logger.Warn("ignoring unreadable cache", "path", cfg.CachePath, "error", err)
		}
	}

	srv := server.New(conv, server.Options{
		Addr:           cfg.Addr,
		MaxSourceBytes: cfg.MaxSourceBytes,
		RequestTimeout: cfg.RequestTimeout,
		Version:        version,
		Logger:         logger,
	})

	serveErr := srv.ListenAndServe(ctx)
	persistCache(conv, cfg.CachePath, logger)
	if serveErr != nil {
		return fmt.Errorf("serving: %w", serveErr)
	}
	return nil
}

func persistCache(conv *flowchart.Converter, path string, logger log.Logger) {
	if path == "" {
		return
	}
	if err := conv.SaveCache(path); err != nil {
		logger.Error("saving cache", "path", path, "error", err)
		return
	}
	stats := conv.CacheStats()
	logger.Info("cache saved", "path", path, "entries", stats.Length)
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	RootCmd.AddCommand(serveCmd)
}
