package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sapphirelabs/sapphire-exchange/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the marketplace daemon in the configured mode",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application := app.New(cfg, logger)
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			logger.Info("daemon stopped", slog.String("mode", cfg.Mode))
			return nil
		},
	}
}
