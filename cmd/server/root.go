package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"blogapi/internal/app"
	"blogapi/internal/config"
	"blogapi/internal/logging"
)

var configFile string

// NewRootCmd creates the root command for the blogapi CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "blogapi",
		Short:        "Blog API server",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewPurgeResetsCmd())

	return cmd
}

func setup(ctx context.Context) (*app.App, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logging.LogError(logger, "startup failed", err)
		return nil, nil, err
	}
	return a, logger, nil
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, logger, err := setup(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("close connections", "error", err)
				}
			}()

			if err := a.Run(ctx); err != nil {
				logging.LogError(logger, "server stopped", err)
				return err
			}
			return nil
		},
	}
}

// NewPurgeResetsCmd creates the purge-resets subcommand.
func NewPurgeResetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-resets",
		Short: "Delete expired password reset codes and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.PurgeResets(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("removed %d expired reset codes\n", n)
			return nil
		},
	}
}
