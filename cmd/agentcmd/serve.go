package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/internal/server"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			logger.Info("Starting agentcmd",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)

			srv := NewServer(cfg, logger)
			if err := srv.Start(cmd.Context()); err != nil {
				return err
			}

			ctx, stop := server.SignalContext(cmd.Context())
			defer stop()
			waitErr := server.Wait(ctx, srv.managers()...)
			if waitErr != nil {
				logger.Error("server stopped unexpectedly", zap.Error(waitErr))
			} else {
				logger.Info("Received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
			return waitErr
		},
	}
}
