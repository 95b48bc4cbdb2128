package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/afk-farmer/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(app *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session supervisor and admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = app.cfg.Admin.Listen
			}
			logger := observability.InitLogger("afk", app.cfg.Log.Level)
			observability.RegisterMetrics()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := app.buildRuntime(logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.closeStore(); err != nil {
					logger.Error().Err(err).Msg("close store failed")
				}
			}()

			go rt.logMux.Run(ctx)

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- rt.admin.ListenAndServe(listen)
			}()
			logger.Info().
				Str("listen", listen).
				Str("storage", app.cfg.Storage.Driver).
				Str("path", app.cfg.Storage.Path).
				Msg("admin api listening")

			go func() {
				if _, err := rt.supervisor.LoadAll(ctx); err != nil {
					logger.Error().Err(err).Msg("load stored sessions failed")
				}
			}()

			var runErr error
			select {
			case <-ctx.Done():
				logger.Info().Msg("shutting down")
			case err := <-serverErr:
				if err != nil {
					runErr = fmt.Errorf("admin server: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := rt.admin.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("admin shutdown failed")
			}
			if err := rt.supervisor.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("supervisor shutdown failed")
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "admin API listen address (default from admin.listen)")
	return cmd
}
