package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/app"
	"github.com/savvydealer-adam/dealership-intel/internal/config"
)

type serveOptions struct {
	port int
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := map[string]any{}
			if opts.port > 0 {
				overrides["server.port"] = opts.port
			}
			cfg, err := config.LoadWithOverrides(root.configPath, overrides)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := newApp(cmd.Context(), cfg, app.Options{})
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			return serve(cmd.Context(), a, cfg.Server.Port)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port, overriding server.port")
	return cmd
}

// serve runs the API until ctx is cancelled or the listener fails, then
// drains in-flight requests and closes a.
func serve(ctx context.Context, a *app.App, port int) error {
	logger := a.Logger()
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.Server().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("http server: %w", err)
			logger.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return serveErr
}
