package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecfr-snapshot/internal/api"
	"github.com/JakeFAU/ecfr-snapshot/internal/config"
	"github.com/JakeFAU/ecfr-snapshot/internal/snapshot"
)

// newServeCmd creates the 'serve' subcommand, which exposes the latest
// snapshot over HTTP.
func newServeCmd(cfg *config.Config, logger **zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the latest snapshot over a read-only HTTP API",
		Long: `Starts the HTTP server exposing per-agency word counts and checksums
from the most recently written snapshot. The server reads the snapshot
fresh on each request, so a concurrent ingest run is picked up without
a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *cfg, *logger)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := snapshot.NewFileStore(cfg.Snapshot.Path, logger)
	if err != nil {
		return err
	}
	server := api.NewServer(store, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("addr", httpServer.Addr),
			zap.String("snapshot", cfg.Snapshot.Path),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
