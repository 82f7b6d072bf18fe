package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stringline-viewer/internal/config"
	"stringline-viewer/internal/logging"
	"stringline-viewer/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stringline pages and live updates over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logging.Setup()
	log := logging.New("serve")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = d.metrics.Serve(cfg.MetricsAddr, log)
	}

	ws := web.NewServer(web.Options{
		Source:               d.source,
		Calculator:           d.calc,
		Policies:             cfg.Policies,
		DefaultConfiguration: cfg.DefaultConfiguration,
		DisplayLocation:      cfg.DisplayLocation,
		Metrics:              d.metrics,
		ServeMetrics:         cfg.MetricsAddr == "",
		Logger:               logging.New("web"),
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           ws.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("source", cfg.DataSource).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	// Hijacked websocket connections are not tracked by http.Server.
	ws.Shutdown()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Info().Msg("shutdown complete")
	return nil
}
