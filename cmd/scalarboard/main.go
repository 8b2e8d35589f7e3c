package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/scalarboard/scalarboard/internal/api"
	"github.com/scalarboard/scalarboard/internal/chart"
	"github.com/scalarboard/scalarboard/internal/config"
	"github.com/scalarboard/scalarboard/internal/dispatch"
	"github.com/scalarboard/scalarboard/internal/ingest"
	"github.com/scalarboard/scalarboard/internal/store"
	"github.com/scalarboard/scalarboard/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("scalarboard starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"sources", len(cfg.Ingest.Sources),
		"scrape_interval", cfg.Ingest.ScrapeInterval,
		"smoothing_factor", cfg.Engine.SmoothingFactor,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Series store with block compression and per-series retention.
	st, err := store.New(cfg.Engine.BlockSize, cfg.Engine.MaxPointsPerSeries)
	if err != nil {
		slog.Error("failed to build store", "err", err)
		os.Exit(1)
	}

	// Chart registry — one dispatch slot per tag, shared backend settings.
	reg := chart.NewRegistry(dispatch.Options{
		DisableAccelerated: cfg.Engine.DisableAccelerated,
		DisableWorker:      cfg.Engine.DisableWorker,
		Timeout:            cfg.Engine.ComputeTimeout,
	})
	defer reg.Close()

	// Engine defaults, swapped atomically on config hot-reload. API and
	// hub consult this per request so reloads apply immediately.
	var paramsMu sync.Mutex
	current := chart.Params{
		SmoothingFactor: cfg.Engine.SmoothingFactor,
		ExcludeOutliers: cfg.Engine.ExcludeOutliers,
	}
	params := func() chart.Params {
		paramsMu.Lock()
		defer paramsMu.Unlock()
		return current
	}

	// Scrape loop: poll every source each interval and append samples.
	collector := ingest.New(st, cfg.Ingest)
	go collector.Run(ctx)

	// Watch config file for hot-reload: sources and engine defaults only.
	// Port and store shape changes still need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			collector.SetSources(updated.Ingest)
			paramsMu.Lock()
			current = chart.Params{
				SmoothingFactor: updated.Engine.SmoothingFactor,
				ExcludeOutliers: updated.Engine.ExcludeOutliers,
			}
			paramsMu.Unlock()
			slog.Info("config hot-reloaded",
				"sources", len(updated.Ingest.Sources),
				"smoothing_factor", updated.Engine.SmoothingFactor,
			)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// WebSocket hub — rebroadcasts refreshed charts to UI clients.
	hub := ws.New(st, reg, params, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)

	// Combined HTTP server: REST API + WebSocket hub on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, reg, params))
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("scalarboard shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
