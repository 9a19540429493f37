package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/moonwatch/internal/adapter/httpserver"
	"github.com/pscheid92/moonwatch/internal/adapter/metrics"
	"github.com/pscheid92/moonwatch/internal/broadcast"
	"github.com/pscheid92/moonwatch/internal/domain"
	"github.com/pscheid92/moonwatch/internal/ephemeris"
	"github.com/pscheid92/moonwatch/internal/platform/config"
	"github.com/pscheid92/moonwatch/internal/platform/logging"
	"github.com/pscheid92/moonwatch/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func broadcastOptions(cfg *config.Config) broadcast.Options {
	return broadcast.Options{
		Interval:       cfg.BroadcastInterval,
		SendTimeout:    cfg.SendTimeout,
		MaxSubscribers: cfg.MaxSubscribers,
		SendOnConnect:  cfg.SendOnConnect,
	}
}

func main() {
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "address", cfg.Address())

	clock := clockwork.NewRealClock()

	registry := metrics.NewRegistry()
	broadcasterMetrics := metrics.NewBroadcasterMetrics(registry)
	wsMetrics := metrics.NewWebSocketMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	broadcaster := broadcast.NewBroadcaster(ephemeris.MoonSource{}, clock, broadcasterMetrics, broadcastOptions(cfg))

	healthChecks := []httpserver.HealthCheck{
		{Name: "broadcaster", Check: func(context.Context) error { return broadcaster.Running() }},
	}
	srv := httpserver.NewServer(cfg, broadcaster, wsMetrics, httpMetrics, metrics.Handler(registry), healthChecks)

	if err := srv.Listen(); err != nil {
		var bindErr *domain.BindError
		if errors.As(err, &bindErr) {
			slog.Error("Failed to bind address", "address", bindErr.Address, "error", bindErr.Err)
		} else {
			slog.Error("Failed to listen", "error", err)
		}
		broadcaster.Stop()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Serve)

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		broadcaster.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}
