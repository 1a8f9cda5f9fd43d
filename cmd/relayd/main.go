package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nostrvine/relaypool/internal/balancer"
	"github.com/nostrvine/relaypool/internal/config"
	"github.com/nostrvine/relaypool/internal/pool"
	"github.com/nostrvine/relaypool/internal/relay"
	"github.com/nostrvine/relaypool/internal/transport"
	"github.com/nostrvine/relaypool/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relayd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relayd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"relays", len(cfg.Relays),
		"max_connections", cfg.Pool.MaxConnections,
		"balancer", cfg.Pool.Balancer,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Build the pool from configured endpoints
	endpoints := make([]pool.Endpoint, 0, len(cfg.Relays))
	for _, r := range cfg.Relays {
		endpoints = append(endpoints, pool.Endpoint{
			URL: r.URL,
			Config: relay.Config{
				Priority: r.Priority,
				Timeout:  r.Timeout,
				Headers:  r.Headers,
			},
		})
	}

	p, err := pool.New(endpoints, pool.Options{
		MaxConnections: cfg.Pool.MaxConnections,
		Establishment:  pool.EstablishStrategy(cfg.Pool.Establishment),
		Balancer:       balancer.Strategy(cfg.Pool.Balancer),
		Dialer:         transport.NewWebSocketDialer(logger),
		Logger:         logger,
		EventBuffer:    cfg.Pool.EventBuffer,
	})
	if err != nil {
		logger.Error("failed to create pool", "error", err)
		os.Exit(1)
	}

	// Trace the pool event stream
	eventCh, cancelEvents := p.Events()
	defer cancelEvents()
	go func() {
		for ev := range eventCh {
			logger.Debug("pool event",
				"type", ev.Type,
				"relay", ev.Relay,
				"remaining", ev.Remaining,
				"recipients", ev.Recipients,
			)
		}
	}()

	// Start metrics/health server
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"state":     p.State(),
			"connected": p.ConnectionCount(),
			"failed":    len(p.FailedRelays()),
			"pending":   len(p.PendingRelays()),
			"version":   version.String(),
		}
		w.Header().Set("Content-Type", "application/json")
		if p.State() == pool.StateDisconnected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// Connect everything
	if err := p.ConnectAll(ctx); err != nil {
		logger.Error("connect all failed", "error", err)
		p.Close()
		os.Exit(1)
	}

	logger.Info("pool ready",
		"state", p.State(),
		"connected", p.ConnectionCount(),
		"failed", len(p.FailedRelays()),
		"pending", len(p.PendingRelays()),
	)

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	if err := p.Close(); err != nil {
		logger.Error("pool close failed", "error", err)
	}

	logger.Info("relayd stopped")
}
