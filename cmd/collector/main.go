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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkovacs/weldstream/internal/channel"
	"github.com/dkovacs/weldstream/internal/config"
	"github.com/dkovacs/weldstream/internal/database"
	"github.com/dkovacs/weldstream/internal/feed"
	"github.com/dkovacs/weldstream/internal/version"
	"github.com/dkovacs/weldstream/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/collector.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting collector",
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
		"instance_id", cfg.Instance.ID,
		"site", cfg.Instance.Site,
		"ws_url", cfg.Server.WSURL,
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

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create telemetry channel client
	client := channel.New(channelConfig(cfg), logger)

	client.OnStateChange(func(change channel.StateChange) {
		logger.Info("channel state changed",
			"from", change.Previous,
			"to", change.Current,
		)
	})
	client.OnError(func(err error) {
		logger.Warn("channel error", "error", err)
	})

	// Seed the desired subscription set before connecting so the first
	// reconcile covers everything from config.
	for _, sub := range cfg.Subscriptions {
		for _, id := range sub.AssetIDs {
			client.Subscribe(id, sub.Kind)
		}
	}
	logger.Info("subscriptions seeded", "count", client.Subscriptions().Len())

	// Apply configured cadence. Retained locally until connected, then
	// sent on the next explicit call (cadence is not replayed on
	// reconnect, so we re-issue it on every open).
	client.OnOpen(func() {
		client.Refresh().SetInterval(cfg.Refresh.IntervalMs)
		client.Refresh().SetPrecision(cfg.Refresh.Precision)
	})

	// Create the feed and attach it to the channel
	f := feed.New(feed.Config{
		AssetDataBufferSize:  cfg.Feed.AssetDataBufferSize,
		AlertBufferSize:      cfg.Feed.AlertBufferSize,
		PredictionBufferSize: cfg.Feed.PredictionBufferSize,
	}, logger)
	f.Attach(client)

	// Create and start writers
	writerCfg := writer.Config{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}
	buffers := f.Buffers()

	assetWriter := writer.NewAssetDataWriter(writerCfg, buffers.AssetData, pool, logger)
	alertWriter := writer.NewAlertWriter(writerCfg, buffers.Alerts, pool, logger)
	predWriter := writer.NewPredictionWriter(writerCfg, buffers.Predictions, pool, logger)

	if err := assetWriter.Start(ctx); err != nil {
		logger.Error("failed to start asset data writer", "error", err)
		os.Exit(1)
	}
	if err := alertWriter.Start(ctx); err != nil {
		logger.Error("failed to start alert writer", "error", err)
		os.Exit(1)
	}
	if err := predWriter.Start(ctx); err != nil {
		logger.Error("failed to start prediction writer", "error", err)
		os.Exit(1)
	}

	// Start health server
	writerStats := map[string]func() writer.Metrics{
		"asset_data":  assetWriter.Stats,
		"alerts":      alertWriter.Stats,
		"predictions": predWriter.Stats,
	}
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(pool, client, f, writerStats, logger),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Open the channel
	client.Connect(cfg.Server.Token)

	logger.Info("collector running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	client.Disconnect()
	f.Detach()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	assetWriter.Stop(shutdownCtx)
	alertWriter.Stop(shutdownCtx)
	predWriter.Stop(shutdownCtx)
	f.Close()

	healthServer.Shutdown(shutdownCtx)

	logger.Info("collector stopped")
}

// channelConfig maps the loaded YAML config onto the channel package config.
func channelConfig(cfg *config.CollectorConfig) channel.Config {
	c := channel.DefaultConfig()
	c.URL = cfg.Server.WSURL
	c.HeartbeatInterval = cfg.Channel.HeartbeatInterval
	c.HeartbeatTimeout = cfg.Channel.HeartbeatTimeout
	c.ReconnectBaseDelay = cfg.Channel.ReconnectBaseDelay
	c.ReconnectMaxDelay = cfg.Channel.ReconnectMaxDelay
	c.ReconnectDecay = cfg.Channel.ReconnectDecay
	c.MaxReconnectAttempts = cfg.Channel.MaxReconnectAttempts
	c.WriteTimeout = cfg.Channel.WriteTimeout
	c.MinRefreshIntervalMs = cfg.Refresh.MinIntervalMs
	c.MaxRefreshIntervalMs = cfg.Refresh.MaxIntervalMs
	c.MinPrecisionDigits = cfg.Refresh.MinPrecision
	c.MaxPrecisionDigits = cfg.Refresh.MaxPrecision
	return c
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pool *pgxpool.Pool, client *channel.Client, f *feed.Feed, writerStats map[string]func() writer.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check telemetry channel
		state := client.State()
		health.Components["channel"] = map[string]interface{}{
			"state":         state.String(),
			"subscriptions": client.Subscriptions().Len(),
		}
		switch state {
		case channel.StateConnected:
			// healthy
		case channel.StateError:
			health.Status = "unhealthy"
		default:
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/channel", func(w http.ResponseWriter, r *http.Request) {
		writers := make(map[string]writer.Metrics, len(writerStats))
		for name, stats := range writerStats {
			writers[name] = stats()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"state":         client.State().String(),
			"subscriptions": client.Subscriptions().List(),
			"refresh": map[string]int{
				"interval_ms": client.Refresh().Interval(),
				"precision":   client.Refresh().Precision(),
			},
			"router":  client.RouterStats(),
			"feed":    f.Stats(),
			"writers": writers,
		})
	})

	return mux
}
