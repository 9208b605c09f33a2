package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedrelay/feedrelay/internal/api"
	"github.com/feedrelay/feedrelay/internal/config"
	"github.com/feedrelay/feedrelay/internal/cursor"
	"github.com/feedrelay/feedrelay/internal/feed/mongofeed"
	"github.com/feedrelay/feedrelay/internal/hub"
	"github.com/feedrelay/feedrelay/internal/metrics"
	"github.com/feedrelay/feedrelay/internal/relay"
	"github.com/feedrelay/feedrelay/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// The level var lets a config hot-reload change verbosity without a
	// restart.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("feedrelayd starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.Log.Level))

	slog.Info("config loaded",
		"namespace", cfg.Feed.Database+"."+cfg.Feed.Collection,
		"queue_capacity", cfg.Relay.QueueCapacity,
		"cursor_path", cfg.Cursor.Path,
		"http_port", cfg.Server.HTTPPort,
	)

	uri := cfg.Feed.URI()
	if uri == "" {
		slog.Error("mongo URI not set", "env", cfg.Feed.URIEnv)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Resume token store — one bucket entry per watched namespace.
	feedID := cfg.Feed.Database + "." + cfg.Feed.Collection
	cursors, err := cursor.OpenBolt(cfg.Cursor.Path, feedID)
	if err != nil {
		slog.Error("failed to open cursor store", "path", cfg.Cursor.Path, "err", err)
		os.Exit(1)
	}
	defer cursors.Close()

	upstream, err := mongofeed.Connect(ctx, uri, cfg.Feed.Database, cfg.Feed.Collection)
	if err != nil {
		slog.Error("failed to connect to mongo", "err", err)
		os.Exit(1)
	}
	defer upstream.Close(context.Background())

	h := hub.New(cfg.Relay.QueueCapacity)

	ctrl, err := relay.New(relay.Config{
		Feed:                       upstream,
		Cursors:                    cursors,
		Hub:                        h,
		GracePeriod:                cfg.Relay.GracePeriod,
		FailureBurst:               cfg.Relay.FailureBurst,
		FailureWindow:              cfg.Relay.FailureWindow,
		BackoffInitial:             cfg.Relay.BackoffInitial,
		BackoffMax:                 cfg.Relay.BackoffMax,
		DegradedAfter:              cfg.Relay.DegradedAfter,
		StartFromNowOnInvalidToken: cfg.Relay.StartFromNowOnInvalidToken,
	})
	if err != nil {
		slog.Error("failed to build relay controller", "err", err)
		os.Exit(1)
	}

	if err := ctrl.Start(ctx); err != nil {
		slog.Error("failed to start relay", "err", err)
		os.Exit(1)
	}

	promReg, err := metrics.New(h, ctrl)
	if err != nil {
		slog.Error("failed to register metrics", "err", err)
		os.Exit(1)
	}

	// Watch config file for hot-reload. Only the log level is applied live;
	// pipeline settings need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(parseLevel(updated.Log.Level))
			slog.Info("config hot-reloaded", "log_level", updated.Log.Level)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Combined HTTP server: WebSocket fan-out, status API and metrics.
	httpMux := http.NewServeMux()
	httpMux.Handle("/ws", ws.New(h, func() string { return ctrl.State().String() }))
	httpMux.Handle("/api/", api.New(ctrl, h))
	httpMux.Handle("/metrics", promReg.Handler())

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
	slog.Info("feedrelayd shutting down")

	// Stop the pipeline first so sessions are drained and closed, then let
	// the HTTP server release the (now idle) connections.
	ctrl.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
