package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ent0n29/chatrelay/internal/call"
	"github.com/ent0n29/chatrelay/internal/config"
	"github.com/ent0n29/chatrelay/internal/delivery"
	"github.com/ent0n29/chatrelay/internal/httpapi"
	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/message"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/presence"
	"github.com/ent0n29/chatrelay/internal/reaction"
	"github.com/ent0n29/chatrelay/internal/relay"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/statusfeed"
	"github.com/ent0n29/chatrelay/internal/store"
	"github.com/ent0n29/chatrelay/internal/typing"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)

	ctx := context.Background()
	st, storeMode, err := store.NewStore(ctx, cfg.DatabaseURL, cfg.BadgerPath)
	if err != nil {
		logger.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("store ready", "mode", storeMode)

	writer := store.NewWriter(st, store.WriterConfig{
		Lanes:     cfg.PersistWorkers,
		QueueSize: cfg.PersistQueue,
		Timeout:   cfg.PersistTimeout,
	}, logger, metrics)

	registry := session.NewRegistry()
	ledger := message.NewLedger(cfg.MessageLedgerCapacity, st)
	rl := relay.New(relay.Components{
		Registry:  registry,
		Presence:  presence.NewBroadcaster(registry, writer, logger, metrics),
		Typing:    typing.NewCoordinator(registry, cfg.TypingTimeout, logger, metrics),
		Delivery:  delivery.NewTracker(registry, ledger, writer, logger, metrics),
		Reactions: reaction.NewMerger(registry, ledger, writer, logger, metrics),
		Calls: call.NewCoordinator(registry,
			call.WithRingTimeout(cfg.CallRingTimeout),
			call.WithLogger(logger),
			call.WithMetrics(metrics),
		),
		Statuses: statusfeed.NewFeed(registry, logger, metrics),
	}, logger, metrics)

	api := httpapi.New(cfg, rl, metrics, logger, storeMode)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", "err", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}
	writer.Close()

	logger.Info("shutdown complete")
}
