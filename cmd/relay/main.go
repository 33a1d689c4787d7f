// The relay command runs the realtime collaboration relay: one
// websocket endpoint for document co-editing plus /metrics and /healthz.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tanvirul-I/Collab-Notes/internal/access"
	"github.com/Tanvirul-I/Collab-Notes/internal/auth"
	"github.com/Tanvirul-I/Collab-Notes/internal/caching"
	"github.com/Tanvirul-I/Collab-Notes/internal/metrics"
	"github.com/Tanvirul-I/Collab-Notes/internal/relay"
	"github.com/Tanvirul-I/Collab-Notes/internal/room"
	"github.com/Tanvirul-I/Collab-Notes/internal/snapshot"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage/postgres"
	"github.com/Tanvirul-I/Collab-Notes/internal/storage/sqlite3"
	"github.com/Tanvirul-I/Collab-Notes/setup"
	"github.com/Tanvirul-I/Collab-Notes/setup/config"
)

// accessCacheMaxCost bounds the in-process access-grant cache to a few
// thousand entries; grants are tiny and expire after seconds anyway.
const accessCacheMaxCost = 1 << 20

func main() {
	cfg, err := config.LoadFromEnvironment()
	if err != nil {
		logrus.WithError(err).Fatal("relay: invalid configuration")
	}

	setup.SetupLogging(cfg.LogLevel)
	if err := setup.InitSentry(cfg.SentryDSN); err != nil {
		logrus.WithError(err).Fatal("relay: sentry init failed")
	}
	log := logrus.NewEntry(logrus.StandardLogger())

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		log.WithError(err).Fatal("relay: token verifier init failed")
	}

	var store storage.Store
	if storage.IsPostgresDSN(cfg.DatabaseURL) {
		store, err = postgres.Open(cfg.DatabaseURL)
	} else {
		store, err = sqlite3.Open(cfg.DatabaseURL)
	}
	if err != nil {
		log.WithError(err).Fatal("relay: durable store open failed")
	}
	defer store.Close()

	var cache *caching.SnapshotCache
	if cfg.RedisURL != "" {
		cache, err = caching.NewSnapshotCache(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("relay: bad REDIS_URL")
		}
		defer cache.Close()
		if !cache.Ready() {
			log.Warn("relay: cache unreachable at startup, using durable-only persistence until it recovers")
		}
	}

	caches, err := caching.New(accessCacheMaxCost)
	if err != nil {
		log.WithError(err).Fatal("relay: cache init failed")
	}

	collector := metrics.NewCollector()
	snapshots := snapshot.New(cache, store, cfg.DurableWriteFloor, log)
	resolver := access.New(store, caches, cfg.AccessCacheTTL)
	registry := room.NewRegistry(snapshots, collector, room.Config{
		DebounceCache:   cfg.PersistDebounceCache,
		DebounceDurable: cfg.PersistDebounceDurable,
	}, log)

	handler := relay.NewHandler(verifier, resolver, store, registry, collector, log)
	sweeper := relay.NewSweeper(handler, registry, cache, cfg.HeartbeatInterval, cfg.HeartbeatTimeout, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: relay.Routes(handler, collector),
	}
	go func() {
		log.WithField("port", cfg.Port).Info("relay: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("relay: listener failed")
		}
	}()

	<-ctx.Done()
	log.Info("relay: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("relay: http shutdown incomplete")
	}
	registry.FlushAll(shutdownCtx)
}
