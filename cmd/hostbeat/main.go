/*
 * Copyright 2026 Hostbeat Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command hostbeat runs the host telemetry daemon: collectors, the
// two-tier snapshot cache, the per-domain scheduler, and the HTTP and
// websocket API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hostbeat/hostbeat/pkg/api"
	"github.com/hostbeat/hostbeat/pkg/cache"
	"github.com/hostbeat/hostbeat/pkg/collectors"
	"github.com/hostbeat/hostbeat/pkg/db"
	"github.com/hostbeat/hostbeat/pkg/kv"
	"github.com/hostbeat/hostbeat/pkg/logger"
	"github.com/hostbeat/hostbeat/pkg/models"
	"github.com/hostbeat/hostbeat/pkg/netquery"
	"github.com/hostbeat/hostbeat/pkg/telemetry"
)

const (
	defaultListenAddr    = ":8090"
	defaultSweepInterval = time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "/etc/hostbeat/core.json", "Path to core config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	mainLogger, err := logger.New(logConfig)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database, mainLogger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, mainLogger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	settingsStore := db.NewSettingsStore(pool, mainLogger)
	snapshotStore := db.NewSnapshotStore(pool, mainLogger)

	fastStore, err := newFastStore(ctx, cfg.NATS, mainLogger)
	if err != nil {
		return err
	}
	defer fastStore.Close()

	snapshotCache := cache.NewTwoTier(fastStore, snapshotStore, mainLogger)

	sweepInterval := time.Duration(cfg.SweepInterval)
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	sweeper := cache.NewSweeper(snapshotStore, sweepInterval, mainLogger)
	go sweeper.Run(ctx)

	defer sweeper.Stop()

	registry, err := buildRegistry(cfg.PortsLimit)
	if err != nil {
		return err
	}

	broadcaster := telemetry.NewBroadcaster(mainLogger)

	scheduler := telemetry.NewScheduler(registry, settingsStore, snapshotCache, broadcaster, nil, mainLogger)
	scheduler.Start(ctx)

	defer scheduler.Stop()

	resolver := telemetry.NewResolver(registry, settingsStore, snapshotCache, mainLogger)
	searchEngine := netquery.NewEngine(netquery.NewSystemSource(), mainLogger)

	apiServer := api.NewAPIServer(cfg.CORS, mainLogger,
		api.WithResolver(resolver),
		api.WithSettingsService(settingsStore),
		api.WithSearchEngine(searchEngine),
		api.WithBroadcaster(broadcaster),
		api.WithScheduler(scheduler),
		api.WithAPIKey(cfg.APIKey),
	)

	listenAddr := cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		mainLogger.Info().Str("addr", listenAddr).Msg("API server listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	mainLogger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	apiServer.Shutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown failed: %w", err)
	}

	return nil
}

func loadConfig(path string) (*models.CoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg models.CoreConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Database == nil {
		return nil, fmt.Errorf("config %s: database section is required", path)
	}

	return &cfg, nil
}

// newFastStore picks the volatile cache tier: a shared NATS JetStream KV
// bucket when configured, otherwise an in-process store.
func newFastStore(ctx context.Context, cfg *models.NATSConfig, log logger.Logger) (kv.Store, error) {
	if cfg == nil {
		log.Info().Msg("no NATS configured, using in-process fast cache tier")
		return kv.NewMemoryStore(), nil
	}

	store, err := kv.NewNatsStore(ctx, cfg.URL, cfg.Bucket, time.Duration(cfg.TTL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect fast cache tier: %w", err)
	}

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("connected fast cache tier")

	return store, nil
}

func buildRegistry(portsLimit int) (*telemetry.Registry, error) {
	registry := telemetry.NewRegistry()

	all := []telemetry.Collector{
		collectors.NewConnectionsCollector(),
		collectors.NewPortsCollector(portsLimit),
		collectors.NewServicesCollector(),
		collectors.NewCPUCollector(),
		collectors.NewMemoryCollector(),
	}

	for _, c := range all {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return registry, nil
}
