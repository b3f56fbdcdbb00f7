// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package main is the entry point for the Rollcall server.
//
// Rollcall keeps a troupe's membership roster, attendance history, and point
// totals in step with its external event sources (attendance sheets and
// sign-up forms). Each sync run discovers events from watched folders,
// ingests member records through per-source adapters, reconciles them
// against the stored roster, and persists the outcome in one transaction.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered load (defaults, YAML file, ROLLCALL_*
//     environment variables)
//  2. DuckDB store for troupes, events, members, and attendance buckets
//  3. Badger store for quota counters
//  4. Source client (rate limited, per-kind circuit breakers) and adapters
//  5. Optional NATS JetStream queue, embedded or external
//  6. Supervision tree: stale-lock sweeper, quota refresher, queue
//     consumer, HTTP server
//
// # Queue modes
//
// With queue.enabled=false (the default) the POST sync endpoint runs the
// sync inline. With the queue enabled, requests are published to JetStream
// and a durable queue-group consumer executes them; queue.embedded=true
// starts an in-process NATS server for single-binary deployments.
//
// # Signal handling
//
// SIGINT and SIGTERM cancel the root context; the supervision tree drains
// its services, the HTTP server finishes in-flight requests, and both
// stores close before exit.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/jmorrell/rollcall/internal/api"
	"github.com/jmorrell/rollcall/internal/config"
	"github.com/jmorrell/rollcall/internal/database"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/logsheet"
	"github.com/jmorrell/rollcall/internal/quota"
	"github.com/jmorrell/rollcall/internal/queue"
	"github.com/jmorrell/rollcall/internal/source"
	"github.com/jmorrell/rollcall/internal/supervisor"
	syncengine "github.com/jmorrell/rollcall/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.Logging.Logging())
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("quota_path", cfg.Quota.Path).
		Bool("queue_enabled", cfg.Queue.Enabled).
		Msg("Starting Rollcall")

	db, err := database.New(cfg.Database.Database())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	kv, err := badger.Open(badger.DefaultOptions(cfg.Quota.Path).WithLogger(nil))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open quota store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing quota store")
		}
	}()
	quotaSvc := quota.New(kv, cfg.Quota.Service())

	client := source.NewClient(cfg.Sources)
	resolver := source.NewResolver(0, 0)
	adapters := source.NewAdapters(client, resolver)
	lister := source.NewLister(client, resolver)

	var logs syncengine.LogWriter
	if cfg.LogSheet.Enabled {
		logs = logsheet.New(cfg.LogSheet)
	}

	orchestrator := syncengine.New(db, quotaSvc, adapters, lister, logs, cfg.Sync)

	// Embedded NATS replaces the configured URL with the in-process one.
	if cfg.Queue.Enabled && cfg.Queue.Embedded {
		embedded, err := queue.NewEmbeddedServer(cfg.Queue)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		defer embedded.Shutdown()
		cfg.Queue.URL = embedded.ClientURL()
	}

	var (
		enqueuer api.Enqueuer
		consumer *queue.Consumer
	)
	if cfg.Queue.Enabled {
		publisher, err := queue.NewPublisher(cfg.Queue)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create queue publisher")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing queue publisher")
			}
		}()
		enqueuer = publisher

		consumer, err = queue.NewConsumer(cfg.Queue, orchestrator.Sync)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create queue consumer")
		}
		defer func() {
			if err := consumer.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing queue consumer")
			}
		}()
	}

	httpServer := api.New(db, quotaSvc, orchestrator.Sync, enqueuer, cfg)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddEngineService(syncengine.NewSweeper(db, cfg.Sync))
	tree.AddEngineService(quota.NewRefresher(quotaSvc))
	if consumer != nil {
		tree.AddMessagingService(consumer)
	}
	tree.AddAPIService(httpServer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited")
		os.Exit(1)
	}
	logging.Info().Msg("Rollcall stopped")
}
