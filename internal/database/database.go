// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package database is the DuckDB-backed storage layer for Rollcall.
//
// It persists troupes, event types, events, members, and events-attended
// buckets, keyed by troupe. Property maps, field maps, point maps, and
// bucket entry maps are stored as JSON columns; the engine works on the
// typed structs in internal/models and this package owns the (de)coding.
//
// Two behaviors here carry sync correctness and live nowhere else:
//
//   - AcquireSyncLock is a conditional write (set only if currently unset)
//     implementing the advisory per-troupe sync lock across processes.
//   - PersistSyncResult applies one sync's entire outcome inside a single
//     transaction: all of it lands, or none of it does.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/metrics"
)

// Config holds database configuration.
type Config struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string

	// Threads limits DuckDB's internal parallelism. 0 uses NumCPU.
	Threads int

	// QueryTimeout bounds individual statements.
	QueryTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:         "rollcall.db",
		QueryTimeout: 30 * time.Second,
	}
}

// DB wraps the DuckDB connection pool.
type DB struct {
	conn *sql.DB
	cfg  Config
}

// New opens the database, configures the pool, and creates the schema.
func New(cfg Config) (*DB, error) {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	dsn := cfg.Path
	if dsn != "" {
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d", cfg.Path, threads)
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", threads).Msg("Database ready")
	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// queryContext derives a statement-scoped timeout context.
func (db *DB) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.cfg.QueryTimeout)
}

// observe records a query duration metric.
func observe(operation, table string, start time.Time) {
	metrics.DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}
