// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core tables. All columns are declared in the
// initial CREATE TABLE statements; maps persist as JSON text columns.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS troupes (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL,
			properties VARCHAR NOT NULL DEFAULT '{}',
			point_types VARCHAR NOT NULL DEFAULT '{}',
			field_rules VARCHAR NOT NULL DEFAULT '[]',
			origin_event_id VARCHAR NOT NULL DEFAULT '',
			sync_lock BOOLEAN NOT NULL DEFAULT false,
			sync_lock_at TIMESTAMP,
			last_updated TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS event_types (
			id VARCHAR PRIMARY KEY,
			troupe_id VARCHAR NOT NULL,
			title VARCHAR NOT NULL,
			value DOUBLE NOT NULL DEFAULT 0,
			folder_uris VARCHAR NOT NULL DEFAULT '[]'
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR PRIMARY KEY,
			troupe_id VARCHAR NOT NULL,
			type_id VARCHAR NOT NULL DEFAULT '',
			title VARCHAR NOT NULL,
			start_date TIMESTAMP NOT NULL,
			kind VARCHAR NOT NULL DEFAULT '',
			source_uri VARCHAR NOT NULL DEFAULT '',
			value DOUBLE NOT NULL DEFAULT 0,
			fields VARCHAR NOT NULL DEFAULT '{}'
		)`,

		`CREATE TABLE IF NOT EXISTS members (
			id VARCHAR PRIMARY KEY,
			troupe_id VARCHAR NOT NULL,
			properties VARCHAR NOT NULL DEFAULT '{}',
			points VARCHAR NOT NULL DEFAULT '{}'
		)`,

		`CREATE TABLE IF NOT EXISTS attendance_buckets (
			id VARCHAR PRIMARY KEY,
			troupe_id VARCHAR NOT NULL,
			member_id VARCHAR NOT NULL,
			page INTEGER NOT NULL,
			events VARCHAR NOT NULL DEFAULT '{}'
		)`,

		`CREATE INDEX IF NOT EXISTS idx_event_types_troupe ON event_types (troupe_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_troupe ON events (troupe_id)`,
		`CREATE INDEX IF NOT EXISTS idx_members_troupe ON members (troupe_id)`,
		`CREATE INDEX IF NOT EXISTS idx_buckets_member ON attendance_buckets (member_id, page)`,
		`CREATE INDEX IF NOT EXISTS idx_buckets_troupe ON attendance_buckets (troupe_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
