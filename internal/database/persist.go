// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/models"
)

// SyncPersist is one sync run's entire persisted outcome. The orchestrator
// assembles it in memory during the Reconciling phase; nothing here has
// touched the database before Persist is called.
type SyncPersist struct {
	// Troupe carries the updated property schema (auto-expansion) and gets
	// its last_updated stamp and lock cleared on commit.
	Troupe *models.Troupe

	// Events to upsert with their updated field maps.
	Events []*models.Event

	// DeleteEventIDs are events whose sources disappeared or failed.
	DeleteEventIDs []string

	// Members to upsert, point totals already recomputed.
	Members []*models.Member

	// DeleteMemberIDs are members pruned by this run.
	DeleteMemberIDs []string

	// Attendance maps member ID to the attendance entries newly credited
	// this run; the bucket writer pages them in here.
	Attendance map[string]map[string]models.AttendedEvent
}

// PersistSyncResult applies the whole sync outcome in a single transaction:
// event field maps, event deletions, member upserts and deletions,
// attendance bucket pages, the troupe's last_updated stamp, and the sync
// lock clear. If any step fails the transaction rolls back and the lock is
// released by the orchestrator in a separate step. A troupe whose sync lock
// was taken away mid-run (stale-lock sweep) fails the finalize with
// errs.ErrLockNotHeld and nothing commits.
func (db *DB) PersistSyncResult(ctx context.Context, p *SyncPersist) error {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("persist", "sync", time.Now())

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync persist: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ev := range p.Events {
		if err := upsertEventExec(ctx, tx.ExecContext, ev); err != nil {
			return err
		}
	}
	for _, eventID := range p.DeleteEventIDs {
		if err := deleteEventTx(ctx, tx, p.Troupe.ID, eventID); err != nil {
			return err
		}
	}

	for _, m := range p.Members {
		if err := upsertMemberExec(ctx, tx.ExecContext, m); err != nil {
			return err
		}
	}
	for _, memberID := range p.DeleteMemberIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, memberID); err != nil {
			return fmt.Errorf("delete member %s: %w", memberID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_buckets WHERE member_id = ?`, memberID); err != nil {
			return fmt.Errorf("delete buckets for member %s: %w", memberID, err)
		}
	}

	for memberID, add := range p.Attendance {
		existing, err := listBucketsQuery(ctx, tx.QueryContext, `
			SELECT id, troupe_id, member_id, page, events
			FROM attendance_buckets WHERE member_id = ? ORDER BY page`, memberID)
		if err != nil {
			return err
		}
		dirty, _ := PlanAppend(p.Troupe.ID, memberID, existing, add)
		for _, b := range dirty {
			if err := upsertBucketExec(ctx, tx.ExecContext, b); err != nil {
				return err
			}
		}
	}

	// The finalize only matches a locked row. Zero rows means the stale-lock
	// sweep (or another writer) took the lock away mid-run; committing would
	// overwrite whatever that writer did, so the whole transaction rolls back.
	res, err := tx.ExecContext(ctx, `
		UPDATE troupes
		SET properties = ?, point_types = ?, last_updated = ?,
		    sync_lock = false, sync_lock_at = NULL
		WHERE id = ? AND sync_lock = true`,
		mustJSON(p.Troupe.Properties), mustJSON(p.Troupe.PointTypes),
		time.Now().UTC(), p.Troupe.ID)
	if err != nil {
		return fmt.Errorf("finalize troupe %s: %w", p.Troupe.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finalize troupe %s: %w", p.Troupe.ID, errs.ErrLockNotHeld)
	}

	return tx.Commit()
}

// mustJSON encodes a map that is always encodable (string-keyed, plain
// values); encoding failure here would be a programming error.
func mustJSON(v any) string {
	s, err := encodeJSON(v)
	if err != nil {
		panic(err)
	}
	return s
}
