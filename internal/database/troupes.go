// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/models"
)

// GetTroupe loads one troupe. Returns errs.ErrTroupeNotFound when absent.
func (db *DB) GetTroupe(ctx context.Context, troupeID string) (*models.Troupe, error) {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("select", "troupes", time.Now())

	row := db.conn.QueryRowContext(ctx, `
		SELECT id, name, properties, point_types, field_rules,
		       origin_event_id, sync_lock, sync_lock_at, last_updated
		FROM troupes WHERE id = ?`, troupeID)

	return scanTroupe(row)
}

func scanTroupe(row *sql.Row) (*models.Troupe, error) {
	var (
		t                             models.Troupe
		props, pointTypes, fieldRules string
		lockAt                        sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Name, &props, &pointTypes, &fieldRules,
		&t.OriginEventID, &t.SyncLock, &lockAt, &t.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrTroupeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan troupe: %w", err)
	}
	if lockAt.Valid {
		t.SyncLockAt = lockAt.Time
	}

	if err := decodeJSON(props, &t.Properties); err != nil {
		return nil, err
	}
	if err := decodeJSON(pointTypes, &t.PointTypes); err != nil {
		return nil, err
	}
	if err := decodeJSON(fieldRules, &t.FieldRules); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertTroupe inserts or replaces a troupe row.
func (db *DB) UpsertTroupe(ctx context.Context, t *models.Troupe) error {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("upsert", "troupes", time.Now())

	props, err := encodeJSON(t.Properties)
	if err != nil {
		return err
	}
	pointTypes, err := encodeJSON(t.PointTypes)
	if err != nil {
		return err
	}
	fieldRules, err := encodeJSON(t.FieldRules)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO troupes
			(id, name, properties, point_types, field_rules,
			 origin_event_id, sync_lock, sync_lock_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, props, pointTypes, fieldRules,
		t.OriginEventID, t.SyncLock, nullTime(t.SyncLockAt), t.LastUpdated.UTC())
	if err != nil {
		return fmt.Errorf("upsert troupe %s: %w", t.ID, err)
	}
	return nil
}

// ListTroupeIDs returns all troupe IDs; used by the stale-lock sweep and the
// quota refresher.
func (db *DB) ListTroupeIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("select", "troupes", time.Now())

	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM troupes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list troupes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AcquireSyncLock attempts the conditional lock write: the flag is set only
// if currently unset. Returns errs.ErrSyncInProgress when another sync holds
// it. This is the sole cross-process concurrency primitive; every mutation
// path runs under it.
func (db *DB) AcquireSyncLock(ctx context.Context, troupeID string) error {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("update", "troupes", time.Now())

	res, err := db.conn.ExecContext(ctx, `
		UPDATE troupes SET sync_lock = true, sync_lock_at = ?
		WHERE id = ? AND sync_lock = false`,
		time.Now().UTC(), troupeID)
	if err != nil {
		return fmt.Errorf("acquire sync lock for %s: %w", troupeID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire sync lock for %s: %w", troupeID, err)
	}
	if n == 0 {
		// Either locked or missing; distinguish for the caller.
		if _, gerr := db.GetTroupe(ctx, troupeID); errors.Is(gerr, errs.ErrTroupeNotFound) {
			return errs.ErrTroupeNotFound
		}
		return errs.ErrSyncInProgress
	}
	return nil
}

// ReleaseSyncLock clears the lock unconditionally. Safe to call on an
// already-unlocked troupe (error paths release in a separate step so a
// troupe is never left permanently locked).
func (db *DB) ReleaseSyncLock(ctx context.Context, troupeID string) error {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("update", "troupes", time.Now())

	_, err := db.conn.ExecContext(ctx, `
		UPDATE troupes SET sync_lock = false, sync_lock_at = NULL WHERE id = ?`, troupeID)
	if err != nil {
		return fmt.Errorf("release sync lock for %s: %w", troupeID, err)
	}
	return nil
}

// SweepStaleLocks force-clears locks held longer than maxHeld, treating the
// prior sync as abandoned. Returns the troupe IDs it unlocked.
func (db *DB) SweepStaleLocks(ctx context.Context, maxHeld time.Duration) ([]string, error) {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("update", "troupes", time.Now())

	cutoff := time.Now().UTC().Add(-maxHeld)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id FROM troupes WHERE sync_lock = true AND sync_lock_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find stale locks: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		stale = append(stale, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range stale {
		if err := db.ReleaseSyncLock(ctx, id); err != nil {
			return nil, err
		}
		logging.Warn().Str("troupe_id", id).Dur("max_held", maxHeld).Msg("Force-cleared stale sync lock")
	}
	return stale, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
