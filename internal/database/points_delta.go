// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmorrell/rollcall/internal/models"
	"github.com/jmorrell/rollcall/internal/points"
)

// ApplyEventPointsDelta recomputes point totals after an event edit (value
// change, date change, or both) as a bulk update scoped by event identity:
// only members already recorded as attendees of the event are touched, and
// only by the delta, so it stays correct under concurrent point-type edits.
//
// The attendance entries themselves are updated to the event's new value and
// date inside the same transaction.
func (db *DB) ApplyEventPointsDelta(ctx context.Context, troupeID, eventID string, delta points.Delta, defs map[string]models.PointBucket) error {
	if !delta.Changed() {
		return nil
	}

	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("update", "attendance_buckets", time.Now())

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin points delta: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	buckets, err := listBucketsQuery(ctx, tx.QueryContext, `
		SELECT id, troupe_id, member_id, page, events
		FROM attendance_buckets
		WHERE troupe_id = ? AND events LIKE ?`, troupeID, "%"+eventID+"%")
	if err != nil {
		return err
	}

	touched := make(map[string]bool)
	for _, b := range buckets {
		entry, ok := b.Events[eventID]
		if !ok {
			continue
		}

		entry.Value = delta.NewValue
		entry.Date = delta.NewDate
		b.Events[eventID] = entry
		if err := upsertBucketExec(ctx, tx.ExecContext, b); err != nil {
			return err
		}

		if touched[b.MemberID] {
			// A member holds at most one entry per event across buckets;
			// a second hit here means the invariant is already broken.
			return fmt.Errorf("member %s holds duplicate entries for event %s", b.MemberID, eventID)
		}
		touched[b.MemberID] = true

		row := tx.QueryRowContext(ctx, `
			SELECT id, troupe_id, properties, points FROM members WHERE id = ?`, b.MemberID)
		m, err := scanMember(row.Scan)
		if err != nil {
			return fmt.Errorf("load attendee %s: %w", b.MemberID, err)
		}

		m.Points = points.ApplyDelta(m.Points, delta, defs)
		if err := upsertMemberExec(ctx, tx.ExecContext, m); err != nil {
			return err
		}
	}

	return tx.Commit()
}
