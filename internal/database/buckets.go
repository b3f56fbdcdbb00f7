// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jmorrell/rollcall/internal/models"
)

// ListBuckets returns a member's attendance buckets ordered by page.
func (db *DB) ListBuckets(ctx context.Context, memberID string) ([]*models.EventsAttendedBucket, error) {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("select", "attendance_buckets", time.Now())

	return listBucketsQuery(ctx, db.conn.QueryContext, `
		SELECT id, troupe_id, member_id, page, events
		FROM attendance_buckets WHERE member_id = ? ORDER BY page`, memberID)
}

type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func listBucketsQuery(ctx context.Context, query queryFunc, q string, args ...any) ([]*models.EventsAttendedBucket, error) {
	rows, err := query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var out []*models.EventsAttendedBucket
	for rows.Next() {
		var (
			b      models.EventsAttendedBucket
			events string
		)
		if err := rows.Scan(&b.ID, &b.TroupeID, &b.MemberID, &b.Page, &events); err != nil {
			return nil, err
		}
		if err := decodeJSON(events, &b.Events); err != nil {
			return nil, err
		}
		if b.Events == nil {
			b.Events = make(map[string]models.AttendedEvent)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// PlanAppend decides where new attendance entries land across a member's
// pages: events already recorded anywhere are skipped, the last page fills
// to models.MaxBucketEntries, and further pages open with incrementing page
// numbers. Returns the buckets to write and the event IDs actually added.
//
// Pure planning, no I/O; the caller persists the returned buckets.
func PlanAppend(troupeID, memberID string, existing []*models.EventsAttendedBucket, add map[string]models.AttendedEvent) ([]*models.EventsAttendedBucket, []string) {
	seen := make(map[string]bool)
	for _, b := range existing {
		for eventID := range b.Events {
			seen[eventID] = true
		}
	}

	// Deterministic fill order.
	eventIDs := make([]string, 0, len(add))
	for id := range add {
		if !seen[id] {
			eventIDs = append(eventIDs, id)
		}
	}
	sort.Strings(eventIDs)
	if len(eventIDs) == 0 {
		return nil, nil
	}

	var (
		dirty   []*models.EventsAttendedBucket
		current *models.EventsAttendedBucket
		page    = -1
	)
	if n := len(existing); n > 0 {
		last := existing[n-1]
		page = last.Page
		if len(last.Events) < models.MaxBucketEntries {
			current = last
			dirty = append(dirty, last)
		}
	}

	for _, eventID := range eventIDs {
		if current == nil || len(current.Events) >= models.MaxBucketEntries {
			page++
			current = &models.EventsAttendedBucket{
				ID:       uuid.New().String(),
				TroupeID: troupeID,
				MemberID: memberID,
				Page:     page,
				Events:   make(map[string]models.AttendedEvent),
			}
			dirty = append(dirty, current)
		}
		current.Events[eventID] = add[eventID]
	}

	return dirty, eventIDs
}

func upsertBucketExec(ctx context.Context, exec execFunc, b *models.EventsAttendedBucket) error {
	events, err := encodeJSON(b.Events)
	if err != nil {
		return err
	}
	_, err = exec(ctx, `
		INSERT OR REPLACE INTO attendance_buckets (id, troupe_id, member_id, page, events)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.TroupeID, b.MemberID, b.Page, events)
	if err != nil {
		return fmt.Errorf("upsert bucket %s: %w", b.ID, err)
	}
	return nil
}

// removeBucketEntriesTx unsets the event's entry from every bucket in the
// troupe that holds it. Pages are not compacted.
func removeBucketEntriesTx(ctx context.Context, tx *sql.Tx, troupeID, eventID string) error {
	// LIKE prefilter on the JSON text narrows the scan; membership is
	// verified against the decoded map.
	buckets, err := listBucketsQuery(ctx, tx.QueryContext, `
		SELECT id, troupe_id, member_id, page, events
		FROM attendance_buckets
		WHERE troupe_id = ? AND events LIKE ?`, troupeID, "%"+eventID+"%")
	if err != nil {
		return err
	}

	for _, b := range buckets {
		if _, ok := b.Events[eventID]; !ok {
			continue
		}
		delete(b.Events, eventID)
		if err := upsertBucketExec(ctx, tx.ExecContext, b); err != nil {
			return err
		}
	}
	return nil
}
