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

	"github.com/jmorrell/rollcall/internal/models"
)

// ErrEventNotFound is returned when the requested event does not exist.
var ErrEventNotFound = errors.New("event not found")

// ListEventTypes returns the troupe's event types ordered by title.
func (db *DB) ListEventTypes(ctx context.Context, troupeID string) ([]*models.EventType, error) {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("select", "event_types", time.Now())

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, troupe_id, title, value, folder_uris
		FROM event_types WHERE troupe_id = ? ORDER BY title`, troupeID)
	if err != nil {
		return nil, fmt.Errorf("list event types: %w", err)
	}
	defer rows.Close()

	var out []*models.EventType
	for rows.Next() {
		var (
			et   models.EventType
			uris string
		)
		if err := rows.Scan(&et.ID, &et.TroupeID, &et.Title, &et.Value, &uris); err != nil {
			return nil, err
		}
		if err := decodeJSON(uris, &et.FolderURIs); err != nil {
			return nil, err
		}
		out = append(out, &et)
	}
	return out, rows.Err()
}

// UpsertEventType inserts or replaces an event type row.
func (db *DB) UpsertEventType(ctx context.Context, et *models.EventType) error {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("upsert", "event_types", time.Now())

	uris, err := encodeJSON(et.FolderURIs)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO event_types (id, troupe_id, title, value, folder_uris)
		VALUES (?, ?, ?, ?, ?)`,
		et.ID, et.TroupeID, et.Title, et.Value, uris)
	if err != nil {
		return fmt.Errorf("upsert event type %s: %w", et.ID, err)
	}
	return nil
}

// GetEvent loads one event.
func (db *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("select", "events", time.Now())

	row := db.conn.QueryRowContext(ctx, `
		SELECT id, troupe_id, type_id, title, start_date, kind, source_uri, value, fields
		FROM events WHERE id = ?`, eventID)

	ev, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// ListEvents returns all of a troupe's events ordered by start date.
func (db *DB) ListEvents(ctx context.Context, troupeID string) ([]*models.Event, error) {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("select", "events", time.Now())

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, troupe_id, type_id, title, start_date, kind, source_uri, value, fields
		FROM events WHERE troupe_id = ? ORDER BY start_date, id`, troupeID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(scan func(dest ...any) error) (*models.Event, error) {
	var (
		ev     models.Event
		kind   string
		fields string
	)
	err := scan(&ev.ID, &ev.TroupeID, &ev.TypeID, &ev.Title, &ev.StartDate,
		&kind, &ev.SourceURI, &ev.Value, &fields)
	if err != nil {
		return nil, err
	}
	ev.Kind = models.SourceKind(kind)
	ev.StartDate = ev.StartDate.UTC()
	if err := decodeJSON(fields, &ev.Fields); err != nil {
		return nil, err
	}
	if ev.Fields == nil {
		ev.Fields = make(map[string]models.FieldMapping)
	}
	return &ev, nil
}

// UpsertEvent inserts or replaces an event row.
func (db *DB) UpsertEvent(ctx context.Context, ev *models.Event) error {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("upsert", "events", time.Now())

	return upsertEventExec(ctx, db.conn.ExecContext, ev)
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func upsertEventExec(ctx context.Context, exec execFunc, ev *models.Event) error {
	fields, err := encodeJSON(ev.Fields)
	if err != nil {
		return err
	}
	_, err = exec(ctx, `
		INSERT OR REPLACE INTO events
			(id, troupe_id, type_id, title, start_date, kind, source_uri, value, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TroupeID, ev.TypeID, ev.Title, ev.StartDate.UTC(),
		string(ev.Kind), ev.SourceURI, ev.Value, fields)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", ev.ID, err)
	}
	return nil
}

// DeleteEvent removes the event row and unsets its entry from every
// attendance bucket holding it (entries are unset, pages are not
// compacted). Runs in one transaction.
func (db *DB) DeleteEvent(ctx context.Context, troupeID, eventID string) error {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("delete", "events", time.Now())

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete event: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteEventTx(ctx, tx, troupeID, eventID); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteEventTx(ctx context.Context, tx *sql.Tx, troupeID, eventID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID); err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return removeBucketEntriesTx(ctx, tx, troupeID, eventID)
}
