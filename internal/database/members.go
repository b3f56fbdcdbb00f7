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

// ErrMemberNotFound is returned when the requested member does not exist.
var ErrMemberNotFound = errors.New("member not found")

// GetMember loads one member.
func (db *DB) GetMember(ctx context.Context, memberID string) (*models.Member, error) {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("select", "members", time.Now())

	row := db.conn.QueryRowContext(ctx, `
		SELECT id, troupe_id, properties, points FROM members WHERE id = ?`, memberID)

	m, err := scanMember(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	return m, err
}

// ListMembers returns all of a troupe's members ordered by ID.
func (db *DB) ListMembers(ctx context.Context, troupeID string) ([]*models.Member, error) {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("select", "members", time.Now())

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, troupe_id, properties, points
		FROM members WHERE troupe_id = ? ORDER BY id`, troupeID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []*models.Member
	for rows.Next() {
		m, err := scanMember(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMember(scan func(dest ...any) error) (*models.Member, error) {
	var (
		m             models.Member
		props, points string
	)
	if err := scan(&m.ID, &m.TroupeID, &props, &points); err != nil {
		return nil, err
	}
	if err := decodeJSON(props, &m.Properties); err != nil {
		return nil, err
	}
	if err := decodeJSON(points, &m.Points); err != nil {
		return nil, err
	}
	if m.Properties == nil {
		m.Properties = make(map[string]models.PropertyValue)
	}
	if m.Points == nil {
		m.Points = make(map[string]float64)
	}
	return &m, nil
}

// UpsertMember inserts or replaces a member row.
func (db *DB) UpsertMember(ctx context.Context, m *models.Member) error {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("upsert", "members", time.Now())

	return upsertMemberExec(ctx, db.conn.ExecContext, m)
}

func upsertMemberExec(ctx context.Context, exec execFunc, m *models.Member) error {
	props, err := encodeJSON(m.Properties)
	if err != nil {
		return err
	}
	points, err := encodeJSON(m.Points)
	if err != nil {
		return err
	}
	_, err = exec(ctx, `
		INSERT OR REPLACE INTO members (id, troupe_id, properties, points)
		VALUES (?, ?, ?, ?)`,
		m.ID, m.TroupeID, props, points)
	if err != nil {
		return fmt.Errorf("upsert member %s: %w", m.ID, err)
	}
	return nil
}

// DeleteMember removes the member row and all of the member's attendance
// buckets in one transaction.
func (db *DB) DeleteMember(ctx context.Context, memberID string) error {
	ctx, cancel := db.queryContext(ctx)
	defer cancel()
	defer observe("delete", "members", time.Now())

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete member: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, memberID); err != nil {
		return fmt.Errorf("delete member %s: %w", memberID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_buckets WHERE member_id = ?`, memberID); err != nil {
		return fmt.Errorf("delete buckets for member %s: %w", memberID, err)
	}
	return tx.Commit()
}
