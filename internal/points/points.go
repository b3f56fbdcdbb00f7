// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package points computes member point totals from attended events.
//
// Each attended event credits every point bucket whose [start, end] date
// range contains the event's start date. Event edits are applied as deltas
// scoped to the edited event's attendees, never as a full recompute, so they
// stay correct under concurrent point-type edits.
package points

import (
	"time"

	"github.com/jmorrell/rollcall/internal/models"
)

// BucketsFor returns the names of every point bucket whose date range
// contains date.
func BucketsFor(date time.Time, defs map[string]models.PointBucket) []string {
	var names []string
	for name, b := range defs {
		if b.Contains(date) {
			names = append(names, name)
		}
	}
	return names
}

// Credit adds value to every bucket covering date. The points map is
// created when nil and returned.
func Credit(points map[string]float64, date time.Time, value float64, defs map[string]models.PointBucket) map[string]float64 {
	if points == nil {
		points = make(map[string]float64)
	}
	for _, name := range BucketsFor(date, defs) {
		points[name] += value
	}
	return points
}

// Delta describes an event edit affecting point totals: a value change, a
// date change, or both.
type Delta struct {
	OldValue float64
	NewValue float64
	OldDate  time.Time
	NewDate  time.Time
}

// Changed reports whether applying the delta would alter any total.
func (d Delta) Changed() bool {
	return d.OldValue != d.NewValue || !d.OldDate.Equal(d.NewDate)
}

// ApplyDelta adjusts points for one attendee of an edited event: the old
// value is withdrawn from buckets covering the old date and the new value
// credited to buckets covering the new date. When the date is unchanged this
// reduces to adding (new - old) to the covering buckets.
func ApplyDelta(points map[string]float64, d Delta, defs map[string]models.PointBucket) map[string]float64 {
	if points == nil {
		points = make(map[string]float64)
	}
	for _, name := range BucketsFor(d.OldDate, defs) {
		points[name] -= d.OldValue
	}
	for _, name := range BucketsFor(d.NewDate, defs) {
		points[name] += d.NewValue
	}
	return points
}

// Recompute derives the full point map from a member's attendance entries.
// Used by tests and repair tooling to check the incremental totals.
func Recompute(attended map[string]models.AttendedEvent, defs map[string]models.PointBucket) map[string]float64 {
	points := make(map[string]float64)
	for _, ev := range attended {
		points = Credit(points, ev.Date, ev.Value, defs)
	}
	return points
}
