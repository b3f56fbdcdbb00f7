// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package points

import (
	"sort"
	"testing"
	"time"

	"github.com/jmorrell/rollcall/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var defs = map[string]models.PointBucket{
	"Fall":   {Start: day(2026, 9, 1), End: day(2026, 12, 31)},
	"Spring": {Start: day(2026, 1, 1), End: day(2026, 5, 31)},
	"Year":   {Start: day(2026, 1, 1), End: day(2026, 12, 31)},
}

func TestBucketsFor(t *testing.T) {
	got := BucketsFor(day(2026, 10, 15), defs)
	sort.Strings(got)
	if len(got) != 2 || got[0] != "Fall" || got[1] != "Year" {
		t.Errorf("BucketsFor(Oct 15) = %v, want [Fall Year]", got)
	}

	// Range bounds are inclusive on both ends.
	if got := BucketsFor(day(2026, 9, 1), defs); len(got) != 2 {
		t.Errorf("BucketsFor(start bound) = %v, want 2 buckets", got)
	}
	if got := BucketsFor(day(2026, 12, 31), defs); len(got) != 2 {
		t.Errorf("BucketsFor(end bound) = %v, want 2 buckets", got)
	}

	if got := BucketsFor(day(2027, 2, 1), defs); len(got) != 0 {
		t.Errorf("BucketsFor(out of range) = %v, want none", got)
	}
}

func TestCredit(t *testing.T) {
	points := Credit(nil, day(2026, 3, 10), 5, defs)
	if points["Spring"] != 5 || points["Year"] != 5 {
		t.Errorf("Credit = %v, want Spring=5 Year=5", points)
	}
	if _, ok := points["Fall"]; ok {
		t.Error("Credit touched Fall bucket outside its range")
	}

	points = Credit(points, day(2026, 3, 24), 2, defs)
	if points["Spring"] != 7 || points["Year"] != 7 {
		t.Errorf("Credit accumulate = %v, want Spring=7 Year=7", points)
	}
}

func TestApplyDelta_ValueChange(t *testing.T) {
	d := day(2026, 10, 1)
	points := Credit(nil, d, 3, defs)

	points = ApplyDelta(points, Delta{OldValue: 3, NewValue: 8, OldDate: d, NewDate: d}, defs)
	if points["Fall"] != 8 || points["Year"] != 8 {
		t.Errorf("ApplyDelta value change = %v, want Fall=8 Year=8", points)
	}
}

func TestApplyDelta_DateChange(t *testing.T) {
	points := Credit(nil, day(2026, 10, 1), 3, defs)

	// Move the event from fall to spring, same value.
	points = ApplyDelta(points, Delta{
		OldValue: 3, NewValue: 3,
		OldDate: day(2026, 10, 1), NewDate: day(2026, 4, 1),
	}, defs)

	if points["Fall"] != 0 {
		t.Errorf("Fall = %v after date move, want 0", points["Fall"])
	}
	if points["Spring"] != 3 || points["Year"] != 3 {
		t.Errorf("ApplyDelta date change = %v, want Spring=3 Year=3", points)
	}
}

func TestApplyDelta_MatchesRecompute(t *testing.T) {
	attended := map[string]models.AttendedEvent{
		"e1": {Value: 2, Date: day(2026, 2, 1)},
		"e2": {Value: 4, Date: day(2026, 10, 1)},
		"e3": {Value: 1, Date: day(2026, 5, 20)},
	}

	points := make(map[string]float64)
	for _, ev := range attended {
		points = Credit(points, ev.Date, ev.Value, defs)
	}

	// Edit e2: value 4 -> 6, date moves into spring.
	points = ApplyDelta(points, Delta{
		OldValue: 4, NewValue: 6,
		OldDate: day(2026, 10, 1), NewDate: day(2026, 3, 1),
	}, defs)
	attended["e2"] = models.AttendedEvent{Value: 6, Date: day(2026, 3, 1)}

	want := Recompute(attended, defs)
	for name := range defs {
		if points[name] != want[name] {
			t.Errorf("bucket %s: incremental=%v recomputed=%v", name, points[name], want[name])
		}
	}
}
