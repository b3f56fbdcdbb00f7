// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package models

import "time"

// PropertyValue is one member property: its coerced value plus an override
// flag. Overridden values were set manually or by the troupe's origin event
// and are never replaced by ordinary sync merges.
type PropertyValue struct {
	Value    any  `json:"value"`
	Override bool `json:"override"`
}

// Member is a tracked individual, keyed within a troupe by the value of the
// identifying property (MemberIDProperty).
type Member struct {
	ID         string                   `json:"id"`
	TroupeID   string                   `json:"troupe_id"`
	Properties map[string]PropertyValue `json:"properties"`
	Points     map[string]float64       `json:"points"`
}

// IdentityValue returns the member's identifying property value as a string,
// empty when unset.
func (m *Member) IdentityValue() string {
	pv, ok := m.Properties[MemberIDProperty]
	if !ok || pv.Value == nil {
		return ""
	}
	s, _ := pv.Value.(string)
	return s
}

// AttendedEvent is one entry in a member's attendance record: the event's
// type, its point value, and its date at the time it was credited.
type AttendedEvent struct {
	TypeID string    `json:"type_id,omitempty"`
	Value  float64   `json:"value"`
	Date   time.Time `json:"date"`
}

// MaxBucketEntries is the fixed page capacity of an events-attended bucket.
const MaxBucketEntries = 30

// EventsAttendedBucket is one fixed-capacity page of a member's attended
// events, keyed by event ID.
//
// Invariants: across all of one member's buckets there is at most one entry
// per event, and no bucket holds more than MaxBucketEntries entries.
type EventsAttendedBucket struct {
	ID       string                   `json:"id"`
	TroupeID string                   `json:"troupe_id"`
	MemberID string                   `json:"member_id"`
	Page     int                      `json:"page"`
	Events   map[string]AttendedEvent `json:"events"`
}
