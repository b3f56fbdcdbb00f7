// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package models defines the data structures used throughout Rollcall:
// troupes, event types, events, members, attendance buckets, and quota
// limit documents. It is the single source of truth for persisted shapes.
package models

import (
	"strings"
	"time"
)

// PropertyType declares the type of a member property, with a trailing
// modifier: '?' marks the property optional, '!' marks it required.
//
// Examples: "string!", "number?", "boolean?", "date?".
type PropertyType string

// Base property types.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeDate    = "date"
)

// Base returns the type without its modifier ("string!" -> "string").
func (t PropertyType) Base() string {
	s := string(t)
	if strings.HasSuffix(s, "?") || strings.HasSuffix(s, "!") {
		return s[:len(s)-1]
	}
	return s
}

// Required reports whether the property is declared with the '!' modifier.
// Null or empty values are rejected for required properties.
func (t PropertyType) Required() bool {
	return strings.HasSuffix(string(t), "!")
}

// Valid reports whether t is a well-formed property type declaration.
func (t PropertyType) Valid() bool {
	s := string(t)
	if !strings.HasSuffix(s, "?") && !strings.HasSuffix(s, "!") {
		return false
	}
	switch t.Base() {
	case TypeString, TypeNumber, TypeBoolean, TypeDate:
		return true
	}
	return false
}

// MemberIDProperty is the designated identifying property. A source field
// must map to it, and coerce cleanly, before any audience rows are ingested
// from that source.
const MemberIDProperty = "Member ID"

// PointBucket is a named, date-ranged accumulator of points (a season, a
// term). An event credits every bucket whose [Start, End] range contains the
// event's start date.
type PointBucket struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the bucket's inclusive date range covers t.
func (b PointBucket) Contains(t time.Time) bool {
	return !t.Before(b.Start) && !t.After(b.End)
}

// MatchCondition is the comparison a field rule applies between its
// expression and a field label.
type MatchCondition string

// Match conditions.
const (
	MatchContains MatchCondition = "contains"
	MatchExact    MatchCondition = "exact"
	MatchPrefix   MatchCondition = "prefix"
)

// RuleFilter constrains a field rule to events satisfying a context
// condition, e.g. {Kind: "sourceKind", Value: "form"} or
// {Kind: "titleContains", Value: "Rehearsal"}.
type RuleFilter struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Filter kinds.
const (
	FilterSourceKind    = "sourceKind"
	FilterTitleContains = "titleContains"
)

// FieldRule maps external field labels onto a member property. Rules are
// tried in ascending Priority order; on equal priority the rule stored
// first wins.
type FieldRule struct {
	Expression string         `json:"expression"`
	Condition  MatchCondition `json:"condition"`
	Property   string         `json:"property"`
	Priority   int            `json:"priority"`
	Filters    []RuleFilter   `json:"filters,omitempty"`
}

// Troupe is the tenant whose membership and events are tracked.
//
// Properties declares the member property schema; PointTypes the named
// point buckets; FieldRules the ordered matcher configuration. SyncLock is
// the advisory cross-process lock: it is persisted, set via a conditional
// write, and honored by every mutation path.
type Troupe struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	Properties    map[string]PropertyType `json:"properties"`
	PointTypes    map[string]PointBucket  `json:"point_types"`
	FieldRules    []FieldRule             `json:"field_rules"`
	OriginEventID string                  `json:"origin_event_id,omitempty"`
	SyncLock      bool                    `json:"sync_lock"`
	SyncLockAt    time.Time               `json:"sync_lock_at,omitempty"`
	LastUpdated   time.Time               `json:"last_updated"`
}
