// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package models

import "time"

// SourceKind identifies which external system an event's attendance comes
// from. Adapter dispatch is by this stored kind, never by payload shape.
type SourceKind string

// Source kinds.
const (
	SourceUnset SourceKind = ""
	SourceSheet SourceKind = "sheet"
	SourceForm  SourceKind = "form"
)

// EventType is a template for events: default point value plus the folder
// sources its events are discovered from.
type EventType struct {
	ID         string   `json:"id"`
	TroupeID   string   `json:"troupe_id"`
	Title      string   `json:"title"`
	Value      float64  `json:"value"`
	FolderURIs []string `json:"folder_uris,omitempty"`
}

// FieldMapping records how one external field of an event's source maps onto
// a member property. Property nil means unmapped. Override marks a manual
// mapping that sync must not disturb. RulePriority remembers which matcher
// produced an automatic mapping, nil when none did.
type FieldMapping struct {
	Label        string  `json:"label"`
	Property     *string `json:"property,omitempty"`
	Override     bool    `json:"override"`
	RulePriority *int    `json:"rule_priority,omitempty"`
}

// Event is a single attendance-taking occasion backed by one external data
// source.
//
// Fields maps external field identifiers to their property mappings.
// Invariant: at most one field maps to any given property at a time.
type Event struct {
	ID        string                  `json:"id"`
	TroupeID  string                  `json:"troupe_id"`
	TypeID    string                  `json:"type_id,omitempty"`
	Title     string                  `json:"title"`
	StartDate time.Time               `json:"start_date"`
	Kind      SourceKind              `json:"kind"`
	SourceURI string                  `json:"source_uri"`
	Value     float64                 `json:"value"`
	Fields    map[string]FieldMapping `json:"fields"`
}

// MappedProperty returns the field ID currently mapped to property, if any.
func (e *Event) MappedProperty(property string) (string, bool) {
	for id, f := range e.Fields {
		if f.Property != nil && *f.Property == property {
			return id, true
		}
	}
	return "", false
}
