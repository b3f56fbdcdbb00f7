// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

/*
adapter.go - Event Data Source Adapter Contract

One adapter per source kind turns an event's raw external payload into an
updated field map plus candidate member records. Dispatch is by the event's
stored kind, never by inspecting the payload's shape.

Every adapter runs two passes:

 1. Field synchronization: resolve or re-validate each external field's
    property mapping with the matcher rules, drop mappings for fields no
    longer present in the source, and locate the identifying field.
 2. Audience synchronization: only when an identifying field is mapped,
    scan each record, coerce the mapped fields, and emit one candidate
    member per record keyed by the identifying value.
*/
package source

import (
	"context"
	"sort"
	"time"

	"github.com/jmorrell/rollcall/internal/match"
	"github.com/jmorrell/rollcall/internal/models"
)

// MemberRecord is one candidate member extracted from a single source
// record, before identity resolution.
type MemberRecord struct {
	// Identity is the formatted identifying property value.
	Identity string

	// Properties holds the coerced values of every field mapped at the
	// time the record was scanned.
	Properties map[string]any

	// Attended credits the record's event.
	Attended models.AttendedEvent
}

// Discovery is the result of one adapter pass over one event's source.
type Discovery struct {
	// Event is the input event with its field map reconciled. Always set,
	// even when no identifying field was found.
	Event *models.Event

	// Members are the candidate records in source order, empty when the
	// source exposes no valid identifying field.
	Members []MemberRecord
}

// Adapter extracts field mappings and candidate members from one event's
// external source.
type Adapter interface {
	DiscoverAudience(ctx context.Context, tr *models.Troupe, ev *models.Event, asOf time.Time) (*Discovery, error)
}

// Adapters dispatches to the adapter for an event's stored source kind.
type Adapters struct {
	byKind map[models.SourceKind]Adapter
}

// NewAdapters wires the production adapters over a shared provider client
// and URI resolver.
func NewAdapters(client *Client, resolver *Resolver) *Adapters {
	return &Adapters{byKind: map[models.SourceKind]Adapter{
		models.SourceSheet: &SheetAdapter{client: client, resolver: resolver},
		models.SourceForm:  &FormAdapter{client: client, resolver: resolver},
	}}
}

// ForKind returns the adapter for kind, false when the kind has none
// (unset-source events are skipped by ingest).
func (a *Adapters) ForKind(kind models.SourceKind) (Adapter, bool) {
	ad, ok := a.byKind[kind]
	return ad, ok
}

// syncFields reconciles an event's field map against the labels currently
// present in its source. fieldIDs gives the source's field order; labels
// maps field ID to its human-readable label.
//
// Overridden mappings are kept untouched while their field exists. Fields
// absent from the source lose their entry entirely. For the rest, the
// matcher decides: the winning rule's property is claimed unless another
// field already holds it.
func syncFields(tr *models.Troupe, ev *models.Event, fieldIDs []string, labels map[string]string) {
	if ev.Fields == nil {
		ev.Fields = make(map[string]models.FieldMapping)
	}

	for id := range ev.Fields {
		if _, present := labels[id]; !present {
			delete(ev.Fields, id)
		}
	}

	mctx := match.Context{EventTitle: ev.Title, EventKind: ev.Kind}
	for _, id := range fieldIDs {
		label := labels[id]
		existing, known := ev.Fields[id]
		if known && existing.Override {
			existing.Label = label
			ev.Fields[id] = existing
			continue
		}

		mapping := models.FieldMapping{Label: label}
		if rule := match.Resolve(label, tr.FieldRules, mctx); rule != nil {
			if _, declared := tr.Properties[rule.Property]; declared {
				if holder, taken := ev.MappedProperty(rule.Property); !taken || holder == id {
					prop := rule.Property
					prio := rule.Priority
					mapping.Property = &prop
					mapping.RulePriority = &prio
				}
			}
		}
		ev.Fields[id] = mapping
	}
}

// invalidateMapping nulls a field's property mapping after a coercion
// failure. Overridden mappings are left alone; their bad values are skipped
// row by row instead.
func invalidateMapping(ev *models.Event, fieldID string) {
	f, ok := ev.Fields[fieldID]
	if !ok || f.Override {
		return
	}
	f.Property = nil
	f.RulePriority = nil
	ev.Fields[fieldID] = f
}

// mappedFields returns the IDs of fields with a live property mapping, in
// deterministic order.
func mappedFields(ev *models.Event) []string {
	ids := make([]string, 0, len(ev.Fields))
	for id, f := range ev.Fields {
		if f.Property != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
