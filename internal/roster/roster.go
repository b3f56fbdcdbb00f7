// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package roster merges candidate member records discovered across events
// into one coherent member per identifying value.
//
// A Roster is shared by concurrently running event adapters, so two events
// discovering the same member at the same time must not race: lookups take a
// map-level lock, merges take a per-entry lock (read-modify-write under a
// per-key lock, never a plain shared map).
//
// Merge precedence, strongest first:
//  1. manually overridden properties: never replaced by any event
//  2. properties from the troupe's origin event: replaced only by the
//     origin event itself
//  3. ordinary event properties: last write wins
package roster

import (
	"sort"
	"sync"

	"github.com/jmorrell/rollcall/internal/models"
)

// Candidate is the running merged record for one identifying value within a
// single sync pass.
type Candidate struct {
	// Identity is the value of the identifying property.
	Identity string

	// MemberID is the persisted member this candidate keys to, empty for a
	// member first seen this pass.
	MemberID string

	// Properties is the merged property map.
	Properties map[string]models.PropertyValue

	// Attended maps event IDs to their attendance entries, at most one per
	// event.
	Attended map[string]models.AttendedEvent

	// fromOrigin marks properties whose current value came from the origin
	// event. Not persisted; only used for precedence within the pass.
	fromOrigin map[string]bool
}

type entry struct {
	mu sync.Mutex
	c  *Candidate
}

// Roster is the concurrency-safe candidate map for one sync pass.
type Roster struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty roster.
func New() *Roster {
	return &Roster{entries: make(map[string]*entry)}
}

// Seed registers already-persisted members so rows discovered this pass
// merge into them instead of creating duplicates. Seeded properties keep
// their override flags; none are treated as origin-sourced.
func (r *Roster) Seed(members []*models.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range members {
		identity := m.IdentityValue()
		if identity == "" {
			continue
		}
		props := make(map[string]models.PropertyValue, len(m.Properties))
		for k, v := range m.Properties {
			props[k] = v
		}
		r.entries[identity] = &entry{c: &Candidate{
			Identity:   identity,
			MemberID:   m.ID,
			Properties: props,
			Attended:   make(map[string]models.AttendedEvent),
			fromOrigin: make(map[string]bool),
		}}
	}
}

// lookup returns the entry for identity, creating it when absent.
func (r *Roster) lookup(identity string) *entry {
	r.mu.RLock()
	e, ok := r.entries[identity]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[identity]; ok {
		return e
	}
	e = &entry{c: &Candidate{
		Identity:   identity,
		Properties: make(map[string]models.PropertyValue),
		Attended:   make(map[string]models.AttendedEvent),
		fromOrigin: make(map[string]bool),
	}}
	r.entries[identity] = e
	return e
}

// Merge folds one event's contribution for identity into the roster.
// props holds coerced property values; fromOrigin is true when the
// contributing event is the troupe's origin event. The attendance entry is
// rejected when the event is already recorded for this candidate (a member
// attends an event at most once); Merge reports whether it was accepted.
func (r *Roster) Merge(identity string, props map[string]any, fromOrigin bool, eventID string, att models.AttendedEvent) bool {
	e := r.lookup(identity)
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.c
	for name, value := range props {
		existing, ok := c.Properties[name]
		if ok && existing.Override {
			continue
		}
		if ok && c.fromOrigin[name] && !fromOrigin {
			continue
		}
		c.Properties[name] = models.PropertyValue{Value: value, Override: existing.Override}
		c.fromOrigin[name] = fromOrigin
	}

	if _, dup := c.Attended[eventID]; dup {
		return false
	}
	c.Attended[eventID] = att
	return true
}

// Snapshot returns the merged candidates ordered by identity for
// deterministic persistence. Call only after all adapters finished.
func (r *Roster) Snapshot() []*Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Candidate, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Len returns the number of distinct identities in the roster.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
