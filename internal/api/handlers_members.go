// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmorrell/rollcall/internal/models"
)

// memberSummary is the attendee list view: identity plus point totals.
type memberSummary struct {
	ID       string             `json:"id"`
	Identity string             `json:"identity"`
	Points   map[string]float64 `json:"points"`
}

// memberDetail adds the full property map and attendance history.
type memberDetail struct {
	*models.Member
	Identity string                          `json:"identity"`
	Attended map[string]models.AttendedEvent `json:"attended"`
}

// ListMembers returns the troupe's members ordered by identifying value.
func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	troupeID := chi.URLParam(r, "troupeID")
	if _, err := s.db.GetTroupe(ctx, troupeID); err != nil {
		respondMapped(w, r, err)
		return
	}

	members, err := s.db.ListMembers(ctx, troupeID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}

	summaries := make([]memberSummary, 0, len(members))
	for _, m := range members {
		summaries = append(summaries, memberSummary{
			ID:       m.ID,
			Identity: m.IdentityValue(),
			Points:   m.Points,
		})
	}
	limit, offset := s.pageParams(r)
	page, meta := paginate(summaries, limit, offset)
	respondPage(w, r, page, meta)
}

// GetMember returns one member with properties, points, and the events they
// attended, flattened across bucket pages.
func (s *Server) GetMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID := chi.URLParam(r, "memberID")

	m, err := s.db.GetMember(ctx, memberID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}

	buckets, err := s.db.ListBuckets(ctx, memberID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	attended := make(map[string]models.AttendedEvent)
	for _, b := range buckets {
		for eventID, att := range b.Events {
			attended[eventID] = att
		}
	}

	respond(w, r, http.StatusOK, memberDetail{Member: m, Identity: m.IdentityValue(), Attended: attended})
}
