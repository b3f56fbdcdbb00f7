// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListEvents returns the troupe's events with their current field maps.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	troupeID := chi.URLParam(r, "troupeID")
	if _, err := s.db.GetTroupe(ctx, troupeID); err != nil {
		respondMapped(w, r, err)
		return
	}

	events, err := s.db.ListEvents(ctx, troupeID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	limit, offset := s.pageParams(r)
	page, meta := paginate(events, limit, offset)
	respondPage(w, r, page, meta)
}
