// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/models"
)

// ListEventTypes returns the troupe's event types ordered by title.
func (s *Server) ListEventTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	troupeID := chi.URLParam(r, "troupeID")
	if _, err := s.db.GetTroupe(ctx, troupeID); err != nil {
		respondMapped(w, r, err)
		return
	}

	types, err := s.db.ListEventTypes(ctx, troupeID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	limit, offset := s.pageParams(r)
	page, meta := paginate(types, limit, offset)
	respondPage(w, r, page, meta)
}

type eventTypeRequest struct {
	Title      string   `json:"title" validate:"required,max=200"`
	Value      float64  `json:"value" validate:"min=0"`
	FolderURIs []string `json:"folder_uris" validate:"dive,required"`
}

// PutEventType creates or replaces one event type. Creation consumes an
// event-type quota slot on top of the modify operation; replacing keeps the
// slot. Refused while a sync holds the troupe's lock, since discovery reads
// the type table mid-run.
func (s *Server) PutEventType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	troupeID := chi.URLParam(r, "troupeID")
	typeID := chi.URLParam(r, "typeID")

	var req eventTypeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidationFailed, err.Error(), nil)
		return
	}

	tr, err := s.db.GetTroupe(ctx, troupeID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	if tr.SyncLock {
		respondMapped(w, r, errs.ErrSyncInProgress)
		return
	}

	existing, err := s.db.ListEventTypes(ctx, troupeID)
	if err != nil {
		respondMapped(w, r, err)
		return
	}
	known := false
	for _, et := range existing {
		if et.ID == typeID {
			known = true
			break
		}
	}

	deltas := map[string]int64{models.CounterModifyOps: -1}
	if !known {
		deltas[models.CounterEventTypes] = -1
	}
	if err := s.quota.WithinLimits(ctx, troupeID, deltas); err != nil {
		respondMapped(w, r, err)
		return
	}

	et := &models.EventType{
		ID:         typeID,
		TroupeID:   troupeID,
		Title:      req.Title,
		Value:      req.Value,
		FolderURIs: req.FolderURIs,
	}
	if err := s.db.UpsertEventType(ctx, et); err != nil {
		respondMapped(w, r, err)
		return
	}
	if err := s.quota.Increment(ctx, troupeID, deltas); err != nil {
		respondMapped(w, r, errs.NewIntegrityError("event type quota accounting", err))
		return
	}

	status := http.StatusOK
	if !known {
		status = http.StatusCreated
	}
	respond(w, r, status, et)
}
