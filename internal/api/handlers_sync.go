// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/models"
)

// syncResult reports what happened to a triggered sync.
type syncResult struct {
	Status       string   `json:"status"`
	FailedEvents []string `json:"failed_events,omitempty"`
}

// TriggerSync starts a synchronization run for the troupe. With the queue
// enabled the request is enqueued and answered 202; otherwise the run
// executes inline. Each trigger consumes one manual-sync quota unit.
func (s *Server) TriggerSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	troupeID := chi.URLParam(r, "troupeID")

	if _, err := s.db.GetTroupe(ctx, troupeID); err != nil {
		respondMapped(w, r, err)
		return
	}

	deltas := map[string]int64{models.CounterManualSyncs: -1}
	if err := s.quota.WithinLimits(ctx, troupeID, deltas); err != nil {
		respondMapped(w, r, err)
		return
	}

	if s.enqueue != nil {
		if err := s.enqueue.Enqueue(ctx, troupeID); err != nil {
			respondMapped(w, r, err)
			return
		}
		if err := s.quota.Increment(ctx, troupeID, deltas); err != nil {
			respondMapped(w, r, errs.NewIntegrityError("manual sync quota accounting", err))
			return
		}
		respond(w, r, http.StatusAccepted, syncResult{Status: "queued"})
		return
	}

	err := s.syncFn(ctx, troupeID)
	var partial *errs.PartialIngestFailure
	switch {
	case err == nil || errors.As(err, &partial):
		// The run completed; event-scoped failures are reported, not fatal.
	default:
		respondMapped(w, r, err)
		return
	}

	if err := s.quota.Increment(ctx, troupeID, deltas); err != nil {
		respondMapped(w, r, errs.NewIntegrityError("manual sync quota accounting", err))
		return
	}

	result := syncResult{Status: "completed"}
	if partial != nil {
		result.Status = "completed_with_failures"
		for _, f := range partial.Failures {
			result.FailedEvents = append(result.FailedEvents, f.EventID)
		}
	}
	respond(w, r, http.StatusOK, result)
}
