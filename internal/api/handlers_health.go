// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package api

import (
	"net/http"
)

// HealthLive reports process liveness.
func (s *Server) HealthLive(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady reports readiness: the database must answer a ping.
func (s *Server) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeInternalError, "database unreachable", nil)
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"status": "ready"})
}
