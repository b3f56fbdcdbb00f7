// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmorrell/rollcall/internal/logging"
)

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var seenID, seenCorrelation string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		seenCorrelation = logging.CorrelationIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seenID == "" {
		t.Fatal("no request ID in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seenID {
		t.Errorf("response header = %q; want %q", got, seenID)
	}
	if seenCorrelation != seenID {
		t.Errorf("correlation ID = %q; want request ID %q", seenCorrelation, seenID)
	}
}

func TestRequestID_HonorsUpstreamHeader(t *testing.T) {
	var seenID string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seenID != "upstream-42" {
		t.Errorf("request ID = %q; want upstream-42", seenID)
	}
}

func TestStatusRecorder(t *testing.T) {
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusTeapot)
	}
}
