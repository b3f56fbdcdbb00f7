// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package source

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmorrell/rollcall/internal/models"
)

// newTestSource starts a fake provider and returns a client and resolver
// pointed at it.
func newTestSource(t *testing.T, mux *http.ServeMux) (*Client, *Resolver) {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		BaseURL:   srv.URL,
		Timeout:   2 * time.Second,
		RateLimit: 1000,
		RateBurst: 1000,
	})
	return client, NewResolver(16, time.Minute)
}

func testTroupe() *models.Troupe {
	return &models.Troupe{
		ID:   "troupe-1",
		Name: "Drama Club",
		Properties: map[string]models.PropertyType{
			models.MemberIDProperty: "string!",
			"First Name":            "string?",
			"Grade":                 "number?",
			"Banquet":               "boolean?",
		},
		FieldRules: []models.FieldRule{
			{Expression: "ID", Condition: models.MatchContains, Property: models.MemberIDProperty, Priority: 0},
			{Expression: "Name", Condition: models.MatchContains, Property: "First Name", Priority: 1},
			{Expression: "Grade", Condition: models.MatchContains, Property: "Grade", Priority: 2},
			{Expression: "Banquet", Condition: models.MatchContains, Property: "Banquet", Priority: 3},
		},
	}
}

func mappedProp(t *testing.T, ev *models.Event, fieldID string) string {
	t.Helper()
	f, ok := ev.Fields[fieldID]
	if !ok {
		t.Fatalf("field %s not in field map", fieldID)
	}
	if f.Property == nil {
		return ""
	}
	return *f.Property
}
