// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package source

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/models"
)

func sheetEvent() *models.Event {
	return &models.Event{
		ID:        "ev-1",
		TroupeID:  "troupe-1",
		TypeID:    "et-1",
		Title:     "Fall Rehearsal",
		StartDate: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Kind:      models.SourceSheet,
		SourceURI: "https://docs.example.com/spreadsheets/d/sheet-abc/edit",
		Value:     5,
	}
}

func TestSheetAdapter_DiscoverAudience(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sheets/sheet-abc/export", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Student ID,First Name,Grade\nm1,Ada,9\nm2,Grace,ninth\nm3,Edsger,11\n"))
	})
	client, resolver := newTestSource(t, mux)
	adapter := &SheetAdapter{client: client, resolver: resolver}

	tr := testTroupe()
	ev := sheetEvent()
	d, err := adapter.DiscoverAudience(context.Background(), tr, ev, time.Now())
	if err != nil {
		t.Fatalf("DiscoverAudience: %v", err)
	}

	if got := mappedProp(t, ev, "0"); got != models.MemberIDProperty {
		t.Errorf("column 0 mapped to %q; want %q", got, models.MemberIDProperty)
	}
	if got := mappedProp(t, ev, "1"); got != "First Name" {
		t.Errorf("column 1 mapped to %q; want First Name", got)
	}
	// "ninth" on row 2 degrades the Grade column for the rest of the scan.
	if got := mappedProp(t, ev, "2"); got != "" {
		t.Errorf("Grade column still mapped to %q after bad value", got)
	}

	if len(d.Members) != 3 {
		t.Fatalf("got %d members; want 3", len(d.Members))
	}

	first := d.Members[0]
	if first.Identity != "m1" {
		t.Errorf("first identity = %q; want m1", first.Identity)
	}
	if got, ok := first.Properties["Grade"].(float64); !ok || got != 9 {
		t.Errorf("m1 Grade = %v; want 9 (accepted before degradation)", first.Properties["Grade"])
	}
	if first.Attended.Value != 5 || first.Attended.TypeID != "et-1" {
		t.Errorf("m1 attendance = %+v; want value 5 type et-1", first.Attended)
	}

	if _, ok := d.Members[1].Properties["Grade"]; ok {
		t.Error("m2 should carry no Grade after coercion failure")
	}
	if _, ok := d.Members[2].Properties["Grade"]; ok {
		t.Error("m3 should carry no Grade once the column is degraded")
	}
}

func TestSheetAdapter_NoIdentifyingColumn(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sheets/sheet-abc/export", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("First Name,Grade\nAda,9\n"))
	})
	client, resolver := newTestSource(t, mux)
	adapter := &SheetAdapter{client: client, resolver: resolver}

	ev := sheetEvent()
	d, err := adapter.DiscoverAudience(context.Background(), testTroupe(), ev, time.Now())
	if err != nil {
		t.Fatalf("DiscoverAudience: %v", err)
	}

	if len(d.Members) != 0 {
		t.Errorf("got %d members without an identifying column; want 0", len(d.Members))
	}
	// Field synchronization still ran.
	if got := mappedProp(t, ev, "0"); got != "First Name" {
		t.Errorf("column 0 mapped to %q; want First Name", got)
	}
}

func TestSheetAdapter_OverrideKept(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sheets/sheet-abc/export", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Student ID,Nickname\nm1,Ace\n"))
	})
	client, resolver := newTestSource(t, mux)
	adapter := &SheetAdapter{client: client, resolver: resolver}

	prop := "First Name"
	ev := sheetEvent()
	ev.Fields = map[string]models.FieldMapping{
		"1": {Label: "Nickname", Property: &prop, Override: true},
	}

	d, err := adapter.DiscoverAudience(context.Background(), testTroupe(), ev, time.Now())
	if err != nil {
		t.Fatalf("DiscoverAudience: %v", err)
	}

	f := ev.Fields["1"]
	if f.Property == nil || *f.Property != "First Name" || !f.Override {
		t.Errorf("overridden mapping disturbed: %+v", f)
	}
	if got := d.Members[0].Properties["First Name"]; got != "Ace" {
		t.Errorf("First Name = %v; want Ace via override", got)
	}
}

func TestSheetAdapter_SourceFailureClasses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sheets/gone/export", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/sheets/down/export", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client, resolver := newTestSource(t, mux)
	adapter := &SheetAdapter{client: client, resolver: resolver}

	tests := []struct {
		name    string
		uri     string
		wantErr error
	}{
		{"missing document", "https://docs.example.com/spreadsheets/d/gone/edit", errs.ErrSourceMalformed},
		{"provider down", "https://docs.example.com/spreadsheets/d/down/edit", errs.ErrSourceUnreachable},
		{"unresolvable uri", "https://docs.example.com/not-a-sheet", errs.ErrSourceMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := sheetEvent()
			ev.SourceURI = tt.uri
			_, err := adapter.DiscoverAudience(context.Background(), testTroupe(), ev, time.Now())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v; want %v", err, tt.wantErr)
			}
		})
	}
}
