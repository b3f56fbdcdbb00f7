// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package source

import (
	"errors"
	"testing"
	"time"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/models"
)

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(16, time.Minute)

	tests := []struct {
		name    string
		kind    models.SourceKind
		uri     string
		want    string
		wantErr bool
	}{
		{"sheet edit url", models.SourceSheet, "https://docs.example.com/spreadsheets/d/abc_123/edit#gid=0", "abc_123", false},
		{"form view url", models.SourceForm, "https://docs.example.com/forms/d/xyz-9/viewform", "xyz-9", false},
		{"published form url", models.SourceForm, "https://docs.example.com/forms/d/e/pub-55/viewform", "pub-55", false},
		{"kind mismatch", models.SourceSheet, "https://docs.example.com/forms/d/xyz-9/viewform", "", true},
		{"unset kind", models.SourceUnset, "https://docs.example.com/spreadsheets/d/abc/edit", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.kind, tt.uri)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrSourceMalformed) {
					t.Errorf("err = %v; want source malformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestResolver_ResolveFolder(t *testing.T) {
	r := NewResolver(16, time.Minute)

	got, err := r.ResolveFolder("https://drive.example.com/drive/folders/fold-1?usp=sharing")
	if err != nil {
		t.Fatalf("ResolveFolder: %v", err)
	}
	if got != "fold-1" {
		t.Errorf("ResolveFolder = %q; want fold-1", got)
	}

	if _, err := r.ResolveFolder("https://drive.example.com/file/d/abc"); !errors.Is(err, errs.ErrSourceMalformed) {
		t.Errorf("err = %v; want source malformed", err)
	}
}

func TestResolver_CachesLookups(t *testing.T) {
	r := NewResolver(16, time.Minute)
	uri := "https://docs.example.com/spreadsheets/d/cached-1/edit"

	if _, err := r.Resolve(models.SourceSheet, uri); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	hitsBefore, _ := r.cache.Stats()
	if _, err := r.Resolve(models.SourceSheet, uri); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	hitsAfter, _ := r.cache.Stats()
	if hitsAfter != hitsBefore+1 {
		t.Errorf("second Resolve did not hit the cache (hits %d -> %d)", hitsBefore, hitsAfter)
	}
}
