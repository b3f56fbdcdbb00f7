// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package match

import (
	"testing"

	"github.com/jmorrell/rollcall/internal/models"
)

func TestResolve_PriorityOrder(t *testing.T) {
	rules := []models.FieldRule{
		{Expression: "ID", Condition: models.MatchContains, Property: "Member ID", Priority: 0},
		{Expression: "Name", Condition: models.MatchContains, Property: "First Name", Priority: 1},
	}

	// Both rules match this label; the lower priority number must win.
	got := Resolve("Student ID Name", rules, Context{})
	if got == nil {
		t.Fatal("Resolve returned nil, want Member ID rule")
	}
	if got.Property != "Member ID" {
		t.Errorf("Resolve picked %q, want %q", got.Property, "Member ID")
	}
}

func TestResolve_PriorityOrderIndependentOfDeclaration(t *testing.T) {
	// Same rules declared in the opposite order; priority still decides.
	rules := []models.FieldRule{
		{Expression: "Name", Condition: models.MatchContains, Property: "First Name", Priority: 1},
		{Expression: "ID", Condition: models.MatchContains, Property: "Member ID", Priority: 0},
	}

	got := Resolve("Student ID Name", rules, Context{})
	if got == nil || got.Property != "Member ID" {
		t.Fatalf("Resolve = %v, want Member ID rule", got)
	}
}

func TestResolve_EqualPriorityFirstDeclaredWins(t *testing.T) {
	rules := []models.FieldRule{
		{Expression: "mail", Condition: models.MatchContains, Property: "Email", Priority: 2},
		{Expression: "mail", Condition: models.MatchContains, Property: "Mailing Address", Priority: 2},
	}

	got := Resolve("Email Address", rules, Context{})
	if got == nil || got.Property != "Email" {
		t.Fatalf("Resolve = %v, want first-declared Email rule", got)
	}
}

func TestResolve_Conditions(t *testing.T) {
	tests := []struct {
		name      string
		rule      models.FieldRule
		label     string
		wantMatch bool
	}{
		{"contains hit", models.FieldRule{Expression: "phone", Condition: models.MatchContains}, "Cell Phone Number", true},
		{"contains miss", models.FieldRule{Expression: "phone", Condition: models.MatchContains}, "Email", false},
		{"contains case-insensitive", models.FieldRule{Expression: "PHONE", Condition: models.MatchContains}, "phone", true},
		{"exact hit", models.FieldRule{Expression: "Grade", Condition: models.MatchExact}, "grade", true},
		{"exact miss", models.FieldRule{Expression: "Grade", Condition: models.MatchExact}, "Grade Level", false},
		{"prefix hit", models.FieldRule{Expression: "T-Shirt", Condition: models.MatchPrefix}, "T-Shirt Size", true},
		{"prefix miss", models.FieldRule{Expression: "Size", Condition: models.MatchPrefix}, "T-Shirt Size", false},
		{"unknown condition", models.FieldRule{Expression: "x", Condition: "regex"}, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.label, []models.FieldRule{tt.rule}, Context{})
			if (got != nil) != tt.wantMatch {
				t.Errorf("Resolve(%q) matched=%v, want %v", tt.label, got != nil, tt.wantMatch)
			}
		})
	}
}

func TestResolve_Filters(t *testing.T) {
	rule := models.FieldRule{
		Expression: "score",
		Condition:  models.MatchContains,
		Property:   "Audition Score",
		Filters: []models.RuleFilter{
			{Kind: models.FilterSourceKind, Value: "form"},
			{Kind: models.FilterTitleContains, Value: "audition"},
		},
	}
	rules := []models.FieldRule{rule}

	if got := Resolve("Score", rules, Context{EventTitle: "Spring Auditions", EventKind: models.SourceForm}); got == nil {
		t.Error("Resolve with satisfied filters returned nil")
	}
	if got := Resolve("Score", rules, Context{EventTitle: "Spring Auditions", EventKind: models.SourceSheet}); got != nil {
		t.Error("Resolve matched despite failing sourceKind filter")
	}
	if got := Resolve("Score", rules, Context{EventTitle: "Rehearsal", EventKind: models.SourceForm}); got != nil {
		t.Error("Resolve matched despite failing titleContains filter")
	}
}

func TestResolve_UnknownFilterFailsClosed(t *testing.T) {
	rules := []models.FieldRule{{
		Expression: "x",
		Condition:  models.MatchContains,
		Filters:    []models.RuleFilter{{Kind: "weekday", Value: "Tuesday"}},
	}}

	if got := Resolve("x", rules, Context{}); got != nil {
		t.Error("Resolve matched a rule with an unknown filter kind")
	}
}

func TestResolve_NoMatch(t *testing.T) {
	rules := []models.FieldRule{
		{Expression: "ID", Condition: models.MatchContains, Property: "Member ID", Priority: 0},
	}
	if got := Resolve("Favorite Color", rules, Context{}); got != nil {
		t.Errorf("Resolve = %v, want nil", got)
	}
}
