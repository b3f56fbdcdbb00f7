// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package propcoerce

import (
	"testing"
	"time"

	"github.com/jmorrell/rollcall/internal/models"
)

func TestCoerce_OptionalEmptyValues(t *testing.T) {
	for _, typ := range []string{"string?", "number?", "boolean?", "date?"} {
		v, err := Coerce(models.PropertyType(typ), "", Options{})
		if err != nil {
			t.Errorf("Coerce(%q, \"\") returned error: %v", typ, err)
		}
		if v != nil {
			t.Errorf("Coerce(%q, \"\") = %v, want nil", typ, v)
		}
	}
}

func TestCoerce_RequiredEmptyValues(t *testing.T) {
	for _, typ := range []string{"string!", "number!", "boolean!", "date!"} {
		if _, err := Coerce(models.PropertyType(typ), "  ", Options{}); err == nil {
			t.Errorf("Coerce(%q, blank) succeeded, want error", typ)
		}
	}
}

func TestCoerce_Numbers(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"42", 42, false},
		{"-3.5", -3.5, false},
		{" 7 ", 7, false},
		{"12abc", 0, true}, // no partial numeric prefixes
		{"abc", 0, true},
		{"1,200", 0, true},
	}

	for _, tt := range tests {
		v, err := Coerce("number?", tt.raw, Options{})
		if tt.wantErr {
			if err == nil {
				t.Errorf("Coerce(number, %q) succeeded with %v, want error", tt.raw, v)
			}
			continue
		}
		if err != nil {
			t.Errorf("Coerce(number, %q) returned error: %v", tt.raw, err)
			continue
		}
		if v.(float64) != tt.want {
			t.Errorf("Coerce(number, %q) = %v, want %v", tt.raw, v, tt.want)
		}
	}
}

func TestCoerce_Booleans(t *testing.T) {
	pair := &BoolPair{True: "Yes", False: "No"}

	v, err := Coerce("boolean?", "Yes", Options{Bools: pair})
	if err != nil || v != true {
		t.Errorf("Coerce(boolean, Yes) = %v, %v; want true, nil", v, err)
	}

	v, err = Coerce("boolean?", "No", Options{Bools: pair})
	if err != nil || v != false {
		t.Errorf("Coerce(boolean, No) = %v, %v; want false, nil", v, err)
	}

	if _, err := Coerce("boolean?", "Maybe", Options{Bools: pair}); err == nil {
		t.Error("Coerce(boolean, Maybe) succeeded, want error")
	}

	// Without a declared pair, booleans are invalid
	if _, err := Coerce("boolean?", "true", Options{}); err == nil {
		t.Error("Coerce(boolean) without pair succeeded, want error")
	}
}

func TestCoerce_Dates(t *testing.T) {
	tests := []string{
		"2026-03-14",
		"03/14/2026",
		"March 14, 2026",
	}
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	for _, raw := range tests {
		v, err := Coerce("date?", raw, Options{})
		if err != nil {
			t.Errorf("Coerce(date, %q) returned error: %v", raw, err)
			continue
		}
		got := v.(time.Time)
		if !got.Equal(want) {
			t.Errorf("Coerce(date, %q) = %v, want %v", raw, got, want)
		}
	}

	if _, err := Coerce("date?", "not a date", Options{}); err == nil {
		t.Error("Coerce(date, invalid) succeeded, want error")
	}
}

func TestCoerce_InvalidType(t *testing.T) {
	if _, err := Coerce("string", "x", Options{}); err == nil {
		t.Error("Coerce with unmodified type succeeded, want error")
	}
	if _, err := Coerce("uuid?", "x", Options{}); err == nil {
		t.Error("Coerce with unknown base type succeeded, want error")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"hello", "hello"},
		{true, "true"},
		{float64(2.5), "2.5"},
		{float64(3), "3"},
		{time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "2026-01-02"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
