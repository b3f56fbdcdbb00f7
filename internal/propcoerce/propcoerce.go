// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package propcoerce validates and converts untyped external field values
// against declared member property types.
//
// Coercion is checked per row during a source scan. A single value that
// fails coercion against the currently mapped property type invalidates the
// field's mapping from that row onward; it does not abort the scan and does
// not retract rows already accepted.
package propcoerce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/jmorrell/rollcall/internal/models"
)

// BoolPair is the source-declared true/false value pair booleans are derived
// from (e.g. the two options of a two-option multiple choice question).
// Booleans are invalid without one.
type BoolPair struct {
	True  string
	False string
}

// Options carries source-level context needed for coercion.
type Options struct {
	// Bools holds the declared true/false pair for the field, nil when the
	// source declares none.
	Bools *BoolPair
}

// Coerce converts raw against the declared property type t. It returns the
// typed value (string, float64, bool, or time.Time), or nil for an absent
// optional value, or an error when raw cannot represent t.
func Coerce(t models.PropertyType, raw string, opts Options) (any, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid property type %q", t)
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if t.Required() {
			return nil, fmt.Errorf("empty value for required %s property", t.Base())
		}
		return nil, nil
	}

	switch t.Base() {
	case models.TypeString:
		return raw, nil

	case models.TypeNumber:
		// The whole value must parse; partial numeric prefixes are rejected.
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", raw)
		}
		return n, nil

	case models.TypeBoolean:
		if opts.Bools == nil {
			return nil, fmt.Errorf("no true/false pair declared for boolean property")
		}
		switch trimmed {
		case opts.Bools.True:
			return true, nil
		case opts.Bools.False:
			return false, nil
		}
		return nil, fmt.Errorf("value %q matches neither %q nor %q", raw, opts.Bools.True, opts.Bools.False)

	case models.TypeDate:
		d, err := dateparse.ParseAny(trimmed)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a recognizable date", raw)
		}
		return d.UTC(), nil
	}

	return nil, fmt.Errorf("unhandled property type %q", t)
}

// CanCoerce reports whether raw is a valid value for t.
func CanCoerce(t models.PropertyType, raw string, opts Options) bool {
	_, err := Coerce(t, raw, opts)
	return err == nil
}

// FormatValue renders a coerced value back to a display string, used by the
// log sheet writer and the read API.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", val)
	}
}
