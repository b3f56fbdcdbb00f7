// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package match implements the field matcher engine: given a free-text field
// label from an external source, it finds the best-priority configured rule
// mapping that label to a member property.
//
// Rules are tried in ascending priority order (lower value wins). Equal
// priorities break by stored order, first declared wins. Fields whose
// mapping was manually overridden are never touched; callers check the
// override flag before consulting this package.
package match

import (
	"sort"
	"strings"

	"github.com/jmorrell/rollcall/internal/models"
)

// Context is the event-side context a rule's filters are evaluated against.
type Context struct {
	EventTitle string
	EventKind  models.SourceKind
}

// Resolve returns the winning rule for the given field label, or nil when no
// rule matches. The returned pointer aliases an element of rules.
func Resolve(label string, rules []models.FieldRule, ctx Context) *models.FieldRule {
	// Stable sort by priority over rule indices so equal priorities keep
	// their stored order.
	order := make([]int, len(rules))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rules[order[a]].Priority < rules[order[b]].Priority
	})

	for _, i := range order {
		rule := &rules[i]
		if !conditionHolds(rule, label) {
			continue
		}
		if !filtersHold(rule.Filters, ctx) {
			continue
		}
		return rule
	}
	return nil
}

// conditionHolds evaluates the rule's match condition against the label.
// Comparisons are case-insensitive.
func conditionHolds(rule *models.FieldRule, label string) bool {
	l := strings.ToLower(label)
	expr := strings.ToLower(rule.Expression)

	switch rule.Condition {
	case models.MatchContains:
		return strings.Contains(l, expr)
	case models.MatchExact:
		return l == expr
	case models.MatchPrefix:
		return strings.HasPrefix(l, expr)
	}
	return false
}

// filtersHold reports whether every filter passes against the event context.
func filtersHold(filters []models.RuleFilter, ctx Context) bool {
	for _, f := range filters {
		switch f.Kind {
		case models.FilterSourceKind:
			if string(ctx.EventKind) != f.Value {
				return false
			}
		case models.FilterTitleContains:
			if !strings.Contains(strings.ToLower(ctx.EventTitle), strings.ToLower(f.Value)) {
				return false
			}
		default:
			// Unknown filter kinds fail closed: a rule we cannot evaluate
			// must not claim the field.
			return false
		}
	}
	return true
}
