// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package quota

import "context"

// Scope controls per-item quota accounting for bulk operations.
//
// A bulk caller (the sync orchestrator creating many events at once) opens a
// bulk scope, performs its individual operations without per-item
// accounting, then applies one aggregated Increment. This keeps quota checks
// at O(1) round trips per bulk call and avoids double counting on partial
// failure. The scope is an explicit value passed through context, not a
// mutable per-troupe flag.
type Scope struct {
	bypass bool
}

// DefaultScope accounts every operation individually.
func DefaultScope() Scope { return Scope{} }

// BulkScope suspends per-item accounting; the caller applies one aggregated
// Increment when its batch completes.
func BulkScope() Scope { return Scope{bypass: true} }

// Bypass reports whether per-item accounting is suspended.
func (s Scope) Bypass() bool { return s.bypass }

type scopeKey struct{}

// WithScope stores a scope in the context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom retrieves the scope from context, defaulting to per-item
// accounting.
func ScopeFrom(ctx context.Context) Scope {
	if s, ok := ctx.Value(scopeKey{}).(Scope); ok {
		return s
	}
	return DefaultScope()
}
