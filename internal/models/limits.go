// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package models

import "time"

// Quota counter names. Each is a remaining-operation count: decremented as
// operations consume it, refreshed or raised by configuration.
const (
	CounterModifyOps   = "modifyOperations"
	CounterManualSyncs = "manualSyncs"
	CounterMembers     = "members"
	CounterEvents      = "events"
	CounterEventTypes  = "eventTypes"
	CounterSourceURIs  = "sourceURIs"
)

// GlobalLimitsID is the pseudo troupe ID of the global limit document.
const GlobalLimitsID = "_global"

// TroupeLimits is the quota document for one troupe (or the global
// document). Counters hold remaining operations; a mutation is admitted only
// if every counter it touches stays at or above zero.
type TroupeLimits struct {
	TroupeID    string           `json:"troupe_id"`
	Counters    map[string]int64 `json:"counters"`
	RefreshedAt time.Time        `json:"refreshed_at"`
}

// Remaining returns the remaining count for name, or 0 when absent.
func (l *TroupeLimits) Remaining(name string) int64 {
	if l.Counters == nil {
		return 0
	}
	return l.Counters[name]
}
