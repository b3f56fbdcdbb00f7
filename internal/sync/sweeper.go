// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package sync

import (
	"context"
	"time"

	"github.com/jmorrell/rollcall/internal/database"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/metrics"
)

// Sweeper force-clears sync locks held longer than the maximum sync
// duration, treating the prior run as abandoned. It is the only automatic
// recovery from a crashed sync.
type Sweeper struct {
	db       *database.DB
	interval time.Duration
	maxHeld  time.Duration
}

// NewSweeper creates a stale-lock sweeper from orchestrator settings.
func NewSweeper(db *database.DB, cfg Config) *Sweeper {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	maxHeld := cfg.MaxSyncDuration
	if maxHeld <= 0 {
		maxHeld = 15 * time.Minute
	}
	return &Sweeper{db: db, interval: interval, maxHeld: maxHeld}
}

// Serve runs the sweep loop until ctx is done. Implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cleared, err := s.db.SweepStaleLocks(ctx, s.maxHeld)
	if err != nil {
		logging.Error().Err(err).Msg("Stale-lock sweep failed")
		return
	}
	if len(cleared) == 0 {
		return
	}

	metrics.StaleLocksCleared.Add(float64(len(cleared)))
	logging.Warn().
		Strs("troupe_ids", cleared).
		Dur("max_held", s.maxHeld).
		Msg("Force-cleared stale sync locks")
}

func (s *Sweeper) String() string { return "sync.Sweeper" }
