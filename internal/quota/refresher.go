// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package quota

import (
	"context"
	"time"

	"github.com/jmorrell/rollcall/internal/logging"
)

// Refresher periodically resets renewable quota counters. It runs under the
// supervision tree and implements suture.Service.
type Refresher struct {
	svc      *Service
	interval time.Duration
}

// NewRefresher wraps svc in a scheduled refresh loop. The sweep interval is
// a fraction of the refresh interval so expired documents reset promptly.
func NewRefresher(svc *Service) *Refresher {
	interval := svc.cfg.RefreshInterval / 4
	if interval <= 0 {
		interval = time.Hour
	}
	return &Refresher{svc: svc, interval: interval}
}

// Serve refreshes on a ticker until ctx is done.
func (r *Refresher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.svc.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Msg("Quota refresh failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.svc.Refresh(ctx); err != nil {
				logging.Warn().Err(err).Msg("Quota refresh failed")
			}
		}
	}
}

func (r *Refresher) String() string { return "quota.Refresher" }
