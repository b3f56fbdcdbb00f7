// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package quota gates and accounts for externally visible mutations against
// per-troupe and global remaining-operation counters.
//
// Documents live in BadgerDB: one per troupe plus one global document.
// Badger transactions give the increment-with-floor-check atomicity the
// engine needs: either every touched counter in both documents moves, or
// none do.
//
// Call order around a mutation is always: WithinLimits (no side effects),
// perform the mutation, then Increment with negative deltas. A failed
// pre-check surfaces errs.ErrQuotaExceeded and nothing runs; a failed
// post-mutation Increment is an integrity error, surfaced loudly, never
// swallowed.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/models"
)

// Config holds quota service configuration.
type Config struct {
	// TroupeDefaults seeds the counters of a troupe document created on
	// first touch.
	TroupeDefaults map[string]int64

	// GlobalDefaults seeds the global document's counters.
	GlobalDefaults map[string]int64

	// RefreshInterval is how often renewable counters reset to their
	// defaults. Zero disables refresh.
	RefreshInterval time.Duration

	// RenewableCounters names the counters reset on refresh. Count-style
	// counters (members, events) are not renewable.
	RenewableCounters []string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TroupeDefaults: map[string]int64{
			models.CounterModifyOps:   5000,
			models.CounterManualSyncs: 20,
			models.CounterMembers:     500,
			models.CounterEvents:      1000,
			models.CounterEventTypes:  50,
			models.CounterSourceURIs:  100,
		},
		GlobalDefaults: map[string]int64{
			models.CounterModifyOps:   200000,
			models.CounterManualSyncs: 1000,
		},
		RefreshInterval:   24 * time.Hour,
		RenewableCounters: []string{models.CounterModifyOps, models.CounterManualSyncs},
	}
}

// Service is the quota service backed by one Badger handle.
type Service struct {
	db  *badger.DB
	cfg Config
}

// New creates a quota service. The Badger handle is owned by the caller.
func New(db *badger.DB, cfg Config) *Service {
	if cfg.TroupeDefaults == nil {
		cfg = DefaultConfig()
	}
	return &Service{db: db, cfg: cfg}
}

func limitsKey(troupeID string) []byte {
	return []byte("limits/" + troupeID)
}

// load reads the limits document for troupeID inside txn, creating a
// default document in memory when absent (persisted on first write).
func (s *Service) load(txn *badger.Txn, troupeID string) (*models.TroupeLimits, error) {
	item, err := txn.Get(limitsKey(troupeID))
	if err == badger.ErrKeyNotFound {
		return s.freshDoc(troupeID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read limits for %s: %w", troupeID, err)
	}

	var doc models.TroupeLimits
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("decode limits for %s: %w", troupeID, err)
	}
	return &doc, nil
}

func (s *Service) freshDoc(troupeID string) *models.TroupeLimits {
	defaults := s.cfg.TroupeDefaults
	if troupeID == models.GlobalLimitsID {
		defaults = s.cfg.GlobalDefaults
	}
	counters := make(map[string]int64, len(defaults))
	for k, v := range defaults {
		counters[k] = v
	}
	return &models.TroupeLimits{
		TroupeID:    troupeID,
		Counters:    counters,
		RefreshedAt: time.Now().UTC(),
	}
}

func store(txn *badger.Txn, doc *models.TroupeLimits) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode limits for %s: %w", doc.TroupeID, err)
	}
	return txn.Set(limitsKey(doc.TroupeID), raw)
}

// WithinLimits checks, without side effects, whether applying deltas would
// keep every touched counter at or above zero in both the troupe and the
// global document. Returns errs.ErrQuotaExceeded when it would not.
//
// Under a bulk scope (ScopeFrom(ctx).Bypass()) the check passes
// unconditionally: the bulk caller accounts once, in aggregate, outside
// the scope.
func (s *Service) WithinLimits(ctx context.Context, troupeID string, deltas map[string]int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ScopeFrom(ctx).Bypass() {
		return nil
	}
	if len(deltas) == 0 {
		return nil
	}

	return s.db.View(func(txn *badger.Txn) error {
		for _, id := range []string{troupeID, models.GlobalLimitsID} {
			doc, err := s.load(txn, id)
			if err != nil {
				return err
			}
			if err := checkFloor(doc, deltas); err != nil {
				return err
			}
		}
		return nil
	})
}

// checkFloor verifies each delta keeps its counter non-negative. Counters
// the document does not carry are unconstrained for that document.
func checkFloor(doc *models.TroupeLimits, deltas map[string]int64) error {
	for name, delta := range deltas {
		current, ok := doc.Counters[name]
		if !ok {
			continue
		}
		if current+delta < 0 {
			return fmt.Errorf("%w: %s has %d remaining, need %d", errs.ErrQuotaExceeded, name, current, -delta)
		}
	}
	return nil
}

// Increment atomically applies deltas (negative to consume, positive to
// restore) to the troupe document and the global document, with the same
// floor check WithinLimits performs. Both documents move or neither does.
// Under a bulk scope the call is a no-op, like WithinLimits.
func (s *Service) Increment(ctx context.Context, troupeID string, deltas map[string]int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ScopeFrom(ctx).Bypass() {
		return nil
	}
	if len(deltas) == 0 {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range []string{troupeID, models.GlobalLimitsID} {
			doc, err := s.load(txn, id)
			if err != nil {
				return err
			}
			if err := checkFloor(doc, deltas); err != nil {
				return err
			}
			for name, delta := range deltas {
				if _, ok := doc.Counters[name]; !ok {
					continue
				}
				doc.Counters[name] += delta
			}
			if err := store(txn, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the current limits document for troupeID (defaults when the
// troupe has never consumed quota).
func (s *Service) Get(ctx context.Context, troupeID string) (*models.TroupeLimits, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc *models.TroupeLimits
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = s.load(txn, troupeID)
		return err
	})
	return doc, err
}

// Refresh resets renewable counters to their defaults on every document
// whose RefreshedAt is older than the refresh interval. Invoked on a
// schedule by the refresher service.
func (s *Service) Refresh(ctx context.Context) error {
	if s.cfg.RefreshInterval <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-s.cfg.RefreshInterval)
	refreshed := 0

	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("limits/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var doc models.TroupeLimits
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			})
			if err != nil {
				return err
			}
			if doc.RefreshedAt.After(cutoff) {
				continue
			}

			defaults := s.cfg.TroupeDefaults
			if doc.TroupeID == models.GlobalLimitsID {
				defaults = s.cfg.GlobalDefaults
			}
			for _, name := range s.cfg.RenewableCounters {
				if def, ok := defaults[name]; ok {
					doc.Counters[name] = def
				}
			}
			doc.RefreshedAt = time.Now().UTC()
			if err := store(txn, &doc); err != nil {
				return err
			}
			refreshed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if refreshed > 0 {
		logging.Info().Int("documents", refreshed).Msg("Quota counters refreshed")
	}
	return nil
}
