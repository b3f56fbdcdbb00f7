// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

/*
orchestrator.go - Sync Orchestrator State Machine

One sync run per troupe moves through
Idle -> Locked -> Discovering -> Ingesting -> Reconciling -> Persisting -> Unlocked,
with an error path from any state back to Unlocked. Partial progress in
Ingesting and Reconciling lives only in memory; nothing is flushed until
Persisting commits the whole run in one transaction, which also clears the
advisory sync lock. On failure the lock is released in a separate step so a
troupe is never left permanently locked.

Event-scoped source failures never fail the run: the affected event is
flagged for deletion and the rest continue. They are reported to the caller
as a PartialIngestFailure after an otherwise successful run.
*/
package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmorrell/rollcall/internal/database"
	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/metrics"
	"github.com/jmorrell/rollcall/internal/models"
	"github.com/jmorrell/rollcall/internal/points"
	"github.com/jmorrell/rollcall/internal/quota"
	"github.com/jmorrell/rollcall/internal/roster"
	"github.com/jmorrell/rollcall/internal/source"
)

// State names one phase of a sync run.
type State string

// Sync states.
const (
	StateIdle        State = "idle"
	StateLocked      State = "locked"
	StateDiscovering State = "discovering"
	StateIngesting   State = "ingesting"
	StateReconciling State = "reconciling"
	StatePersisting  State = "persisting"
	StateUnlocked    State = "unlocked"
)

// Config holds orchestrator settings.
type Config struct {
	// IngestWorkers bounds how many event adapters run concurrently
	// within one troupe's sync.
	IngestWorkers int `koanf:"ingest_workers"`

	// MaxSyncDuration is how long a sync lock may be held before the
	// stale-lock sweep treats the run as abandoned.
	MaxSyncDuration time.Duration `koanf:"max_sync_duration"`

	// SweepInterval is how often the stale-lock sweep runs.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// DefaultConfig returns orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		IngestWorkers:   4,
		MaxSyncDuration: 15 * time.Minute,
		SweepInterval:   5 * time.Minute,
	}
}

// AdapterRegistry resolves the data source adapter for an event's kind.
type AdapterRegistry interface {
	ForKind(kind models.SourceKind) (source.Adapter, bool)
}

// FolderLister enumerates an event type's folder sources during discovery.
type FolderLister interface {
	List(ctx context.Context, folderURI string) ([]source.FolderItem, error)
}

// LogWriter receives the rendered attendance log after a sync persists.
type LogWriter interface {
	Enabled() bool
	UpdateLog(ctx context.Context, tr *models.Troupe, events []*models.Event, audience []*models.Member, attended map[string][]string) error
}

// Orchestrator runs the attendance synchronization state machine.
type Orchestrator struct {
	db       *database.DB
	quota    *quota.Service
	adapters AdapterRegistry
	lister   FolderLister
	logs     LogWriter
	cfg      Config
}

// New creates an orchestrator. logs may be nil when the log sheet service
// is not configured.
func New(db *database.DB, q *quota.Service, adapters AdapterRegistry, lister FolderLister, logs LogWriter, cfg Config) *Orchestrator {
	if cfg.IngestWorkers <= 0 {
		cfg.IngestWorkers = 4
	}
	return &Orchestrator{db: db, quota: q, adapters: adapters, lister: lister, logs: logs, cfg: cfg}
}

// Sync runs one full synchronization for troupeID.
//
// Returns errs.ErrSyncInProgress when the troupe's lock is already held,
// errs.ErrTroupeNotFound for an unknown troupe, errs.ErrQuotaExceeded when
// the run would overdraw the troupe's quota, and *errs.PartialIngestFailure
// after a successful run in which individual events failed.
func (o *Orchestrator) Sync(ctx context.Context, troupeID string) error {
	start := time.Now()
	ctx = logging.ContextWithNewCorrelationID(ctx)

	log := logging.Ctx(ctx)
	log.Info().Str("troupe_id", troupeID).Msg("Sync starting")

	if err := o.quota.WithinLimits(ctx, troupeID, map[string]int64{models.CounterModifyOps: -1}); err != nil {
		if errors.Is(err, errs.ErrQuotaExceeded) {
			metrics.QuotaDenials.WithLabelValues(models.CounterModifyOps).Inc()
		}
		return err
	}

	if err := o.db.AcquireSyncLock(ctx, troupeID); err != nil {
		if errors.Is(err, errs.ErrSyncInProgress) {
			metrics.ObserveSync("lock_conflict", start)
			log.Warn().Str("troupe_id", troupeID).Msg("Sync lock already held")
		}
		return err
	}
	o.transition(troupeID, StateLocked)

	err := o.run(ctx, troupeID, start)
	var partial *errs.PartialIngestFailure
	if err != nil && !errors.As(err, &partial) {
		// Persisting never ran (or rolled back); the lock is still held.
		o.releaseLock(troupeID)
		o.transition(troupeID, StateUnlocked)
		metrics.ObserveSync("failed", start)
		log.Error().Err(err).Str("troupe_id", troupeID).Msg("Sync failed")
		return err
	}

	o.transition(troupeID, StateUnlocked)
	metrics.ObserveSync("completed", start)
	log.Info().
		Str("troupe_id", troupeID).
		Dur("duration", time.Since(start)).
		Msg("Sync completed")
	return err
}

// run executes the locked portion of a sync. The sync lock is cleared by
// the persist transaction on success; any error before that leaves the lock
// for the caller to release.
func (o *Orchestrator) run(ctx context.Context, troupeID string, asOf time.Time) error {
	tr, err := o.db.GetTroupe(ctx, troupeID)
	if err != nil {
		return err
	}
	expandProperties(tr)

	// The whole run is one bulk operation: per-item quota charges inside
	// the scope are suspended, and one aggregated update applies after
	// persist, outside the scope.
	bulkCtx := quota.WithScope(ctx, quota.BulkScope())

	o.transition(troupeID, StateDiscovering)
	events, created, deleted, err := o.discover(bulkCtx, tr, asOf)
	if err != nil {
		return err
	}

	o.transition(troupeID, StateIngesting)
	existing, err := o.db.ListMembers(ctx, troupeID)
	if err != nil {
		return err
	}
	r := roster.New()
	r.Seed(existing)
	failures, err := o.ingest(bulkCtx, tr, events, deleted, r, asOf)
	if err != nil {
		return err
	}

	o.transition(troupeID, StateReconciling)
	persist, newMembers, err := o.reconcile(bulkCtx, tr, events, deleted, r, existing)
	if err != nil {
		return err
	}

	o.transition(troupeID, StatePersisting)
	if err := o.db.PersistSyncResult(bulkCtx, persist); err != nil {
		return err
	}

	deltas := map[string]int64{models.CounterModifyOps: -1}
	if n := int64(created) - int64(len(deleted)); n != 0 {
		deltas[models.CounterEvents] = -n
		deltas[models.CounterSourceURIs] = -n
	}
	if newMembers > 0 {
		deltas[models.CounterMembers] = -int64(newMembers)
	}
	if err := o.quota.Increment(ctx, troupeID, deltas); err != nil {
		metrics.QuotaIntegrityFailures.Inc()
		ie := errs.NewIntegrityError("sync quota accounting", err)
		logging.Ctx(ctx).Error().Err(ie).Str("troupe_id", troupeID).
			Msg("Mutation persisted but quota accounting failed")
		return ie
	}

	o.postLog(ctx, tr, persist)

	if len(failures) > 0 {
		return &errs.PartialIngestFailure{Failures: failures}
	}
	return nil
}

// discover lists each event type's folder sources and reconciles the
// troupe's event set against them: new items become events, folder-backed
// events whose source vanished are marked for deletion. A folder listing
// failure skips that folder for this run; its events are kept.
func (o *Orchestrator) discover(ctx context.Context, tr *models.Troupe, asOf time.Time) ([]*models.Event, int, map[string]bool, error) {
	events, err := o.db.ListEvents(ctx, tr.ID)
	if err != nil {
		return nil, 0, nil, err
	}
	types, err := o.db.ListEventTypes(ctx, tr.ID)
	if err != nil {
		return nil, 0, nil, err
	}

	byURI := make(map[string]*models.Event, len(events))
	for _, ev := range events {
		byURI[ev.SourceURI] = ev
	}

	var (
		created     int
		seenURIs    = make(map[string]bool)
		fullyListed = make(map[string]bool)
		createdIDs  = make(map[string]bool)
	)
	for _, et := range types {
		fullyListed[et.ID] = true
		for _, folderURI := range et.FolderURIs {
			items, err := o.lister.List(ctx, folderURI)
			if err != nil {
				if ctx.Err() != nil {
					return nil, 0, nil, err
				}
				// Unknown folder contents; never treat its events as gone.
				fullyListed[et.ID] = false
				logging.Ctx(ctx).Warn().Err(err).
					Str("troupe_id", tr.ID).
					Str("event_type", et.ID).
					Str("folder_uri", folderURI).
					Msg("Folder listing failed; skipping this folder")
				continue
			}

			for _, item := range items {
				seenURIs[item.URI] = true
				if _, known := byURI[item.URI]; known {
					continue
				}
				// Per-item admission: each new event consumes an event and a
				// source URI slot. Under the run's bulk scope both calls are
				// no-ops; the run accounts in aggregate after persist.
				itemDeltas := map[string]int64{
					models.CounterEvents:     -1,
					models.CounterSourceURIs: -1,
				}
				if err := o.quota.WithinLimits(ctx, tr.ID, itemDeltas); err != nil {
					return nil, 0, nil, err
				}
				ev := &models.Event{
					ID:        uuid.New().String(),
					TroupeID:  tr.ID,
					TypeID:    et.ID,
					Title:     item.Title,
					StartDate: asOf.UTC().Truncate(24 * time.Hour),
					Kind:      item.Kind,
					SourceURI: item.URI,
					Value:     et.Value,
					Fields:    make(map[string]models.FieldMapping),
				}
				if err := o.quota.Increment(ctx, tr.ID, itemDeltas); err != nil {
					return nil, 0, nil, err
				}
				byURI[item.URI] = ev
				events = append(events, ev)
				createdIDs[ev.ID] = true
				created++
			}
		}
	}

	typeByID := make(map[string]*models.EventType, len(types))
	for _, et := range types {
		typeByID[et.ID] = et
	}

	deleted := make(map[string]bool)
	for _, ev := range events {
		if createdIDs[ev.ID] || seenURIs[ev.SourceURI] {
			continue
		}
		et, ok := typeByID[ev.TypeID]
		if !ok || len(et.FolderURIs) == 0 || !fullyListed[et.ID] {
			continue
		}
		deleted[ev.ID] = true
	}

	return events, created, deleted, nil
}

// ingest runs the source adapters over all live events with a bounded
// worker pool, merging discovered candidates into the roster. Event-scoped
// failures flag the event for deletion and are collected; any other failure
// aborts the run.
func (o *Orchestrator) ingest(ctx context.Context, tr *models.Troupe, events []*models.Event, deleted map[string]bool, r *roster.Roster, asOf time.Time) ([]errs.EventSourceError, error) {
	// Workers write deleted under mu when an event's source fails, so the
	// job list is fixed before any worker starts; discovery's deletion
	// marks are final by now.
	live := make([]*models.Event, 0, len(events))
	for _, ev := range events {
		if deleted[ev.ID] {
			continue
		}
		if _, ok := o.adapters.ForKind(ev.Kind); !ok {
			continue
		}
		live = append(live, ev)
	}

	jobs := make(chan *models.Event)
	var (
		mu       sync.Mutex
		failures []errs.EventSourceError
		fatal    error
		wg       sync.WaitGroup
	)

	for i := 0; i < o.cfg.IngestWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				o.ingestEvent(ctx, tr, ev, r, asOf, &mu, deleted, &failures, &fatal)
			}
		}()
	}

	for _, ev := range live {
		jobs <- ev
	}
	close(jobs)
	wg.Wait()

	return failures, fatal
}

// ingestEvent processes one event on a pool worker. The event's field map
// is only touched by this worker; the roster serializes per identity.
func (o *Orchestrator) ingestEvent(ctx context.Context, tr *models.Troupe, ev *models.Event, r *roster.Roster, asOf time.Time, mu *sync.Mutex, deleted map[string]bool, failures *[]errs.EventSourceError, fatal *error) {
	adapter, _ := o.adapters.ForKind(ev.Kind)
	d, err := adapter.DiscoverAudience(ctx, tr, ev, asOf)
	if err != nil {
		if errs.IsEventScoped(err) {
			mu.Lock()
			deleted[ev.ID] = true
			*failures = append(*failures, errs.EventSourceError{EventID: ev.ID, Err: err})
			mu.Unlock()
			metrics.EventsProcessed.WithLabelValues(string(ev.Kind), "flagged_for_deletion").Inc()
			logging.Ctx(ctx).Warn().Err(err).
				Str("troupe_id", tr.ID).
				Str("event_id", ev.ID).
				Msg("Event source failed; event flagged for deletion")
			return
		}
		mu.Lock()
		if *fatal == nil {
			*fatal = err
		}
		mu.Unlock()
		return
	}

	metrics.EventsProcessed.WithLabelValues(string(ev.Kind), "ok").Inc()
	fromOrigin := ev.ID == tr.OriginEventID
	for _, rec := range d.Members {
		if r.Merge(rec.Identity, rec.Properties, fromOrigin, ev.ID, rec.Attended) {
			metrics.MembersMerged.Inc()
		}
	}
}

// reconcile turns the merged roster into the run's persisted outcome:
// member upserts, newly credited attendance, point totals, and event
// deletions. Points for events being deleted are withdrawn from their
// recorded attendees here, so totals stay consistent with the bucket
// entries the persist removes.
func (o *Orchestrator) reconcile(ctx context.Context, tr *models.Troupe, events []*models.Event, deleted map[string]bool, r *roster.Roster, existing []*models.Member) (*database.SyncPersist, int, error) {
	persist := &database.SyncPersist{
		Troupe:     tr,
		Attendance: make(map[string]map[string]models.AttendedEvent),
	}
	for _, ev := range events {
		if deleted[ev.ID] {
			persist.DeleteEventIDs = append(persist.DeleteEventIDs, ev.ID)
		} else {
			persist.Events = append(persist.Events, ev)
		}
	}

	byID := make(map[string]*models.Member, len(existing))
	for _, m := range existing {
		byID[m.ID] = m
	}

	newMembers := 0
	for _, c := range r.Snapshot() {
		m := byID[c.MemberID]
		if m == nil {
			m = &models.Member{
				ID:       uuid.New().String(),
				TroupeID: tr.ID,
				Points:   make(map[string]float64),
			}
			newMembers++
		}
		m.Properties = c.Properties

		recorded := make(map[string]models.AttendedEvent)
		if c.MemberID != "" {
			buckets, err := o.db.ListBuckets(ctx, c.MemberID)
			if err != nil {
				return nil, 0, err
			}
			for _, b := range buckets {
				for eventID, att := range b.Events {
					recorded[eventID] = att
				}
			}
		}

		// Withdraw points for recorded events this run deletes.
		for eventID, att := range recorded {
			if deleted[eventID] {
				m.Points = points.Credit(m.Points, att.Date, -att.Value, tr.PointTypes)
			}
		}

		newAtt := make(map[string]models.AttendedEvent)
		for eventID, att := range c.Attended {
			if deleted[eventID] {
				continue
			}
			if _, already := recorded[eventID]; already {
				continue
			}
			newAtt[eventID] = att
			m.Points = points.Credit(m.Points, att.Date, att.Value, tr.PointTypes)
			metrics.AttendanceCredited.Inc()
		}
		if len(newAtt) > 0 {
			persist.Attendance[m.ID] = newAtt
		}

		persist.Members = append(persist.Members, m)
	}

	return persist, newMembers, nil
}

// postLog pushes the rendered attendance log to the log sheet service.
// Failures here never roll back the sync.
func (o *Orchestrator) postLog(ctx context.Context, tr *models.Troupe, persist *database.SyncPersist) {
	if o.logs == nil || !o.logs.Enabled() {
		return
	}

	attended := make(map[string][]string, len(persist.Members))
	for _, m := range persist.Members {
		buckets, err := o.db.ListBuckets(ctx, m.ID)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("member_id", m.ID).
				Msg("Skipping member in log sheet payload")
			continue
		}
		for _, b := range buckets {
			for eventID := range b.Events {
				attended[m.ID] = append(attended[m.ID], eventID)
			}
		}
	}

	if err := o.logs.UpdateLog(ctx, tr, persist.Events, persist.Members, attended); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("troupe_id", tr.ID).
			Msg("Log sheet update failed; sync result stands")
	}
}

// transition records a state machine step.
func (o *Orchestrator) transition(troupeID string, s State) {
	metrics.SyncStateTransitions.WithLabelValues(string(s)).Inc()
	logging.Debug().Str("troupe_id", troupeID).Str("state", string(s)).Msg("Sync state transition")
}

// releaseLock clears the sync lock on the error path. A fresh context keeps
// the release from being skipped when the run's context is already dead.
func (o *Orchestrator) releaseLock(troupeID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.db.ReleaseSyncLock(ctx, troupeID); err != nil {
		logging.Error().Err(err).Str("troupe_id", troupeID).
			Msg("Failed to release sync lock; stale-lock sweep will recover it")
	}
}

// expandProperties grows the troupe's property schema to cover the
// identifying property and every matcher rule target, so configuration
// edits cannot leave rules aimed at undeclared properties.
func expandProperties(tr *models.Troupe) {
	if tr.Properties == nil {
		tr.Properties = make(map[string]models.PropertyType)
	}
	if _, ok := tr.Properties[models.MemberIDProperty]; !ok {
		tr.Properties[models.MemberIDProperty] = "string!"
	}
	for _, rule := range tr.FieldRules {
		if _, ok := tr.Properties[rule.Property]; !ok {
			tr.Properties[rule.Property] = "string?"
		}
	}
}
