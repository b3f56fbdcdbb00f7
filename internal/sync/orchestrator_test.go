// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jmorrell/rollcall/internal/database"
	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/models"
	"github.com/jmorrell/rollcall/internal/quota"
	"github.com/jmorrell/rollcall/internal/source"
)

type fakeAdapter struct {
	fn func(ctx context.Context, tr *models.Troupe, ev *models.Event, asOf time.Time) (*source.Discovery, error)
}

func (a *fakeAdapter) DiscoverAudience(ctx context.Context, tr *models.Troupe, ev *models.Event, asOf time.Time) (*source.Discovery, error) {
	return a.fn(ctx, tr, ev, asOf)
}

type fakeRegistry struct{ adapter source.Adapter }

func (r *fakeRegistry) ForKind(kind models.SourceKind) (source.Adapter, bool) {
	if kind == models.SourceUnset {
		return nil, false
	}
	return r.adapter, true
}

type fakeLister struct {
	items map[string][]source.FolderItem
	errs  map[string]error
}

func (l *fakeLister) List(_ context.Context, folderURI string) ([]source.FolderItem, error) {
	if err := l.errs[folderURI]; err != nil {
		return nil, err
	}
	return l.items[folderURI], nil
}

type fixture struct {
	db    *database.DB
	quota *quota.Service
	orch  *Orchestrator
}

const testFolder = "https://drive.example.com/drive/folders/f1"

func testQuotaConfig() quota.Config {
	return quota.Config{
		TroupeDefaults: map[string]int64{
			models.CounterModifyOps:  10,
			models.CounterMembers:    100,
			models.CounterEvents:     100,
			models.CounterSourceURIs: 100,
		},
		GlobalDefaults: map[string]int64{
			models.CounterModifyOps:  1000,
			models.CounterMembers:    1000,
			models.CounterEvents:     1000,
			models.CounterSourceURIs: 1000,
		},
	}
}

// attendanceAdapter emits the given identities for every event it sees.
func attendanceAdapter(identities ...string) *fakeAdapter {
	return &fakeAdapter{fn: func(_ context.Context, _ *models.Troupe, ev *models.Event, _ time.Time) (*source.Discovery, error) {
		d := &source.Discovery{Event: ev}
		for i, identity := range identities {
			d.Members = append(d.Members, source.MemberRecord{
				Identity: identity,
				Properties: map[string]any{
					models.MemberIDProperty: identity,
					"First Name":            fmt.Sprintf("Member %d", i),
				},
				Attended: models.AttendedEvent{TypeID: ev.TypeID, Value: ev.Value, Date: ev.StartDate},
			})
		}
		return d, nil
	}}
}

func newFixture(t *testing.T, quotaCfg quota.Config, adapter source.Adapter, lister FolderLister) *fixture {
	t.Helper()

	db, err := database.New(database.Config{Path: "", QueryTimeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	bdb, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = bdb.Close() })

	q := quota.New(bdb, quotaCfg)
	orch := New(db, q, &fakeRegistry{adapter: adapter}, lister, nil, Config{IngestWorkers: 2})
	return &fixture{db: db, quota: q, orch: orch}
}

func seedTroupe(t *testing.T, db *database.DB) *models.Troupe {
	t.Helper()
	ctx := context.Background()

	tr := &models.Troupe{
		ID:   "t1",
		Name: "Drama Club",
		Properties: map[string]models.PropertyType{
			models.MemberIDProperty: "string!",
			"First Name":            "string?",
		},
		PointTypes: map[string]models.PointBucket{
			"All Time": {
				Start: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		LastUpdated: time.Now().UTC(),
	}
	if err := db.UpsertTroupe(ctx, tr); err != nil {
		t.Fatalf("UpsertTroupe: %v", err)
	}
	if err := db.UpsertEventType(ctx, &models.EventType{
		ID: "et1", TroupeID: "t1", Title: "Rehearsal", Value: 5, FolderURIs: []string{testFolder},
	}); err != nil {
		t.Fatalf("UpsertEventType: %v", err)
	}
	return tr
}

func singleSheetLister() *fakeLister {
	return &fakeLister{items: map[string][]source.FolderItem{
		testFolder: {
			{ID: "doc1", Title: "Week 1", Kind: models.SourceSheet, URI: "uri://sheet-1"},
		},
	}}
}

func TestOrchestrator_SyncCreditsAttendance(t *testing.T) {
	f := newFixture(t, testQuotaConfig(), attendanceAdapter("m1", "m2"), singleSheetLister())
	seedTroupe(t, f.db)
	ctx := context.Background()

	if err := f.orch.Sync(ctx, "t1"); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	events, err := f.db.ListEvents(ctx, "t1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].Kind != models.SourceSheet || events[0].Value != 5 {
		t.Fatalf("discovered events = %+v; want one sheet event worth 5", events)
	}

	members, err := f.db.ListMembers(ctx, "t1")
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members; want 2", len(members))
	}
	for _, m := range members {
		if got := m.Points["All Time"]; got != 5 {
			t.Errorf("member %s points = %v; want 5", m.IdentityValue(), got)
		}
		buckets, err := f.db.ListBuckets(ctx, m.ID)
		if err != nil {
			t.Fatalf("ListBuckets: %v", err)
		}
		if len(buckets) != 1 || len(buckets[0].Events) != 1 {
			t.Errorf("member %s buckets = %+v; want one bucket, one entry", m.IdentityValue(), buckets)
		}
	}

	tr, err := f.db.GetTroupe(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTroupe: %v", err)
	}
	if tr.SyncLock {
		t.Error("sync lock still held after completed run")
	}

	limits, err := f.quota.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("quota Get: %v", err)
	}
	if got := limits.Counters[models.CounterModifyOps]; got != 9 {
		t.Errorf("modify ops remaining = %d; want 9", got)
	}
	if got := limits.Counters[models.CounterMembers]; got != 98 {
		t.Errorf("members remaining = %d; want 98", got)
	}
	if got := limits.Counters[models.CounterEvents]; got != 99 {
		t.Errorf("events remaining = %d; want 99", got)
	}
	// One aggregated charge per new event, not a per-item charge on top.
	if got := limits.Counters[models.CounterSourceURIs]; got != 99 {
		t.Errorf("source URIs remaining = %d; want 99", got)
	}
}

func TestOrchestrator_SyncIsIdempotent(t *testing.T) {
	f := newFixture(t, testQuotaConfig(), attendanceAdapter("m1", "m2"), singleSheetLister())
	seedTroupe(t, f.db)
	ctx := context.Background()

	if err := f.orch.Sync(ctx, "t1"); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if err := f.orch.Sync(ctx, "t1"); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	members, err := f.db.ListMembers(ctx, "t1")
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members after rerun; want 2", len(members))
	}
	for _, m := range members {
		if got := m.Points["All Time"]; got != 5 {
			t.Errorf("member %s points = %v after rerun; want 5", m.IdentityValue(), got)
		}
		buckets, _ := f.db.ListBuckets(ctx, m.ID)
		if len(buckets) != 1 || len(buckets[0].Events) != 1 {
			t.Errorf("member %s attendance duplicated on rerun: %+v", m.IdentityValue(), buckets)
		}
	}

	// Only the rerun's own modify op is consumed again; member and event
	// counters are untouched the second time.
	limits, err := f.quota.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("quota Get: %v", err)
	}
	if got := limits.Counters[models.CounterModifyOps]; got != 8 {
		t.Errorf("modify ops remaining = %d; want 8", got)
	}
	if got := limits.Counters[models.CounterMembers]; got != 98 {
		t.Errorf("members remaining = %d; want 98", got)
	}
	if got := limits.Counters[models.CounterEvents]; got != 99 {
		t.Errorf("events remaining = %d; want 99", got)
	}
}

func TestOrchestrator_LockConflict(t *testing.T) {
	f := newFixture(t, testQuotaConfig(), attendanceAdapter("m1"), singleSheetLister())
	seedTroupe(t, f.db)
	ctx := context.Background()

	if err := f.db.AcquireSyncLock(ctx, "t1"); err != nil {
		t.Fatalf("AcquireSyncLock: %v", err)
	}

	if err := f.orch.Sync(ctx, "t1"); !errors.Is(err, errs.ErrSyncInProgress) {
		t.Fatalf("Sync err = %v; want sync in progress", err)
	}

	members, _ := f.db.ListMembers(ctx, "t1")
	if len(members) != 0 {
		t.Error("conflicting sync left data behind")
	}
	events, _ := f.db.ListEvents(ctx, "t1")
	if len(events) != 0 {
		t.Error("conflicting sync created events")
	}
}

func TestOrchestrator_TroupeNotFound(t *testing.T) {
	f := newFixture(t, testQuotaConfig(), attendanceAdapter("m1"), singleSheetLister())

	if err := f.orch.Sync(context.Background(), "nope"); !errors.Is(err, errs.ErrTroupeNotFound) {
		t.Fatalf("Sync err = %v; want troupe not found", err)
	}
}

func TestOrchestrator_EventScopedFailureFlagsDeletion(t *testing.T) {
	lister := &fakeLister{items: map[string][]source.FolderItem{
		testFolder: {
			{ID: "doc1", Title: "Week 1", Kind: models.SourceSheet, URI: "uri://sheet-1"},
			{ID: "doc2", Title: "Week 2", Kind: models.SourceSheet, URI: "uri://sheet-2"},
		},
	}}
	adapter := &fakeAdapter{fn: func(_ context.Context, _ *models.Troupe, ev *models.Event, _ time.Time) (*source.Discovery, error) {
		if ev.SourceURI == "uri://sheet-2" {
			return nil, fmt.Errorf("%w: connection refused", errs.ErrSourceUnreachable)
		}
		return &source.Discovery{Event: ev, Members: []source.MemberRecord{{
			Identity:   "m1",
			Properties: map[string]any{models.MemberIDProperty: "m1"},
			Attended:   models.AttendedEvent{TypeID: ev.TypeID, Value: ev.Value, Date: ev.StartDate},
		}}}, nil
	}}

	f := newFixture(t, testQuotaConfig(), adapter, lister)
	seedTroupe(t, f.db)
	ctx := context.Background()

	err := f.orch.Sync(ctx, "t1")
	var partial *errs.PartialIngestFailure
	if !errors.As(err, &partial) {
		t.Fatalf("Sync err = %v; want partial ingest failure", err)
	}
	if len(partial.Failures) != 1 {
		t.Fatalf("got %d failures; want 1", len(partial.Failures))
	}

	events, _ := f.db.ListEvents(ctx, "t1")
	if len(events) != 1 || events[0].SourceURI != "uri://sheet-1" {
		t.Errorf("surviving events = %+v; want only sheet-1", events)
	}

	members, _ := f.db.ListMembers(ctx, "t1")
	if len(members) != 1 || members[0].Points["All Time"] != 5 {
		t.Errorf("members = %+v; want m1 credited once", members)
	}

	tr, _ := f.db.GetTroupe(ctx, "t1")
	if tr.SyncLock {
		t.Error("sync lock still held after run with event-scoped failures")
	}
}

// Many events failing at once makes every pool worker write the deletion
// set concurrently while jobs are still being handed out; run with -race.
func TestOrchestrator_ConcurrentSourceFailures(t *testing.T) {
	const total = 40
	items := make([]source.FolderItem, 0, total)
	for i := 0; i < total; i++ {
		items = append(items, source.FolderItem{
			ID:    fmt.Sprintf("doc%d", i),
			Title: fmt.Sprintf("Week %d", i),
			Kind:  models.SourceSheet,
			URI:   fmt.Sprintf("uri://sheet-%d", i),
		})
	}
	lister := &fakeLister{items: map[string][]source.FolderItem{testFolder: items}}
	adapter := &fakeAdapter{fn: func(_ context.Context, _ *models.Troupe, ev *models.Event, _ time.Time) (*source.Discovery, error) {
		if ev.SourceURI == "uri://sheet-0" {
			return &source.Discovery{Event: ev, Members: []source.MemberRecord{{
				Identity:   "m1",
				Properties: map[string]any{models.MemberIDProperty: "m1"},
				Attended:   models.AttendedEvent{TypeID: ev.TypeID, Value: ev.Value, Date: ev.StartDate},
			}}}, nil
		}
		return nil, fmt.Errorf("%w: connection refused", errs.ErrSourceUnreachable)
	}}

	f := newFixture(t, testQuotaConfig(), adapter, lister)
	seedTroupe(t, f.db)
	ctx := context.Background()

	err := f.orch.Sync(ctx, "t1")
	var partial *errs.PartialIngestFailure
	if !errors.As(err, &partial) {
		t.Fatalf("Sync err = %v; want partial ingest failure", err)
	}
	if len(partial.Failures) != total-1 {
		t.Fatalf("got %d failures; want %d", len(partial.Failures), total-1)
	}

	events, _ := f.db.ListEvents(ctx, "t1")
	if len(events) != 1 || events[0].SourceURI != "uri://sheet-0" {
		t.Errorf("surviving events = %+v; want only sheet-0", events)
	}
	tr, _ := f.db.GetTroupe(ctx, "t1")
	if tr.SyncLock {
		t.Error("sync lock still held after run with event-scoped failures")
	}
}

func TestOrchestrator_QuotaDenied(t *testing.T) {
	cfg := testQuotaConfig()
	cfg.TroupeDefaults[models.CounterModifyOps] = 0

	f := newFixture(t, cfg, attendanceAdapter("m1"), singleSheetLister())
	seedTroupe(t, f.db)
	ctx := context.Background()

	if err := f.orch.Sync(ctx, "t1"); !errors.Is(err, errs.ErrQuotaExceeded) {
		t.Fatalf("Sync err = %v; want quota exceeded", err)
	}

	tr, _ := f.db.GetTroupe(ctx, "t1")
	if tr.SyncLock {
		t.Error("denied sync left the lock held")
	}
	members, _ := f.db.ListMembers(ctx, "t1")
	if len(members) != 0 {
		t.Error("denied sync mutated data")
	}
}

func TestOrchestrator_OverriddenPropertySurvivesSync(t *testing.T) {
	f := newFixture(t, testQuotaConfig(), attendanceAdapter("m1"), singleSheetLister())
	seedTroupe(t, f.db)
	ctx := context.Background()

	if err := f.db.UpsertMember(ctx, &models.Member{
		ID:       "member-1",
		TroupeID: "t1",
		Properties: map[string]models.PropertyValue{
			models.MemberIDProperty: {Value: "m1"},
			"First Name":            {Value: "Hand-Edited", Override: true},
		},
		Points: map[string]float64{},
	}); err != nil {
		t.Fatalf("UpsertMember: %v", err)
	}

	if err := f.orch.Sync(ctx, "t1"); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	m, err := f.db.GetMember(ctx, "member-1")
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	got := m.Properties["First Name"]
	if got.Value != "Hand-Edited" || !got.Override {
		t.Errorf("First Name = %+v; want overridden value kept", got)
	}

	members, _ := f.db.ListMembers(ctx, "t1")
	if len(members) != 1 {
		t.Errorf("got %d members; want the discovered identity merged into the existing member", len(members))
	}
}

func TestOrchestrator_FatalAdapterErrorReleasesLock(t *testing.T) {
	adapter := &fakeAdapter{fn: func(context.Context, *models.Troupe, *models.Event, time.Time) (*source.Discovery, error) {
		return nil, errors.New("adapter panic-grade failure")
	}}
	f := newFixture(t, testQuotaConfig(), adapter, singleSheetLister())
	seedTroupe(t, f.db)
	ctx := context.Background()

	if err := f.orch.Sync(ctx, "t1"); err == nil {
		t.Fatal("expected sync failure")
	}

	tr, _ := f.db.GetTroupe(ctx, "t1")
	if tr.SyncLock {
		t.Error("failed sync left the lock held")
	}
	members, _ := f.db.ListMembers(ctx, "t1")
	if len(members) != 0 {
		t.Error("failed sync flushed partial data")
	}
	limits, _ := f.quota.Get(ctx, "t1")
	if got := limits.Counters[models.CounterModifyOps]; got != 10 {
		t.Errorf("modify ops remaining = %d; want 10 (nothing consumed on failure)", got)
	}
}

func TestOrchestrator_FolderListingFailureKeepsEvents(t *testing.T) {
	lister := singleSheetLister()
	f := newFixture(t, testQuotaConfig(), attendanceAdapter("m1"), lister)
	seedTroupe(t, f.db)
	ctx := context.Background()

	if err := f.orch.Sync(ctx, "t1"); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	// The folder goes dark; its already-discovered event must not be
	// treated as vanished.
	lister.errs = map[string]error{testFolder: fmt.Errorf("%w: listing failed", errs.ErrSourceUnreachable)}
	if err := f.orch.Sync(ctx, "t1"); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	events, _ := f.db.ListEvents(ctx, "t1")
	if len(events) != 1 {
		t.Errorf("got %d events after failed listing; want 1 kept", len(events))
	}
}

func TestSweeper_ClearsAbandonedLocks(t *testing.T) {
	f := newFixture(t, testQuotaConfig(), attendanceAdapter("m1"), singleSheetLister())
	seedTroupe(t, f.db)
	ctx := context.Background()

	if err := f.db.AcquireSyncLock(ctx, "t1"); err != nil {
		t.Fatalf("AcquireSyncLock: %v", err)
	}

	sweeper := NewSweeper(f.db, Config{SweepInterval: 10 * time.Millisecond, MaxSyncDuration: time.Nanosecond})
	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_ = sweeper.Serve(runCtx)

	tr, err := f.db.GetTroupe(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTroupe: %v", err)
	}
	if tr.SyncLock {
		t.Error("abandoned lock not cleared by sweep")
	}
}
