// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package metrics exposes Prometheus instrumentation for Rollcall:
// sync runs, event ingestion, identity merging, quota accounting,
// database queries, and external source calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync orchestrator metrics

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollcall_sync_duration_seconds",
			Help:    "Duration of full troupe sync runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_sync_runs_total",
			Help: "Total sync runs by outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "lock_conflict"
	)

	SyncStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_sync_state_transitions_total",
			Help: "Sync state machine transitions",
		},
		[]string{"state"},
	)

	// Ingestion metrics

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_events_processed_total",
			Help: "Events processed during ingest by source kind and result",
		},
		[]string{"kind", "result"}, // result: "ok", "flagged_for_deletion"
	)

	MembersMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_members_merged_total",
			Help: "Candidate member records merged by the identity resolver",
		},
	)

	AttendanceCredited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_attendance_credited_total",
			Help: "Attendance entries newly credited to members",
		},
	)

	// Quota metrics

	QuotaDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_quota_denials_total",
			Help: "Mutations denied by the quota pre-check",
		},
		[]string{"counter"},
	)

	QuotaIntegrityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_quota_integrity_failures_total",
			Help: "Quota accounting failures after a successful mutation",
		},
	)

	// Database metrics

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollcall_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// External source metrics

	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollcall_source_request_duration_seconds",
			Help:    "Duration of external source provider requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_source_failures_total",
			Help: "External source failures by kind and class",
		},
		[]string{"kind", "class"}, // class: "unreachable", "malformed"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rollcall_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Queue metrics

	QueueMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_queue_messages_total",
			Help: "Sync queue messages by disposition",
		},
		[]string{"disposition"}, // "published", "handled", "redelivered", "dropped"
	)

	StaleLocksCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_stale_locks_cleared_total",
			Help: "Sync locks force-cleared by the stale-lock sweep",
		},
	)

	// HTTP metrics

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollcall_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"route", "method"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_http_requests_total",
			Help: "HTTP requests by route, method, and status",
		},
		[]string{"route", "method", "status"},
	)
)

// ObserveSync records one sync run's duration and outcome.
func ObserveSync(outcome string, start time.Time) {
	SyncDuration.Observe(time.Since(start).Seconds())
	SyncRuns.WithLabelValues(outcome).Inc()
}
