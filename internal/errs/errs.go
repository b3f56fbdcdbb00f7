// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package errs defines the error taxonomy shared across Rollcall.
//
// Classification drives behavior:
//
//   - ClientError: caller supplied invalid input. Never retried, surfaced verbatim.
//   - ErrQuotaExceeded: quota pre-check failed. Never retried; distinct from
//     generic validation so API callers can present it separately.
//   - ErrSourceUnreachable / ErrSourceMalformed: scoped to one event. The
//     event is flagged for deletion and the sync continues.
//   - IntegrityError: a persistence step that should be impossible to fail
//     did fail (e.g. quota accounting after a successful mutation). Fatal,
//     logged, never auto-retried.
//   - ErrSyncInProgress: the troupe's sync lock is already held. Surfaced
//     immediately; the stale-lock sweep is the only automatic recovery.
package errs

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a sync is requested for a troupe whose
// sync lock is already set.
var ErrSyncInProgress = errors.New("sync already in progress for troupe")

// ErrTroupeNotFound is returned when the requested troupe does not exist.
var ErrTroupeNotFound = errors.New("troupe not found")

// ErrQuotaExceeded is returned when a mutation would push a quota counter
// below zero. The mutation is not performed.
var ErrQuotaExceeded = errors.New("operation not within limits")

// ErrSourceUnreachable is returned by a data source adapter when the external
// system cannot be reached within its timeout.
var ErrSourceUnreachable = errors.New("event source unreachable")

// ErrSourceMalformed is returned by a data source adapter when the external
// payload cannot be interpreted.
var ErrSourceMalformed = errors.New("event source malformed")

// ErrLockNotHeld is returned when a mutation path observes that the sync lock
// it expected to hold has been cleared (stale-lock sweep fired mid-run).
var ErrLockNotHeld = errors.New("sync lock no longer held")

// ClientError marks an error caused by invalid caller input.
type ClientError struct {
	Msg string
}

func (e *ClientError) Error() string { return e.Msg }

// NewClientError creates a ClientError with a formatted message.
func NewClientError(format string, args ...any) *ClientError {
	return &ClientError{Msg: fmt.Sprintf(format, args...)}
}

// IsClientError reports whether err is (or wraps) a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IntegrityError marks a failure of an operation that must not fail once its
// preconditions held, leaving persisted state and accounting out of step.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in %s: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// NewIntegrityError wraps err as an IntegrityError for operation op.
func NewIntegrityError(op string, err error) *IntegrityError {
	return &IntegrityError{Op: op, Err: err}
}

// IsIntegrityError reports whether err is (or wraps) an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// EventSourceError ties a source failure to the event it occurred on, so the
// orchestrator can flag that one event for deletion and keep going.
type EventSourceError struct {
	EventID string
	Err     error
}

func (e *EventSourceError) Error() string {
	return fmt.Sprintf("event %s: %v", e.EventID, e.Err)
}

func (e *EventSourceError) Unwrap() error { return e.Err }

// IsEventScoped reports whether err is a failure confined to a single event's
// external source (unreachable or malformed).
func IsEventScoped(err error) bool {
	return errors.Is(err, ErrSourceUnreachable) || errors.Is(err, ErrSourceMalformed)
}

// PartialIngestFailure aggregates per-event failures from one sync run.
// Individual event failures are swallowed into per-event deletion or skip;
// this error reports them to the caller without failing the sync.
type PartialIngestFailure struct {
	Failures []EventSourceError
}

func (e *PartialIngestFailure) Error() string {
	return fmt.Sprintf("%d event(s) failed during ingest", len(e.Failures))
}
