// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package api provides the HTTP surface: the manual sync trigger, troupe
// administration, and read endpoints for members, events, and quota.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/jmorrell/rollcall/internal/database"
	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/middleware"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorBody carries a machine-readable code plus a human-readable message.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Meta carries response metadata.
type Meta struct {
	RequestID  string      `json:"request_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes a page of a list response.
type Pagination struct {
	Total   int  `json:"total"`
	Count   int  `json:"count"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// Error codes.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeSyncInProgress   = "SYNC_IN_PROGRESS"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInternalError    = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, body *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode API response")
	}
}

func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, &Response{
		Success: true,
		Data:    data,
		Meta: &Meta{
			RequestID: middleware.GetRequestID(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	})
}

func respondPage(w http.ResponseWriter, r *http.Request, data any, page *Pagination) {
	writeJSON(w, http.StatusOK, &Response{
		Success: true,
		Data:    data,
		Meta: &Meta{
			RequestID:  middleware.GetRequestID(r.Context()),
			Timestamp:  time.Now().UTC(),
			Pagination: page,
		},
	})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	writeJSON(w, status, &Response{
		Success: false,
		Error: &ErrorBody{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	})
}

// respondMapped translates an engine error into the matching HTTP status.
func respondMapped(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrTroupeNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "troupe not found", nil)
	case errors.Is(err, database.ErrMemberNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "member not found", nil)
	case errors.Is(err, database.ErrEventNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "event not found", nil)
	case errors.Is(err, errs.ErrSyncInProgress):
		respondError(w, r, http.StatusConflict, CodeSyncInProgress, "a sync is already running for this troupe", nil)
	case errors.Is(err, errs.ErrQuotaExceeded):
		respondError(w, r, http.StatusTooManyRequests, CodeQuotaExceeded, "operation not within limits", nil)
	case errs.IsClientError(err):
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		respondError(w, r, http.StatusInternalServerError, CodeInternalError, "internal error", nil)
	}
}
