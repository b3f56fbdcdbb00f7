// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// maxBodyBytes bounds request bodies; troupe definitions are small.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// decodeBody reads and validates a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	return nil
}

// pageParams parses limit and offset query parameters, clamped to the
// configured bounds.
func (s *Server) pageParams(r *http.Request) (limit, offset int) {
	limit = s.api.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > s.api.MaxPageSize {
		limit = s.api.MaxPageSize
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// paginate slices a full result set into one page.
func paginate[T any](items []T, limit, offset int) ([]T, *Pagination) {
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := items[offset:end]
	return page, &Pagination{
		Total:   total,
		Count:   len(page),
		Offset:  offset,
		Limit:   limit,
		HasMore: end < total,
	}
}
