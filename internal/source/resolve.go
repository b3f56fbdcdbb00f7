// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package source

import (
	"fmt"
	"regexp"
	"time"

	"github.com/jmorrell/rollcall/internal/cache"
	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/models"
)

// Fixed URL patterns per source kind. The provider ID is the first capture.
var (
	sheetIDPattern  = regexp.MustCompile(`/spreadsheets/d/([A-Za-z0-9_-]+)`)
	formIDPattern   = regexp.MustCompile(`/forms/d/(?:e/)?([A-Za-z0-9_-]+)`)
	folderIDPattern = regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`)
)

// Resolver turns stored source URIs into provider document IDs. Results are
// memoized in an LRU cache since the same URIs recur on every sync run.
type Resolver struct {
	cache *cache.LRUCache
}

// NewResolver creates a resolver with the given cache capacity and TTL.
func NewResolver(capacity int, ttl time.Duration) *Resolver {
	return &Resolver{cache: cache.NewLRUCache(capacity, ttl)}
}

// Resolve extracts the provider ID for an event source URI. A URI that does
// not match its kind's pattern is a malformed source, scoped to the event.
func (r *Resolver) Resolve(kind models.SourceKind, uri string) (string, error) {
	var pattern *regexp.Regexp
	switch kind {
	case models.SourceSheet:
		pattern = sheetIDPattern
	case models.SourceForm:
		pattern = formIDPattern
	default:
		return "", fmt.Errorf("%w: no resolver for source kind %q", errs.ErrSourceMalformed, kind)
	}
	return r.resolve(string(kind), pattern, uri)
}

// ResolveFolder extracts the provider ID for a folder-source URI.
func (r *Resolver) ResolveFolder(uri string) (string, error) {
	return r.resolve("folder", folderIDPattern, uri)
}

func (r *Resolver) resolve(kind string, pattern *regexp.Regexp, uri string) (string, error) {
	key := kind + "|" + uri
	if id, ok := r.cache.Get(key); ok {
		return id, nil
	}

	m := pattern.FindStringSubmatch(uri)
	if m == nil {
		return "", fmt.Errorf("%w: %s URI %q does not match provider pattern", errs.ErrSourceMalformed, kind, uri)
	}

	r.cache.Add(key, m[1])
	return m[1], nil
}
