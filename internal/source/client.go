// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

/*
client.go - External Data Source Provider Client

HTTP client for the spreadsheet/form/folder provider APIs. All calls are
read-only, bounded by a timeout, rate limited, and wrapped in a per-kind
circuit breaker so a degraded provider cannot stall a sync run.

Failure classification:
  - network errors, timeouts, HTTP 5xx/429, open breaker -> source unreachable
  - unparsable payloads, HTTP 4xx                        -> source malformed

Both classes are event-scoped: the orchestrator flags the one affected event
and continues with the rest of the run.
*/
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/metrics"
)

// maxResponseBody caps how much of a provider response is read.
const maxResponseBody = 16 * 1024 * 1024 // 16MB

// Config holds provider client settings.
type Config struct {
	// BaseURL is the provider API root, no trailing slash.
	BaseURL string `koanf:"base_url"`

	// Timeout bounds each provider request.
	Timeout time.Duration `koanf:"timeout"`

	// RateLimit is the sustained request rate against the provider,
	// requests per second. RateBurst is the short-term burst allowance.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// DefaultConfig returns provider client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		RateLimit: 10,
		RateBurst: 20,
	}
}

// Client talks to the external data source provider. Safe for concurrent
// use; ingest workers share one client per process.
type Client struct {
	base     string
	http     *http.Client
	limiter  *rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a provider client with one circuit breaker per source
// kind so a broken sheet endpoint does not trip form fetches.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}

	c := &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
	for _, kind := range []string{"sheet", "form", "folder"} {
		c.breakers[kind] = newBreaker("source-" + kind)
	}
	return c
}

// newBreaker builds a circuit breaker that opens after a 60% failure rate
// over at least 10 requests, allowing 3 probes in half-open state.
func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// get fetches path from the provider, classifying failures as unreachable
// or malformed.
func (c *Client) get(ctx context.Context, kind, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSourceUnreachable, err)
	}

	start := time.Now()
	body, err := c.breakers[kind].Execute(func() ([]byte, error) {
		return c.doGet(ctx, c.base+path)
	})
	metrics.SourceRequestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", errs.ErrSourceUnreachable, err)
		}
		switch {
		case errors.Is(err, errs.ErrSourceUnreachable):
			metrics.SourceFailures.WithLabelValues(kind, "unreachable").Inc()
		case errors.Is(err, errs.ErrSourceMalformed):
			metrics.SourceFailures.WithLabelValues(kind, "malformed").Inc()
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSourceMalformed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSourceUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusInternalServerError,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: provider returned %d", errs.ErrSourceUnreachable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: provider returned %d", errs.ErrSourceMalformed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSourceUnreachable, err)
	}
	return body, nil
}

// SheetExport fetches a spreadsheet's delimited export and parses it into
// rows. Row 0 carries the field labels.
func (c *Client) SheetExport(ctx context.Context, sheetID string) ([][]string, error) {
	body, err := c.get(ctx, "sheet", "/sheets/"+sheetID+"/export?format=csv")
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(string(body)))
	r.FieldsPerRecord = -1 // rows may be ragged; missing cells read as empty
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse sheet export: %v", errs.ErrSourceMalformed, err)
	}
	return rows, nil
}

// FormSchema fetches a form's live question schema.
func (c *Client) FormSchema(ctx context.Context, formID string) (*Form, error) {
	body, err := c.get(ctx, "form", "/forms/"+formID)
	if err != nil {
		return nil, err
	}

	var f Form
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("%w: parse form schema: %v", errs.ErrSourceMalformed, err)
	}
	return &f, nil
}

// FormResponses fetches a form's submitted responses.
func (c *Client) FormResponses(ctx context.Context, formID string) ([]FormResponse, error) {
	body, err := c.get(ctx, "form", "/forms/"+formID+"/responses")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Responses []FormResponse `json:"responses"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parse form responses: %v", errs.ErrSourceMalformed, err)
	}
	return payload.Responses, nil
}

// FolderItems lists the entries of a folder source, used by event discovery.
func (c *Client) FolderItems(ctx context.Context, folderID string) ([]FolderItem, error) {
	body, err := c.get(ctx, "folder", "/folders/"+folderID+"/items")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []FolderItem `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parse folder listing: %v", errs.ErrSourceMalformed, err)
	}
	return payload.Items, nil
}
