// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package logsheet posts a troupe's rendered attendance log to the external
// log sheet service after a sync persists. Log sheet failures never roll
// back a sync; callers log and continue.
package logsheet

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/jmorrell/rollcall/internal/models"
	"github.com/jmorrell/rollcall/internal/propcoerce"
)

// Config holds log sheet service settings.
type Config struct {
	// Enabled turns the post-sync log calls on. Disabled skips them
	// without error.
	Enabled bool `koanf:"enabled"`

	// BaseURL is the log sheet service root, no trailing slash.
	BaseURL string `koanf:"base_url"`

	// Timeout bounds each log sheet request.
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultConfig returns log sheet client defaults.
func DefaultConfig() Config {
	return Config{Timeout: 15 * time.Second}
}

// Client talks to the log sheet service.
type Client struct {
	base    string
	http    *http.Client
	enabled bool
}

// New creates a log sheet client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		enabled: cfg.Enabled,
	}
}

// Enabled reports whether log sheet calls are configured on.
func (c *Client) Enabled() bool { return c.enabled }

// logPayload is the rendered log document: one column per event, one row
// per audience member, values formatted for display.
type logPayload struct {
	TroupeID   string              `json:"troupe_id"`
	TroupeName string              `json:"troupe_name"`
	Events     []logEvent          `json:"events"`
	Audience   []logAudienceMember `json:"audience"`
}

type logEvent struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

type logAudienceMember struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	Points     map[string]string `json:"points"`
	Attended   []string          `json:"attended"`
}

// CreateLog creates the troupe's log document.
func (c *Client) CreateLog(ctx context.Context, tr *models.Troupe, events []*models.Event, audience []*models.Member, attended map[string][]string) error {
	return c.send(ctx, http.MethodPost, "/logs", tr, events, audience, attended)
}

// UpdateLog replaces the troupe's log document.
func (c *Client) UpdateLog(ctx context.Context, tr *models.Troupe, events []*models.Event, audience []*models.Member, attended map[string][]string) error {
	return c.send(ctx, http.MethodPut, "/logs/"+tr.ID, tr, events, audience, attended)
}

// DeleteLog removes the troupe's log document.
func (c *Client) DeleteLog(ctx context.Context, troupeID string) error {
	if !c.enabled {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/logs/"+troupeID, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *Client) send(ctx context.Context, method, path string, tr *models.Troupe, events []*models.Event, audience []*models.Member, attended map[string][]string) error {
	if !c.enabled {
		return nil
	}

	payload := logPayload{
		TroupeID:   tr.ID,
		TroupeName: tr.Name,
		Events:     make([]logEvent, 0, len(events)),
		Audience:   make([]logAudienceMember, 0, len(audience)),
	}
	for _, ev := range events {
		payload.Events = append(payload.Events, logEvent{
			ID: ev.ID, Title: ev.Title, Date: ev.StartDate, Value: ev.Value,
		})
	}
	for _, m := range audience {
		row := logAudienceMember{
			ID:         m.ID,
			Properties: make(map[string]string, len(m.Properties)),
			Points:     make(map[string]string, len(m.Points)),
			Attended:   attended[m.ID],
		}
		for name, pv := range m.Properties {
			row.Properties[name] = propcoerce.FormatValue(pv.Value)
		}
		for name, total := range m.Points {
			row.Points[name] = propcoerce.FormatValue(total)
		}
		payload.Audience = append(payload.Audience, row)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("log sheet service returned %d", resp.StatusCode)
	}
	return nil
}
