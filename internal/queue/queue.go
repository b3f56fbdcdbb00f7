// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

// Package queue is the cross-process sync transport: sync requests are
// published as {troupe_id} messages over NATS JetStream and consumed by the
// orchestrator, at-least-once. Idempotent sync makes redelivery safe.
package queue

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// SyncTopic carries sync requests.
const SyncTopic = "rollcall.sync"

// Config holds sync queue settings.
type Config struct {
	// Enabled turns queue transport on. Disabled runs syncs inline in the
	// API process.
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server address. Ignored when Embedded is set.
	URL string `koanf:"url"`

	// Embedded starts an in-process NATS server instead of dialing URL.
	Embedded bool `koanf:"embedded"`

	// EmbeddedPort and StoreDir configure the embedded server.
	EmbeddedPort int    `koanf:"embedded_port"`
	StoreDir     string `koanf:"store_dir"`

	// QueueGroup load-balances consumption across instances.
	QueueGroup string `koanf:"queue_group"`

	// DurableName names the JetStream durable consumer.
	DurableName string `koanf:"durable_name"`

	// MaxDeliver bounds redelivery of a failing message.
	MaxDeliver int `koanf:"max_deliver"`

	// AckWait is how long JetStream waits for an ack before redelivering.
	// It must exceed the longest plausible sync run.
	AckWait time.Duration `koanf:"ack_wait"`

	// CloseTimeout bounds graceful shutdown of the subscriber.
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// Reconnection settings for the NATS connection.
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// DefaultConfig returns queue defaults sized for a single instance.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://127.0.0.1:4222",
		EmbeddedPort:  4222,
		QueueGroup:    "rollcall-sync",
		DurableName:   "rollcall-sync",
		MaxDeliver:    5,
		AckWait:       20 * time.Minute,
		CloseTimeout:  30 * time.Second,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// SyncRequest is the queue message payload.
type SyncRequest struct {
	TroupeID string `json:"troupe_id"`
}

func encodeRequest(troupeID string) ([]byte, error) {
	return json.Marshal(SyncRequest{TroupeID: troupeID})
}

func decodeRequest(payload []byte) (string, error) {
	var req SyncRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return "", fmt.Errorf("decode sync request: %w", err)
	}
	if req.TroupeID == "" {
		return "", fmt.Errorf("sync request carries no troupe_id")
	}
	return req.TroupeID, nil
}
