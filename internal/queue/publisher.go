// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/jmorrell/rollcall/internal/metrics"
)

// Publisher enqueues sync requests onto the JetStream-backed sync topic.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher dials NATS and creates the Watermill publisher. TrackMsgId
// deduplicates rapid repeat requests for the same troupe within the
// JetStream dedup window.
func NewPublisher(cfg Config) (*Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOptions(cfg),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, NewLoggerAdapter())
	if err != nil {
		return nil, fmt.Errorf("create sync queue publisher: %w", err)
	}
	return &Publisher{pub: pub}, nil
}

// Enqueue publishes a sync request for troupeID.
func (p *Publisher) Enqueue(_ context.Context, troupeID string) error {
	payload, err := encodeRequest(troupeID)
	if err != nil {
		return err
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.pub.Publish(SyncTopic, msg); err != nil {
		return fmt.Errorf("enqueue sync for troupe %s: %w", troupeID, err)
	}
	metrics.QueueMessages.WithLabelValues("published").Inc()
	return nil
}

// Close shuts down the publisher connection.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

func natsOptions(cfg Config) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
	}
}
