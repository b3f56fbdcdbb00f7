// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/logging"
	"github.com/jmorrell/rollcall/internal/metrics"
)

// SyncFunc runs one sync for a troupe. It is the orchestrator's Sync method
// in production.
type SyncFunc func(ctx context.Context, troupeID string) error

// Consumer dequeues sync requests and runs them through SyncFunc.
//
// Disposition policy: lock conflicts, unknown troupes, quota denials, and
// integrity errors ack the message (retrying cannot help or must not
// happen); partial ingest failures are a successful run and ack; everything
// else nacks for redelivery, bounded by MaxDeliver.
type Consumer struct {
	cfg    Config
	syncFn SyncFunc
	sub    message.Subscriber
}

// NewConsumer creates a durable queue-group consumer over NATS JetStream.
func NewConsumer(cfg Config, syncFn SyncFunc) (*Consumer, error) {
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.AckWait,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOptions(cfg),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: cfg.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(cfg.MaxDeliver),
				natsgo.AckWait(cfg.AckWait),
			},
		},
	}, NewLoggerAdapter())
	if err != nil {
		return nil, fmt.Errorf("create sync queue consumer: %w", err)
	}
	return &Consumer{cfg: cfg, syncFn: syncFn, sub: sub}, nil
}

// Serve consumes sync requests until ctx is done. Implements suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	msgs, err := c.sub.Subscribe(ctx, SyncTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SyncTopic, err)
	}
	logging.Info().Str("topic", SyncTopic).Msg("Sync queue consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("sync queue subscription closed")
			}
			c.handle(ctx, msg)
		}
	}
}

// Close shuts down the subscriber.
func (c *Consumer) Close() error {
	return c.sub.Close()
}

func (c *Consumer) String() string { return "queue.Consumer" }

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	troupeID, err := decodeRequest(msg.Payload)
	if err != nil {
		// Poison payload; redelivery cannot fix it.
		logging.Error().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable sync request")
		metrics.QueueMessages.WithLabelValues("dropped").Inc()
		msg.Ack()
		return
	}

	err = c.syncFn(ctx, troupeID)
	switch disposition(err) {
	case "handled":
		metrics.QueueMessages.WithLabelValues("handled").Inc()
		msg.Ack()
	case "dropped":
		logging.Warn().Err(err).Str("troupe_id", troupeID).Msg("Sync request dropped")
		metrics.QueueMessages.WithLabelValues("dropped").Inc()
		msg.Ack()
	default:
		logging.Error().Err(err).Str("troupe_id", troupeID).Msg("Sync failed; requeueing")
		metrics.QueueMessages.WithLabelValues("redelivered").Inc()
		msg.Nack()
	}
}

// disposition classifies a sync outcome into handled (ack), dropped (ack
// without success), or retry (nack).
func disposition(err error) string {
	if err == nil {
		return "handled"
	}
	var partial *errs.PartialIngestFailure
	if errors.As(err, &partial) {
		// The run itself completed; failures were scoped to events.
		return "handled"
	}
	switch {
	case errors.Is(err, errs.ErrSyncInProgress),
		errors.Is(err, errs.ErrTroupeNotFound),
		errors.Is(err, errs.ErrQuotaExceeded),
		errs.IsClientError(err),
		errs.IsIntegrityError(err):
		return "dropped"
	}
	return "retry"
}
