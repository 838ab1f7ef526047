// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/models"
)

const (
	DefaultAckWait       = 30 * time.Second
	DefaultMaxAckPending = 1024
	handleTimeout        = 10 * time.Second
)

type ConsumerConfig struct {
	Stream        string
	Subject       string
	Durable       string
	AckWait       time.Duration
	MaxAckPending int
}

type Handler interface {
	Handle(ctx context.Context, ev models.Event) error
}

// Consumer reads domain events from a JetStream durable queue consumer.
// Messages are acked once handled, or when handling can never succeed,
// and nak'd for redelivery on transient failures.
type Consumer struct {
	js      nats.JetStreamContext
	cfg     ConsumerConfig
	handler Handler
	log     *zap.Logger
	sub     *nats.Subscription
}

func NewConsumer(nc *nats.Conn, cfg ConsumerConfig, handler Handler, log *zap.Logger) (*Consumer, error) {
	if cfg.Stream == "" || cfg.Subject == "" || cfg.Durable == "" {
		return nil, errors.New("events: stream, subject and durable are required")
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = DefaultAckWait
	}
	if cfg.MaxAckPending == 0 {
		cfg.MaxAckPending = DefaultMaxAckPending
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, errors.Wrap(err, "failed to init jetstream")
	}
	return &Consumer{js: js, cfg: cfg, handler: handler, log: log.Named("events")}, nil
}

// EnsureStream creates the event stream if it does not exist yet.
func (c *Consumer) EnsureStream() error {
	if _, err := c.js.StreamInfo(c.cfg.Stream); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return errors.Wrapf(err, "failed to look up stream %s", c.cfg.Stream)
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  []string{c.cfg.Subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create stream %s", c.cfg.Stream)
	}
	c.log.Info("Created event stream", zap.String("stream", c.cfg.Stream), zap.String("subject", c.cfg.Subject))
	return nil
}

func (c *Consumer) Start() error {
	if err := c.EnsureStream(); err != nil {
		return err
	}

	sub, err := c.js.QueueSubscribe(c.cfg.Subject, c.cfg.Durable, c.handle,
		nats.ManualAck(),
		nats.Durable(c.cfg.Durable),
		nats.AckWait(c.cfg.AckWait),
		nats.MaxAckPending(c.cfg.MaxAckPending),
		nats.BindStream(c.cfg.Stream),
	)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to events")
	}
	c.sub = sub
	c.log.Info("Consuming domain events",
		zap.String("subject", c.cfg.Subject),
		zap.String("durable", c.cfg.Durable))
	return nil
}

func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Drain()
}

func (c *Consumer) handle(m *nats.Msg) {
	ack, err := c.process(m.Data)
	if err != nil {
		c.log.Warn("Failed to handle event",
			zap.String("subject", m.Subject),
			zap.Bool("redeliver", !ack),
			zap.Error(err))
	}
	if ack {
		_ = m.Ack()
	} else {
		_ = m.Nak()
	}
}

// process reports whether the message should be acked.
func (c *Consumer) process(data []byte) (bool, error) {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return true, errors.Wrap(err, "malformed event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	err := c.handler.Handle(ctx, ev)
	return Settled(err), err
}

// Settled reports whether an event that failed with err is finished with.
// Only transient failures are worth redelivering.
func Settled(err error) bool {
	if err == nil {
		return true
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidArgument, apperr.CodeNotFound, apperr.CodeAlreadyExists, apperr.CodePermissionDenied:
		return true
	}
	return false
}
