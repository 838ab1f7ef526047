// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package realtime

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/efchatnet/efsocial/backend/apperr"
)

// Frames travel on rt.{kind}.{id}, e.g. rt.conversation.{id}.
const (
	subjectPrefix   = "rt."
	subjectWildcard = subjectPrefix + ">"
)

// NATSBroker relays frames over core NATS subjects.
type NATSBroker struct {
	nc *nats.Conn
}

func NewNATSBroker(nc *nats.Conn) *NATSBroker {
	return &NATSBroker{nc: nc}
}

func channelSubject(channel string) string {
	return subjectPrefix + strings.Replace(channel, ":", ".", 1)
}

func subjectChannel(subject string) string {
	return strings.Replace(strings.TrimPrefix(subject, subjectPrefix), ".", ":", 1)
}

func (b *NATSBroker) Publish(ctx context.Context, channel string, frame []byte) error {
	if err := b.nc.Publish(channelSubject(channel), frame); err != nil {
		return apperr.Unavailable("publish realtime frame", err)
	}
	return nil
}

func (b *NATSBroker) Subscribe(ctx context.Context, deliver func(channel string, frame []byte)) error {
	sub, err := b.nc.Subscribe(subjectWildcard, func(m *nats.Msg) {
		deliver(subjectChannel(m.Subject), m.Data)
	})
	if err != nil {
		return apperr.Unavailable("subscribe realtime frames", err)
	}
	if err := b.nc.Flush(); err != nil {
		sub.Unsubscribe()
		return apperr.Unavailable("subscribe realtime frames", err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
	return nil
}
