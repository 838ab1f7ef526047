// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efsocial/backend/apperr"
)

// Realtime frames are published on rt:{channel}, e.g. rt:conversation:{id}.
const (
	realtimePrefix  = "rt:"
	realtimePattern = realtimePrefix + "*"
)

// Broker relays realtime frames between server instances over Redis
// pub/sub so a push reaches connections held by any instance.
type Broker struct {
	rdb *redis.Client
}

func NewBroker(rdb *redis.Client) *Broker {
	return &Broker{rdb: rdb}
}

func (b *Broker) Publish(ctx context.Context, channel string, frame []byte) error {
	if err := b.rdb.Publish(ctx, realtimePrefix+channel, frame).Err(); err != nil {
		return apperr.Unavailable("publish realtime frame", err)
	}
	return nil
}

// Subscribe confirms the pattern subscription, then delivers every frame
// in the background until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, deliver func(channel string, frame []byte)) error {
	ps := b.rdb.PSubscribe(ctx, realtimePattern)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return apperr.Unavailable("subscribe realtime frames", err)
	}

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deliver(strings.TrimPrefix(msg.Channel, realtimePrefix), []byte(msg.Payload))
			}
		}
	}()
	return nil
}
