// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package realtime

import (
	"context"
	"sync"
)

// Broker carries encoded frames between the instances of the service.
// Publish must reach every instance's Subscribe callback, including the
// publisher's own.
type Broker interface {
	Publish(ctx context.Context, channel string, frame []byte) error
	// Subscribe registers deliver and returns once the subscription is
	// live. Delivery stops when ctx is cancelled.
	Subscribe(ctx context.Context, deliver func(channel string, frame []byte)) error
}

// LocalBroker delivers synchronously inside one process. It is the
// broker for single-instance deployments and tests.
type LocalBroker struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(channel string, frame []byte)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[int]func(string, []byte))}
}

func (b *LocalBroker) Publish(ctx context.Context, channel string, frame []byte) error {
	b.mu.RLock()
	subs := make([]func(string, []byte), 0, len(b.subs))
	for _, deliver := range b.subs {
		subs = append(subs, deliver)
	}
	b.mu.RUnlock()

	for _, deliver := range subs {
		deliver(channel, frame)
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, deliver func(channel string, frame []byte)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = deliver
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}
