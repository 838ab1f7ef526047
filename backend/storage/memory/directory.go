// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/efchatnet/efsocial/backend/models"
)

// Directory is an in-process user and friendship directory.
type Directory struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]models.UserSummary
	friends map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		users:   make(map[uuid.UUID]models.UserSummary),
		friends: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// AddUser registers a user and returns its id.
func (d *Directory) AddUser(username string) uuid.UUID {
	id := uuid.New()
	d.PutUser(models.UserSummary{ID: id, Username: username})
	return id
}

func (d *Directory) PutUser(user models.UserSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

// Befriend records an accepted friendship in both directions.
func (d *Directory) Befriend(a, b uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.link(a, b)
	d.link(b, a)
}

func (d *Directory) Unfriend(a, b uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.friends[a], b)
	delete(d.friends[b], a)
}

func (d *Directory) link(from, to uuid.UUID) {
	set, ok := d.friends[from]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		d.friends[from] = set
	}
	set[to] = struct{}{}
}

func (d *Directory) GetUser(ctx context.Context, userID uuid.UUID) (*models.UserSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (d *Directory) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.users[userID]
	return ok, nil
}

func (d *Directory) ListFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(d.friends[userID]))
	for id := range d.friends[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *Directory) AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.friends[userA][userB]
	return ok, nil
}
