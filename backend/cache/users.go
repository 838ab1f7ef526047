// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/models"
	"github.com/efchatnet/efsocial/backend/storage"
)

const DefaultUserTTL = 5 * time.Minute

// Users decorates a UserDirectory with get-or-populate caching of user
// summaries. Cache failures fall through to the directory.
type Users struct {
	next  storage.UserDirectory
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewUsers(next storage.UserDirectory, cache Cache, ttl time.Duration, log *zap.Logger) *Users {
	if ttl <= 0 {
		ttl = DefaultUserTTL
	}
	return &Users{next: next, cache: cache, ttl: ttl, log: log.Named("user_cache")}
}

func userKey(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func (u *Users) GetUser(ctx context.Context, userID uuid.UUID) (*models.UserSummary, error) {
	var cached models.UserSummary
	hit, err := u.cache.Get(ctx, userKey(userID), &cached)
	if err != nil {
		u.log.Warn("user cache read failed", zap.Stringer("user_id", userID), zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	user, err := u.next.GetUser(ctx, userID)
	if err != nil || user == nil {
		return user, err
	}
	if err := u.cache.Set(ctx, userKey(userID), user, u.ttl); err != nil {
		u.log.Warn("user cache write failed", zap.Stringer("user_id", userID), zap.Error(err))
	}
	return user, nil
}

func (u *Users) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := u.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// Invalidate drops the cached summary after the user changed.
func (u *Users) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return u.cache.Invalidate(ctx, userKey(userID))
}
