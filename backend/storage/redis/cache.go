// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efsocial/backend/apperr"
)

// Redis key prefixes
const cachePrefix = "social:cache:" // social:cache:{key} - JSON encoded value

// Cache is the Redis implementation of the cache port. Values are stored
// as JSON with a per-entry TTL.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Get decodes the cached value into dest. A miss reports false with no error.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.rdb.Get(ctx, cachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Unavailable("cache get", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// Treat an undecodable entry as a miss; it will be overwritten.
		return false, nil
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cache value")
	}
	if err := c.rdb.Set(ctx, cachePrefix+key, data, ttl).Err(); err != nil {
		return apperr.Unavailable("cache set", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, cachePrefix+key).Err(); err != nil {
		return apperr.Unavailable("cache invalidate", err)
	}
	return nil
}
