// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/efchatnet/efsocial/backend/apperr"
)

// MaxWriteRetries bounds how often a durable write is retried after a
// transient failure.
const MaxWriteRetries = 3

// Retry runs op, retrying UNAVAILABLE errors with exponential backoff
// until it succeeds, fails permanently, runs out of attempts or ctx ends.
// op must be idempotent.
func Retry(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(eb, MaxWriteRetries), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !apperr.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
