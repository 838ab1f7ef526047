// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/models"
	"github.com/efchatnet/efsocial/backend/realtime"
)

const pushTimeout = 3 * time.Second

type Pusher interface {
	Push(ctx context.Context, channel, event string, payload any) error
}

// Notifier pushes post changes to the author's feed channel, which the
// author's friends are subscribed to. These are live conveniences only;
// nothing is persisted.
type Notifier struct {
	pub Pusher
	log *zap.Logger
}

func NewNotifier(pub Pusher, log *zap.Logger) *Notifier {
	return &Notifier{pub: pub, log: log.Named("feed")}
}

func (n *Notifier) NotifyNewPost(ctx context.Context, post models.PostView) {
	n.push(ctx, post.AuthorID.String(), realtime.FeedChannel(post.AuthorID), realtime.EventNewPost, post)
}

func (n *Notifier) NotifyPostUpdated(ctx context.Context, post models.PostView) {
	n.push(ctx, post.AuthorID.String(), realtime.FeedChannel(post.AuthorID), realtime.EventPostUpdated, post)
}

func (n *Notifier) NotifyPostDeleted(ctx context.Context, deleted models.PostDeleted) {
	n.push(ctx, deleted.AuthorID.String(), realtime.FeedChannel(deleted.AuthorID), realtime.EventPostDeleted, deleted)
}

func (n *Notifier) push(ctx context.Context, authorID, channel, event string, payload any) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := n.pub.Push(pctx, channel, event, payload); err != nil {
		n.log.Warn("feed push failed",
			zap.String("author_id", authorID),
			zap.String("event", event),
			zap.Error(err))
	}
}
