// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package events

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/models"
	"github.com/efchatnet/efsocial/backend/notify"
)

// notificationSpace namespaces notification ids derived from event ids.
var notificationSpace = uuid.MustParse("5b0c6f8e-3c1d-4e55-9a0e-2f1f7c8d9e61")

type Notifier interface {
	Create(ctx context.Context, req notify.Request) (*models.NotificationView, bool, error)
}

type Feed interface {
	NotifyNewPost(ctx context.Context, post models.PostView)
	NotifyPostUpdated(ctx context.Context, post models.PostView)
	NotifyPostDeleted(ctx context.Context, deleted models.PostDeleted)
}

type UserInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Dispatcher turns domain events emitted by other services into
// notifications, feed pushes and cache invalidations.
type Dispatcher struct {
	notifications Notifier
	feed          Feed
	users         UserInvalidator
	log           *zap.Logger
}

func NewDispatcher(notifications Notifier, feed Feed, users UserInvalidator, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		feed:          feed,
		users:         users,
		log:           log.Named("events"),
	}
}

// NotificationID is the id of the notification produced by eventID.
// Handling the same event twice therefore inserts nothing new.
func NotificationID(eventID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(notificationSpace, eventID[:])
}

func (d *Dispatcher) Handle(ctx context.Context, ev models.Event) error {
	if ev.ID == uuid.Nil {
		return apperr.InvalidArg("event id is required")
	}

	switch ev.Type {
	case models.EventPostLiked:
		return d.notify(ctx, ev, models.NotificationNewLikeOnPost)
	case models.EventPostCommented:
		return d.notify(ctx, ev, models.NotificationNewCommentOnPost)
	case models.EventFriendRequested:
		return d.notify(ctx, ev, models.NotificationNewFriendRequest)
	case models.EventFriendAccepted:
		return d.notify(ctx, ev, models.NotificationFriendRequestAccepted)

	case models.EventPostCreated:
		if ev.Post == nil {
			return apperr.InvalidArg("post.created without post")
		}
		d.feed.NotifyNewPost(ctx, *ev.Post)
		if ev.RecipientID == uuid.Nil {
			return nil
		}
		return d.notify(ctx, ev, models.NotificationNewPostCreated)

	case models.EventPostUpdated:
		if ev.Post == nil {
			return apperr.InvalidArg("post.updated without post")
		}
		d.feed.NotifyPostUpdated(ctx, *ev.Post)
		return nil

	case models.EventPostDeleted:
		if ev.TargetID == uuid.Nil {
			return apperr.InvalidArg("post.deleted without target")
		}
		d.feed.NotifyPostDeleted(ctx, models.PostDeleted{PostID: ev.TargetID, AuthorID: ev.ActorID})
		return nil

	case models.EventUserUpdated:
		if d.users == nil {
			return nil
		}
		return d.users.Invalidate(ctx, ev.ActorID)
	}

	return apperr.InvalidArg("unknown event type " + string(ev.Type))
}

func (d *Dispatcher) notify(ctx context.Context, ev models.Event, t models.NotificationType) error {
	view, created, err := d.notifications.Create(ctx, notify.Request{
		ID:          NotificationID(ev.ID),
		RecipientID: ev.RecipientID,
		TriggerID:   ev.ActorID,
		Type:        t,
		TargetID:    ev.TargetID,
	})
	if err != nil {
		return err
	}
	if !created {
		d.log.Debug("Event already handled",
			zap.String("event_id", ev.ID.String()),
			zap.String("notification_id", view.ID.String()))
	}
	return nil
}
