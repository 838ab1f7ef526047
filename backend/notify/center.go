// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/cursor"
	"github.com/efchatnet/efsocial/backend/models"
	"github.com/efchatnet/efsocial/backend/realtime"
	"github.com/efchatnet/efsocial/backend/storage"
)

const pushTimeout = 3 * time.Second

type Pusher interface {
	Push(ctx context.Context, channel, event string, payload any) error
}

// Request describes a notification to create. ID is optional; callers
// reacting to a redelivered event pass a stable id so the create is a
// no-op the second time.
type Request struct {
	ID          uuid.UUID
	RecipientID uuid.UUID
	TriggerID   uuid.UUID
	Type        models.NotificationType
	TargetID    uuid.UUID
}

// Center owns notifications. They are created as a side effect of other
// writes, never directly by clients.
type Center struct {
	store  storage.NotificationStore
	users  storage.UserDirectory
	pub    Pusher
	locale string
	log    *zap.Logger
	now    func() time.Time
}

func NewCenter(store storage.NotificationStore, users storage.UserDirectory, pub Pusher, locale string, log *zap.Logger) *Center {
	if locale == "" {
		locale = LocaleEnglish
	}
	return &Center{
		store:  store,
		users:  users,
		pub:    pub,
		locale: locale,
		log:    log.Named("notifications"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// CreateNotification notifies recipientID that triggerID acted on targetID.
func (c *Center) CreateNotification(ctx context.Context, recipientID, triggerID uuid.UUID, t models.NotificationType, targetID uuid.UUID) (*models.NotificationView, error) {
	view, _, err := c.Create(ctx, Request{RecipientID: recipientID, TriggerID: triggerID, Type: t, TargetID: targetID})
	return view, err
}

// Create persists the notification and pushes it to the recipient's
// channel. created is false when a notification with req.ID already
// existed; nothing is pushed in that case.
func (c *Center) Create(ctx context.Context, req Request) (*models.NotificationView, bool, error) {
	if req.RecipientID == req.TriggerID {
		return nil, false, apperr.InvalidArg("cannot notify a user about their own action")
	}
	if !req.Type.Valid() {
		return nil, false, apperr.InvalidArg("invalid notification type")
	}

	actor, err := c.users.GetUser(ctx, req.TriggerID)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to look up actor")
	}
	if actor == nil {
		return nil, false, apperr.NotFound("user not found")
	}

	id := req.ID
	if id == uuid.Nil {
		if id, err = uuid.NewV7(); err != nil {
			return nil, false, apperr.Internal("failed to generate id", err)
		}
	}
	n := models.Notification{
		ID:                id,
		RecipientUserID:   req.RecipientID,
		TriggeredByUserID: req.TriggerID,
		Type:              req.Type,
		Link:              Link(req.Type, req.TargetID),
		CreatedAt:         c.now(),
	}

	var created bool
	err = storage.Retry(ctx, func() error {
		var err error
		created, err = c.store.SaveNotification(ctx, n)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if !created {
		stored, err := c.store.GetNotification(ctx, n.ID, n.RecipientUserID)
		if err != nil {
			return nil, false, err
		}
		if stored != nil {
			n = *stored
		}
	}

	view := c.view(n, *actor)
	if created {
		c.push(ctx, req.RecipientID, view)
	}
	return &view, created, nil
}

func (c *Center) push(ctx context.Context, recipientID uuid.UUID, view models.NotificationView) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	channel := realtime.UserChannel(recipientID)
	if err := c.pub.Push(pctx, channel, realtime.EventReceiveNotification, view); err != nil {
		c.log.Warn("realtime push failed",
			zap.String("channel", channel),
			zap.Stringer("notification_id", view.ID),
			zap.Error(err))
	}
}

func (c *Center) view(n models.Notification, actor models.UserSummary) models.NotificationView {
	return models.NotificationView{
		ID:              n.ID,
		TriggeredByUser: actor,
		Type:            n.Type,
		Message:         RenderLocale(c.locale, n.Type, actor.Username),
		Link:            n.Link,
		IsRead:          n.IsRead,
		CreatedAt:       n.CreatedAt,
	}
}

// ListNotifications pages the user's notifications newest first.
func (c *Center) ListNotifications(ctx context.Context, userID uuid.UUID, pageSize int, token string) (cursor.Page[models.NotificationView], error) {
	size := cursor.ClampPageSize(pageSize, cursor.DefaultNotificationPageSize)
	rows, err := c.store.GetNotifications(ctx, userID, cursor.Parse(token), size+1)
	if err != nil {
		return cursor.Page[models.NotificationView]{}, err
	}
	page := cursor.NewPage(rows, size, func(n models.Notification) cursor.Position {
		return cursor.Position{At: n.CreatedAt, ID: n.ID}
	})

	actors := make(map[uuid.UUID]models.UserSummary)
	out := cursor.Page[models.NotificationView]{
		Items:      make([]models.NotificationView, 0, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	for _, n := range page.Items {
		actor, ok := actors[n.TriggeredByUserID]
		if !ok {
			user, err := c.users.GetUser(ctx, n.TriggeredByUserID)
			if err != nil {
				return cursor.Page[models.NotificationView]{}, err
			}
			actor = models.UserSummary{ID: n.TriggeredByUserID}
			if user != nil {
				actor = *user
			}
			actors[n.TriggeredByUserID] = actor
		}
		out.Items = append(out.Items, c.view(n, actor))
	}
	return out, nil
}

func (c *Center) GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return c.store.CountUnread(ctx, userID)
}

// MarkRead marks one notification of userID read. A notification that is
// missing or belongs to someone else is NOT_FOUND; marking an already read
// notification succeeds with changed=false.
func (c *Center) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) (bool, error) {
	n, err := c.store.GetNotification(ctx, notificationID, userID)
	if err != nil {
		return false, err
	}
	if n == nil {
		return false, apperr.NotFound("notification not found")
	}
	if n.IsRead {
		return false, nil
	}
	return c.store.MarkNotificationRead(ctx, notificationID, userID)
}

// MarkAllRead returns how many notifications flipped from unread to read.
func (c *Center) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	return c.store.MarkAllNotificationsRead(ctx, userID)
}

// Delete is a no-op for missing or foreign notifications.
func (c *Center) Delete(ctx context.Context, notificationID, userID uuid.UUID) error {
	return c.store.DeleteNotification(ctx, notificationID, userID)
}
