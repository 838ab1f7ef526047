// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/efchatnet/efsocial/backend/cursor"
	"github.com/efchatnet/efsocial/backend/models"
)

const notificationColumns = `id, recipient_user_id, triggered_by_user_id, type, link, is_read, created_at`

func (s *Store) SaveNotification(ctx context.Context, n models.Notification) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.RecipientUserID, n.TriggeredByUserID, string(n.Type), n.Link, n.IsRead, n.CreatedAt)
	if err != nil {
		return false, classify(err, "insert notification")
	}
	inserted, err := rowsAffected(res, "insert notification")
	return inserted > 0, err
}

func (s *Store) GetNotification(ctx context.Context, notificationID, recipientID uuid.UUID) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1 AND recipient_user_id = $2
	`, notificationID, recipientID)

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "get notification")
	}
	return n, nil
}

func (s *Store) GetNotifications(ctx context.Context, recipientID uuid.UUID, after *cursor.Position, limit int) ([]models.Notification, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+notificationColumns+`
			FROM notifications
			WHERE recipient_user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, recipientID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+notificationColumns+`
			FROM notifications
			WHERE recipient_user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, recipientID, after.At, after.ID, limit)
	}
	if err != nil {
		return nil, classify(err, "get notifications")
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, classify(err, "scan notification")
		}
		notifications = append(notifications, *n)
	}
	return notifications, classify(rows.Err(), "get notifications")
}

func (s *Store) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_user_id = $1 AND is_read = false
	`, recipientID).Scan(&count)
	return count, classify(err, "count unread notifications")
}

func (s *Store) MarkNotificationRead(ctx context.Context, notificationID, recipientID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = true
		WHERE id = $1 AND recipient_user_id = $2 AND is_read = false
	`, notificationID, recipientID)
	if err != nil {
		return false, classify(err, "mark notification read")
	}
	n, err := rowsAffected(res, "mark notification read")
	return n > 0, err
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = true
		WHERE recipient_user_id = $1 AND is_read = false
	`, recipientID)
	if err != nil {
		return 0, classify(err, "mark all notifications read")
	}
	return rowsAffected(res, "mark all notifications read")
}

func (s *Store) DeleteNotification(ctx context.Context, notificationID, recipientID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE id = $1 AND recipient_user_id = $2
	`, notificationID, recipientID)
	return classify(err, "delete notification")
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		n   models.Notification
		typ string
	)
	err := row.Scan(&n.ID, &n.RecipientUserID, &n.TriggeredByUserID, &typ, &n.Link, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(typ)
	n.CreatedAt = n.CreatedAt.UTC()
	return &n, nil
}
