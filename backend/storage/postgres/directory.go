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

	"github.com/efchatnet/efsocial/backend/models"
)

// Directory reads the users and friendships tables written by the account
// and friendship services.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) GetUser(ctx context.Context, userID uuid.UUID) (*models.UserSummary, error) {
	var (
		user   models.UserSummary
		avatar sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, username, avatar_url FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Username, &avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "get user")
	}
	if avatar.Valid {
		user.AvatarURL = &avatar.String
	}
	return &user, nil
}

func (d *Directory) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)
	`, userID).Scan(&exists)
	return exists, classify(err, "check user")
}

// ListFriendIDs returns the other side of every accepted friendship
func (d *Directory) ListFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END
		FROM friendships
		WHERE (sender_id = $1 OR receiver_id = $1) AND status = 'accepted'
	`, userID)
	if err != nil {
		return nil, classify(err, "list friends")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err, "scan friend")
		}
		ids = append(ids, id)
	}
	return ids, classify(rows.Err(), "list friends")
}

func (d *Directory) AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friendships
			WHERE ((sender_id = $1 AND receiver_id = $2)
			   OR (sender_id = $2 AND receiver_id = $1))
			  AND status = 'accepted'
		)
	`, userA, userB).Scan(&exists)
	return exists, classify(err, "check friendship")
}
