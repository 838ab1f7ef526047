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

func (s *Store) SaveMessage(ctx context.Context, msg models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, parent_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, nullUUID(msg.ParentMessageID), msg.Timestamp)
	return classify(err, "insert message")
}

func (s *Store) GetMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, content, parent_message_id, created_at
		FROM messages
		WHERE id = $1
	`, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "get message")
	}
	return msg, nil
}

// GetMessages pages newest first. The row comparison (created_at, id) < ($2, $3)
// is the strict keyset predicate and uses idx_messages_history.
func (s *Store) GetMessages(ctx context.Context, conversationID uuid.UUID, after *cursor.Position, limit int) ([]models.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, conversation_id, sender_id, content, parent_message_id, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, conversationID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, conversation_id, sender_id, content, parent_message_id, created_at
			FROM messages
			WHERE conversation_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, conversationID, after.At, after.ID, limit)
	}
	if err != nil {
		return nil, classify(err, "get messages")
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, classify(err, "scan message")
		}
		messages = append(messages, *msg)
	}
	return messages, classify(rows.Err(), "get messages")
}

func (s *Store) MarkMessageRead(ctx context.Context, status models.MessageReadStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO message_read_status (message_id, user_id, read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, status.MessageID, status.UserID, status.ReadAt)
	if err != nil {
		return false, classify(err, "mark message read")
	}
	n, err := rowsAffected(res, "mark message read")
	return n > 0, err
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		msg    models.Message
		parent uuid.NullUUID
	)
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &parent, &msg.Timestamp)
	if err != nil {
		return nil, err
	}
	msg.Timestamp = msg.Timestamp.UTC()
	if parent.Valid {
		msg.ParentMessageID = &parent.UUID
	}
	return &msg, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
