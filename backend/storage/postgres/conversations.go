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

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/models"
)

const conversationColumns = `c.id, c.name, c.kind, c.created_at, c.last_message_id, c.last_message_at`

// CreateConversation creates the conversation, its direct pair entry and
// its participants in one transaction
func (s *Store) CreateConversation(ctx context.Context, conv models.Conversation, participants []models.Participant) error {
	if conv.Kind == models.ConversationOneToOne && len(participants) != 2 {
		return apperr.InvalidArg("one-to-one conversation needs exactly two participants")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, name, kind, created_at)
			VALUES ($1, $2, $3, $4)
		`, conv.ID, conv.Name, string(conv.Kind), conv.CreatedAt)
		if err != nil {
			return classify(err, "insert conversation")
		}

		if conv.Kind == models.ConversationOneToOne {
			// Ensure users are ordered consistently for unique constraint
			user1, user2 := orderPair(participants[0].UserID, participants[1].UserID)
			_, err = tx.ExecContext(ctx, `
				INSERT INTO direct_conversations (conversation_id, user1_id, user2_id)
				VALUES ($1, $2, $3)
			`, conv.ID, user1, user2)
			if isUniqueViolation(err, directPairUnique) {
				return apperr.Wrap(apperr.CodeAlreadyExists, "conversation already exists", err)
			}
			if err != nil {
				return classify(err, "insert direct conversation")
			}
		}

		for _, p := range participants {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO conversation_participants (conversation_id, user_id, role, joined_at)
				VALUES ($1, $2, $3, $4)
			`, conv.ID, p.UserID, string(p.Role), p.JoinedAt)
			if err != nil {
				return classify(err, "insert participant")
			}
		}
		return nil
	})
}

// FindOneToOne finds the one-to-one conversation between two users in either order
func (s *Store) FindOneToOne(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	user1, user2 := orderPair(userA, userB)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM direct_conversations d
		JOIN conversations c ON c.id = d.conversation_id
		WHERE d.user1_id = $1 AND d.user2_id = $2
	`, user1, user2)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "find one-to-one conversation")
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.id = $1
	`, conversationID)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "get conversation")
	}
	return conv, nil
}

// ListUserConversations gets all conversations of a user, most recently active first
func (s *Store) ListUserConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversation_participants p
		JOIN conversations c ON c.id = p.conversation_id
		WHERE p.user_id = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
	`, userID)
	if err != nil {
		return nil, classify(err, "list user conversations")
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, classify(err, "scan conversation")
		}
		convs = append(convs, *conv)
	}
	return convs, classify(rows.Err(), "list user conversations")
}

func (s *Store) ListUserConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id FROM conversation_participants
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, classify(err, "list user conversation ids")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err, "scan conversation id")
		}
		ids = append(ids, id)
	}
	return ids, classify(rows.Err(), "list user conversation ids")
}

// UpdateLastMessage moves the last message pointer. Concurrent appends race
// here and the last commit wins.
func (s *Store) UpdateLastMessage(ctx context.Context, conversationID, messageID uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = $2, last_message_at = $3
		WHERE id = $1
	`, conversationID, messageID, at)
	return classify(err, "update last message")
}

func scanConversation(row scanner) (*models.Conversation, error) {
	var (
		conv          models.Conversation
		kind          string
		name          sql.NullString
		lastMessageID uuid.NullUUID
		lastMessageAt sql.NullTime
	)
	err := row.Scan(&conv.ID, &name, &kind, &conv.CreatedAt, &lastMessageID, &lastMessageAt)
	if err != nil {
		return nil, err
	}

	conv.Kind = models.ConversationKind(kind)
	conv.CreatedAt = conv.CreatedAt.UTC()
	if name.Valid {
		conv.Name = &name.String
	}
	if lastMessageID.Valid {
		conv.LastMessageID = &lastMessageID.UUID
	}
	if lastMessageAt.Valid {
		at := lastMessageAt.Time.UTC()
		conv.LastMessageAt = &at
	}
	return &conv, nil
}

func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}
