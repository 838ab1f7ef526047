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

	"github.com/google/uuid"

	"github.com/efchatnet/efsocial/backend/models"
)

// IsParticipant checks if a user is a member of a conversation
func (s *Store) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	return exists, classify(err, "check participant")
}

func (s *Store) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, role, joined_at
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at, user_id
	`, conversationID)
	if err != nil {
		return nil, classify(err, "list participants")
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var (
			p    models.Participant
			role string
		)
		if err := rows.Scan(&p.ConversationID, &p.UserID, &role, &p.JoinedAt); err != nil {
			return nil, classify(err, "scan participant")
		}
		p.Role = models.ParticipantRole(role)
		p.JoinedAt = p.JoinedAt.UTC()
		participants = append(participants, p)
	}
	return participants, classify(rows.Err(), "list participants")
}

func (s *Store) AddParticipant(ctx context.Context, p models.Participant) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`, p.ConversationID, p.UserID, string(p.Role), p.JoinedAt)
	if err != nil {
		return false, classify(err, "add participant")
	}
	n, err := rowsAffected(res, "add participant")
	return n > 0, err
}

func (s *Store) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if err != nil {
		return false, classify(err, "remove participant")
	}
	n, err := rowsAffected(res, "remove participant")
	return n > 0, err
}
