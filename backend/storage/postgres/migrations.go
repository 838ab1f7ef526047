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

import "context"

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		// Users and friendships are written by the account service; created
		// here so a standalone deployment has something to read.
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			avatar_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS friendships (
			sender_id UUID NOT NULL,
			receiver_id UUID NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ,
			PRIMARY KEY (sender_id, receiver_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_friendships_receiver
		ON friendships(receiver_id, status)`,

		// Conversations table
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			name VARCHAR(255),
			kind VARCHAR(20) NOT NULL CHECK (kind IN ('one_to_one', 'group')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_message_id UUID,
			last_message_at TIMESTAMPTZ
		)`,

		// One-to-one pairs (exactly 2 members, one conversation per pair)
		`CREATE TABLE IF NOT EXISTS direct_conversations (
			conversation_id UUID PRIMARY KEY,
			user1_id UUID NOT NULL,
			user2_id UUID NOT NULL,
			CONSTRAINT unique_direct_pair UNIQUE (user1_id, user2_id),
			CONSTRAINT ordered_users CHECK (user1_id < user2_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id UUID NOT NULL,
			user_id UUID NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'admin')),
			joined_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,

		// Index for finding a user's conversations
		`CREATE INDEX IF NOT EXISTS idx_participants_user
		ON conversation_participants(user_id, conversation_id)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL,
			sender_id UUID NOT NULL,
			content TEXT NOT NULL,
			parent_message_id UUID,
			created_at TIMESTAMPTZ NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			FOREIGN KEY (parent_message_id) REFERENCES messages(id)
		)`,

		// Keyset index for history pagination
		`CREATE INDEX IF NOT EXISTS idx_messages_history
		ON messages(conversation_id, created_at DESC, id DESC)`,

		`CREATE TABLE IF NOT EXISTS message_read_status (
			message_id UUID NOT NULL,
			user_id UUID NOT NULL,
			read_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			recipient_user_id UUID NOT NULL,
			triggered_by_user_id UUID NOT NULL,
			type VARCHAR(40) NOT NULL,
			link TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT no_self_notification CHECK (recipient_user_id <> triggered_by_user_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient
		ON notifications(recipient_user_id, created_at DESC, id DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_notifications_unread
		ON notifications(recipient_user_id)
		WHERE is_read = FALSE`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return classify(err, "run migration")
		}
	}

	return nil
}
