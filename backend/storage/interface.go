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

package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/efsocial/backend/cursor"
	"github.com/efchatnet/efsocial/backend/models"
)

// Lookups that find nothing return (nil, nil); callers must handle the
// not-found case explicitly.

type ConversationStore interface {
	// CreateConversation inserts the conversation and its participants
	// atomically. For one-to-one conversations the unordered pair of the
	// two participants must be unique; a duplicate reports ALREADY_EXISTS.
	CreateConversation(ctx context.Context, conv models.Conversation, participants []models.Participant) error
	FindOneToOne(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error)
	ListUserConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	ListUserConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	UpdateLastMessage(ctx context.Context, conversationID, messageID uuid.UUID, at time.Time) error

	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error)
	AddParticipant(ctx context.Context, p models.Participant) (bool, error)
	RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

type MessageStore interface {
	// SaveMessage is idempotent on the message id so a retried insert never
	// duplicates a row.
	SaveMessage(ctx context.Context, msg models.Message) error
	GetMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
	// GetMessages returns up to limit messages newest first, strictly
	// beyond after when it is set.
	GetMessages(ctx context.Context, conversationID uuid.UUID, after *cursor.Position, limit int) ([]models.Message, error)
	MarkMessageRead(ctx context.Context, status models.MessageReadStatus) (bool, error)
}

type NotificationStore interface {
	// SaveNotification reports false when a notification with the same id
	// already exists.
	SaveNotification(ctx context.Context, n models.Notification) (bool, error)
	GetNotification(ctx context.Context, notificationID, recipientID uuid.UUID) (*models.Notification, error)
	GetNotifications(ctx context.Context, recipientID uuid.UUID, after *cursor.Position, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkNotificationRead(ctx context.Context, notificationID, recipientID uuid.UUID) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID) (int, error)
	DeleteNotification(ctx context.Context, notificationID, recipientID uuid.UUID) error
}

// UserDirectory is the account service's read capability.
type UserDirectory interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*models.UserSummary, error)
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
}

type FriendshipDirectory interface {
	ListFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error)
}

type Store interface {
	ConversationStore
	MessageStore
	NotificationStore
}
