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

package models

import (
	"time"

	"github.com/google/uuid"
)

type ConversationKind string

const (
	ConversationOneToOne ConversationKind = "one_to_one"
	ConversationGroup    ConversationKind = "group"
)

func (k ConversationKind) Valid() bool {
	return k == ConversationOneToOne || k == ConversationGroup
}

type ParticipantRole string

const (
	RoleMember ParticipantRole = "member"
	RoleAdmin  ParticipantRole = "admin"
)

// Conversation is owned by the conversation directory; only a successful
// message append moves LastMessageID/LastMessageAt.
type Conversation struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	Name          *string          `json:"name,omitempty" db:"name"`
	Kind          ConversationKind `json:"type" db:"kind"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
	LastMessageID *uuid.UUID       `json:"lastMessageId,omitempty" db:"last_message_id"`
	LastMessageAt *time.Time       `json:"lastMessageAt,omitempty" db:"last_message_at"`
}

type Participant struct {
	ConversationID uuid.UUID       `json:"conversationId" db:"conversation_id"`
	UserID         uuid.UUID       `json:"userId" db:"user_id"`
	Role           ParticipantRole `json:"role" db:"role"`
	JoinedAt       time.Time       `json:"joinedAt" db:"joined_at"`
}

// ConversationSummary is the flat read model of a user's conversation list.
type ConversationSummary struct {
	ID          uuid.UUID        `json:"id"`
	DisplayName string           `json:"displayName"`
	Kind        ConversationKind `json:"type"`
	LastMessage *MessageView     `json:"lastMessage"`
}

// ParticipantView is a participant joined with the member's public profile.
type ParticipantView struct {
	UserID    uuid.UUID       `json:"userId"`
	Username  string          `json:"username"`
	AvatarURL *string         `json:"avatarUrl"`
	Role      ParticipantRole `json:"role"`
	JoinedAt  time.Time       `json:"joinedAt"`
}
