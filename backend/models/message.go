// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is immutable once stored. History is totally ordered by
// (Timestamp, ID).
type Message struct {
	ID              uuid.UUID  `db:"id"`
	ConversationID  uuid.UUID  `db:"conversation_id"`
	SenderID        uuid.UUID  `db:"sender_id"`
	Content         string     `db:"content"`
	ParentMessageID *uuid.UUID `db:"parent_message_id"`
	Timestamp       time.Time  `db:"created_at"`
}

// MessageView is the payload shared by the history endpoint and the
// ReceiveMessage realtime event.
type MessageView struct {
	ID              uuid.UUID  `json:"id"`
	Content         string     `json:"content"`
	Timestamp       time.Time  `json:"timestamp"`
	SenderID        uuid.UUID  `json:"senderId"`
	ConversationID  uuid.UUID  `json:"conversationId"`
	ParentMessageID *uuid.UUID `json:"parentMessageId"`
}

func (m Message) View() MessageView {
	return MessageView{
		ID:              m.ID,
		Content:         m.Content,
		Timestamp:       m.Timestamp,
		SenderID:        m.SenderID,
		ConversationID:  m.ConversationID,
		ParentMessageID: m.ParentMessageID,
	}
}

type MessageReadStatus struct {
	MessageID uuid.UUID `json:"messageId" db:"message_id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	ReadAt    time.Time `json:"readAt" db:"read_at"`
}
