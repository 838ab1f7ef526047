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

package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/cursor"
	"github.com/efchatnet/efsocial/backend/models"
	"github.com/efchatnet/efsocial/backend/storage"
)

const (
	MaxContentLength = 4000

	// pointerTimeout bounds the last-message update, which runs detached
	// from the caller's context once the message is durable.
	pointerTimeout = 5 * time.Second
)

// Messages appends to and pages through conversation history.
type Messages struct {
	directory     *Directory
	store         storage.MessageStore
	conversations storage.ConversationStore
	log           *zap.Logger
	now           func() time.Time
}

func NewMessages(directory *Directory, store storage.MessageStore, conversations storage.ConversationStore, log *zap.Logger) *Messages {
	return &Messages{
		directory:     directory,
		store:         store,
		conversations: conversations,
		log:           log.Named("messages"),
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Append stores a message from senderID and then moves the conversation's
// last-message pointer to it. The pointer never refers to a message that
// is not yet durable.
func (m *Messages) Append(ctx context.Context, conversationID, senderID uuid.UUID, content string, parentMessageID *uuid.UUID) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.InvalidArg("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, apperr.InvalidArg("message content is too long")
	}

	ok, err := m.directory.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("you do not belong to this conversation")
	}

	if parentMessageID != nil {
		parent, err := m.store.GetMessage(ctx, *parentMessageID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, apperr.NotFound("parent message not found")
		}
		if parent.ConversationID != conversationID {
			return nil, apperr.InvalidArg("parent message belongs to another conversation")
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Internal("failed to generate id", err)
	}
	msg := models.Message{
		ID:              id,
		ConversationID:  conversationID,
		SenderID:        senderID,
		Content:         content,
		ParentMessageID: parentMessageID,
		Timestamp:       m.now(),
	}

	if err := storage.Retry(ctx, func() error { return m.store.SaveMessage(ctx, msg) }); err != nil {
		return nil, err
	}

	// The insert is durable; finish the pointer update even if the caller
	// has gone away.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pointerTimeout)
	defer cancel()
	err = storage.Retry(pctx, func() error {
		return m.conversations.UpdateLastMessage(pctx, conversationID, msg.ID, msg.Timestamp)
	})
	if err != nil {
		// The pointer lags until the next successful append.
		m.log.Error("failed to update last message",
			zap.Stringer("conversation_id", conversationID),
			zap.Stringer("message_id", msg.ID),
			zap.Error(err))
	}

	return &msg, nil
}

// GetHistory pages newest first. A malformed cursor starts from the newest
// message.
func (m *Messages) GetHistory(ctx context.Context, conversationID, userID uuid.UUID, pageSize int, token string) (cursor.Page[models.MessageView], error) {
	ok, err := m.directory.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return cursor.Page[models.MessageView]{}, err
	}
	if !ok {
		return cursor.Page[models.MessageView]{}, apperr.Forbidden("you do not belong to this conversation")
	}

	size := cursor.ClampPageSize(pageSize, cursor.DefaultMessagePageSize)
	rows, err := m.store.GetMessages(ctx, conversationID, cursor.Parse(token), size+1)
	if err != nil {
		return cursor.Page[models.MessageView]{}, err
	}

	page := cursor.NewPage(rows, size, func(msg models.Message) cursor.Position {
		return cursor.Position{At: msg.Timestamp, ID: msg.ID}
	})
	return cursor.Map(page, models.Message.View), nil
}

// MarkMessageRead records that userID read the message, reporting whether
// this is the first read.
func (m *Messages) MarkMessageRead(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	msg, err := m.store.GetMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, apperr.NotFound("message not found")
	}

	ok, err := m.directory.IsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, apperr.Forbidden("you do not belong to this conversation")
	}

	return m.store.MarkMessageRead(ctx, models.MessageReadStatus{
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    m.now(),
	})
}
