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
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/cursor"
	"github.com/efchatnet/efsocial/backend/models"
	"github.com/efchatnet/efsocial/backend/realtime"
)

const pushTimeout = 3 * time.Second

// Publisher is the realtime side of the chat service.
type Publisher interface {
	Push(ctx context.Context, channel, event string, payload any) error
	SubscribeUser(ctx context.Context, userID uuid.UUID, channel string) error
	UnsubscribeUser(ctx context.Context, userID uuid.UUID, channel string) error
}

// Service runs chat operations and pushes their results to live
// connections once the durable write has succeeded. Push failures are
// logged and never fail the operation.
type Service struct {
	directory *Directory
	messages  *Messages
	pub       Publisher
	log       *zap.Logger
}

func NewService(directory *Directory, messages *Messages, pub Publisher, log *zap.Logger) *Service {
	return &Service{directory: directory, messages: messages, pub: pub, log: log.Named("chat")}
}

// StartConversation creates a conversation, or returns the existing
// one-to-one conversation of the pair with created=false.
func (s *Service) StartConversation(ctx context.Context, creatorID, recipientID uuid.UUID, kind models.ConversationKind, name *string) (*models.Conversation, bool, error) {
	conv, err := s.directory.CreateConversation(ctx, creatorID, recipientID, kind, name)
	if apperr.Is(err, apperr.CodeAlreadyExists) {
		existing, ferr := s.directory.FindByParticipants(ctx, creatorID, recipientID)
		if ferr != nil {
			return nil, false, ferr
		}
		if existing == nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	channel := realtime.ConversationChannel(conv.ID)
	s.subscribe(ctx, creatorID, channel)
	s.subscribe(ctx, recipientID, channel)
	return conv, true, nil
}

func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	return s.directory.ListUserConversations(ctx, userID)
}

// SendMessage appends the message and pushes ReceiveMessage to the
// conversation channel.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string, parentMessageID *uuid.UUID) (*models.MessageView, error) {
	msg, err := s.messages.Append(ctx, conversationID, senderID, content, parentMessageID)
	if err != nil {
		return nil, err
	}
	view := msg.View()
	s.push(ctx, realtime.ConversationChannel(conversationID), realtime.EventReceiveMessage, view)
	return &view, nil
}

func (s *Service) GetHistory(ctx context.Context, conversationID, userID uuid.UUID, pageSize int, token string) (cursor.Page[models.MessageView], error) {
	return s.messages.GetHistory(ctx, conversationID, userID, pageSize, token)
}

func (s *Service) MarkMessageRead(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	return s.messages.MarkMessageRead(ctx, messageID, userID)
}

func (s *Service) ListParticipants(ctx context.Context, conversationID, callerID uuid.UUID) ([]models.ParticipantView, error) {
	return s.directory.ListParticipants(ctx, conversationID, callerID)
}

// AddParticipant adds userID to a group and joins their live connections
// to the conversation channel.
func (s *Service) AddParticipant(ctx context.Context, conversationID, actorID, userID uuid.UUID) (bool, error) {
	added, err := s.directory.AddParticipant(ctx, conversationID, actorID, userID)
	if err != nil {
		return false, err
	}
	if added {
		s.subscribe(ctx, userID, realtime.ConversationChannel(conversationID))
	}
	return added, nil
}

func (s *Service) LeaveConversation(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := s.directory.LeaveConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	pctx, cancel := detached(ctx)
	defer cancel()
	if err := s.pub.UnsubscribeUser(pctx, userID, realtime.ConversationChannel(conversationID)); err != nil {
		s.log.Warn("failed to unsubscribe user", zap.Stringer("user_id", userID), zap.Error(err))
	}
	return nil
}

func (s *Service) push(ctx context.Context, channel, event string, payload any) {
	pctx, cancel := detached(ctx)
	defer cancel()
	if err := s.pub.Push(pctx, channel, event, payload); err != nil {
		s.log.Warn("realtime push failed", zap.String("channel", channel), zap.String("event", event), zap.Error(err))
	}
}

func (s *Service) subscribe(ctx context.Context, userID uuid.UUID, channel string) {
	pctx, cancel := detached(ctx)
	defer cancel()
	if err := s.pub.SubscribeUser(pctx, userID, channel); err != nil {
		s.log.Warn("failed to subscribe user", zap.Stringer("user_id", userID), zap.String("channel", channel), zap.Error(err))
	}
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
}
