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

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/models"
	"github.com/efchatnet/efsocial/backend/storage"
)

// Shown when a conversation has neither a name nor any message.
const conversationPlaceholder = "Conversation"

// Directory owns conversations and their membership.
type Directory struct {
	conversations storage.ConversationStore
	messages      storage.MessageStore
	users         storage.UserDirectory
	log           *zap.Logger
	now           func() time.Time
}

func NewDirectory(conversations storage.ConversationStore, messages storage.MessageStore, users storage.UserDirectory, log *zap.Logger) *Directory {
	return &Directory{
		conversations: conversations,
		messages:      messages,
		users:         users,
		log:           log.Named("conversations"),
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// FindByParticipants returns the one-to-one conversation of the pair, in
// either order, or nil.
func (d *Directory) FindByParticipants(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	return d.conversations.FindOneToOne(ctx, userA, userB)
}

// CreateConversation creates a conversation between creator and recipient.
// A second one-to-one conversation for the same pair fails with
// ALREADY_EXISTS, also when two creates race.
func (d *Directory) CreateConversation(ctx context.Context, creatorID, recipientID uuid.UUID, kind models.ConversationKind, name *string) (*models.Conversation, error) {
	if kind == "" {
		kind = models.ConversationOneToOne
	}
	if !kind.Valid() {
		return nil, apperr.InvalidArg("invalid conversation type")
	}
	if creatorID == recipientID {
		return nil, apperr.InvalidArg("cannot start a conversation with yourself")
	}

	recipient, err := d.users.GetUser(ctx, recipientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up recipient")
	}
	if recipient == nil {
		return nil, apperr.NotFound("recipient not found")
	}

	if kind == models.ConversationOneToOne {
		existing, err := d.FindByParticipants(ctx, creatorID, recipientID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to look up conversation")
		}
		if existing != nil {
			return nil, apperr.AlreadyExists("conversation already exists")
		}
	}

	if name == nil || strings.TrimSpace(*name) == "" {
		name = &recipient.Username
	} else {
		trimmed := strings.TrimSpace(*name)
		name = &trimmed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Internal("failed to generate id", err)
	}
	now := d.now()
	conv := models.Conversation{ID: id, Name: name, Kind: kind, CreatedAt: now}
	participants := []models.Participant{
		{ConversationID: id, UserID: creatorID, Role: models.RoleMember, JoinedAt: now},
		{ConversationID: id, UserID: recipientID, Role: models.RoleMember, JoinedAt: now},
	}
	if err := d.conversations.CreateConversation(ctx, conv, participants); err != nil {
		return nil, err
	}

	d.log.Debug("conversation created",
		zap.Stringer("conversation_id", id),
		zap.String("type", string(kind)),
		zap.Stringer("creator_id", creatorID))
	return &conv, nil
}

func (d *Directory) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	return d.conversations.IsParticipant(ctx, conversationID, userID)
}

// ListUserConversations returns the user's conversations, most recently
// active first.
func (d *Directory) ListUserConversations(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	convs, err := d.conversations.ListUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := models.ConversationSummary{ID: c.ID, Kind: c.Kind}

		var last *models.Message
		if c.LastMessageID != nil {
			last, err = d.messages.GetMessage(ctx, *c.LastMessageID)
			if err != nil {
				return nil, err
			}
		}
		if last != nil {
			view := last.View()
			summary.LastMessage = &view
		}

		summary.DisplayName, err = d.displayName(ctx, c, last)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// displayName is the explicit name, else the last sender's username, else
// the placeholder.
func (d *Directory) displayName(ctx context.Context, c models.Conversation, last *models.Message) (string, error) {
	if c.Name != nil && *c.Name != "" {
		return *c.Name, nil
	}
	if last != nil {
		sender, err := d.users.GetUser(ctx, last.SenderID)
		if err != nil {
			return "", err
		}
		if sender != nil {
			return sender.Username, nil
		}
	}
	return conversationPlaceholder, nil
}

func (d *Directory) ListUserConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return d.conversations.ListUserConversationIDs(ctx, userID)
}

// AddParticipant adds userID to a group conversation on behalf of actorID,
// reporting false when the user was already a member.
func (d *Directory) AddParticipant(ctx context.Context, conversationID, actorID, userID uuid.UUID) (bool, error) {
	conv, err := d.memberConversation(ctx, conversationID, actorID)
	if err != nil {
		return false, err
	}
	if conv.Kind != models.ConversationGroup {
		return false, apperr.InvalidArg("participants can only be added to group conversations")
	}

	exists, err := d.users.UserExists(ctx, userID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, apperr.NotFound("user not found")
	}

	return d.conversations.AddParticipant(ctx, models.Participant{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           models.RoleMember,
		JoinedAt:       d.now(),
	})
}

// LeaveConversation removes userID from a group conversation.
func (d *Directory) LeaveConversation(ctx context.Context, conversationID, userID uuid.UUID) error {
	conv, err := d.memberConversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if conv.Kind != models.ConversationGroup {
		return apperr.InvalidArg("cannot leave a one-to-one conversation")
	}
	_, err = d.conversations.RemoveParticipant(ctx, conversationID, userID)
	return err
}

func (d *Directory) ListParticipants(ctx context.Context, conversationID, callerID uuid.UUID) ([]models.ParticipantView, error) {
	if _, err := d.memberConversation(ctx, conversationID, callerID); err != nil {
		return nil, err
	}

	participants, err := d.conversations.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	views := make([]models.ParticipantView, 0, len(participants))
	for _, p := range participants {
		view := models.ParticipantView{UserID: p.UserID, Role: p.Role, JoinedAt: p.JoinedAt}
		user, err := d.users.GetUser(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			view.Username = user.Username
			view.AvatarURL = user.AvatarURL
		}
		views = append(views, view)
	}
	return views, nil
}

// memberConversation loads the conversation and checks userID belongs to it.
func (d *Directory) memberConversation(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, error) {
	conv, err := d.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}
	ok, err := d.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbidden("you do not belong to this conversation")
	}
	return conv, nil
}
