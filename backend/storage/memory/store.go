// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package memory holds in-process implementations of the storage ports.
// They back the service and handler tests and a single-node dev setup.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/cursor"
	"github.com/efchatnet/efsocial/backend/models"
)

type pair struct {
	a, b uuid.UUID
}

func orderedPair(x, y uuid.UUID) pair {
	if cursor.CompareIDs(x, y) > 0 {
		x, y = y, x
	}
	return pair{a: x, b: y}
}

type readKey struct {
	messageID, userID uuid.UUID
}

type Store struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]models.Conversation
	direct        map[pair]uuid.UUID
	participants  map[uuid.UUID]map[uuid.UUID]models.Participant
	messages      map[uuid.UUID]models.Message
	reads         map[readKey]models.MessageReadStatus
	notifications map[uuid.UUID]models.Notification
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[uuid.UUID]models.Conversation),
		direct:        make(map[pair]uuid.UUID),
		participants:  make(map[uuid.UUID]map[uuid.UUID]models.Participant),
		messages:      make(map[uuid.UUID]models.Message),
		reads:         make(map[readKey]models.MessageReadStatus),
		notifications: make(map[uuid.UUID]models.Notification),
	}
}

func (s *Store) CreateConversation(ctx context.Context, conv models.Conversation, participants []models.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if conv.Kind == models.ConversationOneToOne && len(participants) != 2 {
		return apperr.InvalidArg("one-to-one conversation needs exactly two participants")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; ok {
		return apperr.AlreadyExists("conversation already exists")
	}
	if conv.Kind == models.ConversationOneToOne {
		key := orderedPair(participants[0].UserID, participants[1].UserID)
		if _, ok := s.direct[key]; ok {
			return apperr.AlreadyExists("conversation already exists")
		}
		s.direct[key] = conv.ID
	}

	s.conversations[conv.ID] = conv
	members := make(map[uuid.UUID]models.Participant, len(participants))
	for _, p := range participants {
		members[p.UserID] = p
	}
	s.participants[conv.ID] = members
	return nil
}

func (s *Store) FindOneToOne(ctx context.Context, userA, userB uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.direct[orderedPair(userA, userB)]
	if !ok {
		return nil, nil
	}
	conv := s.conversations[id]
	return &conv, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

func (s *Store) ListUserConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Conversation
	for id, members := range s.participants {
		if _, ok := members[userID]; ok {
			out = append(out, s.conversations[id])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := activity(out[i]), activity(out[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return cursor.CompareIDs(out[i].ID, out[j].ID) > 0
	})
	return out, nil
}

func activity(c models.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func (s *Store) ListUserConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	convs, err := s.ListUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (s *Store) UpdateLastMessage(ctx context.Context, conversationID, messageID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	conv.LastMessageID = &messageID
	conv.LastMessageAt = &at
	s.conversations[conversationID] = conv
	return nil
}

func (s *Store) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.participants[conversationID][userID]
	return ok, nil
}

func (s *Store) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Participant, 0, len(s.participants[conversationID]))
	for _, p := range s.participants[conversationID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return cursor.CompareIDs(out[i].UserID, out[j].UserID) < 0
	})
	return out, nil
}

func (s *Store) AddParticipant(ctx context.Context, p models.Participant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.participants[p.ConversationID]
	if !ok {
		return false, apperr.NotFound("conversation not found")
	}
	if _, exists := members[p.UserID]; exists {
		return false, nil
	}
	members[p.UserID] = p
	return true, nil
}

func (s *Store) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.participants[conversationID]
	if _, ok := members[userID]; !ok {
		return false, nil
	}
	delete(members, userID)
	return true, nil
}

func (s *Store) SaveMessage(ctx context.Context, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; ok {
		return nil
	}
	s.messages[msg.ID] = msg
	return nil
}

func (s *Store) GetMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

func (s *Store) GetMessages(ctx context.Context, conversationID uuid.UUID, after *cursor.Position, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.Message
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if after != nil && !after.Beyond(m.Timestamp, m.ID) {
			continue
		}
		rows = append(rows, m)
	}
	sortNewestFirst(rows, func(m models.Message) cursor.Position {
		return cursor.Position{At: m.Timestamp, ID: m.ID}
	})
	return truncate(rows, limit), nil
}

func (s *Store) MarkMessageRead(ctx context.Context, status models.MessageReadStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := readKey{messageID: status.MessageID, userID: status.UserID}
	if _, ok := s.reads[key]; ok {
		return false, nil
	}
	s.reads[key] = status
	return true, nil
}

func (s *Store) SaveNotification(ctx context.Context, n models.Notification) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[n.ID]; ok {
		return false, nil
	}
	s.notifications[n.ID] = n
	return true, nil
}

func (s *Store) GetNotification(ctx context.Context, notificationID, recipientID uuid.UUID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[notificationID]
	if !ok || n.RecipientUserID != recipientID {
		return nil, nil
	}
	return &n, nil
}

func (s *Store) GetNotifications(ctx context.Context, recipientID uuid.UUID, after *cursor.Position, limit int) ([]models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.Notification
	for _, n := range s.notifications {
		if n.RecipientUserID != recipientID {
			continue
		}
		if after != nil && !after.Beyond(n.CreatedAt, n.ID) {
			continue
		}
		rows = append(rows, n)
	}
	sortNewestFirst(rows, func(n models.Notification) cursor.Position {
		return cursor.Position{At: n.CreatedAt, ID: n.ID}
	})
	return truncate(rows, limit), nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.RecipientUserID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, notificationID, recipientID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[notificationID]
	if !ok || n.RecipientUserID != recipientID || n.IsRead {
		return false, nil
	}
	n.IsRead = true
	s.notifications[notificationID] = n
	return true, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	for id, n := range s.notifications {
		if n.RecipientUserID == recipientID && !n.IsRead {
			n.IsRead = true
			s.notifications[id] = n
			flipped++
		}
	}
	return flipped, nil
}

func (s *Store) DeleteNotification(ctx context.Context, notificationID, recipientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.notifications[notificationID]; ok && n.RecipientUserID == recipientID {
		delete(s.notifications, notificationID)
	}
	return nil
}

// sortNewestFirst orders rows by (timestamp DESC, id DESC).
func sortNewestFirst[T any](rows []T, key func(T) cursor.Position) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := key(rows[i]), key(rows[j])
		return a.Beyond(b.At, b.ID)
	})
}

func truncate[T any](rows []T, limit int) []T {
	if limit >= 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
