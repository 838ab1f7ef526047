// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/cursor"
	"github.com/efchatnet/efsocial/backend/models"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("efsocial"),
		postgres.WithUsername("efsocial"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("postgres container unavailable, skipping store tests: %v", err)
		return m.Run()
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("failed to terminate container: %v", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Printf("failed to get connection string: %v", err)
		return 1
	}
	testDB, err = sql.Open("postgres", connStr)
	if err != nil {
		log.Printf("failed to open db: %v", err)
		return 1
	}
	defer testDB.Close()

	if err := NewStore(testDB).Migrate(ctx); err != nil {
		log.Printf("failed to migrate: %v", err)
		return 1
	}
	return m.Run()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres container not available")
	}
	t.Cleanup(func() {
		_, err := testDB.ExecContext(context.Background(), `
			TRUNCATE TABLE notifications, message_read_status, messages,
				conversation_participants, direct_conversations, conversations,
				friendships, users CASCADE
		`)
		require.NoError(t, err)
	})
	return NewStore(testDB)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func createDirect(t *testing.T, s *Store, a, b uuid.UUID) models.Conversation {
	t.Helper()
	conv := models.Conversation{ID: uuid.New(), Kind: models.ConversationOneToOne, CreatedAt: now()}
	err := s.CreateConversation(context.Background(), conv, []models.Participant{
		{ConversationID: conv.ID, UserID: a, Role: models.RoleMember, JoinedAt: conv.CreatedAt},
		{ConversationID: conv.ID, UserID: b, Role: models.RoleMember, JoinedAt: conv.CreatedAt},
	})
	require.NoError(t, err)
	return conv
}

func TestCreateConversation_DuplicatePair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	conv := createDirect(t, s, a, b)

	dup := models.Conversation{ID: uuid.New(), Kind: models.ConversationOneToOne, CreatedAt: now()}
	err := s.CreateConversation(ctx, dup, []models.Participant{
		{ConversationID: dup.ID, UserID: b, Role: models.RoleMember, JoinedAt: dup.CreatedAt},
		{ConversationID: dup.ID, UserID: a, Role: models.RoleMember, JoinedAt: dup.CreatedAt},
	})
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyExists))

	found, err := s.FindOneToOne(ctx, b, a)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, conv.ID, found.ID)

	orphan, err := s.GetConversation(ctx, dup.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan, "failed create must roll back")
}

func TestParticipants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	conv := createDirect(t, s, a, b)

	ok, err := s.IsParticipant(ctx, conv.ID, a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsParticipant(ctx, conv.ID, c)
	require.NoError(t, err)
	assert.False(t, ok)

	added, err := s.AddParticipant(ctx, models.Participant{ConversationID: conv.ID, UserID: c, Role: models.RoleMember, JoinedAt: now()})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddParticipant(ctx, models.Participant{ConversationID: conv.ID, UserID: c, Role: models.RoleMember, JoinedAt: now()})
	require.NoError(t, err)
	assert.False(t, added)

	removed, err := s.RemoveParticipant(ctx, conv.ID, c)
	require.NoError(t, err)
	assert.True(t, removed)

	participants, err := s.ListParticipants(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)

	ids, err := s.ListUserConversationIDs(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{conv.ID}, ids)
}

func TestGetMessages_KeysetPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	conv := createDirect(t, s, a, b)

	// Two messages share a timestamp so the id tie-break is exercised.
	base := now()
	stamps := []time.Time{base, base.Add(time.Millisecond), base.Add(time.Millisecond), base.Add(2 * time.Millisecond)}
	for _, ts := range stamps {
		msg := models.Message{ID: uuid.New(), ConversationID: conv.ID, SenderID: a, Content: "hi", Timestamp: ts}
		require.NoError(t, s.SaveMessage(ctx, msg))
		// Replay is a no-op.
		require.NoError(t, s.SaveMessage(ctx, msg))
	}

	var (
		seen  []uuid.UUID
		after *cursor.Position
	)
	for {
		rows, err := s.GetMessages(ctx, conv.ID, after, 2)
		require.NoError(t, err)
		if len(rows) == 0 {
			break
		}
		for _, m := range rows {
			if after != nil {
				assert.True(t, after.Beyond(m.Timestamp, m.ID))
			}
			seen = append(seen, m.ID)
		}
		last := rows[len(rows)-1]
		after = &cursor.Position{At: last.Timestamp, ID: last.ID}
	}
	assert.Len(t, seen, len(stamps))

	set := map[uuid.UUID]struct{}{}
	for _, id := range seen {
		set[id] = struct{}{}
	}
	assert.Len(t, set, len(stamps), "no message appears twice")
}

func TestUpdateLastMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	conv := createDirect(t, s, a, b)

	msg := models.Message{ID: uuid.New(), ConversationID: conv.ID, SenderID: a, Content: "hello", Timestamp: now()}
	require.NoError(t, s.SaveMessage(ctx, msg))
	require.NoError(t, s.UpdateLastMessage(ctx, conv.ID, msg.ID, msg.Timestamp))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, msg.ID, *got.LastMessageID)
	assert.True(t, msg.Timestamp.Equal(*got.LastMessageAt))

	read, err := s.MarkMessageRead(ctx, models.MessageReadStatus{MessageID: msg.ID, UserID: b, ReadAt: now()})
	require.NoError(t, err)
	assert.True(t, read)
	read, err = s.MarkMessageRead(ctx, models.MessageReadStatus{MessageID: msg.ID, UserID: b, ReadAt: now()})
	require.NoError(t, err)
	assert.False(t, read)
}

func TestNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	recipient, actor := uuid.New(), uuid.New()

	n := models.Notification{
		ID:                uuid.New(),
		RecipientUserID:   recipient,
		TriggeredByUserID: actor,
		Type:              models.NotificationNewLikeOnPost,
		Link:              "/posts/" + uuid.NewString(),
		CreatedAt:         now(),
	}
	created, err := s.SaveNotification(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.SaveNotification(ctx, n)
	require.NoError(t, err)
	assert.False(t, created)

	count, err := s.CountUnread(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	other, err := s.GetNotification(ctx, n.ID, actor)
	require.NoError(t, err)
	assert.Nil(t, other)

	changed, err := s.MarkNotificationRead(ctx, n.ID, recipient)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.MarkNotificationRead(ctx, n.ID, recipient)
	require.NoError(t, err)
	assert.False(t, changed)

	count, err = s.CountUnread(ctx, recipient)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.DeleteNotification(ctx, n.ID, recipient))
	rows, err := s.GetNotifications(ctx, recipient, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDirectory(t *testing.T) {
	newTestStore(t)
	ctx := context.Background()
	d := NewDirectory(testDB)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	_, err := testDB.ExecContext(ctx, `
		INSERT INTO users (id, username) VALUES ($1, 'alice'), ($2, 'bob'), ($3, 'carol')
	`, alice, bob, carol)
	require.NoError(t, err)
	_, err = testDB.ExecContext(ctx, `
		INSERT INTO friendships (sender_id, receiver_id, status)
		VALUES ($1, $2, 'accepted'), ($3, $1, 'pending')
	`, alice, bob, carol)
	require.NoError(t, err)

	user, err := d.GetUser(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
	assert.Nil(t, user.AvatarURL)

	missing, err := d.GetUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	friends, err := d.ListFriendIDs(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice}, friends)

	ok, err := d.AreFriends(ctx, bob, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.AreFriends(ctx, alice, carol)
	require.NoError(t, err)
	assert.False(t, ok)
}
