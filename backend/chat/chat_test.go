// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/cursor"
	"github.com/efchatnet/efsocial/backend/models"
	"github.com/efchatnet/efsocial/backend/realtime"
	"github.com/efchatnet/efsocial/backend/storage"
	"github.com/efchatnet/efsocial/backend/storage/memory"
)

type pushed struct {
	channel string
	event   string
	payload any
}

type recordingPublisher struct {
	mu         sync.Mutex
	pushes     []pushed
	subscribed map[uuid.UUID][]string
	err        error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{subscribed: make(map[uuid.UUID][]string)}
}

func (p *recordingPublisher) Push(ctx context.Context, channel, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pushes = append(p.pushes, pushed{channel: channel, event: event, payload: payload})
	return nil
}

func (p *recordingPublisher) SubscribeUser(ctx context.Context, userID uuid.UUID, channel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribed[userID] = append(p.subscribed[userID], channel)
	return nil
}

func (p *recordingPublisher) UnsubscribeUser(ctx context.Context, userID uuid.UUID, channel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.subscribed[userID][:0]
	for _, ch := range p.subscribed[userID] {
		if ch != channel {
			kept = append(kept, ch)
		}
	}
	p.subscribed[userID] = kept
	return nil
}

type fixture struct {
	store    *memory.Store
	dir      *memory.Directory
	pub      *recordingPublisher
	convs    *Directory
	messages *Messages
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	return newFixtureWith(t, store, store)
}

type messageBackend interface {
	storage.MessageStore
	storage.ConversationStore
}

// newFixtureWith lets a test wrap the store used for appends.
func newFixtureWith(t *testing.T, store *memory.Store, messageStore messageBackend) *fixture {
	t.Helper()
	dir := memory.NewDirectory()
	pub := newRecordingPublisher()
	log := zap.NewNop()

	convs := NewDirectory(store, store, dir, log)
	messages := NewMessages(convs, messageStore, messageStore, log)
	return &fixture{
		store:    store,
		dir:      dir,
		pub:      pub,
		convs:    convs,
		messages: messages,
		svc:      NewService(convs, messages, pub, log),
	}
}

func (f *fixture) oneToOne(t *testing.T, a, b uuid.UUID) *models.Conversation {
	t.Helper()
	conv, created, err := f.svc.StartConversation(context.Background(), a, b, models.ConversationOneToOne, nil)
	require.NoError(t, err)
	require.True(t, created)
	return conv
}

func TestEndToEndConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.dir.AddUser("alice"), f.dir.AddUser("bob"), f.dir.AddUser("carol")

	conv := f.oneToOne(t, a, b)
	participants, err := f.svc.ListParticipants(ctx, conv.ID, a)
	require.NoError(t, err)
	assert.Len(t, participants, 2)
	assert.Equal(t, "bob", *conv.Name)

	view, err := f.svc.SendMessage(ctx, conv.ID, a, "hi", nil)
	require.NoError(t, err)

	stored, err := f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessageID)
	assert.Equal(t, view.ID, *stored.LastMessageID)

	page, err := f.svc.GetHistory(ctx, conv.ID, b, 0, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "hi", page.Items[0].Content)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)

	_, err = f.svc.GetHistory(ctx, conv.ID, c, 0, "")
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	require.Len(t, f.pub.pushes, 1)
	assert.Equal(t, realtime.ConversationChannel(conv.ID), f.pub.pushes[0].channel)
	assert.Equal(t, realtime.EventReceiveMessage, f.pub.pushes[0].event)
	assert.Equal(t, *view, f.pub.pushes[0].payload)

	assert.Contains(t, f.pub.subscribed[b], realtime.ConversationChannel(conv.ID))
}

func TestGetHistory_CompleteWithoutDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.dir.AddUser("alice"), f.dir.AddUser("bob")
	conv := f.oneToOne(t, a, b)

	// Groups of three messages share a timestamp.
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	f.messages.now = func() time.Time {
		ts := base.Add(time.Duration(n/3) * time.Second)
		n++
		return ts
	}

	const total = 23
	for i := 0; i < total; i++ {
		_, err := f.svc.SendMessage(ctx, conv.ID, a, "msg", nil)
		require.NoError(t, err)
	}

	for pageSize := 1; pageSize <= 7; pageSize++ {
		var (
			seen  = map[uuid.UUID]bool{}
			order []models.MessageView
			token string
		)
		for {
			page, err := f.svc.GetHistory(ctx, conv.ID, b, pageSize, token)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(page.Items), pageSize)
			for _, m := range page.Items {
				assert.False(t, seen[m.ID], "duplicate message at page size %d", pageSize)
				seen[m.ID] = true
				order = append(order, m)
			}
			if !page.HasMore {
				assert.Nil(t, page.NextCursor)
				break
			}
			require.NotNil(t, page.NextCursor)
			token = *page.NextCursor
		}
		require.Len(t, order, total, "page size %d", pageSize)
		for i := 1; i < len(order); i++ {
			prev, cur := order[i-1], order[i]
			assert.False(t, cur.Timestamp.After(prev.Timestamp))
			if cur.Timestamp.Equal(prev.Timestamp) {
				assert.Negative(t, cursor.CompareIDs(cur.ID, prev.ID))
			}
		}
	}
}

func TestGetHistory_PageSizeClampedAndBadCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.dir.AddUser("alice"), f.dir.AddUser("bob")
	conv := f.oneToOne(t, a, b)
	for i := 0; i < 35; i++ {
		_, err := f.svc.SendMessage(ctx, conv.ID, a, "msg", nil)
		require.NoError(t, err)
	}

	page, err := f.svc.GetHistory(ctx, conv.ID, a, 500, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 30)
	assert.True(t, page.HasMore)

	page, err = f.svc.GetHistory(ctx, conv.ID, a, 0, "%%%not-a-cursor")
	require.NoError(t, err)
	assert.Len(t, page.Items, 20)
}

func TestStartConversation_Dedup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.dir.AddUser("alice"), f.dir.AddUser("bob")

	first := f.oneToOne(t, a, b)

	_, err := f.convs.CreateConversation(ctx, b, a, models.ConversationOneToOne, nil)
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyExists))

	again, created, err := f.svc.StartConversation(ctx, b, a, "", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}

func TestFindByParticipants_Symmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.dir.AddUser("alice"), f.dir.AddUser("bob"), f.dir.AddUser("carol")

	none, err := f.convs.FindByParticipants(ctx, a, b)
	require.NoError(t, err)
	assert.Nil(t, none)

	conv := f.oneToOne(t, a, b)
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		found, err := f.convs.FindByParticipants(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, conv.ID, found.ID)
	}

	ok, err := f.convs.IsParticipant(ctx, conv.ID, b)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.convs.IsParticipant(ctx, conv.ID, c)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStartConversation_ConcurrentCreatesYieldOne(t *testing.T) {
	f := newFixture(t)
	a, b := f.dir.AddUser("alice"), f.dir.AddUser("bob")

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[uuid.UUID]int{}
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			conv, isNew, err := f.svc.StartConversation(context.Background(), from, to, models.ConversationOneToOne, nil)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[conv.ID]++
			if isNew {
				created++
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
}

func TestCreateConversation_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.dir.AddUser("alice")

	_, err := f.convs.CreateConversation(ctx, a, a, models.ConversationOneToOne, nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	_, err = f.convs.CreateConversation(ctx, a, uuid.New(), models.ConversationOneToOne, nil)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = f.convs.CreateConversation(ctx, a, f.dir.AddUser("bob"), "channel", nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestAppend_ThreadedReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.dir.AddUser("alice"), f.dir.AddUser("bob"), f.dir.AddUser("carol")
	conv := f.oneToOne(t, a, b)
	other := f.oneToOne(t, a, c)

	m1, err := f.messages.Append(ctx, conv.ID, a, "root", nil)
	require.NoError(t, err)

	reply, err := f.messages.Append(ctx, conv.ID, b, "reply", &m1.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ParentMessageID)
	assert.Equal(t, m1.ID, *reply.ParentMessageID)

	missing := uuid.New()
	_, err = f.messages.Append(ctx, conv.ID, b, "reply", &missing)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = f.messages.Append(ctx, other.ID, a, "cross", &m1.ID)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestAppend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.dir.AddUser("alice"), f.dir.AddUser("bob"), f.dir.AddUser("carol")
	conv := f.oneToOne(t, a, b)

	_, err := f.messages.Append(ctx, conv.ID, a, "   ", nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	_, err = f.messages.Append(ctx, conv.ID, a, strings.Repeat("é", MaxContentLength+1), nil)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	_, err = f.messages.Append(ctx, conv.ID, a, strings.Repeat("é", MaxContentLength), nil)
	assert.NoError(t, err)

	_, err = f.messages.Append(ctx, conv.ID, c, "hello", nil)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))
}

func TestSendMessage_PushFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.dir.AddUser("alice"), f.dir.AddUser("bob")
	conv := f.oneToOne(t, a, b)
	f.pub.err = apperr.Unavailable("broker down", errors.New("dial tcp"))

	view, err := f.svc.SendMessage(ctx, conv.ID, a, "still stored", nil)
	require.NoError(t, err)

	stored, err := f.store.GetMessage(ctx, view.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

// flakyStore fails the first saves transiently and can cancel the caller
// right after a save commits.
type flakyStore struct {
	*memory.Store
	failures    int
	afterSave   func()
	pointerErrs int
}

func (s *flakyStore) SaveMessage(ctx context.Context, msg models.Message) error {
	if s.failures > 0 {
		s.failures--
		return apperr.Unavailable("insert message", errors.New("connection reset"))
	}
	if err := s.Store.SaveMessage(ctx, msg); err != nil {
		return err
	}
	if s.afterSave != nil {
		s.afterSave()
	}
	return nil
}

func (s *flakyStore) UpdateLastMessage(ctx context.Context, conversationID, messageID uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		s.pointerErrs++
		return err
	}
	return s.Store.UpdateLastMessage(ctx, conversationID, messageID, at)
}

func TestAppend_RetriesTransientInsert(t *testing.T) {
	store := memory.NewStore()
	flaky := &flakyStore{Store: store, failures: 2}
	f := newFixtureWith(t, store, flaky)
	a, b := f.dir.AddUser("alice"), f.dir.AddUser("bob")
	conv := f.oneToOne(t, a, b)

	msg, err := f.messages.Append(context.Background(), conv.ID, a, "eventually", nil)
	require.NoError(t, err)

	rows, err := store.GetMessages(context.Background(), conv.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, msg.ID, rows[0].ID)
}

func TestAppend_CancelAfterInsertStillMovesPointer(t *testing.T) {
	store := memory.NewStore()
	flaky := &flakyStore{Store: store}
	f := newFixtureWith(t, store, flaky)
	a, b := f.dir.AddUser("alice"), f.dir.AddUser("bob")
	conv := f.oneToOne(t, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	flaky.afterSave = cancel

	msg, err := f.messages.Append(ctx, conv.ID, a, "made it", nil)
	require.NoError(t, err)
	assert.Zero(t, flaky.pointerErrs)

	stored, err := store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessageID)
	assert.Equal(t, msg.ID, *stored.LastMessageID)
}

func TestAppend_CancelledBeforeInsertWritesNothing(t *testing.T) {
	f := newFixture(t)
	a, b := f.dir.AddUser("alice"), f.dir.AddUser("bob")
	conv := f.oneToOne(t, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.messages.Append(ctx, conv.ID, a, "never", nil)
	require.Error(t, err)

	stored, err := f.store.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastMessageID)
}

func TestListConversations_DisplayNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.dir.AddUser("alice"), f.dir.AddUser("bob"), f.dir.AddUser("carol")

	named := "Weekend plans"
	_, _, err := f.svc.StartConversation(ctx, a, b, models.ConversationGroup, &named)
	require.NoError(t, err)

	// Conversations without a stored name.
	unnamed := func(other uuid.UUID) uuid.UUID {
		conv := models.Conversation{ID: uuid.New(), Kind: models.ConversationGroup, CreatedAt: time.Now().UTC().Add(-time.Hour)}
		require.NoError(t, f.store.CreateConversation(ctx, conv, []models.Participant{
			{ConversationID: conv.ID, UserID: a, Role: models.RoleMember},
			{ConversationID: conv.ID, UserID: other, Role: models.RoleMember},
		}))
		return conv.ID
	}
	withMessage := unnamed(c)
	empty := unnamed(b)
	_, err = f.svc.SendMessage(ctx, withMessage, c, "hey", nil)
	require.NoError(t, err)

	summaries, err := f.svc.ListConversations(ctx, a)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	byID := map[uuid.UUID]models.ConversationSummary{}
	for _, s := range summaries {
		byID[s.ID] = s
	}
	assert.Equal(t, "carol", byID[withMessage].DisplayName)
	require.NotNil(t, byID[withMessage].LastMessage)
	assert.Equal(t, "hey", byID[withMessage].LastMessage.Content)
	assert.Equal(t, conversationPlaceholder, byID[empty].DisplayName)
	assert.Nil(t, byID[empty].LastMessage)

	var found bool
	for _, s := range summaries {
		if s.DisplayName == named {
			found = true
		}
	}
	assert.True(t, found)

	// Most recently active first.
	assert.Equal(t, withMessage, summaries[0].ID)
}

func TestGroupParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.dir.AddUser("alice"), f.dir.AddUser("bob"), f.dir.AddUser("carol")

	group, _, err := f.svc.StartConversation(ctx, a, b, models.ConversationGroup, nil)
	require.NoError(t, err)
	direct := f.oneToOne(t, a, c)

	added, err := f.svc.AddParticipant(ctx, group.ID, a, c)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Contains(t, f.pub.subscribed[c], realtime.ConversationChannel(group.ID))

	added, err = f.svc.AddParticipant(ctx, group.ID, a, c)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = f.svc.AddParticipant(ctx, direct.ID, a, b)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	_, err = f.svc.AddParticipant(ctx, group.ID, a, uuid.New())
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = f.svc.AddParticipant(ctx, uuid.New(), a, c)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	require.NoError(t, f.svc.LeaveConversation(ctx, group.ID, c))
	assert.NotContains(t, f.pub.subscribed[c], realtime.ConversationChannel(group.ID))

	_, err = f.svc.ListParticipants(ctx, group.ID, c)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	err = f.svc.LeaveConversation(ctx, direct.ID, a)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestMarkMessageRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.dir.AddUser("alice"), f.dir.AddUser("bob"), f.dir.AddUser("carol")
	conv := f.oneToOne(t, a, b)

	view, err := f.svc.SendMessage(ctx, conv.ID, a, "read me", nil)
	require.NoError(t, err)

	first, err := f.svc.MarkMessageRead(ctx, view.ID, b)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = f.svc.MarkMessageRead(ctx, view.ID, b)
	require.NoError(t, err)
	assert.False(t, first)

	_, err = f.svc.MarkMessageRead(ctx, view.ID, c)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))

	_, err = f.svc.MarkMessageRead(ctx, uuid.New(), b)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
