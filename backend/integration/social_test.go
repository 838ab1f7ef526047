// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/cursor"
	"github.com/efchatnet/efsocial/backend/middleware"
	"github.com/efchatnet/efsocial/backend/models"
	"github.com/efchatnet/efsocial/backend/realtime"
	"github.com/efchatnet/efsocial/backend/storage/memory"
)

const testSecret = "integration-secret"

type fixture struct {
	t      *testing.T
	dir    *memory.Directory
	social *SocialIntegration
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := memory.NewDirectory()
	social, err := NewSocialIntegration(&Config{
		Store:          memory.NewStore(),
		Users:          dir,
		Friends:        dir,
		Broker:         realtime.NewLocalBroker(),
		JWTSecret:      testSecret,
		JWTIssuer:      "efchat",
		AllowedOrigins: []string{"*"},
		Log:            zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, social.Start(ctx))

	router := mux.NewRouter()
	social.RegisterRoutes(router, nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &fixture{t: t, dir: dir, social: social, srv: srv}
}

func (f *fixture) token(userID uuid.UUID) string {
	claims := middleware.Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "efchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(f.t, err)
	return token
}

// do sends an authenticated request and decodes a JSON response into out
// when out is non-nil.
func (f *fixture) do(user uuid.UUID, method, path string, body any, out any) int {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(f.t, err)
	req.Header.Set("Authorization", "Bearer "+f.token(user))
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestConversationFlow(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.dir.AddUser("alice"), f.dir.AddUser("bob"), f.dir.AddUser("carol")

	var conv models.Conversation
	status := f.do(alice, http.MethodPost, "/api/social/conversations", map[string]any{"recipientId": bob}, &conv)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, conv.Name)
	assert.Equal(t, "bob", *conv.Name)

	var again models.Conversation
	status = f.do(bob, http.MethodPost, "/api/social/conversations", map[string]any{"recipientId": alice}, &again)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, conv.ID, again.ID)

	base := "/api/social/conversations/" + conv.ID.String()
	var sent models.MessageView
	status = f.do(alice, http.MethodPost, base+"/messages", map[string]any{"content": "hi"}, &sent)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "hi", sent.Content)

	var page cursor.Page[models.MessageView]
	status = f.do(bob, http.MethodGet, base+"/messages?pageSize=abc", nil, &page)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, page.Items, 1)
	assert.Equal(t, sent.ID, page.Items[0].ID)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)

	var appErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	status = f.do(carol, http.MethodGet, base+"/messages", nil, &appErr)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PERMISSION_DENIED", appErr.Code)

	status = f.do(alice, http.MethodPost, base+"/messages", map[string]any{"content": "   "}, &appErr)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", appErr.Code)

	status = f.do(alice, http.MethodPost, base+"/messages", map[string]any{"content": "reply", "parentMessageId": uuid.New()}, &appErr)
	assert.Equal(t, http.StatusNotFound, status)

	var summaries []models.ConversationSummary
	status = f.do(bob, http.MethodGet, "/api/social/conversations", nil, &summaries)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, sent.ID, summaries[0].LastMessage.ID)

	var read map[string]bool
	status = f.do(bob, http.MethodPost, "/api/social/messages/"+sent.ID.String()+"/read", nil, &read)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, read["changed"])

	var participants []models.ParticipantView
	status = f.do(alice, http.MethodGet, base+"/participants", nil, &participants)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, participants, 2)

	status = f.do(alice, http.MethodPost, base+"/participants", map[string]any{"userId": carol}, &appErr)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNotificationFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.dir.AddUser("alice"), f.dir.AddUser("bob")

	for i := 0; i < 3; i++ {
		require.NoError(t, f.social.Dispatcher().Handle(ctx, models.Event{
			ID: uuid.New(), Type: models.EventPostLiked, ActorID: bob, RecipientID: alice, TargetID: uuid.New(),
		}))
	}

	var unread map[string]int
	require.Equal(t, http.StatusOK, f.do(alice, http.MethodGet, "/api/social/notifications/unread", nil, &unread))
	assert.Equal(t, 3, unread["count"])

	var page cursor.Page[models.NotificationView]
	require.Equal(t, http.StatusOK, f.do(alice, http.MethodGet, "/api/social/notifications?pageSize=2", nil, &page))
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "bob liked your post.", page.Items[0].Message)

	first := page.Items[0].ID
	var changed map[string]bool
	assert.Equal(t, http.StatusNotFound, f.do(bob, http.MethodPut, "/api/social/notifications/"+first.String(), nil, nil))
	require.Equal(t, http.StatusOK, f.do(alice, http.MethodPut, "/api/social/notifications/"+first.String(), nil, &changed))
	assert.True(t, changed["changed"])

	var count map[string]int
	require.Equal(t, http.StatusOK, f.do(alice, http.MethodPut, "/api/social/notifications/read-all", nil, &count))
	assert.Equal(t, 2, count["count"])
	require.Equal(t, http.StatusOK, f.do(alice, http.MethodPut, "/api/social/notifications/read-all", nil, &count))
	assert.Equal(t, 0, count["count"])

	assert.Equal(t, http.StatusNoContent, f.do(alice, http.MethodDelete, "/api/social/notifications/"+first.String(), nil, nil))
	assert.Equal(t, http.StatusNoContent, f.do(alice, http.MethodDelete, "/api/social/notifications/"+uuid.NewString(), nil, nil))
}

func TestUnauthenticated(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/social/conversations")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRealtimeDelivery(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.dir.AddUser("alice"), f.dir.AddUser("bob")

	var conv models.Conversation
	require.Equal(t, http.StatusCreated, f.do(alice, http.MethodPost, "/api/social/conversations", map[string]any{"recipientId": bob}, &conv))

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/social/ws?access_token=" + f.token(bob)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	channel := realtime.ConversationChannel(conv.ID)
	require.Eventually(t, func() bool {
		return f.social.Hub().Subscribers(channel) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var sent models.MessageView
	require.Equal(t, http.StatusCreated, f.do(alice, http.MethodPost, "/api/social/conversations/"+conv.ID.String()+"/messages", map[string]any{"content": "hello"}, &sent))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env realtime.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, channel, env.Channel)
	assert.Equal(t, realtime.EventReceiveMessage, env.Event)

	var got models.MessageView
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, sent.ID, got.ID)
}

func TestNewSocialIntegration_Validates(t *testing.T) {
	_, err := NewSocialIntegration(&Config{})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
