// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event names pushed to clients.
const (
	EventReceiveMessage      = "ReceiveMessage"
	EventReceiveNotification = "ReceiveNotification"
	EventNewPost             = "NewPost"
	EventPostUpdated         = "PostUpdated"
	EventPostDeleted         = "PostDeleted"
)

// membershipChannel carries subscribe/unsubscribe instructions between
// instances. It never reaches clients.
const membershipChannel = "hub:membership"

const (
	membershipSubscribe   = "subscribe"
	membershipUnsubscribe = "unsubscribe"
)

func ConversationChannel(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

// UserChannel is the personal notification channel of a user.
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func FeedChannel(userID uuid.UUID) string {
	return "feed:" + userID.String()
}

// Envelope is the frame written to a websocket.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type membershipChange struct {
	UserID  uuid.UUID `json:"userId"`
	Channel string    `json:"channel"`
}

// ClientFrame is what a client may send over its connection.
type ClientFrame struct {
	Action string    `json:"action"`
	UserID uuid.UUID `json:"userId"`
}

const (
	ActionJoinFeed  = "join_feed"
	ActionLeaveFeed = "leave_feed"
)
