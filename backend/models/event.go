// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "github.com/google/uuid"

type EventType string

const (
	EventPostLiked       EventType = "post.liked"
	EventPostCommented   EventType = "post.commented"
	EventPostCreated     EventType = "post.created"
	EventPostUpdated     EventType = "post.updated"
	EventPostDeleted     EventType = "post.deleted"
	EventFriendRequested EventType = "friend.requested"
	EventFriendAccepted  EventType = "friend.accepted"
	EventUserUpdated     EventType = "user.updated"
)

// Event is a domain event emitted by another service after its own
// durable write (a like, a comment, a friend request...).
type Event struct {
	ID          uuid.UUID  `json:"id"`
	Type        EventType  `json:"type"`
	ActorID     uuid.UUID  `json:"actorId"`
	RecipientID uuid.UUID  `json:"recipientId"`
	TargetID    uuid.UUID  `json:"targetId"`
	Post        *PostView `json:"post,omitempty"`
}
