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

type NotificationType string

const (
	NotificationNewLikeOnPost         NotificationType = "new_like_on_post"
	NotificationNewCommentOnPost      NotificationType = "new_comment_on_post"
	NotificationNewPostCreated        NotificationType = "new_post_created"
	NotificationNewFriendRequest      NotificationType = "new_friend_request"
	NotificationFriendRequestAccepted NotificationType = "friend_request_accepted"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationNewLikeOnPost, NotificationNewCommentOnPost, NotificationNewPostCreated,
		NotificationNewFriendRequest, NotificationFriendRequestAccepted:
		return true
	}
	return false
}

// AboutPost reports whether the notification links to a post rather than a user.
func (t NotificationType) AboutPost() bool {
	switch t {
	case NotificationNewLikeOnPost, NotificationNewCommentOnPost, NotificationNewPostCreated:
		return true
	}
	return false
}

type Notification struct {
	ID                uuid.UUID        `db:"id"`
	RecipientUserID   uuid.UUID        `db:"recipient_user_id"`
	TriggeredByUserID uuid.UUID        `db:"triggered_by_user_id"`
	Type              NotificationType `db:"type"`
	Link              string           `db:"link"`
	IsRead            bool             `db:"is_read"`
	CreatedAt         time.Time        `db:"created_at"`
}

// NotificationView is rendered identically for listings and for the
// ReceiveNotification realtime event.
type NotificationView struct {
	ID              uuid.UUID        `json:"id"`
	TriggeredByUser UserSummary      `json:"triggeredByUser"`
	Type            NotificationType `json:"type"`
	Message         string           `json:"message"`
	Link            string           `json:"link"`
	IsRead          bool             `json:"isRead"`
	CreatedAt       time.Time        `json:"createdAt"`
}

type UnreadCount struct {
	Count int `json:"count"`
}
