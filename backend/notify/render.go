// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package notify

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/efchatnet/efsocial/backend/models"
)

const (
	LocaleEnglish    = "en"
	LocaleVietnamese = "vi"
)

var templates = map[string]map[models.NotificationType]string{
	LocaleEnglish: {
		models.NotificationNewLikeOnPost:         "%s liked your post.",
		models.NotificationNewCommentOnPost:      "%s commented on your post.",
		models.NotificationNewPostCreated:        "%s published a new post.",
		models.NotificationNewFriendRequest:      "%s sent you a friend request.",
		models.NotificationFriendRequestAccepted: "%s accepted your friend request.",
	},
	LocaleVietnamese: {
		models.NotificationNewLikeOnPost:         "%s đã thích bài viết của bạn.",
		models.NotificationNewCommentOnPost:      "%s đã bình luận về bài viết của bạn.",
		models.NotificationNewPostCreated:        "%s đã đăng một bài viết mới.",
		models.NotificationNewFriendRequest:      "%s đã gửi cho bạn lời mời kết bạn.",
		models.NotificationFriendRequestAccepted: "%s đã chấp nhận lời mời kết bạn của bạn.",
	},
}

var fallbacks = map[string]string{
	LocaleEnglish:    "You have a new notification.",
	LocaleVietnamese: "Bạn có một thông báo mới.",
}

// Render is RenderLocale in English.
func Render(t models.NotificationType, actorName string) string {
	return RenderLocale(LocaleEnglish, t, actorName)
}

// RenderLocale produces the display text of a notification. Unknown
// locales fall back to English.
func RenderLocale(locale string, t models.NotificationType, actorName string) string {
	table, ok := templates[locale]
	if !ok {
		locale = LocaleEnglish
		table = templates[locale]
	}
	tmpl, ok := table[t]
	if !ok {
		return fallbacks[locale]
	}
	return fmt.Sprintf(tmpl, actorName)
}

// Link points post notifications at the post and friendship
// notifications at the user.
func Link(t models.NotificationType, targetID uuid.UUID) string {
	if t.AboutPost() {
		return "/posts/" + targetID.String()
	}
	return "/users/" + targetID.String()
}
