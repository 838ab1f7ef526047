// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/notify"
)

type NotificationHandler struct {
	center *notify.Center
	log    *zap.Logger
}

func NewNotificationHandler(center *notify.Center, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{center: center, log: log.Named("http")}
}

// ListNotifications pages the caller's notifications, newest first
// GET /api/social/notifications?pageSize=&cursor=
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	size, token := pageQuery(r)
	page, err := h.center.ListNotifications(r.Context(), userID, size, token)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GET /api/social/notifications/unread
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	count, err := h.center.GetUnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// MarkRead marks one of the caller's notifications read
// PUT /api/social/notifications/{notificationId}
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	notificationID, err := pathID(r, "notificationId")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	changed, err := h.center.MarkRead(r.Context(), notificationID, userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

// PUT /api/social/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	count, err := h.center.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// Delete removes a notification. Unknown ids succeed too.
// DELETE /api/social/notifications/{notificationId}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	notificationID, err := pathID(r, "notificationId")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.center.Delete(r.Context(), notificationID, userID); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
