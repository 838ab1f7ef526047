// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/chat"
)

type MessageHandler struct {
	chat *chat.Service
	log  *zap.Logger
}

func NewMessageHandler(svc *chat.Service, log *zap.Logger) *MessageHandler {
	return &MessageHandler{chat: svc, log: log.Named("http")}
}

// SendMessage appends a message, optionally replying to another one
// POST /api/social/conversations/{conversationId}/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	conversationID, err := pathID(r, "conversationId")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var req struct {
		Content         string     `json:"content"`
		ParentMessageID *uuid.UUID `json:"parentMessageId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	view, err := h.chat.SendMessage(r.Context(), conversationID, userID, req.Content, req.ParentMessageID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GetHistory pages through a conversation, newest first
// GET /api/social/conversations/{conversationId}/messages?pageSize=&cursor=
func (h *MessageHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	conversationID, err := pathID(r, "conversationId")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	size, token := pageQuery(r)
	page, err := h.chat.GetHistory(r.Context(), conversationID, userID, size, token)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// MarkRead records that the caller has read a message
// POST /api/social/messages/{messageId}/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	messageID, err := pathID(r, "messageId")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	changed, err := h.chat.MarkMessageRead(r.Context(), messageID, userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}
