// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/chat"
	"github.com/efchatnet/efsocial/backend/models"
)

type ConversationHandler struct {
	chat *chat.Service
	log  *zap.Logger
}

func NewConversationHandler(svc *chat.Service, log *zap.Logger) *ConversationHandler {
	return &ConversationHandler{chat: svc, log: log.Named("http")}
}

// CreateConversation starts a conversation with another user. An existing
// one-to-one conversation with that user is returned with 200 instead.
// POST /api/social/conversations
func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var req struct {
		RecipientID uuid.UUID               `json:"recipientId"`
		Name        *string                 `json:"name"`
		Type        models.ConversationKind `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	conv, created, err := h.chat.StartConversation(r.Context(), userID, req.RecipientID, req.Type, req.Name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

// ListConversations lists the authenticated user's conversations
// GET /api/social/conversations
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	summaries, err := h.chat.ListConversations(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// GetParticipants lists the members of a conversation the caller belongs to
// GET /api/social/conversations/{conversationId}/participants
func (h *ConversationHandler) GetParticipants(w http.ResponseWriter, r *http.Request) {
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

	participants, err := h.chat.ListParticipants(r.Context(), conversationID, userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

// AddParticipant adds a user to a group conversation
// POST /api/social/conversations/{conversationId}/participants
func (h *ConversationHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
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
		UserID uuid.UUID `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	added, err := h.chat.AddParticipant(r.Context(), conversationID, userID, req.UserID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"added": added})
}

// LeaveConversation removes the caller from a group conversation
// DELETE /api/social/conversations/{conversationId}/participants/me
func (h *ConversationHandler) LeaveConversation(w http.ResponseWriter, r *http.Request) {
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

	if err := h.chat.LeaveConversation(r.Context(), conversationID, userID); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
