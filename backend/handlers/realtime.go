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

	"github.com/efchatnet/efsocial/backend/realtime"
)

type RealtimeHandler struct {
	ws  *realtime.WSServer
	log *zap.Logger
}

func NewRealtimeHandler(ws *realtime.WSServer, log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{ws: ws, log: log.Named("http")}
}

// Connect upgrades to a websocket subscribed to the caller's channels
// GET /api/social/ws
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.ws.Serve(w, r, userID)
}
