// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/middleware"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodePermissionDenied:
		return http.StatusForbidden
	case apperr.CodeAlreadyExists:
		return http.StatusConflict
	case apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"code", "message"}. Internal failures are
// logged and never echo their cause to the client.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := apperr.CodeOf(err)
	status := statusOf(code)
	msg := apperr.MessageOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("code", string(code)), zap.Error(err))
		if code != apperr.CodeUnavailable {
			code, msg = apperr.CodeInternal, "internal error"
		}
	}
	writeJSON(w, status, apperr.AppError{Code: code, Message: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.InvalidArg("Invalid request body")
	}
	return nil
}

// currentUser reads the id stored by the auth middleware.
func currentUser(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		return uuid.Nil, apperr.Forbidden("not authenticated")
	}
	return userID, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, apperr.InvalidArg("invalid " + name)
	}
	return id, nil
}

// pageQuery returns the requested page size (0 when absent or not a
// positive number, letting the service apply its default) and cursor.
func pageQuery(r *http.Request) (int, string) {
	q := r.URL.Query()
	size, err := strconv.Atoi(q.Get("pageSize"))
	if err != nil || size <= 0 {
		size = 0
	}
	return size, q.Get("cursor")
}
