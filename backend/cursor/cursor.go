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

// Package cursor implements opaque keyset pagination tokens shared by
// every newest-first listing (messages, notifications, posts).
package cursor

import (
	"bytes"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
)

const separator = "|"

// Position is a sort position in a (timestamp DESC, id DESC) ordering.
type Position struct {
	At time.Time
	ID uuid.UUID
}

// Encode serializes "<RFC3339Nano timestamp>|<id>" as unpadded URL-safe base64.
func Encode(at time.Time, id uuid.UUID) string {
	raw := at.UTC().Format(time.RFC3339Nano) + separator + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode reverses Encode. Any malformed token reports ok=false; callers
// treat that exactly like an absent cursor.
func Decode(token string) (at time.Time, id uuid.UUID, ok bool) {
	token = strings.TrimRight(strings.TrimSpace(token), "=")
	if token == "" {
		return time.Time{}, uuid.Nil, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, uuid.Nil, false
	}
	parts := strings.Split(string(raw), separator)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, false
	}
	at, err = time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, false
	}
	id, err = uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, false
	}
	return at.UTC(), id, true
}

// Parse decodes token into a Position, or nil when the token is absent or malformed.
func Parse(token string) *Position {
	at, id, ok := Decode(token)
	if !ok {
		return nil
	}
	return &Position{At: at, ID: id}
}

func (p Position) String() string {
	return Encode(p.At, p.ID)
}

// Beyond reports whether the row (at, id) comes strictly after p in
// newest-first order: at < p.At, or equal timestamps and id < p.ID.
func (p Position) Beyond(at time.Time, id uuid.UUID) bool {
	if at.Before(p.At) {
		return true
	}
	return at.Equal(p.At) && CompareIDs(id, p.ID) < 0
}

// CompareIDs orders ids bytewise, matching Postgres uuid comparison.
func CompareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
