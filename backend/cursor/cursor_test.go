// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package cursor

import (
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []time.Time{
		time.Date(2025, 9, 22, 13, 57, 25, 123456789, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Now(),
		time.Date(2025, 1, 1, 7, 0, 0, 5000, time.FixedZone("ICT", 7*3600)),
	}
	for _, at := range cases {
		id := uuid.Must(uuid.NewV7())
		token := Encode(at, id)

		gotAt, gotID, ok := Decode(token)
		require.True(t, ok)
		assert.True(t, at.Equal(gotAt), "want %v got %v", at, gotAt)
		assert.Equal(t, id, gotID)
		assert.Equal(t, url.QueryEscape(token), token, "token must be URL safe")
	}
}

func TestDecodeMalformed(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	id := uuid.New().String()

	for name, token := range map[string]string{
		"empty":        "",
		"not base64":   "%%%***",
		"no separator": enc("2025-01-01T00:00:00Z"),
		"three parts":  enc("2025-01-01T00:00:00Z|" + id + "|x"),
		"bad time":     enc("yesterday|" + id),
		"bad id":       enc("2025-01-01T00:00:00Z|not-a-uuid"),
	} {
		t.Run(name, func(t *testing.T) {
			_, _, ok := Decode(token)
			assert.False(t, ok)
			assert.Nil(t, Parse(token))
		})
	}
}

func TestDecodeAcceptsPaddedToken(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	id := uuid.New()
	raw := at.Format(time.RFC3339Nano) + "|" + id.String()

	gotAt, gotID, ok := Decode(base64.URLEncoding.EncodeToString([]byte(raw)))
	require.True(t, ok)
	assert.True(t, at.Equal(gotAt))
	assert.Equal(t, id, gotID)
}

func TestPositionBeyond(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	low := uuid.MustParse("00000000-0000-7000-8000-000000000001")
	high := uuid.MustParse("00000000-0000-7000-8000-000000000002")
	p := Position{At: at, ID: high}

	assert.True(t, p.Beyond(at.Add(-time.Second), high))
	assert.True(t, p.Beyond(at, low))
	assert.False(t, p.Beyond(at, high))
	assert.False(t, p.Beyond(at.Add(time.Second), low))
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, 20, ClampPageSize(0, 20))
	assert.Equal(t, 20, ClampPageSize(-3, 20))
	assert.Equal(t, 5, ClampPageSize(5, 20))
	assert.Equal(t, MaxPageSize, ClampPageSize(500, 20))
}

func TestNewPage(t *testing.T) {
	type row struct {
		at time.Time
		id uuid.UUID
	}
	key := func(r row) Position { return Position{At: r.at, ID: r.id} }
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{
		{base.Add(3 * time.Second), uuid.New()},
		{base.Add(2 * time.Second), uuid.New()},
		{base.Add(1 * time.Second), uuid.New()},
	}

	page := NewPage(rows, 2, key)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, Encode(rows[1].at, rows[1].id), *page.NextCursor)

	last := NewPage(rows[:2], 2, key)
	assert.False(t, last.HasMore)
	assert.Nil(t, last.NextCursor)

	empty := NewPage[row](nil, 2, key)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}
