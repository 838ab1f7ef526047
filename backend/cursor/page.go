// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package cursor

const (
	MaxPageSize = 30

	DefaultMessagePageSize      = 20
	DefaultNotificationPageSize = 10
)

// Page is the response shape of every cursor-paginated listing.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

// ClampPageSize applies def to non-positive requests and caps at MaxPageSize.
func ClampPageSize(requested, def int) int {
	if requested <= 0 {
		requested = def
	}
	if requested > MaxPageSize {
		return MaxPageSize
	}
	return requested
}

// NewPage trims rows fetched with limit pageSize+1. When the extra row is
// present it is dropped and the cursor points at the last returned row.
func NewPage[T any](rows []T, pageSize int, key func(T) Position) Page[T] {
	page := Page[T]{Items: rows}
	if page.Items == nil {
		page.Items = []T{}
	}
	if len(rows) > pageSize {
		page.Items = rows[:pageSize]
		page.HasMore = true
		if pageSize > 0 {
			next := key(page.Items[len(page.Items)-1]).String()
			page.NextCursor = &next
		}
	}
	return page
}

// Map converts a page's items, keeping its cursor state.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := Page[U]{Items: make([]U, 0, len(p.Items)), NextCursor: p.NextCursor, HasMore: p.HasMore}
	for _, item := range p.Items {
		out.Items = append(out.Items, fn(item))
	}
	return out
}
