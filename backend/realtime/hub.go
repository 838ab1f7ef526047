// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/apperr"
	"github.com/efchatnet/efsocial/backend/storage"
)

const (
	DefaultSendQueue = 64

	EventError = "Error"
)

// ConversationLister is the part of the conversation directory the hub
// needs to derive a connection's channels.
type ConversationLister interface {
	ListUserConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Client is one live connection. A user may hold several.
type Client struct {
	ConnID uuid.UUID
	UserID uuid.UUID

	send chan []byte

	// guarded by Hub.mu
	channels map[string]struct{}
	closed   bool
}

func NewClient(userID uuid.UUID, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultSendQueue
	}
	return &Client{
		ConnID:   uuid.New(),
		UserID:   userID,
		send:     make(chan []byte, queueSize),
		channels: make(map[string]struct{}),
	}
}

// Send is the outbound frame queue, closed on Disconnect.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub keeps the channel registry of this instance's connections and fans
// out frames received from the broker.
type Hub struct {
	broker        Broker
	conversations ConversationLister
	friends       storage.FriendshipDirectory
	log           *zap.Logger

	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	byUser   map[uuid.UUID]map[*Client]struct{}
}

func NewHub(broker Broker, conversations ConversationLister, friends storage.FriendshipDirectory, log *zap.Logger) *Hub {
	return &Hub{
		broker:        broker,
		conversations: conversations,
		friends:       friends,
		log:           log.Named("realtime"),
		channels:      make(map[string]map[*Client]struct{}),
		byUser:        make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// Start subscribes the hub to the broker until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	return h.broker.Subscribe(ctx, h.deliver)
}

// Connect derives the connection's channels from current data and
// registers it: every conversation of the user, the user's notification
// channel, the user's own feed and the feed of every friend.
func (h *Hub) Connect(ctx context.Context, c *Client) error {
	channels, err := h.channelsFor(ctx, c.UserID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.byUser[c.UserID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.byUser[c.UserID] = conns
	}
	conns[c] = struct{}{}
	for _, ch := range channels {
		h.join(c, ch)
	}

	h.log.Debug("client connected",
		zap.Stringer("user_id", c.UserID),
		zap.Stringer("conn_id", c.ConnID),
		zap.Int("channels", len(channels)))
	return nil
}

func (h *Hub) channelsFor(ctx context.Context, userID uuid.UUID) ([]string, error) {
	convIDs, err := h.conversations.ListUserConversationIDs(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	friendIDs, err := h.friends.ListFriendIDs(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list friends")
	}

	channels := make([]string, 0, len(convIDs)+len(friendIDs)+2)
	for _, id := range convIDs {
		channels = append(channels, ConversationChannel(id))
	}
	channels = append(channels, UserChannel(userID), FeedChannel(userID))
	for _, id := range friendIDs {
		channels = append(channels, FeedChannel(id))
	}
	return channels, nil
}

// Disconnect drops every membership of c and closes its send queue.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	for ch := range c.channels {
		h.leave(c, ch)
	}
	if conns := h.byUser[c.UserID]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	c.closed = true
	close(c.send)

	h.log.Debug("client disconnected", zap.Stringer("user_id", c.UserID), zap.Stringer("conn_id", c.ConnID))
}

func (h *Hub) JoinChannel(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.closed {
		h.join(c, channel)
	}
}

func (h *Hub) LeaveChannel(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, channel)
}

// JoinFeed opts c into the feed of target. Only the user's own feed and
// feeds of current friends may be joined.
func (h *Hub) JoinFeed(ctx context.Context, c *Client, target uuid.UUID) error {
	if target != c.UserID {
		ok, err := h.friends.AreFriends(ctx, c.UserID, target)
		if err != nil {
			return errors.Wrap(err, "failed to check friendship")
		}
		if !ok {
			return apperr.Forbidden("not friends with this user")
		}
	}
	h.JoinChannel(c, FeedChannel(target))
	return nil
}

func (h *Hub) LeaveFeed(c *Client, target uuid.UUID) {
	h.LeaveChannel(c, FeedChannel(target))
}

// SubscribeUser joins every live connection of userID, on any instance,
// to channel.
func (h *Hub) SubscribeUser(ctx context.Context, userID uuid.UUID, channel string) error {
	return h.Push(ctx, membershipChannel, membershipSubscribe, membershipChange{UserID: userID, Channel: channel})
}

func (h *Hub) UnsubscribeUser(ctx context.Context, userID uuid.UUID, channel string) error {
	return h.Push(ctx, membershipChannel, membershipUnsubscribe, membershipChange{UserID: userID, Channel: channel})
}

// Push publishes event to every connection subscribed to channel. Delivery
// is best-effort; offline users catch up through the durable listings.
func (h *Hub) Push(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payload")
	}
	frame, err := json.Marshal(Envelope{Channel: channel, Event: event, Payload: data})
	if err != nil {
		return errors.Wrap(err, "failed to marshal frame")
	}
	return h.broker.Publish(ctx, channel, frame)
}

// HandleClientFrame applies a frame sent by the client over its connection.
func (h *Hub) HandleClientFrame(ctx context.Context, c *Client, data []byte) error {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return apperr.InvalidArg("malformed frame")
	}
	switch frame.Action {
	case ActionJoinFeed:
		return h.JoinFeed(ctx, c, frame.UserID)
	case ActionLeaveFeed:
		h.LeaveFeed(c, frame.UserID)
		return nil
	default:
		return apperr.InvalidArg("unknown action")
	}
}

// Reply queues an event for c alone.
func (h *Hub) Reply(c *Client, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Payload: data})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !c.closed {
		h.enqueue(c, "", frame)
	}
}

// Subscribers reports how many local connections are on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) deliver(channel string, frame []byte) {
	if channel == membershipChannel {
		h.applyMembership(frame)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		h.enqueue(c, channel, frame)
	}
}

// enqueue never blocks; a full queue drops the frame. Callers hold h.mu.
func (h *Hub) enqueue(c *Client, channel string, frame []byte) {
	select {
	case c.send <- frame:
	default:
		h.log.Warn("send queue full, dropping frame",
			zap.Stringer("user_id", c.UserID),
			zap.Stringer("conn_id", c.ConnID),
			zap.String("channel", channel))
	}
}

func (h *Hub) applyMembership(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		h.log.Warn("malformed membership frame", zap.Error(err))
		return
	}
	var change membershipChange
	if err := json.Unmarshal(env.Payload, &change); err != nil {
		h.log.Warn("malformed membership change", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.byUser[change.UserID] {
		switch env.Event {
		case membershipSubscribe:
			h.join(c, change.Channel)
		case membershipUnsubscribe:
			h.leave(c, change.Channel)
		}
	}
}

func (h *Hub) join(c *Client, channel string) {
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Client]struct{})
		h.channels[channel] = subs
	}
	subs[c] = struct{}{}
	c.channels[channel] = struct{}{}
}

func (h *Hub) leave(c *Client, channel string) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(c.channels, channel)
}
