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

package integration

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/chat"
	"github.com/efchatnet/efsocial/backend/events"
	"github.com/efchatnet/efsocial/backend/feed"
	"github.com/efchatnet/efsocial/backend/handlers"
	"github.com/efchatnet/efsocial/backend/middleware"
	"github.com/efchatnet/efsocial/backend/notify"
	"github.com/efchatnet/efsocial/backend/realtime"
	"github.com/efchatnet/efsocial/backend/storage"
)

// SocialIntegration provides messaging, notifications and realtime fan-out
// as a plugin for efchat
type SocialIntegration struct {
	store         storage.Store
	hub           *realtime.Hub
	chat          *chat.Service
	notifications *notify.Center
	feed          *feed.Notifier
	dispatcher    *events.Dispatcher

	conversationHandler *handlers.ConversationHandler
	messageHandler      *handlers.MessageHandler
	notificationHandler *handlers.NotificationHandler
	realtimeHandler     *handlers.RealtimeHandler

	jwtSecret string
	jwtIssuer string
	log       *zap.Logger
}

// Config holds configuration for the social integration. Users may also
// implement events.UserInvalidator (see cache.Users), in which case
// user.updated events evict cached profiles.
type Config struct {
	Store          storage.Store
	Users          storage.UserDirectory
	Friends        storage.FriendshipDirectory
	Broker         realtime.Broker
	JWTSecret      string
	JWTIssuer      string
	AllowedOrigins []string
	Locale         string
	Log            *zap.Logger
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewSocialIntegration wires the components together. Call Start before
// serving so the hub receives frames from the broker.
func NewSocialIntegration(config *Config) (*SocialIntegration, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}

	directory := chat.NewDirectory(config.Store, config.Store, config.Users, log)
	messages := chat.NewMessages(directory, config.Store, config.Store, log)
	hub := realtime.NewHub(config.Broker, directory, config.Friends, log)
	chatService := chat.NewService(directory, messages, hub, log)
	center := notify.NewCenter(config.Store, config.Users, hub, config.Locale, log)
	feedNotifier := feed.NewNotifier(hub, log)

	invalidator, _ := config.Users.(events.UserInvalidator)

	return &SocialIntegration{
		store:         config.Store,
		hub:           hub,
		chat:          chatService,
		notifications: center,
		feed:          feedNotifier,
		dispatcher:    events.NewDispatcher(center, feedNotifier, invalidator, log),

		conversationHandler: handlers.NewConversationHandler(chatService, log),
		messageHandler:      handlers.NewMessageHandler(chatService, log),
		notificationHandler: handlers.NewNotificationHandler(center, log),
		realtimeHandler:     handlers.NewRealtimeHandler(realtime.NewWSServer(hub, config.AllowedOrigins, log), log),

		jwtSecret: config.JWTSecret,
		jwtIssuer: config.JWTIssuer,
		log:       log,
	}, nil
}

func validate(config *Config) error {
	switch {
	case config == nil:
		return &ValidationError{Message: "config is required"}
	case config.Store == nil:
		return &ValidationError{Message: "store is not configured"}
	case config.Users == nil:
		return &ValidationError{Message: "user directory is not configured"}
	case config.Friends == nil:
		return &ValidationError{Message: "friendship directory is not configured"}
	case config.Broker == nil:
		return &ValidationError{Message: "realtime broker is not configured"}
	case config.JWTSecret == "":
		return &ValidationError{Message: "JWT secret is not configured"}
	}
	return nil
}

// Start subscribes the hub to the broker. It returns once the
// subscription is live; delivery stops when ctx is cancelled.
func (s *SocialIntegration) Start(ctx context.Context) error {
	return s.hub.Start(ctx)
}

// RegisterRoutes adds social routes to an existing router
// If authMiddleware is nil, it will use the built-in JWT validation
func (s *SocialIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	router.HandleFunc("/health", s.Health).Methods("GET")

	api := router.PathPrefix("/api/social").Subrouter()
	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(s.jwtSecret, s.jwtIssuer))
	}

	// Conversations
	api.HandleFunc("/conversations", s.conversationHandler.CreateConversation).Methods("POST", "OPTIONS")
	api.HandleFunc("/conversations", s.conversationHandler.ListConversations).Methods("GET", "OPTIONS")
	api.HandleFunc("/conversations/{conversationId}/participants", s.conversationHandler.GetParticipants).Methods("GET", "OPTIONS")
	api.HandleFunc("/conversations/{conversationId}/participants", s.conversationHandler.AddParticipant).Methods("POST", "OPTIONS")
	api.HandleFunc("/conversations/{conversationId}/participants/me", s.conversationHandler.LeaveConversation).Methods("DELETE", "OPTIONS")

	// Messages
	api.HandleFunc("/conversations/{conversationId}/messages", s.messageHandler.GetHistory).Methods("GET", "OPTIONS")
	api.HandleFunc("/conversations/{conversationId}/messages", s.messageHandler.SendMessage).Methods("POST", "OPTIONS")
	api.HandleFunc("/messages/{messageId}/read", s.messageHandler.MarkRead).Methods("POST", "OPTIONS")

	// Notifications
	api.HandleFunc("/notifications", s.notificationHandler.ListNotifications).Methods("GET", "OPTIONS")
	api.HandleFunc("/notifications/unread", s.notificationHandler.UnreadCount).Methods("GET", "OPTIONS")
	api.HandleFunc("/notifications/read-all", s.notificationHandler.MarkAllRead).Methods("PUT", "OPTIONS")
	api.HandleFunc("/notifications/{notificationId}", s.notificationHandler.MarkRead).Methods("PUT", "OPTIONS")
	api.HandleFunc("/notifications/{notificationId}", s.notificationHandler.Delete).Methods("DELETE", "OPTIONS")

	// Realtime
	api.HandleFunc("/ws", s.realtimeHandler.Connect).Methods("GET")
}

// Health reports whether the store is reachable (no auth required)
// GET /health
func (s *SocialIntegration) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.ValidateSetup(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ValidateSetup checks if the social module is properly configured
func (s *SocialIntegration) ValidateSetup(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	if s.jwtSecret == "" {
		return &ValidationError{Message: "JWT secret is not configured"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Accessors for services embedding the module

func (s *SocialIntegration) Chat() *chat.Service {
	return s.chat
}

func (s *SocialIntegration) Notifications() *notify.Center {
	return s.notifications
}

func (s *SocialIntegration) Feed() *feed.Notifier {
	return s.feed
}

func (s *SocialIntegration) Hub() *realtime.Hub {
	return s.hub
}

// Dispatcher handles domain events; pass it to events.NewConsumer.
func (s *SocialIntegration) Dispatcher() *events.Dispatcher {
	return s.dispatcher
}
