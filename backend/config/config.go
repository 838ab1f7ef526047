// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	NatsURL     string
	Port        string

	JWT JWT

	// Broker selects how realtime frames reach other instances:
	// local, redis or nats.
	Broker string

	Events Events

	UserCacheTTL   time.Duration
	AllowedOrigins []string

	// NotifyLocale selects the language of rendered notification text.
	NotifyLocale string

	Log Log
}

type JWT struct {
	Secret string
	Issuer string
}

type Events struct {
	Enabled bool
	Stream  string
	Subject string
	Durable string
}

type Log struct {
	Level       string
	Development bool
}

const (
	BrokerLocal = "local"
	BrokerRedis = "redis"
	BrokerNATS  = "nats"
)

// Load reads configuration from the environment, after an optional yaml
// file named by CONFIG_FILE.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "postgres://localhost/efsocial?sslmode=disable")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("NATS_URL", "nats://127.0.0.1:4222")
	v.SetDefault("PORT", "8081")
	v.SetDefault("JWT_ISSUER", "efchat")
	v.SetDefault("REALTIME_BROKER", BrokerRedis)
	v.SetDefault("EVENTS_ENABLED", false)
	v.SetDefault("EVENTS_STREAM", "SOCIAL_EVENTS")
	v.SetDefault("EVENTS_SUBJECT", "social.events.*")
	v.SetDefault("EVENTS_DURABLE", "efsocial-notifier")
	v.SetDefault("USER_CACHE_TTL", "5m")
	v.SetDefault("NOTIFY_LOCALE", "en")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("ALLOWED_ORIGINS", "*")

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}

	return parse(v)
}

func parse(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL: v.GetString("DATABASE_URL"),
		RedisURL:    v.GetString("REDIS_URL"),
		NatsURL:     v.GetString("NATS_URL"),
		Port:        v.GetString("PORT"),
		JWT: JWT{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		Broker: strings.ToLower(v.GetString("REALTIME_BROKER")),
		Events: Events{
			Enabled: v.GetBool("EVENTS_ENABLED"),
			Stream:  v.GetString("EVENTS_STREAM"),
			Subject: v.GetString("EVENTS_SUBJECT"),
			Durable: v.GetString("EVENTS_DURABLE"),
		},
		UserCacheTTL:   v.GetDuration("USER_CACHE_TTL"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		NotifyLocale:   v.GetString("NOTIFY_LOCALE"),
		Log: Log{
			Level:       v.GetString("LOG_LEVEL"),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	switch cfg.Broker {
	case BrokerLocal, BrokerRedis, BrokerNATS:
	default:
		return nil, errors.Errorf("unknown REALTIME_BROKER %q", cfg.Broker)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
