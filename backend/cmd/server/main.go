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

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/efchatnet/efsocial/backend/cache"
	"github.com/efchatnet/efsocial/backend/config"
	"github.com/efchatnet/efsocial/backend/events"
	"github.com/efchatnet/efsocial/backend/integration"
	"github.com/efchatnet/efsocial/backend/logger"
	"github.com/efchatnet/efsocial/backend/middleware"
	"github.com/efchatnet/efsocial/backend/realtime"
	"github.com/efchatnet/efsocial/backend/storage/postgres"
	redisstore "github.com/efchatnet/efsocial/backend/storage/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger config is part of what failed to load
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		os.Stderr.WriteString("Failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database connection
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	store := postgres.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	// Redis connection
	rdb := goredis.NewClient(&goredis.Options{
		Addr: cfg.RedisURL,
	})
	defer rdb.Close()

	var nc *nats.Conn
	if cfg.Broker == config.BrokerNATS || cfg.Events.Enabled {
		nc, err = nats.Connect(cfg.NatsURL,
			nats.Name("efsocial"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.Timeout(5*time.Second),
		)
		if err != nil {
			return err
		}
		defer nc.Drain()
	}

	var broker realtime.Broker
	switch cfg.Broker {
	case config.BrokerLocal:
		broker = realtime.NewLocalBroker()
	case config.BrokerNATS:
		broker = realtime.NewNATSBroker(nc)
	default:
		broker = redisstore.NewBroker(rdb)
	}

	directory := postgres.NewDirectory(db)
	users := cache.NewUsers(directory, redisstore.NewCache(rdb), cfg.UserCacheTTL, log)

	social, err := integration.NewSocialIntegration(&integration.Config{
		Store:          store,
		Users:          users,
		Friends:        directory,
		Broker:         broker,
		JWTSecret:      cfg.JWT.Secret,
		JWTIssuer:      cfg.JWT.Issuer,
		AllowedOrigins: cfg.AllowedOrigins,
		Locale:         cfg.NotifyLocale,
		Log:            log,
	})
	if err != nil {
		return err
	}
	if err := social.Start(ctx); err != nil {
		return err
	}

	if cfg.Events.Enabled {
		consumer, err := events.NewConsumer(nc, events.ConsumerConfig{
			Stream:  cfg.Events.Stream,
			Subject: cfg.Events.Subject,
			Durable: cfg.Events.Durable,
		}, social.Dispatcher(), log)
		if err != nil {
			return err
		}
		if err := consumer.Start(); err != nil {
			return err
		}
		defer consumer.Stop()
	}

	r := mux.NewRouter()
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	social.RegisterRoutes(r, nil)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Social server starting",
			zap.String("port", cfg.Port),
			zap.String("broker", cfg.Broker),
			zap.String("jwt_issuer", cfg.JWT.Issuer))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
