// Package backend builds the single handle through which the service reaches
// its auth, storage and table capabilities.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pixelnest/gallery/internal/auth"
	"github.com/pixelnest/gallery/internal/config"
	"github.com/pixelnest/gallery/internal/db"
	"github.com/pixelnest/gallery/internal/gallery"
	"github.com/pixelnest/gallery/internal/session"
	"github.com/pixelnest/gallery/internal/storage"
	"github.com/pixelnest/gallery/internal/user"
)

// Handle bundles the configured capabilities. It is built once at startup
// and passed explicitly to everything that needs it.
type Handle struct {
	Auth    *auth.Service
	Storage storage.Storage
	Table   gallery.Table

	// Events delivers session and gallery notifications; Hub is where
	// local watchers subscribe.
	Events session.Publisher
	Hub    *session.Hub

	pool   *pgxpool.Pool
	redis  *redis.Client
	bucket *storage.MinioStorage
	relay  *session.RedisRelay
	logger *slog.Logger
}

// New connects to Postgres, applies migrations, opens the bucket and,
// when configured, Redis. Any failure here is fatal for the caller.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Handle, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	bucket, err := storage.NewMinioStorage(ctx, storage.MinioOptions{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		Region:    cfg.StorageRegion,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	h := &Handle{
		Table:  gallery.NewRepository(pool),
		Hub:    session.NewHub(),
		pool:   pool,
		bucket: bucket,
		logger: logger,
	}

	var sessions auth.SessionStore
	var store storage.Storage = bucket
	h.Events = h.Hub

	if cfg.RedisURL != "" {
		rdb, err := db.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		h.redis = rdb
		sessions = auth.NewRedisSessionStore(rdb)
		h.relay = session.NewRedisRelay(rdb, h.Hub, logger)
		h.Events = h.relay
		if cfg.SignedURLCache {
			store = storage.NewCachedStorage(bucket, rdb, logger)
		}
	} else {
		logger.Warn("REDIS_URL not set, sessions and notifications are local to this process")
		sessions = auth.NewMemorySessionStore()
		if cfg.SignedURLCache {
			logger.Warn("SIGNED_URL_CACHE requires REDIS_URL, cache disabled")
		}
	}
	h.Storage = store

	users := user.NewService(user.NewRepository(pool))
	h.Auth = auth.NewService(users, sessions, h.Events, cfg.JWTSecret, cfg.SessionTTL, logger)

	return h, nil
}

// Run forwards notifications from other instances until ctx is cancelled.
// Without Redis it returns immediately.
func (h *Handle) Run(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	return h.relay.Run(ctx)
}

// Ready checks that every backing service answers.
func (h *Handle) Ready(ctx context.Context) error {
	var errs []error
	if err := h.pool.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := h.bucket.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	return errors.Join(errs...)
}

// Close releases the database pool and the Redis client.
func (h *Handle) Close() {
	if h.redis != nil {
		if err := h.redis.Close(); err != nil {
			h.logger.Warn("close redis", slog.String("error", err.Error()))
		}
	}
	h.pool.Close()
}
