package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/callback-scheduler/internal/bookings"
	appconfig "github.com/wolfman30/callback-scheduler/internal/config"
	"github.com/wolfman30/callback-scheduler/internal/sessions"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Storage bundles the session persister and booking store for one backend.
type Storage struct {
	Backend  string
	Sessions sessions.Persister
	Bookings bookings.Store
	Redis    *redis.Client
	closer   func() error
}

// Close releases the redis connection, if any.
func (s *Storage) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}

// BuildStorage selects file or redis persistence from STORE_BACKEND. The
// redis backend fails when the server does not answer a ping.
func BuildStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.StoreBackend {
	case "", BackendFile:
		return &Storage{
			Backend:  BackendFile,
			Sessions: sessions.NewFilePersister(cfg.SessionsFile),
			Bookings: bookings.NewFileStore(cfg.BookingsFile, logger),
		}, nil
	case BackendRedis:
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, fmt.Errorf("bootstrap: redis backend unavailable at %q", cfg.RedisAddr)
		}
		return &Storage{
			Backend:  BackendRedis,
			Sessions: sessions.NewRedisPersister(client, ""),
			Bookings: bookings.NewRedisStore(client, "", logger),
			Redis:    client,
			closer:   client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}
}
