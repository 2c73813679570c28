package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// DefaultRedisKey is the hash holding one field per identifier.
const DefaultRedisKey = "bookings"

// RedisStore keeps bookings in a single Redis hash.
type RedisStore struct {
	redis  *redis.Client
	key    string
	tracer trace.Tracer
	logger *logging.Logger
}

// NewRedisStore binds the store to client. An empty key uses DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string, logger *logging.Logger) *RedisStore {
	if client == nil {
		panic("bookings: redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisStore{redis: client, key: key, tracer: otel.Tracer("callback-scheduler/bookings"), logger: logger}
}

func (s *RedisStore) All(ctx context.Context) ([]Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.all")
	defer span.End()

	table, err := s.redis.HGetAll(ctx, s.key).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("bookings: load hash: %w", err)
	}
	return decodeTable(table, s.logger), nil
}

func (s *RedisStore) Get(ctx context.Context, identifier string) (Booking, bool, error) {
	raw, err := s.redis.HGet(ctx, s.key, identifier).Bytes()
	if errors.Is(err, redis.Nil) {
		return Booking{}, false, nil
	}
	if err != nil {
		return Booking{}, false, fmt.Errorf("bookings: load %s: %w", identifier, err)
	}
	b, err := decodeRecord(identifier, raw)
	if err != nil {
		return Booking{}, false, fmt.Errorf("bookings: decode %s: %w", identifier, err)
	}
	return b, true, nil
}

func (s *RedisStore) Put(ctx context.Context, b Booking) error {
	ctx, span := s.tracer.Start(ctx, "bookings.put")
	defer span.End()

	if b.Identifier == "" {
		return fmt.Errorf("bookings: identifier is required")
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("bookings: encode %s: %w", b.Identifier, err)
	}
	if err := s.redis.HSet(ctx, s.key, b.Identifier, data).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("bookings: save %s: %w", b.Identifier, err)
	}
	return nil
}
