package sessions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/callback-scheduler/internal/fsutil"
)

// FilePersister keeps the session table as one JSON object on disk.
type FilePersister struct {
	path string
}

// NewFilePersister writes to path, creating parent directories on demand.
func NewFilePersister(path string) *FilePersister {
	if path == "" {
		panic("sessions: file persister path cannot be empty")
	}
	return &FilePersister{path: path}
}

func (p *FilePersister) Load(_ context.Context) (map[string][]byte, error) {
	table := map[string]json.RawMessage{}
	if _, err := fsutil.ReadJSON(p.path, &table); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(table))
	for id, raw := range table {
		out[id] = raw
	}
	return out, nil
}

func (p *FilePersister) Save(_ context.Context, table map[string][]byte) error {
	doc := make(map[string]json.RawMessage, len(table))
	for id, data := range table {
		doc[id] = data
	}
	return fsutil.WriteJSONAtomic(p.path, doc)
}

// DefaultRedisKey is the hash holding one field per identifier.
const DefaultRedisKey = "sessions"

// RedisPersister keeps the session table in a Redis hash, replaced inside a
// MULTI/EXEC block on each save.
type RedisPersister struct {
	redis  *redis.Client
	key    string
	tracer trace.Tracer
}

func NewRedisPersister(client *redis.Client, key string) *RedisPersister {
	if client == nil {
		panic("sessions: redis client cannot be nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPersister{redis: client, key: key, tracer: otel.Tracer("callback-scheduler/sessions")}
}

func (p *RedisPersister) Load(ctx context.Context) (map[string][]byte, error) {
	ctx, span := p.tracer.Start(ctx, "sessions.load")
	defer span.End()

	raw, err := p.redis.HGetAll(ctx, p.key).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sessions: load hash: %w", err)
	}
	out := make(map[string][]byte, len(raw))
	for id, v := range raw {
		out[id] = []byte(v)
	}
	return out, nil
}

func (p *RedisPersister) Save(ctx context.Context, table map[string][]byte) error {
	ctx, span := p.tracer.Start(ctx, "sessions.save")
	defer span.End()

	values := make([]any, 0, len(table)*2)
	for id, data := range table {
		values = append(values, id, data)
	}
	_, err := p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.key)
		if len(values) > 0 {
			pipe.HSet(ctx, p.key, values...)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: save hash: %w", err)
	}
	return nil
}
