package sessions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, p Persister) {
	t.Helper()
	ctx := context.Background()
	created := time.Date(2025, time.June, 2, 9, 30, 15, 0, time.UTC)
	clock := created

	s := NewStore(p, nil, WithClock(func() time.Time { return clock }), WithDebounce(time.Hour, time.Hour, time.Hour))
	s.GetOrCreate("alice", StateWaitingInitial)
	clock = created.Add(90 * time.Second)
	_, err := s.Update(ctx, "alice", Patch{
		State:           Ptr(StateAskingTime),
		Data:            map[string]string{"clarifications": "2"},
		PartialSchedule: &PartialSchedule{Known: KnownDate, Date: "03/06/2025", OriginalText: "tomorrow"},
	})
	require.NoError(t, err)
	s.GetOrCreate("bob", StateGreeting)
	require.NoError(t, s.FlushNow(ctx))

	reloaded := NewStore(p, nil, WithClock(func() time.Time { return clock }))
	loaded, expired, err := reloaded.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Empty(t, expired)

	got, ok := reloaded.Get("alice")
	require.True(t, ok)
	assert.Equal(t, StateAskingTime, got.State)
	assert.Equal(t, map[string]string{"clarifications": "2"}, got.Data)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, clock.Equal(got.LastActivity))
	require.NotNil(t, got.PartialSchedule)
	assert.Equal(t, "tomorrow", got.PartialSchedule.OriginalText)

	reloaded.Delete("bob")
	require.NoError(t, reloaded.FlushNow(ctx))
	table, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, table, 1)
}

func TestFilePersisterRoundTrip(t *testing.T) {
	roundTrip(t, NewFilePersister(filepath.Join(t.TempDir(), "sessions.json")))
}

func TestRedisPersisterRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	roundTrip(t, NewRedisPersister(client, ""))
}

func TestFilePersisterMissingFile(t *testing.T) {
	table, err := NewFilePersister(filepath.Join(t.TempDir(), "none.json")).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, table)
}
