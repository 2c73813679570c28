package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu       sync.Mutex
	table    map[string][]byte
	saves    int
	failNext int
}

func newMemPersister() *memPersister {
	return &memPersister{table: map[string][]byte{}}
}

func (m *memPersister) Load(context.Context) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.table))
	for k, v := range m.table {
		out[k] = v
	}
	return out, nil
}

func (m *memPersister) Save(_ context.Context, table map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errors.New("disk full")
	}
	m.saves++
	m.table = table
	return nil
}

func (m *memPersister) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memPersister) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.table[id]
	return ok
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingNotifier) NotifyTimeout(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, s.Identifier)
	return nil
}

func TestUpdateStateChangeFlushesSynchronously(t *testing.T) {
	p := newMemPersister()
	s := NewStore(p, nil, WithDebounce(time.Hour, time.Hour, time.Hour))
	ctx := context.Background()

	s.GetOrCreate("alice", StateWaitingInitial)
	assert.Equal(t, 0, p.saveCount())

	sess, err := s.Update(ctx, "alice", Patch{State: Ptr(StateAskingCallTime)})
	require.NoError(t, err)
	assert.Equal(t, StateAskingCallTime, sess.State)
	assert.Equal(t, 1, p.saveCount())
	assert.Equal(t, 0, s.PendingCount())
	assert.True(t, p.has("alice"))
}

func TestUpdateDataIsDebounced(t *testing.T) {
	p := newMemPersister()
	s := NewStore(p, nil, WithDebounce(30*time.Millisecond, 10*time.Millisecond, time.Millisecond))
	ctx := context.Background()

	s.GetOrCreate("alice", StateAskingReason)
	_, err := s.Update(ctx, "alice", Patch{Data: map[string]string{"reason": "busy"}})
	require.NoError(t, err)
	_, err = s.Update(ctx, "alice", Patch{Data: map[string]string{"detail": "at work"}})
	require.NoError(t, err)
	assert.Equal(t, 0, p.saveCount())

	require.Eventually(t, func() bool { return p.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, p.saveCount(), "one batch for the burst")

	var stored Session
	p.mu.Lock()
	require.NoError(t, json.Unmarshal(p.table["alice"], &stored))
	p.mu.Unlock()
	assert.Equal(t, map[string]string{"reason": "busy", "detail": "at work"}, stored.Data)
	assert.Equal(t, 1, stored.Metadata.SaveCount)
}

func TestDelayShrinksWithPendingCount(t *testing.T) {
	s := NewStore(newMemPersister(), nil, WithDebounce(2*time.Second, 500*time.Millisecond, 50*time.Millisecond), WithBatchCap(20))
	assert.Equal(t, 2*time.Second, s.delayFor(1))
	assert.Equal(t, 2*time.Second, s.delayFor(4))
	assert.Equal(t, 500*time.Millisecond, s.delayFor(5))
	assert.Equal(t, 500*time.Millisecond, s.delayFor(19))
	assert.Equal(t, 50*time.Millisecond, s.delayFor(20))
}

func TestBatchCapTriggersQuickWrite(t *testing.T) {
	p := newMemPersister()
	s := NewStore(p, nil, WithDebounce(time.Hour, time.Hour, 5*time.Millisecond), WithBatchCap(3))
	for _, id := range []string{"a", "b", "c"} {
		s.GetOrCreate(id, StateGreeting)
	}
	require.Eventually(t, func() bool { return p.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.PendingCount())
}

func TestFlushNowCancelsTimer(t *testing.T) {
	p := newMemPersister()
	s := NewStore(p, nil, WithDebounce(40*time.Millisecond, 40*time.Millisecond, 40*time.Millisecond))
	s.GetOrCreate("alice", StateGreeting)

	require.NoError(t, s.FlushNow(context.Background()))
	assert.Equal(t, 1, p.saveCount())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, p.saveCount(), "cancelled timer must not write again")
}

func TestFailedFlushRequeues(t *testing.T) {
	p := newMemPersister()
	p.failNext = 1
	s := NewStore(p, nil, WithDebounce(20*time.Millisecond, 20*time.Millisecond, 20*time.Millisecond))
	ctx := context.Background()

	s.GetOrCreate("alice", StateWaitingInitial)
	_, err := s.Update(ctx, "alice", Patch{State: Ptr(StateAskingCallTime)})
	require.NoError(t, err, "write failures are not surfaced to callers")
	assert.Equal(t, 0, p.saveCount())
	assert.Equal(t, 1, s.PendingCount())

	require.Eventually(t, func() bool { return p.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, p.has("alice"))
}

func TestUpdateValidation(t *testing.T) {
	s := NewStore(newMemPersister(), nil, WithDebounce(time.Hour, time.Hour, time.Hour))
	ctx := context.Background()

	_, err := s.Update(ctx, "ghost", Patch{})
	assert.ErrorIs(t, err, ErrUnknownSession)

	s.GetOrCreate("alice", StateConfirming)
	_, err = s.Update(ctx, "alice", Patch{FinalSchedule: &Schedule{Date: "03/06/2025", Time: "15:00"}})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	_, err = s.Update(ctx, "alice", Patch{
		PartialSchedule: &PartialSchedule{Known: KnownDate, Date: "03/06/2025"},
		PendingSchedule: &Schedule{Date: "03/06/2025", Time: "15:00"},
	})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	sess, err := s.Update(ctx, "alice", Patch{
		State:         Ptr(StateCompleted),
		FinalSchedule: &Schedule{Date: "03/06/2025", Time: "15:00"},
	})
	require.NoError(t, err)
	assert.NotNil(t, sess.FinalSchedule)
}

func TestPartialAndPendingAreExclusive(t *testing.T) {
	s := NewStore(newMemPersister(), nil, WithDebounce(time.Hour, time.Hour, time.Hour))
	ctx := context.Background()
	s.GetOrCreate("alice", StateAskingCallTime)

	sess, err := s.Update(ctx, "alice", Patch{PartialSchedule: &PartialSchedule{Known: KnownDate, Date: "03/06/2025"}})
	require.NoError(t, err)
	require.NotNil(t, sess.PartialSchedule)

	sess, err = s.Update(ctx, "alice", Patch{PendingSchedule: &Schedule{Date: "03/06/2025", Time: "15:00"}})
	require.NoError(t, err)
	assert.Nil(t, sess.PartialSchedule)
	assert.NotNil(t, sess.PendingSchedule)

	sess, err = s.Update(ctx, "alice", Patch{ClearPending: true})
	require.NoError(t, err)
	assert.Nil(t, sess.PendingSchedule)
}

func TestPatchReason(t *testing.T) {
	tests := []struct {
		name  string
		start State
		patch Patch
		want  Reason
	}{
		{"state change", StateGreeting, Patch{State: Ptr(StateAskingCallTime), CurrentQuestion: Ptr("q")}, ReasonStateChange},
		{"completion", StateConfirming, Patch{State: Ptr(StateCompleted)}, ReasonCompletion},
		{"same state is not a change", StateGreeting, Patch{State: Ptr(StateGreeting)}, ReasonActivity},
		{"question", StateGreeting, Patch{CurrentQuestion: Ptr("date"), Data: map[string]string{"a": "b"}}, ReasonQuestionChange},
		{"data", StateGreeting, Patch{Data: map[string]string{"a": "b"}}, ReasonDataUpdate},
		{"free text", StateGreeting, Patch{WaitingForFreeText: Ptr(true)}, ReasonFreeTextChange},
		{"nothing", StateGreeting, Patch{}, ReasonActivity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &Session{State: tt.start}
			assert.Equal(t, tt.want, tt.patch.apply(sess))
		})
	}
}

func TestGetOrCreateReturnsCopies(t *testing.T) {
	s := NewStore(newMemPersister(), nil, WithDebounce(time.Hour, time.Hour, time.Hour))
	sess, created := s.GetOrCreate("alice", StateGreeting)
	require.True(t, created)
	sess.Data["leak"] = "x"

	again, created := s.GetOrCreate("alice", StateWaitingInitial)
	assert.False(t, created)
	assert.Equal(t, StateGreeting, again.State)
	assert.Empty(t, again.Data)
}

func TestLoadAllExpiresIdleSessions(t *testing.T) {
	now := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	p := newMemPersister()
	fresh, _ := json.Marshal(Session{State: StateAskingCallTime, LastActivity: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)})
	stale, _ := json.Marshal(Session{State: StateWaitingInitial, LastActivity: now.Add(-8 * 24 * time.Hour)})
	p.table = map[string][]byte{
		"fresh":  fresh,
		"stale":  stale,
		"broken": []byte(`{"state": 42}`),
		"bare":   []byte(`{}`),
	}

	n := &recordingNotifier{}
	s := NewStore(p, nil,
		WithClock(func() time.Time { return now }),
		WithTimeout(7*24*time.Hour),
		WithTimeoutNotifier(n),
	)

	loaded, expired, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)
	assert.Equal(t, []string{"stale"}, expired)
	assert.Equal(t, []string{"stale"}, n.ids, "one notice per removed session")

	assert.Equal(t, 1, p.saveCount())
	assert.False(t, p.has("stale"))
	assert.True(t, p.has("fresh"))

	bare, ok := s.Get("bare")
	require.True(t, ok)
	assert.Equal(t, StateGreeting, bare.State)
	assert.NotNil(t, bare.Data)
	assert.Equal(t, now, bare.LastActivity)

	got, ok := s.Get("fresh")
	require.True(t, ok)
	assert.Equal(t, StateAskingCallTime, got.State)

	expired, err = s.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expired)
	assert.Len(t, n.ids, 1)
}

func TestRecordInbound(t *testing.T) {
	s := NewStore(newMemPersister(), nil, WithDebounce(time.Hour, time.Hour, time.Hour))
	s.GetOrCreate("alice", StateGreeting)
	s.RecordInbound("alice")
	s.RecordInbound("alice")
	s.RecordInbound("nobody")

	sess, _ := s.Get("alice")
	assert.Equal(t, 2, sess.Metadata.MessageCount)
}
