package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestParse(t *testing.T) {
	ids, err := Parse([]byte(`["+1 555 222 3333", "", "agent@example.com"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"+15552223333", "agent@example.com"}, ids)

	ids, err = Parse([]byte(`{"identifiers": ["15552223333"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"+15552223333"}, ids)

	_, err = Parse([]byte(`{"identifiers": 5}`))
	assert.Error(t, err)
}

func TestReloadReturnsAdded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.json")
	r := New(path, nil)

	added, err := r.Reload()
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.True(t, r.Contains("+15550000000"), "missing file leaves the roster open")

	writeRoster(t, path, `["+15551110000", "+15552220000"]`)
	added, err = r.Reload()
	require.NoError(t, err)
	assert.Equal(t, []string{"+15551110000", "+15552220000"}, added)
	assert.True(t, r.Contains("1 (555) 111-0000"))
	assert.False(t, r.Contains("+15550000000"))

	writeRoster(t, path, `["+15552220000", "+15553330000"]`)
	added, err = r.Reload()
	require.NoError(t, err)
	assert.Equal(t, []string{"+15553330000"}, added)
	assert.False(t, r.Contains("+15551110000"))
	assert.Equal(t, []string{"+15552220000", "+15553330000"}, r.Identifiers())

	writeRoster(t, path, `not json`)
	_, err = r.Reload()
	assert.Error(t, err)
	assert.True(t, r.Contains("+15553330000"), "a bad file keeps the previous roster")
}

type recordingGreeter struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (g *recordingGreeter) Welcome(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, id)
	if g.fail[id] {
		return errors.New("send failed")
	}
	return nil
}

func (g *recordingGreeter) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

type existing map[string]bool

func (e existing) Exists(id string) bool { return e[id] }

func TestWelcomeAllSkipsAndRetries(t *testing.T) {
	g := &recordingGreeter{fail: map[string]bool{"+3": true}}
	w := NewWelcomer(g, existing{"+2": true}, 0, nil, nil)

	w.WelcomeAll(context.Background(), []string{"+1", "+2", "+3", "+1"})
	assert.Equal(t, []string{"+1", "+3"}, g.Calls())
	assert.True(t, w.Welcomed("+1"))
	assert.False(t, w.Welcomed("+3"), "failed welcome is forgotten")

	g.fail = nil
	w.WelcomeAll(context.Background(), []string{"+1", "+3"})
	assert.Equal(t, []string{"+1", "+3", "+3"}, g.Calls())
}

func TestWelcomeAllPaces(t *testing.T) {
	g := &recordingGreeter{}
	w := NewWelcomer(g, nil, 40*time.Millisecond, nil, nil)

	start := time.Now()
	w.WelcomeAll(context.Background(), []string{"+1", "+2", "+3"})
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.Len(t, g.Calls(), 3)
}

func TestWelcomeAllStopsOnCancel(t *testing.T) {
	g := &recordingGreeter{}
	w := NewWelcomer(g, nil, time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	w.WelcomeAll(ctx, []string{"+1"})
	cancel()
	w.WelcomeAll(ctx, []string{"+2"})

	assert.Equal(t, []string{"+1"}, g.Calls())
	assert.False(t, w.Welcomed("+2"))
}

func TestWatcherWelcomesAddedMembers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.json")
	writeRoster(t, path, `["+15551110000"]`)

	r := New(path, nil)
	_, err := r.Reload()
	require.NoError(t, err)

	addedCh := make(chan []string, 4)
	w := NewWatcher(r, func(_ context.Context, added []string) { addedCh <- added }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		writeRoster(t, path, `["+15551110000", "+15552220000"]`)
		select {
		case added := <-addedCh:
			return assert.Equal(t, []string{"+15552220000"}, added)
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
