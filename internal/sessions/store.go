package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

const (
	DefaultDebounce          = 2 * time.Second
	DefaultShortDebounce     = 500 * time.Millisecond
	DefaultImmediateDebounce = 50 * time.Millisecond
	DefaultBatchCap          = 20
	DefaultTimeout           = 7 * 24 * time.Hour

	// shortBatchThreshold is the pending count at which the short delay kicks in.
	shortBatchThreshold = 5
)

// Persister stores the full session table. Save always receives every held
// session, so a successful Save also removes deleted identifiers.
type Persister interface {
	Load(ctx context.Context) (map[string][]byte, error)
	Save(ctx context.Context, table map[string][]byte) error
}

// TimeoutNotifier tells an identifier its session expired.
type TimeoutNotifier interface {
	NotifyTimeout(ctx context.Context, s Session) error
}

// FlushObserver receives one call per write attempt.
type FlushObserver interface {
	ObserveFlush(trigger string, sessions int, err error)
}

type pendingEntry struct {
	reason Reason
	at     time.Time
}

// Store is the in-memory session table with debounced persistence.
type Store struct {
	persister Persister
	logger    *logging.Logger
	notifier  TimeoutNotifier
	observer  FlushObserver
	now       func() time.Time

	debounce, shortDebounce, immediateDebounce time.Duration
	batchCap                                   int
	timeout                                    time.Duration

	mu         sync.Mutex
	sessions   map[string]*Session
	pending    map[string]pendingEntry
	timer      *time.Timer
	deadline   time.Time
	generation uint64

	// flushMu serializes writes so a timer flush never overlaps a forced one.
	flushMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce sets the full, short and immediate delays.
func WithDebounce(full, short, immediate time.Duration) Option {
	return func(s *Store) {
		if full > 0 {
			s.debounce = full
		}
		if short > 0 {
			s.shortDebounce = short
		}
		if immediate > 0 {
			s.immediateDebounce = immediate
		}
	}
}

// WithBatchCap sets the pending count that triggers the immediate delay.
func WithBatchCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchCap = n
		}
	}
}

// WithTimeout sets the inactivity period after which sessions expire.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTimeoutNotifier sets who is told about expired sessions.
func WithTimeoutNotifier(n TimeoutNotifier) Option {
	return func(s *Store) { s.notifier = n }
}

// SetTimeoutNotifier attaches n after construction, for notifiers that
// themselves depend on the store.
func (s *Store) SetTimeoutNotifier(n TimeoutNotifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// WithFlushObserver hooks flush metrics.
func WithFlushObserver(o FlushObserver) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock overrides time.Now for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore builds an empty store. Call LoadAll to restore persisted sessions.
func NewStore(persister Persister, logger *logging.Logger, opts ...Option) *Store {
	if persister == nil {
		panic("sessions: persister cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		persister:         persister,
		logger:            logger,
		now:               time.Now,
		debounce:          DefaultDebounce,
		shortDebounce:     DefaultShortDebounce,
		immediateDebounce: DefaultImmediateDebounce,
		batchCap:          DefaultBatchCap,
		timeout:           DefaultTimeout,
		sessions:          make(map[string]*Session),
		pending:           make(map[string]pendingEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns a copy of the identifier's session, creating it in the
// initial state when absent.
func (s *Store) GetOrCreate(id string, initial State) (Session, bool) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		out := sess.Clone()
		s.mu.Unlock()
		return out, false
	}
	now := s.now()
	sess := &Session{
		Identifier:   id,
		State:        initial,
		Data:         map[string]string{},
		CreatedAt:    now,
		LastActivity: now,
	}
	s.sessions[id] = sess
	out := sess.Clone()
	s.markDirtyLocked(id, ReasonActivity)
	s.mu.Unlock()
	return out, true
}

// Exists reports whether id has a session.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Get returns a copy of the identifier's session.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.Clone(), true
}

// Update merges p into the session, stamps its activity time and marks it
// dirty with the derived reason. State changes are flushed before returning.
// Write failures are logged and retried later; they are not returned.
func (s *Store) Update(ctx context.Context, id string, p Patch) (Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err := p.validate(sess); err != nil {
		s.mu.Unlock()
		return Session{}, err
	}
	reason := p.apply(sess)
	sess.LastActivity = s.now()
	out := sess.Clone()
	mustFlush := s.markDirtyLocked(id, reason)
	s.mu.Unlock()

	if mustFlush {
		s.flushSync(ctx, string(reason))
	}
	return out, nil
}

// RecordInbound counts an inbound message and refreshes the activity time.
func (s *Store) RecordInbound(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	sess.Metadata.MessageCount++
	sess.LastActivity = s.now()
	s.markDirtyLocked(id, ReasonActivity)
}

// MarkDirty queues id for the next write.
func (s *Store) MarkDirty(ctx context.Context, id string, reason Reason) {
	s.mu.Lock()
	mustFlush := s.markDirtyLocked(id, reason)
	s.mu.Unlock()
	if mustFlush {
		s.flushSync(ctx, string(reason))
	}
}

// Delete drops a session; the next write removes it from storage.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	s.markDirtyLocked(id, ReasonExpiry)
}

// Snapshot returns copies of every session ordered by identifier.
func (s *Store) Snapshot() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Len returns the number of held sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// PendingCount returns the number of identifiers awaiting a write.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// delayFor picks the debounce delay for a pending set of size n.
func (s *Store) delayFor(n int) time.Duration {
	switch {
	case n >= s.batchCap:
		return s.immediateDebounce
	case n >= shortBatchThreshold:
		return s.shortDebounce
	default:
		return s.debounce
	}
}

// markDirtyLocked records id as pending and reports whether the caller must
// flush synchronously. Otherwise it arms the timer, only ever moving the
// deadline earlier.
func (s *Store) markDirtyLocked(id string, reason Reason) bool {
	s.pending[id] = pendingEntry{reason: reason, at: time.Now()}
	if reason.synchronous() {
		return true
	}
	s.armLocked(s.delayFor(len(s.pending)))
	return false
}

func (s *Store) armLocked(delay time.Duration) {
	deadline := time.Now().Add(delay)
	if s.timer != nil && !deadline.Before(s.deadline) {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	gen := s.generation
	s.deadline = deadline
	s.timer = time.AfterFunc(delay, func() { s.flushFromTimer(gen) })
}

func (s *Store) flushFromTimer(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	empty := len(s.pending) == 0
	s.mu.Unlock()
	if empty {
		return
	}
	if err := s.flush(context.Background(), "debounce"); err != nil {
		s.logger.Error("sessions: debounced flush failed", "error", err)
	}
}

func (s *Store) flushSync(ctx context.Context, trigger string) {
	if err := s.flush(ctx, trigger); err != nil {
		s.logger.Error("sessions: synchronous flush failed", "trigger", trigger, "error", err)
	}
}

// FlushNow cancels any pending timer and writes every held session, blocking
// until the write completes.
func (s *Store) FlushNow(ctx context.Context) error {
	return s.flush(ctx, "forced")
}

func (s *Store) flush(ctx context.Context, trigger string) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
	batch := s.pending
	s.pending = make(map[string]pendingEntry)

	table := make(map[string][]byte, len(s.sessions))
	var encodeErr error
	for id, sess := range s.sessions {
		if _, ok := batch[id]; ok {
			sess.Metadata.SaveCount++
		}
		data, err := json.Marshal(sess)
		if err != nil {
			encodeErr = fmt.Errorf("sessions: encode %s: %w", id, err)
			break
		}
		table[id] = data
	}
	count := len(table)
	s.mu.Unlock()

	err := encodeErr
	if err == nil {
		err = s.persister.Save(ctx, table)
	}
	if s.observer != nil {
		s.observer.ObserveFlush(trigger, count, err)
	}
	if err != nil {
		s.mu.Lock()
		for id, e := range batch {
			if _, ok := s.pending[id]; !ok {
				s.pending[id] = e
			}
		}
		if len(s.pending) > 0 {
			s.armLocked(s.debounce)
		}
		s.mu.Unlock()
		return fmt.Errorf("sessions: flush (%s): %w", trigger, err)
	}
	s.logger.Debug("sessions: flushed", "trigger", trigger, "sessions", count, "dirty", len(batch))
	return nil
}

// LoadAll replaces the in-memory table with the persisted one, expires idle
// sessions and writes the reconciled table back. Undecodable records are
// skipped.
func (s *Store) LoadAll(ctx context.Context) (loaded int, expired []string, err error) {
	raw, err := s.persister.Load(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("sessions: load: %w", err)
	}

	restored := make(map[string]*Session, len(raw))
	for id, data := range raw {
		sess, err := decodeSession(id, data, s.now)
		if err != nil {
			s.logger.Warn("sessions: skipping malformed session", "identifier", id, "error", err)
			continue
		}
		restored[id] = sess
	}

	s.mu.Lock()
	s.sessions = restored
	s.mu.Unlock()

	expired = s.sweep(ctx)
	if err := s.FlushNow(ctx); err != nil {
		return len(restored), expired, err
	}
	s.logger.Info("sessions: loaded", "sessions", len(restored)-len(expired), "expired", len(expired))
	return len(restored), expired, nil
}

func decodeSession(id string, data []byte, now func() time.Time) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	sess.Identifier = id
	if sess.State == "" {
		sess.State = StateGreeting
	}
	if sess.Data == nil {
		sess.Data = map[string]string{}
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now()
	}
	if sess.LastActivity.IsZero() {
		sess.LastActivity = sess.CreatedAt
	}
	return &sess, nil
}

// SweepExpired removes sessions idle for longer than the timeout, notifies
// each removed identifier once and persists the result.
func (s *Store) SweepExpired(ctx context.Context) ([]string, error) {
	expired := s.sweep(ctx)
	if len(expired) == 0 {
		return nil, nil
	}
	return expired, s.FlushNow(ctx)
}

func (s *Store) sweep(ctx context.Context) []string {
	cutoff := s.now().Add(-s.timeout)

	s.mu.Lock()
	var removed []Session
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			removed = append(removed, sess.Clone())
			delete(s.sessions, id)
			delete(s.pending, id)
		}
	}
	notifier := s.notifier
	s.mu.Unlock()

	sort.Slice(removed, func(i, j int) bool { return removed[i].Identifier < removed[j].Identifier })
	ids := make([]string, 0, len(removed))
	for _, sess := range removed {
		ids = append(ids, sess.Identifier)
		if notifier == nil {
			continue
		}
		if err := notifier.NotifyTimeout(ctx, sess); err != nil {
			s.logger.Warn("sessions: timeout notice failed", "identifier", sess.Identifier, "error", err)
		}
	}
	return ids
}

// RunSweeper expires idle sessions every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ids, err := s.SweepExpired(ctx); err != nil {
				s.logger.Error("sessions: sweep flush failed", "expired", len(ids), "error", err)
			} else if len(ids) > 0 {
				s.logger.Info("sessions: expired idle sessions", "count", len(ids))
			}
		}
	}
}
