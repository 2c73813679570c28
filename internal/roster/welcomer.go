package roster

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wolfman30/callback-scheduler/internal/observability/metrics"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// Greeter opens a conversation with an identifier.
type Greeter interface {
	Welcome(ctx context.Context, id string) error
}

// SessionLookup reports whether an identifier already has a conversation.
type SessionLookup interface {
	Exists(id string) bool
}

// Welcomer greets new roster members one at a time with a fixed spacing.
type Welcomer struct {
	greeter  Greeter
	sessions SessionLookup
	limiter  *rate.Limiter
	metrics  *metrics.SchedulerMetrics
	logger   *logging.Logger

	mu       sync.Mutex
	welcomed map[string]struct{}
}

// NewWelcomer builds a welcomer sending at most one welcome per delay.
func NewWelcomer(greeter Greeter, sessions SessionLookup, delay time.Duration, m *metrics.SchedulerMetrics, logger *logging.Logger) *Welcomer {
	if greeter == nil {
		panic("roster: greeter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Welcomer{
		greeter:  greeter,
		sessions: sessions,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  m,
		logger:   logger,
		welcomed: map[string]struct{}{},
	}
}

// WelcomeAll greets each identifier that has neither been welcomed nor has a
// session. A failed send forgets the identifier so a later reload retries it.
func (w *Welcomer) WelcomeAll(ctx context.Context, ids []string) {
	for _, id := range ids {
		if !w.claim(id) {
			w.metrics.ObserveWelcome("skipped")
			continue
		}
		if err := w.limiter.Wait(ctx); err != nil {
			w.release(id)
			return
		}
		if err := w.greeter.Welcome(ctx, id); err != nil {
			w.release(id)
			w.metrics.ObserveWelcome("failed")
			w.logger.Warn("roster: welcome failed", "identifier", id, "error", err)
			continue
		}
		w.metrics.ObserveWelcome("sent")
		w.logger.Info("roster: welcomed", "identifier", id)
	}
}

// Welcomed reports whether id was greeted by this process.
func (w *Welcomer) Welcomed(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.welcomed[id]
	return ok
}

func (w *Welcomer) claim(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.welcomed[id]; ok {
		return false
	}
	if w.sessions != nil && w.sessions.Exists(id) {
		return false
	}
	w.welcomed[id] = struct{}{}
	return true
}

func (w *Welcomer) release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.welcomed, id)
}
