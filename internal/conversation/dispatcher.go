package conversation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// ErrDispatcherClosed is returned by Submit after Close.
var ErrDispatcherClosed = errors.New("conversation: dispatcher closed")

const (
	defaultWorkerCount = 4
	defaultQueueSize   = 64
)

// Job is one inbound message waiting to be handled.
type Job struct {
	Identifier string
	Text       string
	ReceivedAt time.Time
}

// Handler processes messages; *Driver implements it.
type Handler interface {
	HandleMessage(ctx context.Context, id, text string) (Outcome, error)
	ReplyError(ctx context.Context, id string)
}

// Flusher forces session state to durable storage.
type Flusher interface {
	FlushNow(ctx context.Context) error
}

// Dispatcher fans jobs out to workers partitioned by identifier, so messages
// from one identifier are handled in arrival order and never concurrently.
type Dispatcher struct {
	handler Handler
	flusher Flusher
	logger  *logging.Logger
	queues  []chan Job
	done    chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	submits   sync.WaitGroup
	wg        sync.WaitGroup
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	workers   int
	queueSize int
}

// WithWorkerCount sets the number of partitions.
func WithWorkerCount(count int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithQueueSize sets the per-partition buffer.
func WithQueueSize(size int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if size > 0 {
			cfg.queueSize = size
		}
	}
}

// NewDispatcher builds a dispatcher. flusher may be nil.
func NewDispatcher(handler Handler, flusher Flusher, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if handler == nil {
		panic("conversation: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := dispatcherConfig{workers: defaultWorkerCount, queueSize: defaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	queues := make([]chan Job, cfg.workers)
	for i := range queues {
		queues[i] = make(chan Job, cfg.queueSize)
	}
	return &Dispatcher{handler: handler, flusher: flusher, logger: logger, queues: queues, done: make(chan struct{})}
}

// Start launches one goroutine per partition. Workers stop when ctx is done
// or, after Close, once their queue is drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, q := range d.queues {
		d.wg.Add(1)
		go d.run(ctx, i+1, q)
	}
}

// Submit queues job on its identifier's partition, blocking while it is full.
// A blocked Submit returns ErrDispatcherClosed as soon as Close is called.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrDispatcherClosed
	}
	d.submits.Add(1)
	d.mu.RUnlock()
	defer d.submits.Done()

	select {
	case d.queues[d.partition(job.Identifier)] <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherClosed
	}
}

// Close stops accepting jobs and releases blocked submitters. Queued jobs are
// still handled while the workers' context is live. Close never waits on the
// workers themselves.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()

		// Queues close only once no sender can still reach them.
		d.submits.Wait()
		for _, q := range d.queues {
			close(q)
		}
	})
}

// Wait blocks until all workers exit.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) partition(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) run(ctx context.Context, workerID int, q <-chan Job) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q:
			if !ok {
				return
			}
			d.process(ctx, workerID, job)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, workerID int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("conversation handler panicked",
				"identifier", job.Identifier, "worker", workerID,
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			d.handler.ReplyError(ctx, job.Identifier)
			if d.flusher != nil {
				if err := d.flusher.FlushNow(ctx); err != nil {
					d.logger.Error("flush after panic failed", "error", err)
				}
			}
		}
	}()

	out, err := d.handler.HandleMessage(ctx, job.Identifier, job.Text)
	if err != nil {
		d.logger.Error("conversation turn failed", "identifier", job.Identifier, "worker", workerID, "error", err)
		d.handler.ReplyError(ctx, job.Identifier)
		return
	}
	d.logger.Debug("conversation turn handled",
		"identifier", job.Identifier, "worker", workerID,
		"from", out.From, "to", out.To, "event", out.Event, "ignored", out.Ignored,
		"queued_for", time.Since(job.ReceivedAt).String())
}
