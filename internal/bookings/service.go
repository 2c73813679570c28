package bookings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/callback-scheduler/internal/temporal"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

var tracer = otel.Tracer("callback-scheduler/bookings")

// Service performs the conflict check and the write as one step.
type Service struct {
	store    Store
	detector *Detector
	logger   *logging.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// NewService wires a store and detector.
func NewService(store Store, detector *Detector, logger *logging.Logger) *Service {
	if store == nil || detector == nil {
		panic("bookings: store and detector are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, detector: detector, logger: logger, now: time.Now}
}

// Detector exposes the conflict detector used by Book.
func (s *Service) Detector() *Detector { return s.detector }

// Store exposes the underlying booking store.
func (s *Service) Store() Store { return s.store }

// Check runs the conflict detector without writing.
func (s *Service) Check(ctx context.Context, date temporal.Date, clock temporal.Clock, exclude string) (Conflict, error) {
	return s.detector.Check(ctx, date, clock, exclude)
}

// Book re-checks for conflicts and writes the identifier's booking, replacing
// any earlier one. On a conflict it returns ErrConflict with the details.
func (s *Service) Book(ctx context.Context, identifier string, date temporal.Date, clock temporal.Clock, meta map[string]string) (Booking, Conflict, error) {
	ctx, span := tracer.Start(ctx, "bookings.book")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	conflict, err := s.detector.Check(ctx, date, clock, identifier)
	if err != nil {
		span.RecordError(err)
		return Booking{}, Conflict{}, err
	}
	if conflict.HasConflict {
		return Booking{}, conflict, ErrConflict
	}

	now := s.now().UTC()
	b := Booking{
		Identifier: identifier,
		Reference:  uuid.NewString(),
		Date:       date.String(),
		Time:       clock.String(),
		Status:     StatusScheduled,
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata:   meta,
	}
	if prev, ok, err := s.store.Get(ctx, identifier); err == nil && ok {
		b.CreatedAt = prev.CreatedAt
		s.logger.Info("bookings: replacing existing booking",
			"identifier", identifier, "previous_date", prev.Date, "previous_time", prev.Time)
	}
	if err := s.store.Put(ctx, b); err != nil {
		span.RecordError(err)
		return Booking{}, Conflict{}, fmt.Errorf("bookings: write %s: %w", identifier, err)
	}
	s.logger.Info("bookings: booked", "identifier", identifier, "date", b.Date, "time", b.Time, "reference", b.Reference)
	return b, Conflict{}, nil
}
