package bookings

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/callback-scheduler/internal/temporal"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// DefaultWindow is the minimum spacing between two active bookings.
const DefaultWindow = 15 * time.Minute

// Conflict describes the first active booking found too close to a candidate.
type Conflict struct {
	HasConflict  bool   `json:"hasConflict"`
	Identifier   string `json:"conflictingIdentifier,omitempty"`
	DateTime     string `json:"conflictingDateTime,omitempty"`
	MinutesApart int    `json:"minutesApart,omitempty"`
}

// Detector scans the booking table for slots within the spacing window.
type Detector struct {
	store  Store
	window time.Duration
	logger *logging.Logger
}

// NewDetector builds a detector. A non-positive window uses DefaultWindow.
func NewDetector(store Store, window time.Duration, logger *logging.Logger) *Detector {
	if store == nil {
		panic("bookings: store cannot be nil")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{store: store, window: window, logger: logger}
}

// Window returns the configured spacing.
func (d *Detector) Window() time.Duration { return d.window }

// Check reports the first active booking, other than exclude, strictly less
// than the window away from date+clock. Records whose slot cannot be parsed are
// skipped.
func (d *Detector) Check(ctx context.Context, date temporal.Date, clock temporal.Clock, exclude string) (Conflict, error) {
	ctx, span := tracer.Start(ctx, "bookings.check_conflict")
	defer span.End()

	all, err := d.store.All(ctx)
	if err != nil {
		span.RecordError(err)
		return Conflict{}, fmt.Errorf("bookings: conflict scan: %w", err)
	}

	candidate := temporal.Combine(date, clock, time.UTC)
	for _, b := range all {
		if b.Identifier == exclude || !b.Status.Active() {
			continue
		}
		bd, bc, err := b.Slot()
		if err != nil {
			d.logger.Warn("bookings: skipping booking with malformed slot",
				"identifier", b.Identifier, "date", b.Date, "time", b.Time, "error", err)
			continue
		}
		apart := candidate.Sub(temporal.Combine(bd, bc, time.UTC))
		if apart < 0 {
			apart = -apart
		}
		if apart < d.window {
			c := Conflict{
				HasConflict:  true,
				Identifier:   b.Identifier,
				DateTime:     bd.String() + " " + bc.String(),
				MinutesApart: int(math.Round(apart.Minutes())),
			}
			span.SetAttributes(
				attribute.Bool("bookings.conflict", true),
				attribute.Int("bookings.minutes_apart", c.MinutesApart),
			)
			return c, nil
		}
	}
	span.SetAttributes(attribute.Bool("bookings.conflict", false))
	return Conflict{}, nil
}
