// Package bookings stores confirmed call slots and detects slots that are too
// close to each other.
package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wolfman30/callback-scheduler/internal/temporal"
)

// ErrConflict is returned by Service.Book when the slot is taken.
var ErrConflict = errors.New("bookings: slot conflicts with an existing booking")

// Status is the lifecycle of a booking.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Active reports whether the booking still occupies its slot.
func (s Status) Active() bool {
	return s != StatusCancelled && s != StatusCompleted
}

// Booking is the one slot held by an identifier.
type Booking struct {
	Identifier string            `json:"identifier"`
	Reference  string            `json:"reference"`
	Date       string            `json:"date"`
	Time       string            `json:"time"`
	Status     Status            `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Slot parses the stored date and time.
func (b Booking) Slot() (temporal.Date, temporal.Clock, error) {
	d, err := temporal.ParseDate(b.Date)
	if err != nil {
		return temporal.Date{}, temporal.Clock{}, err
	}
	c, err := temporal.ParseClock(b.Time)
	if err != nil {
		return temporal.Date{}, temporal.Clock{}, err
	}
	return d, c, nil
}

// Store persists bookings keyed by identifier.
type Store interface {
	// All returns every decodable booking ordered by identifier.
	All(ctx context.Context) ([]Booking, error)
	Get(ctx context.Context, identifier string) (Booking, bool, error)
	// Put inserts or replaces the identifier's booking.
	Put(ctx context.Context, b Booking) error
}

// decodeRecord turns one stored value into a Booking. The map key is
// authoritative for the identifier.
func decodeRecord(key string, raw []byte) (Booking, error) {
	var b Booking
	if err := json.Unmarshal(raw, &b); err != nil {
		return Booking{}, err
	}
	b.Identifier = key
	if b.Status == "" {
		b.Status = StatusScheduled
	}
	return b, nil
}
