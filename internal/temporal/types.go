// Package temporal resolves free-text date and time expressions against a
// reference instant. All arithmetic happens in the reference instant's location;
// no timezone conversion is performed.
package temporal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidDate is returned when a DD/MM/YYYY string cannot be parsed.
	ErrInvalidDate = errors.New("temporal: invalid date")
	// ErrInvalidClock is returned when an HH:MM string cannot be parsed.
	ErrInvalidClock = errors.New("temporal: invalid time")
)

// Date is a calendar day without a time component.
type Date struct {
	Day   int        `json:"day"`
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Day: d, Month: m, Year: y}
}

// Valid reports whether the date names a real calendar day.
func (d Date) Valid() bool {
	if d.Year < 1 || d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	return d.Day <= daysIn(d.Month, d.Year)
}

// String formats the date as DD/MM/YYYY.
func (d Date) String() string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n))
}

// ParseDate parses a DD/MM/YYYY (or D-M-YYYY) string.
func ParseDate(s string) (Date, error) {
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool { return r == '/' || r == '-' })
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		nums[i] = n
	}
	d := Date{Day: nums[0], Month: time.Month(nums[1]), Year: promoteYear(nums[2])}
	if !d.Valid() {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Clock is a 24-hour wall-clock time.
type Clock struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ClockOf returns the wall-clock time of t.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// Valid reports whether the clock is within 00:00-23:59.
func (c Clock) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses an HH:MM string.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	c := Clock{Hour: h, Minute: m}
	if errH != nil || errM != nil || !c.Valid() {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return c, nil
}

// Combine joins a date and a clock into an instant in loc.
func Combine(d Date, c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// Result is the outcome of resolving one message. Either part, both, or
// neither may be present.
type Result struct {
	HasDate   bool   `json:"hasDate"`
	HasTime   bool   `json:"hasTime"`
	Date      *Date  `json:"date,omitempty"`
	Time      *Clock `json:"time,omitempty"`
	Immediate bool   `json:"immediate,omitempty"`
	Formatted string `json:"formatted,omitempty"`
}

// Complete reports whether both date and time were resolved.
func (r Result) Complete() bool {
	return r.HasDate && r.HasTime && r.Date != nil && r.Time != nil
}

// Instant combines the resolved parts into an instant in loc.
func (r Result) Instant(loc *time.Location) (time.Time, bool) {
	if !r.Complete() {
		return time.Time{}, false
	}
	return Combine(*r.Date, *r.Time, loc), true
}

// Join builds a complete result from a date and a clock.
func Join(d Date, c Clock) Result {
	return newResult(&d, &c)
}

func newResult(date *Date, clock *Clock) Result {
	res := Result{HasDate: date != nil, HasTime: clock != nil, Date: date, Time: clock}
	if res.Complete() {
		res.Formatted = formatToken(*date, *clock)
	}
	return res
}

func formatToken(d Date, c Clock) string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d", d.Year, int(d.Month), d.Day, c.Hour, c.Minute)
}

func promoteYear(y int) int {
	if y >= 0 && y < 100 {
		return 2000 + y
	}
	return y
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
