package temporal

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// pastGrace tolerates small clock skew between the message and the check.
const pastGrace = time.Minute

// Resolver turns free text into a date and/or time relative to a reference
// instant.
type Resolver struct {
	dates  []dateRule
	times  []timeRule
	logger *logging.Logger
}

// NewResolver returns a resolver using the built-in rule tables.
func NewResolver(logger *logging.Logger) *Resolver {
	return newResolver(dateRules, timeRules, logger)
}

func newResolver(dates []dateRule, times []timeRule, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{dates: dates, times: times, logger: logger}
}

// Resolve interprets text against ref. Immediate requests short-circuit the
// rule tables. A failure inside the tables falls back to a minimal parser.
func (r *Resolver) Resolve(text string, ref time.Time) Result {
	if IsImmediate(text) {
		return immediateResult(ref)
	}
	res, err := r.resolveTables(text, ref)
	if err == nil {
		return res
	}
	r.logger.Warn("temporal: rule evaluation failed, using fallback parser", "error", err)
	if fb, ok := Fallback(text, ref); ok {
		return fb
	}
	return Result{}
}

func (r *Resolver) resolveTables(text string, ref time.Time) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("temporal: resolve %q: %v", text, rec)
		}
	}()

	norm := normalize(text)
	if norm == "" {
		return Result{}, nil
	}
	date, dName := matchDate(norm, ref, r.dates)
	tm, tName := matchTime(norm, ref, r.times)

	var clock *Clock
	if tm != nil {
		c := tm.clock
		clock = &c
		if date == nil && tm.implied != nil {
			d := *tm.implied
			date = &d
		}
	}
	r.logger.Debug("temporal: resolved",
		"date_rule", dName,
		"time_rule", tName,
		"has_date", date != nil,
		"has_time", clock != nil,
	)
	return newResult(date, clock), nil
}

// IsPast reports whether a complete result lies before ref, allowing a one
// minute grace. Immediate and incomplete results are never past.
func IsPast(res Result, ref time.Time) bool {
	if res.Immediate {
		return false
	}
	at, ok := res.Instant(ref.Location())
	if !ok {
		return false
	}
	return at.Before(ref.Add(-pastGrace))
}

func normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
