package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	fallbackClock = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	fallbackDays  = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
)

// Fallback is a deliberately small parser used when the rule tables fail. It
// never returns a partial result: missing dates default to today and missing
// times to 09:00, and ok is false only when nothing at all was recognized.
func Fallback(text string, ref time.Time) (Result, bool) {
	norm := normalize(text)
	if norm == "" {
		return Result{}, false
	}
	found := false

	date := DateOf(ref)
	switch {
	case strings.Contains(norm, "day after"):
		date, found = date.AddDays(2), true
	case strings.Contains(norm, "tomorrow"):
		date, found = date.AddDays(1), true
	case strings.Contains(norm, "next week"):
		date, found = date.AddDays(7), true
	default:
		for i, name := range fallbackDays {
			if strings.Contains(norm, name) {
				date, found = nextWeekday(ref, time.Weekday(i)), true
				break
			}
		}
	}

	clock := Clock{Hour: 9}
	switch {
	case strings.Contains(norm, "morning"):
		clock, found = Clock{Hour: 9}, true
	case strings.Contains(norm, "afternoon"):
		clock, found = Clock{Hour: 14}, true
	case strings.Contains(norm, "evening"):
		clock, found = Clock{Hour: 18}, true
	case strings.Contains(norm, "night"):
		clock, found = Clock{Hour: 20}, true
	}
	if m := fallbackClock.FindStringSubmatch(norm); m != nil {
		if c, ok := looseClock(m[1], m[2], m[3]); ok {
			clock, found = c, true
		}
	}

	if !found {
		return Result{}, false
	}
	return newResult(&date, &clock), true
}

func looseClock(hourStr, minuteStr, mer string) (Clock, bool) {
	h, err := strconv.Atoi(hourStr)
	if err != nil {
		return Clock{}, false
	}
	m := 0
	if minuteStr != "" {
		if m, err = strconv.Atoi(minuteStr); err != nil {
			return Clock{}, false
		}
	}
	switch {
	case mer == "pm" && h < 12:
		h += 12
	case mer == "am" && h == 12:
		h = 0
	}
	c := Clock{Hour: h, Minute: m}
	return c, c.Valid()
}
