package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateRule resolves one family of date expressions. Rules are evaluated in
// order and the first one that resolves wins.
type dateRule struct {
	name    string
	re      *regexp.Regexp
	resolve func(m []string, ref time.Time) (Date, bool)
}

func relativeDay(offset int) func([]string, time.Time) (Date, bool) {
	return func(_ []string, ref time.Time) (Date, bool) {
		return DateOf(ref).AddDays(offset), true
	}
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

// dateRules is the ordered date table. Later, more general rules are shadowed by
// earlier, more specific ones ("day after tomorrow" before "tomorrow").
var dateRules = []dateRule{
	{
		name:    "day_after_tomorrow",
		re:      regexp.MustCompile(`\b(day\s+after\s+(tomorrow|tmrw|tmr)|overmorrow|parso)\b|\bpasado\s+ma[nñ]ana|(^|\s)übermorgen|\bapr[eè]s[\s-]demain\b`),
		resolve: relativeDay(2),
	},
	{
		name:    "yesterday",
		re:      regexp.MustCompile(`\b(yesterday|ayer|gestern)\b`),
		resolve: relativeDay(-1),
	},
	{
		name:    "today",
		re:      regexp.MustCompile(`\b(today|tonight|tonite|this\s+(morning|afternoon|evening)|hoy|aaj|heute|hoje)\b`),
		resolve: relativeDay(0),
	},
	{
		name:    "tomorrow",
		re:      regexp.MustCompile(`\b(tomorrow|tomorow|tommorow|tommorrow|tmrw|tmr|tmrow|2morrow|2moro|2mrw|kal|morgen|demain)\b|\bma[nñ]ana|\bamanh[aã]`),
		resolve: relativeDay(1),
	},
	{
		name: "weekday",
		re:   regexp.MustCompile(`\b(sunday|sun|monday|mon|tuesday|tues|tue|wednesday|wed|thursday|thurs|thur|thu|friday|fri|saturday|sat)\b`),
		resolve: func(m []string, ref time.Time) (Date, bool) {
			target, ok := weekdayNames[m[1]]
			if !ok {
				return Date{}, false
			}
			return nextWeekday(ref, target), true
		},
	},
	{
		name: "day_month_name",
		re:   regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthPattern + `\b(?:,?\s+(\d{4}))?`),
		resolve: func(m []string, ref time.Time) (Date, bool) {
			return monthDay(m[1], m[2], m[3], ref)
		},
	},
	{
		name: "month_name_day",
		re:   regexp.MustCompile(`\b` + monthPattern + `\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4}))?`),
		resolve: func(m []string, ref time.Time) (Date, bool) {
			return monthDay(m[2], m[1], m[3], ref)
		},
	},
	{
		name: "numeric_dmy",
		re:   regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4}|\d{2})\b`),
		resolve: func(m []string, _ time.Time) (Date, bool) {
			return numericDate(m[1], m[2], m[3])
		},
	},
	{
		name: "numeric_dm",
		re:   regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`),
		resolve: func(m []string, ref time.Time) (Date, bool) {
			return numericDate(m[1], m[2], strconv.Itoa(ref.Year()))
		},
	},
	{
		name: "day_of_month",
		re:   regexp.MustCompile(`\b(?:on\s+)?(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)\b|\bon\s+the\s+(\d{1,2})\b`),
		resolve: func(m []string, ref time.Time) (Date, bool) {
			raw := m[1]
			if raw == "" {
				raw = m[2]
			}
			day, err := strconv.Atoi(raw)
			if err != nil {
				return Date{}, false
			}
			d := Date{Day: day, Month: ref.Month(), Year: ref.Year()}
			return d, d.Valid()
		},
	},
	{
		// A lone number such as "15", "the 20" or "20 please". Numbers that
		// belong to a time or a duration are captured by the lead and tail
		// groups and rejected.
		name: "bare_day",
		re: regexp.MustCompile(`(?:^|[\s,(])((?:at|around|by|about|after|before|until|till|in|within|@)\s+)?(?:the\s+)?(\d{1,2})\b` +
			`(\s*(?:[:./-]\d|a\.?m\b|p\.?m\b|o'?clock\b|h\b|hrs?\b|hours?\b|mins?\b|minutes?\b|days?\b|weeks?\b|months?\b|years?\b|%))?`),
		resolve: func(m []string, ref time.Time) (Date, bool) {
			if m[1] != "" || m[3] != "" {
				return Date{}, false
			}
			day, err := strconv.Atoi(m[2])
			if err != nil {
				return Date{}, false
			}
			d := Date{Day: day, Month: ref.Month(), Year: ref.Year()}
			return d, d.Valid()
		},
	},
}

// nextWeekday returns the next occurrence of target strictly after ref's day:
// naming today's weekday means the same weekday next week.
func nextWeekday(ref time.Time, target time.Weekday) Date {
	diff := (int(target) - int(ref.Weekday()) + 7) % 7
	if diff == 0 {
		diff = 7
	}
	return DateOf(ref).AddDays(diff)
}

func monthDay(dayStr, monthStr, yearStr string, ref time.Time) (Date, bool) {
	month, ok := monthNames[strings.ToLower(monthStr)]
	if !ok {
		return Date{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return Date{}, false
	}
	year := ref.Year()
	if yearStr != "" {
		if y, err := strconv.Atoi(yearStr); err == nil {
			year = y
		}
	}
	d := Date{Day: day, Month: month, Year: year}
	return d, d.Valid()
}

func numericDate(dayStr, monthStr, yearStr string) (Date, bool) {
	day, errD := strconv.Atoi(dayStr)
	month, errM := strconv.Atoi(monthStr)
	year, errY := strconv.Atoi(yearStr)
	if errD != nil || errM != nil || errY != nil {
		return Date{}, false
	}
	d := Date{Day: day, Month: time.Month(month), Year: promoteYear(year)}
	return d, d.Valid()
}

func matchDate(norm string, ref time.Time, rules []dateRule) (*Date, string) {
	for _, rule := range rules {
		for _, m := range rule.re.FindAllStringSubmatch(norm, -1) {
			if d, ok := rule.resolve(m, ref); ok {
				return &d, rule.name
			}
		}
	}
	return nil, ""
}
