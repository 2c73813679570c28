package temporal

import (
	"regexp"
	"strconv"
	"time"
)

// timeMatch is what a time rule produces. Offset rules compute an instant and
// also report its date, used when no date rule matched.
type timeMatch struct {
	clock   Clock
	implied *Date
}

type timeRule struct {
	name    string
	re      *regexp.Regexp
	resolve func(m []string, ref time.Time) (timeMatch, bool)
}

func fixedClock(hour, minute int) func([]string, time.Time) (timeMatch, bool) {
	return func(_ []string, _ time.Time) (timeMatch, bool) {
		return timeMatch{clock: Clock{Hour: hour, Minute: minute}}, true
	}
}

func offset(d time.Duration) func([]string, time.Time) (timeMatch, bool) {
	return func(_ []string, ref time.Time) (timeMatch, bool) {
		return offsetMatch(ref.Add(d)), true
	}
}

func offsetMatch(t time.Time) timeMatch {
	date := DateOf(t)
	return timeMatch{clock: ClockOf(t), implied: &date}
}

const meridiem = `(am\b|pm\b|a\.m\.?|p\.m\.?)`

// offsetBucket is one of the fixed relative offsets with its textual variants.
type offsetBucket struct {
	minutes int
	pattern string
}

// Larger buckets go first so "an hour and a half" is not read as "an hour".
var offsetBuckets = []offsetBucket{
	{120, `(2|two)\s*(hours|hrs|hr|h)|couple\s+(of\s+)?hours`},
	{90, `(an|one|1)\s+hour\s+and\s+a\s+half|1\.5\s*(hours|hrs|hr|h)|90\s*(minutes|mins|min|m)|ninety\s+minutes`},
	{60, `(an|one|1)\s*(hour|hr|h)\b|60\s*(minutes|mins|min|m)|sixty\s+minutes`},
	{45, `45\s*(minutes|mins|min|m)|forty[\s-]?five\s+minutes|three\s+quarters\s+of\s+an\s+hour`},
	{30, `30\s*(minutes|mins|min|m)|thirty\s+minutes|(a\s+)?half\s+(an\s+)?hour|half\s+hr`},
	{20, `20\s*(minutes|mins|min|m)|twenty\s+minutes`},
	{15, `15\s*(minutes|mins|min|m)|fifteen\s+minutes|(a\s+)?quarter\s+(of\s+an\s+)?hour`},
	{10, `10\s*(minutes|mins|min|m)|ten\s+minutes`},
	{5, `5\s*(minutes|mins|min|m)|five\s+minutes`},
	{1, `(1|one|a)\s*(minute|min|m)\b|a\s+sec(ond)?\b|a\s+moment`},
}

func bucketRules() []timeRule {
	rules := make([]timeRule, 0, len(offsetBuckets))
	for _, b := range offsetBuckets {
		rules = append(rules, timeRule{
			name:    "offset_" + strconv.Itoa(b.minutes),
			re:      regexp.MustCompile(`\b(in|en|within|after)\s+(about\s+|around\s+|like\s+)?(` + b.pattern + `)\b`),
			resolve: offset(time.Duration(b.minutes) * time.Minute),
		})
	}
	return rules
}

// timeRules is the ordered time table.
var timeRules = append(append([]timeRule{
	{
		name: "twelve_hour_minutes",
		re:   regexp.MustCompile(`\b(\d{1,2})[:.](\d{2})\s*` + meridiem),
		resolve: func(m []string, _ time.Time) (timeMatch, bool) {
			return twelveHour(m[1], m[2], m[3])
		},
	},
	{
		name: "twelve_hour",
		re:   regexp.MustCompile(`\b(\d{1,2})\s*` + meridiem),
		resolve: func(m []string, _ time.Time) (timeMatch, bool) {
			return twelveHour(m[1], "0", m[2])
		},
	},
	{
		name: "twenty_four_hour",
		re:   regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`),
		resolve: func(m []string, _ time.Time) (timeMatch, bool) {
			h, _ := strconv.Atoi(m[1])
			mm, _ := strconv.Atoi(m[2])
			c := Clock{Hour: h, Minute: mm}
			return timeMatch{clock: c}, c.Valid()
		},
	},
	{
		// "at 3" with no meridiem: small hours are read as afternoon.
		name: "at_hour",
		re:   regexp.MustCompile(`\bat\s+(\d{1,2})(?:\s|$|[!?,])`),
		resolve: func(m []string, _ time.Time) (timeMatch, bool) {
			h, err := strconv.Atoi(m[1])
			if err != nil || h > 23 {
				return timeMatch{}, false
			}
			if h >= 1 && h <= 7 {
				h += 12
			}
			return timeMatch{clock: Clock{Hour: h}}, true
		},
	},
	{name: "midnight", re: regexp.MustCompile(`\bmidnight\b`), resolve: fixedClock(0, 0)},
	{name: "breakfast", re: regexp.MustCompile(`\bbreakfast\b`), resolve: fixedClock(8, 0)},
	{name: "lunch", re: regexp.MustCompile(`\b(lunch|lunchtime)\b`), resolve: fixedClock(12, 30)},
	{name: "dinner", re: regexp.MustCompile(`\b(dinner|dinnertime|supper)\b`), resolve: fixedClock(19, 0)},
	{name: "morning", re: regexp.MustCompile(`\b(morning|mornin|morn|subah)\b`), resolve: fixedClock(9, 0)},
	{name: "afternoon", re: regexp.MustCompile(`\b(noon|afternoon|arvo|tarde|dopahar)\b`), resolve: fixedClock(14, 0)},
	{name: "evening", re: regexp.MustCompile(`\b(evening|eve|shaam|soir)\b`), resolve: fixedClock(18, 0)},
	{name: "night", re: regexp.MustCompile(`\b(night|tonight|tonite|noche|raat)\b`), resolve: fixedClock(20, 0)},
}, bucketRules()...), []timeRule{
	{
		name: "offset_generic",
		re:   regexp.MustCompile(`\b(in|en|within|after)\s+(\d{1,3})\s*(minutes|mins|min|hours|hrs|hr)\b`),
		resolve: func(m []string, ref time.Time) (timeMatch, bool) {
			n, err := strconv.Atoi(m[2])
			if err != nil || n <= 0 {
				return timeMatch{}, false
			}
			unit := time.Minute
			if m[3] == "hours" || m[3] == "hrs" || m[3] == "hr" {
				unit = time.Hour
			}
			return offsetMatch(ref.Add(time.Duration(n) * unit)), true
		},
	},
	{
		name:    "soon",
		re:      regexp.MustCompile(`\b(soon|shortly|in\s+a\s+bit|in\s+a\s+few|in\s+a\s+little\s+while)\b`),
		resolve: offset(5 * time.Minute),
	},
	{
		name:    "whenever",
		re:      regexp.MustCompile(`\b(whenever|at\s+your\s+convenience|any\s*time|when\s+you\s+can|when\s+you('re|\s+are)\s+free)\b`),
		resolve: offset(30 * time.Minute),
	},
	{
		name:    "business_hours",
		re:      regexp.MustCompile(`\b(during\s+)?(business|office|working|work)\s+hours\b`),
		resolve: businessHours,
	},
}...)

func twelveHour(hourStr, minuteStr, mer string) (timeMatch, bool) {
	h, errH := strconv.Atoi(hourStr)
	mm, errM := strconv.Atoi(minuteStr)
	if errH != nil || errM != nil || h < 1 || h > 12 || mm > 59 {
		return timeMatch{}, false
	}
	pm := mer[0] == 'p'
	switch {
	case pm && h != 12:
		h += 12
	case !pm && h == 12:
		h = 0
	}
	return timeMatch{clock: Clock{Hour: h, Minute: mm}}, true
}

// businessHours picks a slot inside 09:00-17:00: five minutes from ref when
// that still falls inside the window, otherwise the next 09:00.
func businessHours(_ []string, ref time.Time) (timeMatch, bool) {
	candidate := ref.Add(5 * time.Minute)
	open := time.Date(ref.Year(), ref.Month(), ref.Day(), 9, 0, 0, 0, ref.Location())
	closing := time.Date(ref.Year(), ref.Month(), ref.Day(), 17, 0, 0, 0, ref.Location())
	switch {
	case candidate.Before(open):
		return offsetMatch(open), true
	case !candidate.After(closing):
		return offsetMatch(candidate), true
	default:
		return offsetMatch(open.AddDate(0, 0, 1)), true
	}
}

func matchTime(norm string, ref time.Time, rules []timeRule) (*timeMatch, string) {
	for _, rule := range rules {
		m := rule.re.FindStringSubmatch(norm)
		if m == nil {
			continue
		}
		if tm, ok := rule.resolve(m, ref); ok {
			return &tm, rule.name
		}
	}
	return nil, ""
}
