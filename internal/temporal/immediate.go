package temporal

import (
	"regexp"
	"time"
)

// immediateExclusions veto an otherwise immediate match: "not now", "from now".
var immediateExclusions = []*regexp.Regexp{
	regexp.MustCompile(`\b(not|no|don'?t|can'?t|cannot|won'?t)\s+(right\s+)?(now|immediately|asap|right\s+away)\b`),
	regexp.MustCompile(`\bfrom\s+now\b`),
	regexp.MustCompile(`\b(busy|driving|working|in\s+a\s+meeting)\s+(right\s+)?now\b`),
}

// immediatePatterns cover "now" and "as soon as possible" in English, slang and
// a handful of other languages seen on the channel.
var immediatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bright\s+now\b`),
	regexp.MustCompile(`\bnow+\b`),
	regexp.MustCompile(`\basap\b`),
	regexp.MustCompile(`\ba\.s\.a\.p\b`),
	regexp.MustCompile(`\bas\s+soon\s+as\s+(possible|you\s+can)\b`),
	regexp.MustCompile(`\bimmediately\b`),
	regexp.MustCompile(`\b(right|straight)\s*away\b`),
	regexp.MustCompile(`\bat\s+once\b`),
	regexp.MustCompile(`\bthis\s+(very\s+)?(minute|moment|instant)\b`),
	regexp.MustCompile(`\brn\b`),
	regexp.MustCompile(`\bcall\s+me\s+now\b`),
	regexp.MustCompile(`\bahora(\s+mismo)?\b`),
	regexp.MustCompile(`\binmediatamente\b`),
	regexp.MustCompile(`\babhi\b`),
	regexp.MustCompile(`\bturant\b`),
	regexp.MustCompile(`\bmaintenant\b`),
	regexp.MustCompile(`\btout\s+de\s+suite\b`),
	regexp.MustCompile(`\bsofort\b`),
	regexp.MustCompile(`\bjetzt\b`),
	regexp.MustCompile(`\bagora\b`),
	regexp.MustCompile(`\bsubito\b`),
	regexp.MustCompile(`\bimmediatamente\b`),
}

// IsImmediate reports whether text asks for "now" / "as soon as possible".
func IsImmediate(text string) bool {
	norm := normalize(text)
	if norm == "" {
		return false
	}
	for _, re := range immediateExclusions {
		if re.MatchString(norm) {
			return false
		}
	}
	for _, re := range immediatePatterns {
		if re.MatchString(norm) {
			return true
		}
	}
	return false
}

func immediateResult(ref time.Time) Result {
	date := DateOf(ref)
	clock := ClockOf(ref)
	res := newResult(&date, &clock)
	res.Immediate = true
	return res
}
