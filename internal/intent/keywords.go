package intent

import (
	"context"
	"regexp"
	"strings"
)

// KeywordMatch is the outcome of the keyword cascade.
type KeywordMatch struct {
	Sentiment Sentiment
	Tier      string
	// Explicit is false for weak signals (politeness, emoji) and for texts
	// that matched nothing.
	Explicit bool
}

type keywordTier struct {
	name     string
	explicit bool
	rules    []keywordRule
}

type keywordRule struct {
	regex     *regexp.Regexp
	sentiment Sentiment
}

func rules(s Sentiment, patterns ...string) []keywordRule {
	out := make([]keywordRule, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, keywordRule{regex: regexp.MustCompile(p), sentiment: s})
	}
	return out
}

func concat(groups ...[]keywordRule) []keywordRule {
	var out []keywordRule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// yesNoTiers is evaluated top to bottom and the first matching rule wins.
// Negative emphatics precede positive ones so "of course not" is not read as
// "of course"; "no problem" sits above the plain "no" rule. The hedged tier
// only catches negated affirmatives such as "not sure" before "sure" fires.
// Reluctant and uncertain phrasing ranks below every affirmative tier so
// "yes, if you want" stays positive.
var yesNoTiers = []keywordTier{
	{name: "emphatic", explicit: true, rules: concat(
		rules(Negative,
			`\b(hell|heck|absolutely|definitely|certainly|of\s+course)\s+not?\b`,
			`\bno\s+way\b`, `\bnot\s+at\s+all\b`, `\bnot\s+a\s+chance\b`, `\bnever\s+ever\b`, `\bhard\s+pass\b`,
		),
		rules(Positive,
			`\bno\s+(problem|prob|probs|worries|doubt)\b`, `\bwhy\s+not\b`,
			`\b(hell|heck)\s+yes\b`, `\babsolutely\b`, `\bdefinitely\b`, `\bcertainly\b`, `\bof\s+course\b`,
			`\bfor\s+sure\b`, `\byes,?\s+please\b`, `\bsounds\s+(great|perfect|awesome)\b`, `\bperfect\b`, `\b100\s*%`,
		),
	)},
	{name: "hedged", explicit: true, rules: rules(Neutral,
		`\b(i'?m\s+)?not\s+(so\s+|too\s+|really\s+)?sure\b`, `\bunsure\b`, `\bno\s+idea\b`,
	)},
	{name: "negative", explicit: true, rules: rules(Negative,
		`\bnot\s+interested\b`, `\bno,?\s+thank(s|\s+you)\b`, `\bnot\s+(now|today|really)\b`,
		`\b(don'?t|do\s+not)\s+(call|want|need|contact)\b`, `\bleave\s+me\s+alone\b`, `\bwrong\s+number\b`,
		`\bcancel\b`, `\bstop\b`, `\bnever\b`, `\bnope\b`, `\bnah+\b`, `\bnaw\b`, `\bno\b`,
		`\b(i\s+)?(can'?t|cannot)\b`, `\bdecline\b`, `\bi'?ll\s+pass\b`, `\bnegative\b`,
	)},
	{name: "positive", explicit: true, rules: rules(Positive,
		`\byes\b`, `\byeah\b`, `\byep\b`, `\byup\b`, `\bsure\b`, `\bok(ay)?\b`, `\bo\.k\.?`, `\balright\b`,
		`\ball\s+right\b`, `\bfine\b`, `\bcorrect\b`, `\bthat'?s\s+right\b`, `\bconfirm(ed)?\b`,
		`\bsounds\s+good\b`, `\b(that|it)\s+works\b`, `\bworks\s+for\s+me\b`, `\bgo\s+ahead\b`,
		`\bplease\s+do\b`, `\blet'?s\s+do\s+(it|this)\b`, `\bi'?m\s+in\b`, `\binterested\b`, `\bagreed?\b`,
		`\bdeal\b`, `\bgood\b`, `\bgreat\b`, `\baffirmative\b`,
	)},
	{name: "casual", explicit: true, rules: rules(Positive,
		`\bya+\b`, `\byah\b`, `\byea+\b`, `\bye\b`, `\bya+s+\b`, `\bbet\b`, `\bk+\b`, `\baight\b`, `\bight\b`,
		`\bcool\b`, `\bsweet\b`, `\bdope\b`, `\bsure\s+thing\b`, `\byou\s+bet\b`, `\btotally\b`, `\bnp\b`,
	)},
	{name: "multilingual", explicit: true, rules: concat(
		rules(Negative, `\bnon\b`, `\bnein\b`, `\bn[aã]o\b`, `\bnahi+n?\b`, `\bnai\b`),
		rules(Positive, `\bs[ií]\b`, `(^|\s)sí`, `\bclaro\b`, `\bvale\b`, `\boui\b`, `\bja\b`, `\bjawohl\b`,
			`\bsim\b`, `\bhaa+n?\b`, `\bha\s+ji\b`, `\b(theek|thik)\s+hai\b`, `\bd'accord\b`),
	)},
	{name: "polite", explicit: false, rules: rules(Positive,
		`\bplease\b`, `\bthank(s|\s+you)\b`, `\bthx\b`, `\bappreciate\b`, `\b(would|that'?d)\s+be\s+(great|nice|lovely)\b`,
	)},
	{name: "reluctant", explicit: true, rules: rules(Neutral,
		`\bi\s+(guess|suppose)\b`, `\bif\s+(i\s+have\s+to|i\s+must|necessary)\b`,
		`\bif\s+that'?s\s+what\s+it\s+takes\b`,
	)},
	{name: "uncertain", explicit: true, rules: rules(Neutral,
		`\b(i\s+)?(don'?t|do\s+not)\s+know\b`, `\bdunno\b`, `\bidk\b`, `\bmaybe\b`, `\bperhaps\b`, `\bpossibly\b`,
		`\bif\s+(you\s+want|you\s+must|you\s+think)\b`, `\bit\s+depends\b`, `\bdepends\b`,
		`\blet\s+me\s+(think|check|see)\b`, `\bnot\s+yet\b`, `\bwe'?ll\s+see\b`, `^h+m+$`,
	)},
	{name: "emoji", explicit: false, rules: concat(
		rules(Negative, `👎`, `❌`, `🙅`, `😡`, `😠`),
		rules(Positive, `👍`, `👌`, `✅`, `🙌`, `😊`, `🙂`, `😀`, `❤`),
	)},
	{name: "single_letter", explicit: true, rules: concat(
		rules(Positive, `^y$`),
		rules(Negative, `^n$`),
	)},
	{name: "repeated", explicit: true, rules: concat(
		rules(Positive, `^y+e+s+$`, `^y+a+$`),
		rules(Negative, `^n+o+$`),
	)},
	{name: "numeric", explicit: true, rules: concat(
		rules(Positive, `^1$`),
		rules(Negative, `^0$`),
	)},
}

// AnalyzeYesNoKeywords runs the keyword cascade over text. A text that matches
// nothing comes back Neutral and not Explicit.
func AnalyzeYesNoKeywords(text string) KeywordMatch {
	norm := cleanText(text)
	if norm == "" {
		return KeywordMatch{Sentiment: Neutral}
	}
	for _, tier := range yesNoTiers {
		for _, r := range tier.rules {
			if r.regex.MatchString(norm) {
				return KeywordMatch{Sentiment: r.sentiment, Tier: tier.name, Explicit: tier.explicit}
			}
		}
	}
	return KeywordMatch{Sentiment: Neutral}
}

var optOutKeywords = map[string]struct{}{
	"stop": {}, "stopall": {}, "stop all": {}, "unsubscribe": {}, "end": {}, "quit": {},
	"optout": {}, "opt out": {}, "opt-out": {}, "revoke": {},
}

// IsOptOut reports whether the whole message is a carrier opt-out keyword.
func IsOptOut(text string) bool {
	_, ok := optOutKeywords[cleanText(text)]
	return ok
}

// KeywordClassifier adapts the keyword cascade to TextClassifier.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string) (Prediction, error) {
	m := AnalyzeYesNoKeywords(text)
	conf := 0.5
	switch {
	case m.Explicit && m.Sentiment != Neutral:
		conf = 0.9
	case m.Tier != "" && m.Sentiment != Neutral:
		conf = 0.65
	}
	return Prediction{Label: m.Sentiment, Confidence: conf, Source: "keyword"}, nil
}

var trailingPunct = regexp.MustCompile(`[\s.!?,;:~]+$`)

func cleanText(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.NewReplacer("’", "'", "‘", "'").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return trailingPunct.ReplaceAllString(s, "")
}
