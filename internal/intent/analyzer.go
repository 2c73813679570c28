package intent

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// UrgencyLevel grades how pressing a message sounds.
type UrgencyLevel string

const (
	UrgencyNone   UrgencyLevel = "none"
	UrgencyLow    UrgencyLevel = "low"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyHigh   UrgencyLevel = "high"
)

// Level grades the strength of a descriptive signal.
type Level string

const (
	LevelNone   Level = "none"
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// CancellationAction is what the sender wants done with an existing booking.
type CancellationAction string

const (
	CancelNone       CancellationAction = "none"
	CancelBooking    CancellationAction = "cancel"
	RescheduleAction CancellationAction = "reschedule"
)

// Tone is the overall register of a message.
type Tone string

const (
	ToneNeutral    Tone = "neutral"
	ToneFriendly   Tone = "friendly"
	ToneFrustrated Tone = "frustrated"
	ToneFormal     Tone = "formal"
	ToneCasual     Tone = "casual"
)

// Urgency is the strongest urgency signal found.
type Urgency struct {
	Level      UrgencyLevel `json:"level"`
	Confidence float64      `json:"confidence"`
}

// Cancellation reports a cancel or reschedule request.
type Cancellation struct {
	Action     CancellationAction `json:"action"`
	Confidence float64            `json:"confidence"`
}

// Politeness is the summed courtesy score, capped at 1, and its grade.
type Politeness struct {
	Level      Level   `json:"level"`
	Confidence float64 `json:"confidence"`
}

// Confusion is the strongest confusion signal found.
type Confusion struct {
	Level      Level   `json:"level"`
	Confidence float64 `json:"confidence"`
}

// CallReason lists the topics mentioned, strongest first.
type CallReason struct {
	Primary string   `json:"primary,omitempty"`
	All     []string `json:"all,omitempty"`
}

// Features is the descriptive bundle extracted from one message.
type Features struct {
	Greeting     bool         `json:"greeting"`
	Farewell     bool         `json:"farewell"`
	Urgency      Urgency      `json:"urgency"`
	Politeness   Politeness   `json:"politeness"`
	Cancellation Cancellation `json:"cancellation"`
	Confusion    Confusion    `json:"confusion"`
	CallReason   CallReason   `json:"callReason"`
	Tone         Tone         `json:"tone"`
}

type featurePattern struct {
	regex   *regexp.Regexp
	weight  float64
	keyword string
}

func fp(pattern string, weight float64, keyword string) featurePattern {
	return featurePattern{regex: regexp.MustCompile(`(?i)` + pattern), weight: weight, keyword: keyword}
}

// best returns the heaviest matching pattern.
func best(text string, patterns []featurePattern) (featurePattern, bool) {
	var (
		top   featurePattern
		found bool
	)
	for _, p := range patterns {
		if p.regex.MatchString(text) && (!found || p.weight > top.weight) {
			top, found = p, true
		}
	}
	return top, found
}

// Analyzer extracts Features with weighted pattern tables.
type Analyzer struct {
	logger       *logging.Logger
	greeting     []featurePattern
	farewell     []featurePattern
	urgency      map[UrgencyLevel][]featurePattern
	polite       []featurePattern
	cancellation map[CancellationAction][]featurePattern
	confusion    []featurePattern
	reasons      map[string][]featurePattern
	frustration  []featurePattern
	formal       []featurePattern
	casual       []featurePattern
}

// NewAnalyzer builds the pattern tables.
func NewAnalyzer(logger *logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Analyzer{
		logger: logger,
		greeting: []featurePattern{
			fp(`^\s*(hi|hello|hey|hiya|howdy|yo|greetings)\b`, 0.9, "hello"),
			fp(`\bgood\s+(morning|afternoon|evening)\b`, 0.8, "good morning"),
			fp(`\b(hola|bonjour|namaste|hallo|ola)\b`, 0.8, "foreign greeting"),
		},
		farewell: []featurePattern{
			fp(`\b(bye|goodbye|good\s+bye|see\s+ya|see\s+you|later|ttyl|cheers)\b`, 0.8, "bye"),
			fp(`\b(take\s+care|have\s+a\s+(good|nice|great)\s+(day|one|night))\b`, 0.8, "take care"),
			fp(`\b(good\s*night|adios|ciao|au\s+revoir)\b`, 0.7, "good night"),
		},
		urgency: map[UrgencyLevel][]featurePattern{
			UrgencyHigh: {
				fp(`\b(urgent|emergency|asap|immediately|right\s+now)\b`, 0.9, "urgent"),
				fp(`\b(critical|serious\s+problem|can'?t\s+wait)\b`, 0.85, "critical"),
				fp(`!{2,}`, 0.6, "exclamations"),
			},
			UrgencyMedium: {
				fp(`\b(soon|quickly|today|as\s+soon\s+as)\b`, 0.7, "soon"),
				fp(`\b(important|need\s+to\s+talk|need\s+help)\b`, 0.65, "important"),
			},
			UrgencyLow: {
				fp(`\b(whenever|no\s+rush|any\s*time|not\s+urgent|when\s+you\s+can)\b`, 0.7, "no rush"),
			},
		},
		polite: []featurePattern{
			fp(`\bplease\b`, 0.3, "please"),
			fp(`\b(thank\s*you|thanks|thx|ty)\b`, 0.3, "thanks"),
			fp(`\b(appreciate|grateful)\b`, 0.25, "appreciate"),
			fp(`\b(sorry|excuse\s+me|pardon)\b`, 0.2, "sorry"),
			fp(`\b(would|could)\s+you\b`, 0.2, "would you"),
			fp(`\b(sir|ma'?am|kindly)\b`, 0.2, "sir"),
		},
		cancellation: map[CancellationAction][]featurePattern{
			CancelBooking: {
				fp(`\bcancel(l?ed|l?ing)?\b`, 0.9, "cancel"),
				fp(`\b(call\s+off|don'?t\s+call|no\s+longer\s+need)\b`, 0.8, "call off"),
			},
			RescheduleAction: {
				fp(`\b(reschedule|re-schedule|move\s+(it|the\s+call)|change\s+(the\s+)?time|push\s+(it\s+)?back)\b`, 0.95, "reschedule"),
				fp(`\b(different|another|other)\s+(time|day|date)\b`, 0.85, "another time"),
			},
		},
		confusion: []featurePattern{
			fp(`\b(confused|confusing|don'?t\s+understand|what\s+do\s+you\s+mean)\b`, 0.9, "confused"),
			fp(`\b(who\s+is\s+this|who\s+are\s+you|what\s+is\s+this)\b`, 0.8, "who is this"),
			fp(`^\s*(what|huh|eh|\?+)\s*\??\s*$`, 0.7, "huh"),
		},
		reasons: map[string][]featurePattern{
			"billing": {
				fp(`\b(bill|billing|invoice|charge[ds]?|payment|refund)\b`, 0.8, "billing"),
			},
			"technical_support": {
				fp(`\b(not\s+working|broken|error|bug|crash(es|ed)?|can'?t\s+log\s*in)\b`, 0.8, "broken"),
			},
			"sales": {
				fp(`\b(price|pricing|quote|buy|purchase|upgrade|plan)\b`, 0.7, "pricing"),
			},
			"appointment": {
				fp(`\b(appointment|booking|schedule|reschedule|meeting)\b`, 0.7, "appointment"),
			},
			"complaint": {
				fp(`\b(complain|complaint|unhappy|terrible|awful|worst)\b`, 0.85, "complaint"),
			},
			"account": {
				fp(`\b(account|password|login|profile|subscription)\b`, 0.7, "account"),
			},
			"information": {
				fp(`\b(question|info|information|details|how\s+does|wondering)\b`, 0.5, "question"),
			},
		},
		frustration: []featurePattern{
			fp(`\b(annoyed|annoying|frustrated|fed\s+up|ridiculous|stop\s+texting|wtf)\b`, 0.9, "frustrated"),
			{regex: regexp.MustCompile(`\b[A-Z]{5,}\b`), weight: 0.5, keyword: "shouting"},
		},
		formal: []featurePattern{
			fp(`\b(dear|regards|sincerely|kindly|would\s+it\s+be\s+possible)\b`, 0.7, "formal"),
		},
		casual: []featurePattern{
			fp(`\b(lol|lmao|haha+|omg|gonna|wanna|ya|yo|dude|bro)\b`, 0.7, "slang"),
		},
	}
}

// Analyze extracts features from text. It is informational only and never
// drives a state transition.
func (a *Analyzer) Analyze(ctx context.Context, text string) Features {
	_, span := tracer.Start(ctx, "intent.analyze")
	defer span.End()

	f := Features{
		Urgency:      Urgency{Level: UrgencyNone},
		Politeness:   Politeness{Level: LevelNone},
		Cancellation: Cancellation{Action: CancelNone},
		Confusion:    Confusion{Level: LevelNone},
		Tone:         ToneNeutral,
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return f
	}

	_, f.Greeting = best(text, a.greeting)
	_, f.Farewell = best(text, a.farewell)
	if p, ok := best(text, a.confusion); ok {
		f.Confusion = Confusion{Level: confusionLevel(p.weight), Confidence: p.weight}
	}

	for _, level := range []UrgencyLevel{UrgencyHigh, UrgencyMedium, UrgencyLow} {
		if p, ok := best(text, a.urgency[level]); ok {
			f.Urgency = Urgency{Level: level, Confidence: p.weight}
			break
		}
	}

	var courtesy float64
	for _, p := range a.polite {
		if p.regex.MatchString(text) {
			courtesy += p.weight
		}
	}
	if courtesy > 1 {
		courtesy = 1
	}
	f.Politeness = Politeness{Level: politenessLevel(courtesy), Confidence: courtesy}

	for _, action := range []CancellationAction{RescheduleAction, CancelBooking} {
		if p, ok := best(text, a.cancellation[action]); ok {
			f.Cancellation = Cancellation{Action: action, Confidence: p.weight}
			break
		}
	}

	f.CallReason = a.callReason(text)
	f.Tone = a.tone(text, f.Politeness)

	span.SetAttributes(
		attribute.String("intent.urgency", string(f.Urgency.Level)),
		attribute.String("intent.cancellation", string(f.Cancellation.Action)),
		attribute.String("intent.tone", string(f.Tone)),
		attribute.String("intent.confusion", string(f.Confusion.Level)),
		attribute.String("intent.reason", f.CallReason.Primary),
	)
	if f.Urgency.Level == UrgencyHigh || f.Cancellation.Action != CancelNone {
		a.logger.Info("intent: notable message features",
			"urgency", f.Urgency.Level,
			"cancellation", f.Cancellation.Action,
			"tone", f.Tone,
		)
	}
	return f
}

func (a *Analyzer) callReason(text string) CallReason {
	type scored struct {
		name   string
		weight float64
	}
	var hits []scored
	for name, patterns := range a.reasons {
		if p, ok := best(text, patterns); ok {
			hits = append(hits, scored{name, p.weight})
		}
	}
	if len(hits) == 0 {
		return CallReason{}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].weight != hits[j].weight {
			return hits[i].weight > hits[j].weight
		}
		return hits[i].name < hits[j].name
	})
	out := CallReason{Primary: hits[0].name}
	for _, h := range hits {
		out.All = append(out.All, h.name)
	}
	return out
}

func politenessLevel(score float64) Level {
	switch {
	case score >= 0.5:
		return LevelHigh
	case score >= 0.3:
		return LevelMedium
	case score > 0:
		return LevelLow
	}
	return LevelNone
}

func confusionLevel(weight float64) Level {
	switch {
	case weight >= 0.85:
		return LevelHigh
	case weight >= 0.75:
		return LevelMedium
	}
	return LevelLow
}

func (a *Analyzer) tone(text string, politeness Politeness) Tone {
	if _, ok := best(text, a.frustration); ok {
		return ToneFrustrated
	}
	if _, ok := best(text, a.formal); ok {
		return ToneFormal
	}
	if _, ok := best(text, a.casual); ok {
		return ToneCasual
	}
	if politeness.Level == LevelMedium || politeness.Level == LevelHigh {
		return ToneFriendly
	}
	return ToneNeutral
}
