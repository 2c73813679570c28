// Package intent classifies inbound replies as positive, negative or neutral
// and extracts descriptive features used for logging and metrics.
package intent

import (
	"context"
	"fmt"
	"strings"
)

// Sentiment is the ternary reading of a reply.
type Sentiment string

const (
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
	Neutral  Sentiment = "neutral"
)

// ParseSentiment accepts provider labels such as "POSITIVE" or "LABEL_0".
func ParseSentiment(label string) (Sentiment, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive", "pos", "yes", "label_2":
		return Positive, true
	case "negative", "neg", "no", "label_0":
		return Negative, true
	case "neutral", "ambiguous", "unknown", "label_1":
		return Neutral, true
	default:
		return "", false
	}
}

// ContextTag tells the classifier what kind of question the reply answers.
type ContextTag string

const (
	// YesNoQuestion is used when the last prompt asked for confirmation.
	YesNoQuestion ContextTag = "yes_no_question"
	General       ContextTag = "general"
)

// Prediction is a single classifier verdict.
type Prediction struct {
	Label      Sentiment `json:"label"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
}

// TextClassifier scores a piece of text.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (Prediction, error)
}

// AmbiguityPolicy decides what an unclear answer to a yes/no question means.
type AmbiguityPolicy string

const (
	// AmbiguityPositive keeps the booking flow moving.
	AmbiguityPositive AmbiguityPolicy = "positive"
	AmbiguityNeutral  AmbiguityPolicy = "neutral"
)

// ParseAmbiguityPolicy validates a configured policy name.
func ParseAmbiguityPolicy(s string) (AmbiguityPolicy, error) {
	switch AmbiguityPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", AmbiguityPositive:
		return AmbiguityPositive, nil
	case AmbiguityNeutral:
		return AmbiguityNeutral, nil
	default:
		return "", fmt.Errorf("intent: unknown ambiguity policy %q", s)
	}
}

func (p AmbiguityPolicy) sentiment() Sentiment {
	if p == AmbiguityNeutral {
		return Neutral
	}
	return Positive
}
