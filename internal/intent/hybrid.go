package intent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

var tracer = otel.Tracer("callback-scheduler/intent")

const (
	// yesNoNegativeThreshold is the model confidence needed to accept a
	// refusal the keywords did not catch.
	yesNoNegativeThreshold = 0.7
	generalThreshold       = 0.6
)

// Hybrid combines a model classifier with the keyword cascade.
type Hybrid struct {
	model    TextClassifier
	keywords TextClassifier
	policy   AmbiguityPolicy
	logger   *logging.Logger
}

// HybridOption customizes a Hybrid.
type HybridOption func(*Hybrid)

// WithAmbiguityPolicy overrides the default positive policy.
func WithAmbiguityPolicy(p AmbiguityPolicy) HybridOption {
	return func(h *Hybrid) {
		if p != "" {
			h.policy = p
		}
	}
}

// WithKeywordClassifier swaps the keyword fallback.
func WithKeywordClassifier(c TextClassifier) HybridOption {
	return func(h *Hybrid) {
		if c != nil {
			h.keywords = c
		}
	}
}

// NewHybrid builds the decorator. model may be nil, in which case only
// keywords and the ambiguity policy are used.
func NewHybrid(model TextClassifier, logger *logging.Logger, opts ...HybridOption) *Hybrid {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Hybrid{model: model, keywords: KeywordClassifier{}, policy: AmbiguityPositive, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Policy returns the configured ambiguity policy.
func (h *Hybrid) Policy() AmbiguityPolicy { return h.policy }

// Classify never fails: model errors fall back to keywords silently.
func (h *Hybrid) Classify(ctx context.Context, text string, tag ContextTag) Sentiment {
	ctx, span := tracer.Start(ctx, "intent.classify")
	defer span.End()

	var (
		result Sentiment
		source string
	)
	if tag == YesNoQuestion {
		result, source = h.classifyYesNo(ctx, text)
	} else {
		result, source = h.classifyGeneral(ctx, text)
	}

	span.SetAttributes(
		attribute.String("intent.context", string(tag)),
		attribute.String("intent.sentiment", string(result)),
		attribute.String("intent.source", source),
	)
	h.logger.Debug("intent: classified", "context", tag, "sentiment", result, "source", source)
	return result
}

func (h *Hybrid) classifyYesNo(ctx context.Context, text string) (Sentiment, string) {
	kw := AnalyzeYesNoKeywords(text)
	if kw.Explicit {
		return kw.Sentiment, "keyword:" + kw.Tier
	}
	if pred, ok := h.predict(ctx, text); ok && pred.Label == Negative && pred.Confidence > yesNoNegativeThreshold {
		return Negative, "model"
	}
	// Weak signals (emoji, politeness) still outrank the ambiguity policy.
	if kw.Tier != "" && kw.Sentiment != Neutral {
		return kw.Sentiment, "keyword:" + kw.Tier
	}
	return h.policy.sentiment(), "policy"
}

func (h *Hybrid) classifyGeneral(ctx context.Context, text string) (Sentiment, string) {
	if pred, ok := h.predict(ctx, text); ok && pred.Label != Neutral && pred.Confidence > generalThreshold {
		return pred.Label, "model"
	}
	pred, err := h.keywords.Classify(ctx, text)
	if err != nil {
		return Neutral, "default"
	}
	return pred.Label, pred.Source
}

func (h *Hybrid) predict(ctx context.Context, text string) (Prediction, bool) {
	if h.model == nil {
		return Prediction{}, false
	}
	pred, err := h.model.Classify(ctx, text)
	if err != nil {
		h.logger.Warn("intent: model classification failed, using keywords", "error", err)
		return Prediction{}, false
	}
	return pred, true
}
