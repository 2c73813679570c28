package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/callback-scheduler/internal/llm"
)

// ErrNoModel is returned by a ModelClassifier built without a client.
var ErrNoModel = errors.New("intent: no model configured")

const sentimentPrompt = `You label short text-message replies for a call scheduling assistant.
Answer with JSON only: {"label": "positive" | "negative" | "neutral", "confidence": <0..1>}.
positive means agreement or willingness, negative means refusal, neutral means unclear.`

// ModelClassifier asks a hosted text model for a sentiment label.
type ModelClassifier struct {
	client llm.Client
}

// NewModelClassifier wraps client. A nil client yields ErrNoModel on every call.
func NewModelClassifier(client llm.Client) *ModelClassifier {
	return &ModelClassifier{client: client}
}

func (m *ModelClassifier) Classify(ctx context.Context, text string) (Prediction, error) {
	if m == nil || m.client == nil {
		return Prediction{}, ErrNoModel
	}
	resp, err := m.client.Complete(ctx, llm.Request{
		System:      []string{sentimentPrompt},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: text}},
		MaxTokens:   64,
		Temperature: 0,
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("intent: model classify: %w", err)
	}
	return parseModelPrediction(resp.Text)
}

func parseModelPrediction(text string) (Prediction, error) {
	raw, ok := llm.ExtractJSONObject(text)
	if !ok {
		return Prediction{}, fmt.Errorf("intent: model reply has no json: %q", truncate(text, 80))
	}
	var out struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Prediction{}, fmt.Errorf("intent: decode model reply: %w", err)
	}
	label, ok := ParseSentiment(out.Label)
	if !ok {
		return Prediction{}, fmt.Errorf("intent: unknown model label %q", out.Label)
	}
	conf := out.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return Prediction{Label: label, Confidence: conf, Source: "model"}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
