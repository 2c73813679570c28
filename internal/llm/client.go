// Package llm wraps the hosted text models used to score inbound messages.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports provider token accounting when available.
type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is a provider-neutral completion request. A negative Temperature
// leaves the provider default in place.
type Request struct {
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
}

// Response is a provider-neutral completion result.
type Response struct {
	Text       string
	Usage      Usage
	StopReason string
}

// Client completes prompts.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ExtractJSONObject returns the outermost {...} span of text. Models often wrap
// JSON in prose or code fences.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
