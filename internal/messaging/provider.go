package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/callback-scheduler/internal/observability/metrics"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

const (
	// ProviderTelnyx sends through the Telnyx REST API.
	ProviderTelnyx = "telnyx"
	// ProviderLog only logs outbound messages.
	ProviderLog = "log"
)

// ErrEmptyMessage is returned when there is nothing to send.
var ErrEmptyMessage = errors.New("messaging: recipient and text required")

// Sender delivers a text message to an identifier.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// ProviderSelectionConfig captures the credentials required to build a sender.
type ProviderSelectionConfig struct {
	TelnyxAPIKey    string
	TelnyxProfileID string
	TelnyxFrom      string
}

// BuildSender returns a Telnyx sender when credentials exist, otherwise a log
// sender. The second value names the provider; the third explains a fallback.
func BuildSender(cfg ProviderSelectionConfig, logger *logging.Logger) (Sender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	var missing []string
	if strings.TrimSpace(cfg.TelnyxAPIKey) == "" {
		missing = append(missing, "TELNYX_API_KEY missing")
	}
	if strings.TrimSpace(cfg.TelnyxFrom) == "" && strings.TrimSpace(cfg.TelnyxProfileID) == "" {
		missing = append(missing, "TELNYX_FROM_NUMBER or TELNYX_MESSAGING_PROFILE_ID missing")
	}
	if len(missing) > 0 {
		return NewLogSender(logger), ProviderLog, strings.Join(missing, ", ")
	}
	return NewTelnyxSender(cfg.TelnyxAPIKey, cfg.TelnyxProfileID, cfg.TelnyxFrom, logger), ProviderTelnyx, ""
}

// LogSender writes outbound messages to the log instead of a transport.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender builds a dry-run sender.
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(ctx context.Context, to, text string) error {
	if strings.TrimSpace(to) == "" || strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	s.logger.Info("outbound message (dry run)", "identifier", to, "text", text)
	return nil
}

// MeteredSender counts outbound results.
type MeteredSender struct {
	next    Sender
	metrics *metrics.SchedulerMetrics
}

// NewMeteredSender wraps next. A nil metrics value disables counting.
func NewMeteredSender(next Sender, m *metrics.SchedulerMetrics) *MeteredSender {
	if next == nil {
		panic("messaging: sender cannot be nil")
	}
	return &MeteredSender{next: next, metrics: m}
}

// Send delegates and records the outcome.
func (s *MeteredSender) Send(ctx context.Context, to, text string) error {
	err := s.next.Send(ctx, to, text)
	status := "sent"
	if err != nil {
		status = "failed"
	}
	s.metrics.ObserveOutbound(status)
	return err
}
