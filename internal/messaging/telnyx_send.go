package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

var telnyxSendTracer = otel.Tracer("callback-scheduler/messaging")

const (
	defaultTelnyxBaseURL = "https://api.telnyx.com/v2"
	telnyxSendAttempts   = 3
)

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	messagingProfileID string
	from               string
	baseURL            string
	httpClient         *http.Client
	sleep              func(time.Duration)
	logger             *logging.Logger
}

// NewTelnyxSender builds a sender for Telnyx V2 API.
func NewTelnyxSender(apiKey, messagingProfileID, from string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		from:               from,
		baseURL:            defaultTelnyxBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		sleep:  time.Sleep,
		logger: logger,
	}
}

// WithBaseURL points the sender at another API root.
func (s *TelnyxSender) WithBaseURL(baseURL string) *TelnyxSender {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// Send dispatches a single SMS, retrying transport errors and non-2xx responses.
func (s *TelnyxSender) Send(ctx context.Context, to, text string) error {
	if s.apiKey == "" {
		return errors.New("messaging: telnyx api key missing")
	}
	if strings.TrimSpace(to) == "" || strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	correlationID := uuid.NewString()
	ctx, span := telnyxSendTracer.Start(ctx, "messaging.telnyx.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("scheduler.to", to),
		attribute.String("scheduler.correlation_id", correlationID),
	)

	payload := map[string]string{
		"to":   to,
		"text": text,
	}
	if s.from != "" {
		payload["from"] = s.from
	}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: marshal telnyx payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= telnyxSendAttempts; attempt++ {
		lastErr = s.post(ctx, bodyBytes, correlationID)
		if lastErr == nil {
			s.logger.Info("telnyx sms sent", "identifier", to, "attempt", attempt, "correlation_id", correlationID)
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < telnyxSendAttempts {
			s.sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	span.RecordError(lastErr)
	s.logger.Error("failed to send telnyx sms", "error", lastErr, "identifier", to, "correlation_id", correlationID)
	return lastErr
}

func (s *TelnyxSender) post(ctx context.Context, body []byte, correlationID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("messaging: build telnyx request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", correlationID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("messaging: telnyx request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var errorBody map[string]any
	if len(respBody) > 0 && json.Unmarshal(respBody, &errorBody) == nil {
		return fmt.Errorf("messaging: telnyx send failed: status %d, body: %v", resp.StatusCode, errorBody)
	}
	return fmt.Errorf("messaging: telnyx send failed: status %d", resp.StatusCode)
}
