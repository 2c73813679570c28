package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotInbound marks webhook events that are not inbound messages
	// (delivery receipts, outbound echoes). Callers acknowledge and drop them.
	ErrNotInbound = errors.New("messaging: event is not an inbound message")
	// ErrInvalidSignature is returned by VerifyWebhookSignature.
	ErrInvalidSignature = errors.New("messaging: invalid webhook signature")
)

// MaxSignatureSkew bounds how old a signed webhook timestamp may be.
const MaxSignatureSkew = 5 * time.Minute

// InboundEvent is a text message received from a remote party.
type InboundEvent struct {
	ID         string
	From       string
	To         string
	Text       string
	Group      bool
	ReceivedAt time.Time
}

type telnyxMessagePayload struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Text      string `json:"text"`
	From      struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"from"`
	To []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"to"`
	Cc []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"cc"`
	FromNumberRaw string    `json:"from_number"`
	ToNumberRaw   string    `json:"to_number"`
	Broadcast     bool      `json:"broadcast"`
	ReceivedAt    time.Time `json:"received_at"`
}

func (p telnyxMessagePayload) fromNumber() string {
	if v := strings.TrimSpace(p.From.PhoneNumber); v != "" {
		return v
	}
	return strings.TrimSpace(p.FromNumberRaw)
}

func (p telnyxMessagePayload) toNumber() string {
	if len(p.To) > 0 {
		if v := strings.TrimSpace(p.To[0].PhoneNumber); v != "" {
			return v
		}
	}
	return strings.TrimSpace(p.ToNumberRaw)
}

// ParseTelnyxInbound decodes a Telnyx webhook body. Both the event envelope
// ({"data": {"event_type", "payload"}}) and the bare message record are accepted.
func ParseTelnyxInbound(body []byte) (InboundEvent, error) {
	var wrapper struct {
		Data struct {
			ID         string          `json:"id"`
			EventType  string          `json:"event_type"`
			OccurredAt time.Time       `json:"occurred_at"`
			Payload    json.RawMessage `json:"payload"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return InboundEvent{}, fmt.Errorf("messaging: decode webhook: %w", err)
	}

	var (
		eventID    string
		occurredAt time.Time
		raw        []byte
	)
	if wrapper.Data.ID != "" {
		if wrapper.Data.EventType != "message.received" {
			return InboundEvent{}, ErrNotInbound
		}
		eventID = wrapper.Data.ID
		occurredAt = wrapper.Data.OccurredAt
		raw = wrapper.Data.Payload
	} else {
		var record struct {
			RecordType string `json:"record_type"`
			Direction  string `json:"direction"`
		}
		if err := json.Unmarshal(body, &record); err != nil {
			return InboundEvent{}, fmt.Errorf("messaging: decode message record: %w", err)
		}
		if record.RecordType != "message" || record.Direction != "inbound" {
			return InboundEvent{}, ErrNotInbound
		}
		raw = body
	}

	var payload telnyxMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return InboundEvent{}, fmt.Errorf("messaging: decode message payload: %w", err)
	}
	if payload.Direction != "" && payload.Direction != "inbound" {
		return InboundEvent{}, ErrNotInbound
	}
	from := NormalizeIdentifier(payload.fromNumber())
	if from == "" {
		return InboundEvent{}, errors.New("messaging: inbound message missing sender")
	}
	if eventID == "" {
		eventID = payload.ID
	}
	received := payload.ReceivedAt
	if received.IsZero() {
		received = occurredAt
	}
	return InboundEvent{
		ID:         eventID,
		From:       from,
		To:         NormalizeIdentifier(payload.toNumber()),
		Text:       payload.Text,
		Group:      payload.Broadcast || len(payload.To)+len(payload.Cc) > 1,
		ReceivedAt: received,
	}, nil
}

// VerifyWebhookSignature checks an HMAC-SHA256 hex signature over
// "<timestamp>.<body>" and rejects timestamps outside MaxSignatureSkew.
func VerifyWebhookSignature(secret, timestamp, signature string, body []byte, now time.Time) error {
	if secret == "" {
		return errors.New("messaging: webhook secret not configured")
	}
	if timestamp == "" || signature == "" {
		return ErrInvalidSignature
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSignatureSkew {
		return fmt.Errorf("%w: timestamp outside allowed skew", ErrInvalidSignature)
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("%w: bad encoding", ErrInvalidSignature)
	}
	if !hmac.Equal(given, SignWebhook(secret, timestamp, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignWebhook computes the signature VerifyWebhookSignature expects.
func SignWebhook(secret, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}
