package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/callback-scheduler/internal/conversation"
	"github.com/wolfman30/callback-scheduler/internal/messaging"
	"github.com/wolfman30/callback-scheduler/internal/observability/metrics"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

const maxWebhookBody = 1 << 20

// Enqueuer accepts inbound messages for the conversation driver.
type Enqueuer interface {
	Submit(ctx context.Context, job conversation.Job) error
}

// TelnyxWebhookConfig wires a TelnyxWebhookHandler.
type TelnyxWebhookConfig struct {
	// Secret enables signature checks when non-empty.
	Secret  string
	Gate    *messaging.Gate
	Queue   Enqueuer
	Metrics *metrics.SchedulerMetrics
	Logger  *logging.Logger
}

// TelnyxWebhookHandler receives inbound Telnyx message events.
type TelnyxWebhookHandler struct {
	secret  string
	gate    *messaging.Gate
	queue   Enqueuer
	metrics *metrics.SchedulerMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewTelnyxWebhookHandler builds the handler. Queue is required.
func NewTelnyxWebhookHandler(cfg TelnyxWebhookConfig) *TelnyxWebhookHandler {
	if cfg.Queue == nil {
		panic("handlers: queue cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Gate == nil {
		cfg.Gate = messaging.NewGate(nil, cfg.Logger)
	}
	return &TelnyxWebhookHandler{
		secret:  cfg.Secret,
		gate:    cfg.Gate,
		queue:   cfg.Queue,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// HandleMessages verifies, parses and gates an event, then queues it.
// Everything the driver should not see is acknowledged with 200 or 204 so
// the provider does not retry it.
func (h *TelnyxWebhookHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.secret != "" {
		if err := messaging.VerifyWebhookSignature(h.secret, r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body, h.now()); err != nil {
			h.logger.Warn("invalid telnyx webhook signature", "error", err)
			h.metrics.ObserveInbound("rejected")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	ev, err := messaging.ParseTelnyxInbound(body)
	if errors.Is(err, messaging.ErrNotInbound) {
		h.metrics.ObserveInbound("ignored")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.Warn("invalid telnyx payload", "error", err)
		h.metrics.ObserveInbound("invalid")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if ok, reason := h.gate.Admit(ev); !ok {
		h.metrics.ObserveInbound("dropped_" + reason)
		w.WriteHeader(http.StatusOK)
		return
	}

	received := ev.ReceivedAt
	if received.IsZero() {
		received = start
	}
	job := conversation.Job{Identifier: ev.From, Text: strings.TrimSpace(ev.Text), ReceivedAt: received}
	if err := h.queue.Submit(r.Context(), job); err != nil {
		h.logger.Error("failed to queue inbound message", "identifier", ev.From, "error", err)
		h.metrics.ObserveInbound("queue_error")
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	h.metrics.ObserveInbound("admitted")
	h.metrics.ObserveWebhookLatency("message.received", h.now().Sub(start).Seconds())
	w.WriteHeader(http.StatusOK)
}
