package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/callback-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/callback-scheduler/internal/http/middleware"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	TelnyxWebhooks *handlers.TelnyxWebhookHandler
	MetricsHandler http.Handler
	// WebhookLimiter throttles webhook posts per client address when set.
	WebhookLimiter *httpmiddleware.RateLimiter
	// Stats adds fields to the health response, e.g. held session count.
	Stats func() map[string]any
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/healthz", healthHandler(cfg.Stats))
	if cfg.TelnyxWebhooks != nil {
		webhooks := r.With()
		if cfg.WebhookLimiter != nil {
			webhooks = r.With(httpmiddleware.RateLimit(cfg.WebhookLimiter))
		}
		webhooks.Post("/webhooks/telnyx", cfg.TelnyxWebhooks.HandleMessages)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	return r
}

func healthHandler(stats func() map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if stats != nil {
			for k, v := range stats() {
				resp[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
