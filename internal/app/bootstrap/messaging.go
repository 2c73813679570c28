package bootstrap

import (
	"fmt"

	appconfig "github.com/wolfman30/callback-scheduler/internal/config"
	"github.com/wolfman30/callback-scheduler/internal/messaging"
	"github.com/wolfman30/callback-scheduler/internal/messaging/catalog"
	"github.com/wolfman30/callback-scheduler/internal/observability/metrics"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// BuildOutboundSender creates the reply sender and applies standard wrappers.
// The second value names the provider; the third explains a dry-run fallback.
func BuildOutboundSender(cfg *appconfig.Config, m *metrics.SchedulerMetrics, logger *logging.Logger) (messaging.Sender, string, string) {
	if cfg == nil {
		return messaging.NewLogSender(logger), messaging.ProviderLog, "missing config"
	}
	sender, provider, reason := messaging.BuildSender(messaging.ProviderSelectionConfig{
		TelnyxAPIKey:    cfg.TelnyxAPIKey,
		TelnyxProfileID: cfg.TelnyxMessagingProfileID,
		TelnyxFrom:      cfg.TelnyxFromNumber,
	}, logger)
	return messaging.NewMeteredSender(sender, m), provider, reason
}

// BuildCatalog loads MESSAGES_FILE over the embedded defaults, or the
// defaults alone when unset.
func BuildCatalog(cfg *appconfig.Config) (*catalog.Catalog, error) {
	if cfg == nil || cfg.MessagesFile == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.Load(cfg.MessagesFile)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return c, nil
}
