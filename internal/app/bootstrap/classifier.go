package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/callback-scheduler/internal/config"
	"github.com/wolfman30/callback-scheduler/internal/intent"
	"github.com/wolfman30/callback-scheduler/internal/llm"
	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

const (
	ProviderNone    = "none"
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
)

// AWSLoader produces the SDK configuration for Bedrock.
type AWSLoader func(ctx context.Context, cfg *appconfig.Config) (aws.Config, error)

// BuildTextModel returns the hosted model selected by CLASSIFIER_PROVIDER, or
// nil for keyword-only classification. When the other provider is also
// configured it becomes the fallback. The returned func releases clients.
func BuildTextModel(ctx context.Context, cfg *appconfig.Config, loadAWS AWSLoader, logger *logging.Logger) (llm.Client, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.ClassifierProvider))
	switch provider {
	case "", ProviderNone:
		logger.Info("no classifier model configured; using keyword classification")
		return nil, noop, nil
	case ProviderGemini, ProviderBedrock:
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown classifier provider %q", cfg.ClassifierProvider)
	}

	var closers []func()
	release := func() {
		for _, c := range closers {
			c()
		}
	}

	gemini := func() (llm.Client, error) {
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, nil
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		return client, nil
	}
	bedrock := func() (llm.Client, error) {
		if strings.TrimSpace(cfg.BedrockModelID) == "" || loadAWS == nil {
			return nil, nil
		}
		awsCfg, err := loadAWS(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	}

	build := []func() (llm.Client, error){gemini, bedrock}
	if provider == ProviderBedrock {
		build = []func() (llm.Client, error){bedrock, gemini}
	}
	primary, err := build[0]()
	if err != nil {
		release()
		return nil, noop, err
	}
	if primary == nil {
		release()
		return nil, noop, fmt.Errorf("bootstrap: classifier provider %q is not configured", provider)
	}
	fallback, err := build[1]()
	if err != nil {
		logger.Warn("fallback classifier model unavailable", "error", err)
		fallback = nil
	}
	if fallback == nil {
		logger.Info("classifier model enabled", "provider", provider)
		return primary, release, nil
	}
	logger.Info("classifier model enabled with fallback", "provider", provider)
	return llm.NewFallbackClient(primary, fallback, logger), release, nil
}

// BuildClassifier layers keyword rules and the ambiguity policy over model,
// which may be nil.
func BuildClassifier(cfg *appconfig.Config, model llm.Client, logger *logging.Logger) (*intent.Hybrid, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	policy, err := intent.ParseAmbiguityPolicy(cfg.AmbiguityPolicy)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	var textModel intent.TextClassifier
	if model != nil {
		textModel = intent.NewModelClassifier(model)
	}
	return intent.NewHybrid(textModel, logger, intent.WithAmbiguityPolicy(policy)), nil
}
