package llm

import (
	"context"

	"github.com/wolfman30/callback-scheduler/pkg/logging"
)

// FallbackClient tries primary first and, when it fails, the fallback.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *logging.Logger
}

// NewFallbackClient wraps primary. A nil fallback makes it a passthrough.
func NewFallbackClient(primary, fallback Client, logger *logging.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: primary client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil || c.fallback == nil {
		return resp, err
	}
	c.logger.Warn("llm: primary provider failed, trying fallback", "error", err)

	resp, fbErr := c.fallback.Complete(ctx, req)
	if fbErr != nil {
		c.logger.Error("llm: fallback provider failed", "primary_error", err, "fallback_error", fbErr)
		return Response{}, fbErr
	}
	return resp, nil
}
