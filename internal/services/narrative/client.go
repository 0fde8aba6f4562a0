package narrative

import (
	"context"
	"errors"
	"fmt"

	"StratLab/internal/domain/models"
	domsvc "StratLab/internal/domain/service"
	"StratLab/internal/services/remote"
	"StratLab/pkg/config"
	"StratLab/pkg/logger"
)

type narrativeResponse struct {
	Narrative string `json:"narrative"`
}

// Client asks the narrative service to describe a trade. When the service is
// unavailable it falls back to the template so a facts request still succeeds.
type Client struct {
	base     *remote.HTTPServiceBase
	fallback Template
	l        *logger.Logger
}

func NewClient(cfg config.RemoteConfig, l *logger.Logger, opts ...remote.BreakerOption) *Client {
	if l == nil {
		l = logger.NewNop()
	}
	return &Client{base: remote.NewHTTPServiceBase("narrative", cfg, opts...), l: l}
}

func (c *Client) Generate(ctx context.Context, facts models.TradeFacts) (string, error) {
	var resp narrativeResponse
	err := c.base.PostJSON(ctx, "/narrative", facts, &resp)
	switch {
	case err == nil && resp.Narrative != "":
		return resp.Narrative, nil
	case err == nil:
		c.l.Warn("narrative service returned empty text", logger.String("run_id", facts.RunID))
	case errors.Is(err, models.ErrServiceUnavailable):
		c.l.Warn("narrative service unavailable, using template",
			logger.String("run_id", facts.RunID),
			logger.Error(err),
		)
	default:
		return "", fmt.Errorf("generate narrative: %w", err)
	}
	return c.fallback.Generate(ctx, facts)
}

// New picks the remote client when a URL is configured, the template otherwise.
func New(cfg config.RemoteConfig, l *logger.Logger) domsvc.NarrativeGenerator {
	if cfg.Enabled() {
		return NewClient(cfg, l)
	}
	return Template{}
}
