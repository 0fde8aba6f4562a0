package parser

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

type parseRequest struct {
	Text   string `json:"text"`
	Symbol string `json:"symbol"`
}

type parseResponse struct {
	Strategy *models.Strategy `json:"strategy"`
}

// Client sends free text to the strategy-parser service. An unavailable
// service falls back to the keyword rules.
type Client struct {
	base     *remote.HTTPServiceBase
	fallback Rules
	l        *logger.Logger
}

func NewClient(cfg config.RemoteConfig, l *logger.Logger, opts ...remote.BreakerOption) *Client {
	if l == nil {
		l = logger.NewNop()
	}
	return &Client{base: remote.NewHTTPServiceBase("parser", cfg, opts...), l: l}
}

func (c *Client) Parse(ctx context.Context, text, symbol string) (models.Strategy, error) {
	var resp parseResponse
	err := c.base.PostJSON(ctx, "/parse", parseRequest{Text: text, Symbol: symbol}, &resp)
	if err == nil {
		if resp.Strategy == nil {
			return models.Strategy{}, fmt.Errorf("parser returned no strategy")
		}
		st := *resp.Strategy
		if st.Symbol == "" {
			st.Symbol = symbol
		}
		return st, nil
	}
	if !errors.Is(err, models.ErrServiceUnavailable) {
		return models.Strategy{}, fmt.Errorf("parse strategy: %w", err)
	}
	c.l.Warn("strategy parser unavailable, using keyword rules", logger.Error(err))
	return c.fallback.Parse(ctx, text, symbol)
}

// New picks the remote client when a URL is configured, the keyword rules otherwise.
func New(cfg config.RemoteConfig, l *logger.Logger) domsvc.StrategyParser {
	if cfg.Enabled() {
		return NewClient(cfg, l)
	}
	return Rules{}
}
