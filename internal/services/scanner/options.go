package scanner

import "StratLab/internal/services/contracts"

// FillPolicy decides the price a signalled entry fills at.
type FillPolicy string

const (
	// FillOnClose enters at the close of the bar whose conditions fired.
	FillOnClose FillPolicy = "close"
	// FillNextOpen enters at the open of the following bar.
	FillNextOpen FillPolicy = "next_open"
)

const DefaultCancelCheckEvery = 256

// ParseFillPolicy maps a config or request string to a FillPolicy, defaulting to FillOnClose.
func ParseFillPolicy(s string) FillPolicy {
	if FillPolicy(s) == FillNextOpen {
		return FillNextOpen
	}
	return FillOnClose
}

type Config struct {
	Fill             FillPolicy
	Contracts        *contracts.Table
	CancelCheckEvery int
}

type Option func(*Config)

func WithFillPolicy(p FillPolicy) Option {
	return func(c *Config) {
		if p != "" {
			c.Fill = p
		}
	}
}

func WithContracts(t *contracts.Table) Option {
	return func(c *Config) {
		if t != nil {
			c.Contracts = t
		}
	}
}

// WithCancelCheckEvery sets how many bars pass between context checks.
func WithCancelCheckEvery(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.CancelCheckEvery = n
		}
	}
}
