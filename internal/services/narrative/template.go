package narrative

import (
	"context"
	"fmt"
	"strings"

	"StratLab/internal/domain/models"
)

// Template renders a fixed-format narrative from the facts alone.
type Template struct{}

func (Template) Generate(_ context.Context, f models.TradeFacts) (string, error) {
	var b strings.Builder
	verb := map[models.Outcome]string{
		models.OutcomeWin:     "won",
		models.OutcomeLoss:    "lost",
		models.OutcomeTimeout: "timed out with",
	}[f.Result]
	if verb == "" {
		verb = "closed with"
	}
	pnl := f.Pnl
	if pnl < 0 {
		pnl = -pnl
	}
	fmt.Fprintf(&b, "%s trade #%d %s %.2f after %d bars.", titleCase(string(f.Direction)), f.TradeIndex, verb, pnl, f.BarsHeld)
	if len(f.EntryReasons) > 0 {
		fmt.Fprintf(&b, " Entered on %s.", strings.Join(f.EntryReasons, ", "))
	}
	fmt.Fprintf(&b, " Exit: %s.", strings.ReplaceAll(string(f.ExitReason), "_", " "))
	fmt.Fprintf(&b, " Context: %s session, trend %s, volatility %s.", f.HourBucket, f.Trend, f.Volatility)
	fmt.Fprintf(&b, " Entry quality %.0f/100, exit quality %.0f/100.", f.EntryQuality, f.ExitQuality)
	return b.String(), nil
}

func titleCase(s string) string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
