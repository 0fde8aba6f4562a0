package contracts

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Spec describes the dollar value of one point and the minimum price increment of a futures contract.
type Spec struct {
	Root       string
	PointValue decimal.Decimal
	TickSize   decimal.Decimal
}

// TickValue is the dollar value of one tick for one contract.
func (s Spec) TickValue() decimal.Decimal {
	return s.PointValue.Mul(s.TickSize)
}

// RoundToTick rounds price to the nearest valid tick.
func (s Spec) RoundToTick(price float64) float64 {
	if s.TickSize.IsZero() {
		return price
	}
	ticks := decimal.NewFromFloat(price).Div(s.TickSize).Round(0)
	f, _ := ticks.Mul(s.TickSize).Float64()
	return f
}

// PnL returns sign*(exit-entry)*pointValue*contracts in dollars.
func (s Spec) PnL(sign int, entry, exit float64, contracts int) float64 {
	move := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	pnl := move.
		Mul(decimal.NewFromInt(int64(sign))).
		Mul(s.PointValue).
		Mul(decimal.NewFromInt(int64(contracts)))
	f, _ := pnl.Round(2).Float64()
	return f
}

func spec(root string, pointValue, tick string) Spec {
	return Spec{Root: root, PointValue: decimal.RequireFromString(pointValue), TickSize: decimal.RequireFromString(tick)}
}

// Fallback applies to symbols missing from the table.
var Fallback = spec("", "1", "0.01")

// Table resolves symbols to contract specs by longest root prefix, so "MESZ4" maps to MES.
type Table struct {
	specs    map[string]Spec
	roots    []string
	fallback Spec
}

func NewTable(specs ...Spec) *Table {
	t := &Table{specs: make(map[string]Spec, len(specs)), fallback: Fallback}
	for _, s := range specs {
		root := strings.ToUpper(s.Root)
		if _, dup := t.specs[root]; !dup {
			t.roots = append(t.roots, root)
		}
		t.specs[root] = s
	}
	sort.Slice(t.roots, func(i, j int) bool { return len(t.roots[i]) > len(t.roots[j]) })
	return t
}

// DefaultTable holds the CME equity index, energy and metals contracts.
func DefaultTable() *Table {
	return NewTable(
		spec("ES", "50", "0.25"),
		spec("MES", "5", "0.25"),
		spec("NQ", "20", "0.25"),
		spec("MNQ", "2", "0.25"),
		spec("YM", "5", "1"),
		spec("MYM", "0.5", "1"),
		spec("RTY", "50", "0.1"),
		spec("M2K", "5", "0.1"),
		spec("CL", "1000", "0.01"),
		spec("MCL", "100", "0.01"),
		spec("GC", "100", "0.1"),
		spec("MGC", "10", "0.1"),
	)
}

// Lookup returns the spec for symbol, or the fallback when no root matches.
func (t *Table) Lookup(symbol string) Spec {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	sym = strings.TrimPrefix(sym, "/")
	if s, ok := t.specs[sym]; ok {
		return s
	}
	for _, root := range t.roots {
		if strings.HasPrefix(sym, root) && isContractSuffix(sym[len(root):]) {
			return t.specs[root]
		}
	}
	return t.fallback
}

// isContractSuffix accepts month-code suffixes like "Z4", "H25" or "=F".
func isContractSuffix(rest string) bool {
	if rest == "" || rest == "=F" || rest == "1!" {
		return true
	}
	if !strings.ContainsRune("FGHJKMNQUVXZ", rune(rest[0])) {
		return false
	}
	digits := rest[1:]
	if len(digits) == 0 || len(digits) > 2 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
