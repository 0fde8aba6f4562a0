package models

import "fmt"

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() int {
	if d == Short {
		return -1
	}
	return 1
}

type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEq    Operator = ">="
	OpLessEq       Operator = "<="
	OpEqual        Operator = "=="
	OpCrossesAbove Operator = "crosses_above"
	OpCrossesBelow Operator = "crosses_below"
)

// Condition is a single comparison "indicator operator operand".
// Operand may be a number, an indicator name or a scaled reference like "1.5x_avgVolume20".
type Condition struct {
	Indicator string   `json:"indicator" yaml:"indicator" validate:"required"`
	Operator  Operator `json:"operator" yaml:"operator" validate:"required,oneof=> < >= <= == crosses_above crosses_below"`
	Operand   string   `json:"operand" yaml:"operand" validate:"required"`
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Indicator, c.Operator, c.Operand)
}

type RiskType string

const (
	RiskPoints  RiskType = "points"
	RiskPercent RiskType = "percent"
	RiskATR     RiskType = "atr"
)

// RiskRule is a stop or target distance from the entry price.
type RiskRule struct {
	Type  RiskType `json:"type" yaml:"type" validate:"required,oneof=points percent atr"`
	Value float64  `json:"value" yaml:"value" validate:"gt=0"`
}

type PositionSizing struct {
	Contracts int `json:"contracts" yaml:"contracts" default:"1" validate:"gte=1,lte=1000"`
}

// Strategy is a rule set evaluated bar by bar against one symbol.
type Strategy struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Direction       Direction      `json:"direction" yaml:"direction" validate:"required,oneof=long short"`
	Symbol          string         `json:"symbol" yaml:"symbol" validate:"required"`
	Timeframe       string         `json:"timeframe" yaml:"timeframe" default:"1m" validate:"oneof=1m 5m 15m 30m 1h"`
	EntryConditions []Condition    `json:"entry_conditions" yaml:"entry_conditions" validate:"required,min=1,dive"`
	ExitConditions  []Condition    `json:"exit_conditions,omitempty" yaml:"exit_conditions" validate:"dive"`
	StopLoss        *RiskRule      `json:"stop_loss" yaml:"stop_loss" validate:"required"`
	TakeProfit      *RiskRule      `json:"take_profit" yaml:"take_profit" validate:"required"`
	PositionSizing  PositionSizing `json:"position_sizing" yaml:"position_sizing"`
	MaxBarsHeld     int            `json:"max_bars_held,omitempty" yaml:"max_bars_held" validate:"gte=0"`
}

// Clone returns a deep copy; the risk rules and condition lists are not shared with s.
func (s Strategy) Clone() Strategy {
	out := s
	if s.EntryConditions != nil {
		out.EntryConditions = append([]Condition(nil), s.EntryConditions...)
	}
	if s.ExitConditions != nil {
		out.ExitConditions = append([]Condition(nil), s.ExitConditions...)
	}
	if s.StopLoss != nil {
		rule := *s.StopLoss
		out.StopLoss = &rule
	}
	if s.TakeProfit != nil {
		rule := *s.TakeProfit
		out.TakeProfit = &rule
	}
	return out
}
