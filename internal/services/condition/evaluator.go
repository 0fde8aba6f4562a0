package condition

import (
	"errors"
	"fmt"
	"math"

	"StratLab/internal/domain/models"
	"StratLab/internal/services/indicators"
)

// EqualTolerance bounds the relative difference at which == holds.
const EqualTolerance = 1e-9

// Compiled is a condition parsed once ahead of the bar loop.
// A condition whose operands failed to parse keeps its error and reports it on every evaluation.
type Compiled struct {
	Source models.Condition
	Left   Operand
	Right  Operand
	err    error
}

// Compile parses both sides of c. The returned Compiled is usable even when err is non-nil.
func Compile(c models.Condition) (Compiled, error) {
	out := Compiled{Source: c}
	switch c.Operator {
	case models.OpGreater, models.OpLess, models.OpGreaterEq, models.OpLessEq,
		models.OpEqual, models.OpCrossesAbove, models.OpCrossesBelow:
	default:
		out.err = &models.ResolutionError{
			Expression: c.String(),
			Token:      string(c.Operator),
			Reason:     "unsupported operator",
			Suggestion: &models.Suggestion{Rule: "operator", Message: "use one of >, <, >=, <=, ==, crosses_above, crosses_below"},
		}
		return out, out.err
	}
	var err error
	if out.Left, err = ParseOperand(c.Indicator); err != nil {
		out.err = parseError(c, c.Indicator, err)
		return out, out.err
	}
	if out.Right, err = ParseOperand(c.Operand); err != nil {
		out.err = parseError(c, c.Operand, err)
		return out, out.err
	}
	return out, nil
}

// CompileAll compiles every condition and returns the first parse error alongside the full slice.
func CompileAll(cs []models.Condition) ([]Compiled, error) {
	out := make([]Compiled, len(cs))
	var first error
	for i, c := range cs {
		var err error
		out[i], err = Compile(c)
		if err != nil && first == nil {
			first = err
		}
	}
	return out, first
}

func parseError(c models.Condition, token string, err error) *models.ResolutionError {
	return &models.ResolutionError{
		Expression: c.String(),
		Token:      token,
		Reason:     err.Error(),
		Suggestion: Suggest(token, indicators.Known()),
	}
}

func (c Compiled) Expression() string { return c.Source.String() }

// Err returns the compile error, if any.
func (c Compiled) Err() error { return c.err }

// Evaluate reports whether the condition holds at bar i.
// NaN on either side evaluates to false. Crossing operators are false at i == 0.
func (c Compiled) Evaluate(p Provider, i int) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	l, r, err := c.values(p, i)
	if err != nil {
		return false, err
	}
	if math.IsNaN(l) || math.IsNaN(r) {
		return false, nil
	}
	switch c.Source.Operator {
	case models.OpGreater:
		return l > r, nil
	case models.OpLess:
		return l < r, nil
	case models.OpGreaterEq:
		return l >= r || nearlyEqual(l, r), nil
	case models.OpLessEq:
		return l <= r || nearlyEqual(l, r), nil
	case models.OpEqual:
		return nearlyEqual(l, r), nil
	case models.OpCrossesAbove, models.OpCrossesBelow:
		if i == 0 {
			return false, nil
		}
		pl, pr, err := c.values(p, i-1)
		if err != nil {
			return false, err
		}
		if math.IsNaN(pl) || math.IsNaN(pr) {
			return false, nil
		}
		if c.Source.Operator == models.OpCrossesAbove {
			return pl <= pr && l > r, nil
		}
		return pl >= pr && l < r, nil
	}
	return false, fmt.Errorf("unsupported operator %q", c.Source.Operator)
}

func (c Compiled) values(p Provider, i int) (float64, float64, error) {
	l, err := c.Left.Resolve(p, i)
	if err != nil {
		return 0, 0, c.wrap(c.Left.Raw, err, p)
	}
	r, err := c.Right.Resolve(p, i)
	if err != nil {
		return 0, 0, c.wrap(c.Right.Raw, err, p)
	}
	return l, r, nil
}

func (c Compiled) wrap(token string, err error, p Provider) error {
	if errors.Is(err, indicators.ErrUnknownIndicator) {
		return resolutionError(c.Expression(), token, err, p)
	}
	return fmt.Errorf("evaluate %q: %w", c.Expression(), err)
}

// Snapshot captures both sides of the condition at bar i and their normalized margin.
func (c Compiled) Snapshot(p Provider, i int) models.ConditionSnapshot {
	snap := models.ConditionSnapshot{Expression: c.Expression()}
	if c.err != nil {
		return snap
	}
	l, r, err := c.values(p, i)
	if err != nil || math.IsNaN(l) || math.IsNaN(r) {
		return snap
	}
	snap.Left, snap.Right = l, r
	snap.Margin = l - r
	if r != 0 {
		snap.Margin /= math.Abs(r)
	}
	return snap
}

// Evaluate compiles c and evaluates it at bar i.
func Evaluate(c models.Condition, i int, p Provider) (bool, error) {
	compiled, err := Compile(c)
	if err != nil {
		return false, err
	}
	return compiled.Evaluate(p, i)
}

// AllOf reports whether every condition holds at bar i, stopping at the first false or failing one.
func AllOf(cs []Compiled, p Provider, i int) (bool, error) {
	for _, c := range cs {
		ok, err := c.Evaluate(p, i)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return len(cs) > 0, nil
}

func nearlyEqual(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= EqualTolerance*scale
}
