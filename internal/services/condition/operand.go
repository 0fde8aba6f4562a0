package condition

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"StratLab/internal/domain/models"
	"StratLab/internal/services/indicators"
)

// Provider resolves indicator values at a bar index.
type Provider interface {
	Value(name string, i int) (float64, error)
}

// Namer is implemented by providers that can list the names they resolve.
type Namer interface {
	Names() []string
}

type OperandKind int

const (
	KindLiteral OperandKind = iota
	KindIndicator
	KindScaled
)

func (k OperandKind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindIndicator:
		return "indicator"
	case KindScaled:
		return "scaled"
	default:
		return "unknown"
	}
}

// Operand is the parsed right or left side of a condition.
type Operand struct {
	Kind  OperandKind
	Raw   string
	Value float64 // literal value or multiplier
	Name  string
}

var (
	identRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	scaledRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)x_([A-Za-z][A-Za-z0-9_]*)$`)
)

// ParseOperand classifies raw as a number, an indicator reference or a scaled reference.
func ParseOperand(raw string) (Operand, error) {
	s := strings.TrimSpace(raw)
	if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return Operand{Kind: KindLiteral, Raw: raw, Value: v}, nil
	}
	if m := scaledRe.FindStringSubmatch(s); m != nil {
		k, _ := strconv.ParseFloat(m[1], 64)
		return Operand{Kind: KindScaled, Raw: raw, Value: k, Name: m[2]}, nil
	}
	if identRe.MatchString(s) {
		return Operand{Kind: KindIndicator, Raw: raw, Name: s}, nil
	}
	return Operand{Raw: raw}, fmt.Errorf("malformed operand %q", raw)
}

// Resolve returns the operand's value at bar i.
func (o Operand) Resolve(p Provider, i int) (float64, error) {
	switch o.Kind {
	case KindLiteral:
		return o.Value, nil
	case KindIndicator, KindScaled:
		v, err := p.Value(o.Name, i)
		if err != nil {
			return 0, err
		}
		if o.Kind == KindScaled {
			v *= o.Value
		}
		return v, nil
	default:
		return 0, fmt.Errorf("unsupported operand kind %d", o.Kind)
	}
}

// resolutionError wraps a provider failure for token inside expression.
func resolutionError(expression, token string, err error, p Provider) *models.ResolutionError {
	reason := err.Error()
	if errors.Is(err, indicators.ErrUnknownIndicator) {
		reason = "unknown indicator"
	}
	return &models.ResolutionError{
		Expression: expression,
		Token:      strings.TrimSpace(token),
		Reason:     reason,
		Suggestion: Suggest(token, knownNames(p)),
	}
}

func knownNames(p Provider) []string {
	if n, ok := p.(Namer); ok {
		return n.Names()
	}
	return indicators.Known()
}
