package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"StratLab/internal/domain/models"
)

var (
	reEntry     = regexp.MustCompile(`(?i)\b(?:when|if)\b(.+?)(?:[,;.]\s*(?:stop|target|take|exit|max|within)\b|$)`)
	reExit      = regexp.MustCompile(`(?i)\bexit\s+(?:when|if)\b(.+?)(?:[,;.]\s*(?:stop|target|take|max|within)\b|$)`)
	reStop      = regexp.MustCompile(`(?i)\bstop(?:[\s-]+loss)?\s+(?:at\s+|of\s+)?([\d.]+)\s*(points?|pts|%|percent|atr)`)
	reTarget    = regexp.MustCompile(`(?i)\b(?:target|take[\s-]+profit)\s+(?:at\s+|of\s+)?([\d.]+)\s*(points?|pts|%|percent|atr)`)
	reMaxBars   = regexp.MustCompile(`(?i)\b(?:max|within)\s+(\d+)\s+bars?\b`)
	reTimeframe = regexp.MustCompile(`\b(1m|5m|15m|30m|1h)\b`)
	reContracts = regexp.MustCompile(`(?i)\b(\d+)\s+contracts?\b`)
	reShort     = regexp.MustCompile(`(?i)\b(short|sell)\b`)
	reAnd       = regexp.MustCompile(`(?i)\s+and\s+`)
	reClause    = regexp.MustCompile(`(?i)^\s*([a-z_][a-z0-9_]*)\s+(crosses\s+above|crosses\s+below|crosses_above|crosses_below|is\s+above|is\s+below|above|below|>=|<=|==|>|<)\s+(\S+)\s*$`)
)

var operatorWords = map[string]models.Operator{
	"crosses above": models.OpCrossesAbove,
	"crosses_above": models.OpCrossesAbove,
	"crosses below": models.OpCrossesBelow,
	"crosses_below": models.OpCrossesBelow,
	"is above":      models.OpGreater,
	"above":         models.OpGreater,
	"is below":      models.OpLess,
	"below":         models.OpLess,
	">":             models.OpGreater,
	"<":             models.OpLess,
	">=":            models.OpGreaterEq,
	"<=":            models.OpLessEq,
	"==":            models.OpEqual,
}

// Rules is a keyword parser for ideas written like
// "go long ES when close crosses above vwap and rsi14 < 70, stop 2 atr, target 3 atr".
type Rules struct{}

func (Rules) Parse(_ context.Context, text, symbol string) (models.Strategy, error) {
	st := models.Strategy{
		Name:           summarize(text),
		Direction:      models.Long,
		Symbol:         strings.ToUpper(strings.TrimSpace(symbol)),
		Timeframe:      "1m",
		PositionSizing: models.PositionSizing{Contracts: 1},
	}
	var fields []models.FieldError

	if reShort.MatchString(text) {
		st.Direction = models.Short
	}
	if m := reTimeframe.FindStringSubmatch(text); m != nil {
		st.Timeframe = m[1]
	}
	if m := reContracts.FindStringSubmatch(text); m != nil {
		st.PositionSizing.Contracts, _ = strconv.Atoi(m[1])
	}
	if m := reMaxBars.FindStringSubmatch(text); m != nil {
		st.MaxBarsHeld, _ = strconv.Atoi(m[1])
	}

	// the exit clause must not leak into the entry clause
	entryText := text
	if loc := reExit.FindStringSubmatchIndex(text); loc != nil {
		conds, bad := parseClauses(text[loc[2]:loc[3]])
		st.ExitConditions = conds
		for _, c := range bad {
			fields = append(fields, models.FieldError{Field: "exit_conditions", Message: "cannot parse " + strconv.Quote(c)})
		}
		entryText = strings.TrimRight(text[:loc[0]], " ,;") + text[loc[3]:]
	}
	if m := reEntry.FindStringSubmatch(entryText); m != nil {
		conds, bad := parseClauses(m[1])
		st.EntryConditions = conds
		for _, c := range bad {
			fields = append(fields, models.FieldError{Field: "entry_conditions", Message: "cannot parse " + strconv.Quote(c)})
		}
	}
	if len(st.EntryConditions) == 0 && len(fields) == 0 {
		fields = append(fields, models.FieldError{Field: "entry_conditions", Message: "no entry condition found"})
	}

	if st.StopLoss = parseRisk(reStop, text); st.StopLoss == nil {
		fields = append(fields, models.FieldError{Field: "stop_loss", Message: "no stop found"})
	}
	if st.TakeProfit = parseRisk(reTarget, text); st.TakeProfit == nil {
		fields = append(fields, models.FieldError{Field: "take_profit", Message: "no target found"})
	}
	if st.Symbol == "" {
		fields = append(fields, models.FieldError{Field: "symbol", Message: "symbol is required"})
	}

	if len(fields) > 0 {
		return models.Strategy{}, &models.ValidationError{Fields: fields}
	}
	return st, nil
}

func parseClauses(s string) (conds []models.Condition, bad []string) {
	for _, part := range reAnd.Split(strings.TrimSpace(s), -1) {
		part = strings.Trim(part, " ,;.")
		m := reClause.FindStringSubmatch(part)
		if m == nil {
			bad = append(bad, part)
			continue
		}
		op := strings.Join(strings.Fields(strings.ToLower(m[2])), " ")
		conds = append(conds, models.Condition{
			Indicator: m[1],
			Operator:  operatorWords[op],
			Operand:   m[3],
		})
	}
	return conds, bad
}

func parseRisk(re *regexp.Regexp, text string) *models.RiskRule {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return nil
	}
	rule := &models.RiskRule{Value: v, Type: models.RiskPoints}
	switch strings.ToLower(m[2]) {
	case "%", "percent":
		rule.Type = models.RiskPercent
	case "atr":
		rule.Type = models.RiskATR
	}
	return rule
}

func summarize(text string) string {
	words := strings.Fields(text)
	if len(words) > 8 {
		words = words[:8]
	}
	return strings.Join(words, " ")
}
