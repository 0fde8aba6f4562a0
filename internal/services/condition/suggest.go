package condition

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"StratLab/internal/domain/models"
)

// suggestionRule maps a recognizable mistake to a rewrite. Rules are tried in order.
type suggestionRule struct {
	name    string
	pattern *regexp.Regexp
	build   func(m []string, known []string) *models.Suggestion
}

var suggestionRules = []suggestionRule{
	{
		name:    "multiplier_prefix",
		pattern: regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*(?:\*|x|×)\s*([A-Za-z][A-Za-z0-9_]*)\s*$`),
		build: func(m []string, known []string) *models.Suggestion {
			return scaled(m[1], m[2], known)
		},
	},
	{
		name:    "multiplier_suffix",
		pattern: regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_]*)\s*(?:\*|×)\s*(\d+(?:\.\d+)?)\s*$`),
		build: func(m []string, known []string) *models.Suggestion {
			return scaled(m[2], m[1], known)
		},
	},
	{
		name:    "percent",
		pattern: regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*%\s*$`),
		build: func(m []string, _ []string) *models.Suggestion {
			return &models.Suggestion{
				Message: fmt.Sprintf("percent values are not operands; use a plain number such as %s, or a percent stop/target rule", m[1]),
			}
		},
	},
	{
		name:    "spaced_name",
		pattern: regexp.MustCompile(`^\s*([A-Za-z][A-Za-z_]*)\s+(\d+)\s*$`),
		build: func(m []string, known []string) *models.Suggestion {
			name, ok := canonical(m[1]+m[2], known)
			if !ok {
				return nil
			}
			return &models.Suggestion{Replacement: name, Message: fmt.Sprintf("use %q without spaces", name)}
		},
	},
	{
		name:    "near_miss",
		pattern: regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_ ]*)\s*$`),
		build: func(m []string, known []string) *models.Suggestion {
			name, ok := closest(m[1], known)
			if !ok {
				return nil
			}
			return &models.Suggestion{Replacement: name, Message: fmt.Sprintf("did you mean %q?", name)}
		},
	},
}

// Suggest proposes a fix for a token that failed to resolve. It always returns a suggestion;
// when no rule applies the message lists the valid indicator names.
func Suggest(token string, known []string) *models.Suggestion {
	for _, rule := range suggestionRules {
		m := rule.pattern.FindStringSubmatch(token)
		if m == nil {
			continue
		}
		if s := rule.build(m, known); s != nil {
			s.Rule = rule.name
			return s
		}
	}
	sorted := append([]string(nil), known...)
	sort.Strings(sorted)
	return &models.Suggestion{
		Rule:    "valid_names",
		Message: "valid indicators: " + strings.Join(sorted, ", "),
	}
}

func scaled(mult, name string, known []string) *models.Suggestion {
	if canon, ok := closest(name, known); ok {
		name = canon
	}
	repl := mult + "x_" + name
	return &models.Suggestion{Replacement: repl, Message: fmt.Sprintf("write scaled references as %q", repl)}
}

// canonical does a case and separator insensitive exact match.
func canonical(name string, known []string) (string, bool) {
	key := fold(name)
	for _, k := range known {
		if fold(k) == key {
			return k, true
		}
	}
	return "", false
}

// closest returns the canonical match for name, or the nearest known name within edit distance 2.
func closest(name string, known []string) (string, bool) {
	if k, ok := canonical(name, known); ok {
		return k, true
	}
	key := fold(name)
	best, bestDist := "", 3
	for _, k := range known {
		if d := levenshtein(key, fold(k)); d < bestDist || (d == bestDist && k < best) {
			best, bestDist = k, d
		}
	}
	return best, best != ""
}

func fold(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("_", "", " ", "", "-", "").Replace(s)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
