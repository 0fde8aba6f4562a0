package diagnostics

import (
	"fmt"
	"math"
	"sort"

	"StratLab/internal/domain/models"
)

// Similarity weights. A perfect match scores 120.
const (
	WeightResult       = 20
	WeightPnl          = 15
	WeightDuration     = 15
	WeightEntryQuality = 15
	WeightExitQuality  = 15
	WeightHour         = 10
	WeightWeekday      = 10
	WeightMAE          = 10
	WeightMFE          = 10

	// MinSimilarity is the exclusive lower bound a candidate must beat to be returned.
	MinSimilarity = 30
	DefaultTopN   = 5
)

const (
	pnlTolerance       = 0.20
	durationTolerance  = 0.20
	qualityTolerance   = 10.0
	excursionTolerance = 0.30
)

// Similarity scores how alike b is to a and names the criteria that matched.
func Similarity(a, b models.TradeResult) (int, []string) {
	score := 0
	var matched []string
	hit := func(ok bool, weight int, name string) {
		if ok {
			score += weight
			matched = append(matched, name)
		}
	}
	hit(a.Result == b.Result, WeightResult, "result")
	hit(relClose(a.Pnl, b.Pnl, pnlTolerance), WeightPnl, "pnl")
	hit(relClose(float64(a.BarsHeld), float64(b.BarsHeld), durationTolerance), WeightDuration, "duration")
	hit(math.Abs(a.EntryQuality-b.EntryQuality) <= qualityTolerance, WeightEntryQuality, "entry_quality")
	hit(math.Abs(a.ExitQuality-b.ExitQuality) <= qualityTolerance, WeightExitQuality, "exit_quality")
	hit(hourDistance(a.EntryTime.UTC().Hour(), b.EntryTime.UTC().Hour()) <= 1, WeightHour, "hour")
	hit(a.EntryTime.UTC().Weekday() == b.EntryTime.UTC().Weekday(), WeightWeekday, "weekday")
	hit(relClose(a.MAE, b.MAE, excursionTolerance), WeightMAE, "mae")
	hit(relClose(a.MFE, b.MFE, excursionTolerance), WeightMFE, "mfe")
	return score, matched
}

// FindSimilar returns up to topN trades most similar to trades[index], strongest first.
// Equal scores are ordered by entry time.
func FindSimilar(trades []models.TradeResult, index, topN int) ([]models.SimilarTrade, error) {
	if index < 0 || index >= len(trades) {
		return nil, fmt.Errorf("%w: index %d of %d", models.ErrTradeNotFound, index, len(trades))
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	target := trades[index]
	out := make([]models.SimilarTrade, 0, topN)
	for k, t := range trades {
		if k == index {
			continue
		}
		score, matched := Similarity(target, t)
		if score <= MinSimilarity {
			continue
		}
		out = append(out, models.SimilarTrade{Trade: t, Score: score, Matched: matched})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Trade.EntryTime.Before(out[j].Trade.EntryTime)
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// relClose reports |a-b| <= tol*max(|a|,|b|). Two zeros are close.
func relClose(a, b, tol float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= tol*math.Max(math.Abs(a), math.Abs(b))
}

func hourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	return min(d, 24-d)
}
