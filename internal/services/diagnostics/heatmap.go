package diagnostics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"StratLab/internal/domain/models"
)

var (
	ErrUnknownDimension = errors.New("unknown heatmap dimension")
	ErrNoConditionData  = errors.New("trades carry no entry condition snapshots")
)

var tercileLabels = [3]string{"weak", "medium", "strong"}

// BuildHeatmap buckets trades by dim. Empty buckets are omitted.
func BuildHeatmap(trades []models.TradeResult, dim models.HeatmapDimension) (*models.Heatmap, error) {
	hm := &models.Heatmap{Dimension: dim, Cells: []models.HeatmapCell{}}
	switch dim {
	case models.DimensionHour:
		hm.Cells = bucket(trades, func(t models.TradeResult) (string, string, int) {
			h := t.EntryTime.UTC().Hour()
			return fmt.Sprintf("%02d", h), fmt.Sprintf("%02d:00 UTC", h), h
		})
	case models.DimensionDay:
		hm.Cells = bucket(trades, func(t models.TradeResult) (string, string, int) {
			wd := t.EntryTime.UTC().Weekday()
			// Monday first
			return lower(wd), wd.String(), (int(wd) + 6) % 7
		})
	case models.DimensionCondition:
		if len(trades) == 0 {
			return hm, nil
		}
		j, err := MostDiscriminating(trades)
		if err != nil {
			return nil, err
		}
		covered := make([]models.TradeResult, 0, len(trades))
		for _, t := range trades {
			if len(t.EntrySignals) > j {
				covered = append(covered, t)
			}
		}
		hm.Condition = covered[0].EntrySignals[j].Expression
		terciles := marginTerciles(covered, j)
		hm.Cells = bucket(covered, func(t models.TradeResult) (string, string, int) {
			k := terciles[t.Index]
			return tercileLabels[k], fmt.Sprintf("%s: %s", hm.Condition, tercileLabels[k]), k
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
	}
	return hm, nil
}

type cellAcc struct {
	cell  models.HeatmapCell
	order int
}

func bucket(trades []models.TradeResult, keyOf func(models.TradeResult) (key, label string, order int)) []models.HeatmapCell {
	acc := map[string]*cellAcc{}
	for _, t := range trades {
		key, label, order := keyOf(t)
		a, ok := acc[key]
		if !ok {
			a = &cellAcc{cell: models.HeatmapCell{Key: key, Label: label}, order: order}
			acc[key] = a
		}
		a.cell.Trades++
		a.cell.TotalPnl += t.Pnl
		if t.Result == models.OutcomeWin {
			a.cell.Wins++
		}
	}
	list := make([]*cellAcc, 0, len(acc))
	for _, a := range acc {
		c := &a.cell
		c.WinRate = float64(c.Wins) / float64(c.Trades)
		c.TotalPnl = math.Round(c.TotalPnl*100) / 100
		c.AvgPnl = math.Round(c.TotalPnl/float64(c.Trades)*100) / 100
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })
	out := make([]models.HeatmapCell, len(list))
	for i, a := range list {
		out[i] = a.cell
	}
	return out
}

// MostDiscriminating returns the position of the entry condition whose margin best separates winners from the rest.
// Separation is |mean(winners) - mean(others)| over the population deviation of all margins. Ties keep the earlier condition.
func MostDiscriminating(trades []models.TradeResult) (int, error) {
	n := 0
	for _, t := range trades {
		if len(t.EntrySignals) > 0 && (n == 0 || len(t.EntrySignals) < n) {
			n = len(t.EntrySignals)
		}
	}
	if n == 0 {
		return 0, ErrNoConditionData
	}
	best, bestSep := 0, -1.0
	for j := 0; j < n; j++ {
		var win, rest, all []float64
		for _, t := range trades {
			if len(t.EntrySignals) <= j {
				continue
			}
			m := t.EntrySignals[j].Margin
			all = append(all, m)
			if t.Result == models.OutcomeWin {
				win = append(win, m)
			} else {
				rest = append(rest, m)
			}
		}
		sep := 0.0
		if len(win) > 0 && len(rest) > 0 {
			if _, v := stat.PopMeanVariance(all, nil); v > 0 {
				sep = math.Abs(stat.Mean(win, nil)-stat.Mean(rest, nil)) / math.Sqrt(v)
			}
		}
		if sep > bestSep {
			best, bestSep = j, sep
		}
	}
	return best, nil
}

// marginTerciles ranks trades by the margin of condition j and maps each trade index to 0, 1 or 2.
func marginTerciles(trades []models.TradeResult, j int) map[int]int {
	ranked := append([]models.TradeResult(nil), trades...)
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].EntrySignals[j].Margin < ranked[b].EntrySignals[j].Margin
	})
	out := make(map[int]int, len(ranked))
	for rank, t := range ranked {
		out[t.Index] = rank * 3 / len(ranked)
	}
	return out
}

func lower(wd time.Weekday) string {
	s := wd.String()
	return string(s[0]+('a'-'A')) + s[1:]
}
