// Package quality scores how well a trade was timed on entry and exit, each on a 0-100 scale.
package quality

import (
	"math"

	"StratLab/internal/domain/models"
)

const (
	EntryExcursionWeight = 0.6
	EntrySpeedWeight     = 0.4
	ExitCaptureWeight    = 0.7
	ExitProximityWeight  = 0.3
	MaxScore             = 100.0
)

// Inputs describe a closed trade in price points.
// WindowHigh and WindowLow are the extremes of the bars after entry up to and including the exit bar.
type Inputs struct {
	Direction  models.Direction
	EntryPrice float64
	ExitPrice  float64
	MFE        float64
	MAE        float64
	BarsHeld   int
	BarsToMFE  int
	WindowHigh float64
	WindowLow  float64
}

// EntryScore rewards entries that moved in favor more than against, and reached their best point early.
func EntryScore(in Inputs) float64 {
	excursion := 0.0
	if total := in.MFE + in.MAE; total > 0 {
		excursion = in.MFE / total
	}
	speed := 0.0
	if in.MFE > 0 && in.BarsHeld > 0 && in.BarsToMFE > 0 {
		speed = clamp01(1 - float64(in.BarsToMFE-1)/float64(in.BarsHeld))
	}
	return round2(MaxScore * (EntryExcursionWeight*excursion + EntrySpeedWeight*speed))
}

// ExitScore rewards exits that kept most of the favorable move and sat close to the best available exit price.
func ExitScore(in Inputs) float64 {
	sign := float64(in.Direction.Sign())
	capture := 0.0
	if in.MFE > 0 {
		capture = clamp01(sign * (in.ExitPrice - in.EntryPrice) / in.MFE)
	}
	best := in.WindowHigh
	if in.Direction == models.Short {
		best = in.WindowLow
	}
	proximity := 1.0
	if span := in.WindowHigh - in.WindowLow; span > 0 {
		proximity = clamp01(1 - math.Abs(best-in.ExitPrice)/span)
	}
	return round2(MaxScore * (ExitCaptureWeight*capture + ExitProximityWeight*proximity))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
