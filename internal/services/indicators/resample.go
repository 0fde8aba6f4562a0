package indicators

import (
	"time"

	"StratLab/internal/domain/models"
)

// Resample folds bars into buckets of width d aligned to the epoch.
// Indicator fields are cleared so FromBars recomputes them at the new resolution.
func Resample(bars []models.Bar, d time.Duration) []models.Bar {
	if d <= time.Minute || len(bars) == 0 {
		return bars
	}
	out := make([]models.Bar, 0, len(bars)/int(d/time.Minute)+1)
	var cur *models.Bar
	for _, b := range bars {
		bucket := b.Timestamp.Truncate(d)
		if cur == nil || !cur.Timestamp.Equal(bucket) {
			out = append(out, models.Bar{
				Symbol:    b.Symbol,
				Timestamp: bucket,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
			cur = &out[len(out)-1]
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	return out
}
