package indicators

import (
	"math"
	"time"
)

// SessionVWAP accumulates typical price times volume and resets at each UTC day boundary.
func SessionVWAP(ts []time.Time, high, low, close, volume []float64) []float64 {
	n := len(close)
	out := nanSlice(n)
	var pv, vol float64
	var day time.Time
	for i := 0; i < n; i++ {
		d := ts[i].UTC().Truncate(24 * time.Hour)
		if i == 0 || !d.Equal(day) {
			day = d
			pv, vol = 0, 0
		}
		tp := (high[i] + low[i] + close[i]) / 3.0
		pv += tp * volume[i]
		vol += volume[i]
		if vol > 0 {
			out[i] = pv / vol
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
