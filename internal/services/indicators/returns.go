package indicators

import "math"

// LogReturns computes r_t = ln(C_t / C_{t-1}) over closes.
// It returns a slice of length len(closes)-1, or nil if insufficient data.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample deviation of the last window log returns.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	var sum, sum2 float64
	for _, r := range logReturns[len(logReturns)-window:] {
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYear approximates the number of bars per year for a timeframe string.
func BarsPerYear(tf string) float64 {
	switch tf {
	case "5m":
		return 252 * 23 * 12
	case "15m":
		return 252 * 23 * 4
	case "30m":
		return 252 * 23 * 2
	case "1h":
		return 252 * 23
	default:
		return 252 * 23 * 60
	}
}
