package indicators

import "math"

// RSI with Wilder smoothing. The first value lands at index p.
func RSI(close []float64, p int) []float64 {
	out := nanSlice(len(close))
	if p <= 0 || len(close) <= p {
		return out
	}
	var gain, loss float64
	for i := 1; i <= p; i++ {
		d := close[i] - close[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(p)
	loss /= float64(p)
	out[p] = rsiValue(gain, loss)
	for i := p + 1; i < len(close); i++ {
		d := close[i] - close[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(p-1) + g) / float64(p)
		loss = (loss*float64(p-1) + l) / float64(p)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// TrueRange of bar i; the first bar uses its own range.
func TrueRange(high, low, close []float64, i int) float64 {
	tr := high[i] - low[i]
	if i == 0 {
		return tr
	}
	return math.Max(tr, math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
}

// ATR with Wilder smoothing. The first value is the plain mean of TR over bars 1..p.
func ATR(high, low, close []float64, p int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if p <= 0 || n <= p {
		return out
	}
	var sum float64
	for i := 1; i <= p; i++ {
		sum += TrueRange(high, low, close, i)
	}
	out[p] = sum / float64(p)
	for i := p + 1; i < n; i++ {
		out[i] = (out[i-1]*float64(p-1) + TrueRange(high, low, close, i)) / float64(p)
	}
	return out
}

// ADX with Wilder smoothing. The first value lands at index 2p-1.
func ADX(high, low, close []float64, p int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if p <= 0 || n < 2*p {
		return out
	}
	var sTR, sPlus, sMinus float64
	dx := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		plusDM, minusDM := 0.0, 0.0
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}
		tr := TrueRange(high, low, close, i)
		if i <= p {
			sTR += tr
			sPlus += plusDM
			sMinus += minusDM
			if i < p {
				continue
			}
		} else {
			sTR = sTR - sTR/float64(p) + tr
			sPlus = sPlus - sPlus/float64(p) + plusDM
			sMinus = sMinus - sMinus/float64(p) + minusDM
		}
		if sTR == 0 {
			continue
		}
		plusDI := 100 * sPlus / sTR
		minusDI := 100 * sMinus / sTR
		if plusDI+minusDI > 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
		}
	}
	first := 2*p - 1
	var sum float64
	for i := p; i <= first; i++ {
		sum += dx[i]
	}
	out[first] = sum / float64(p)
	for i := first + 1; i < n; i++ {
		out[i] = (out[i-1]*float64(p-1) + dx[i]) / float64(p)
	}
	return out
}
