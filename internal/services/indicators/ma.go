package indicators

import "math"

// SMA over the last p points; NaN during warmup.
func SMA(x []float64, p int) []float64 {
	out := nanSlice(len(x))
	if p <= 0 {
		return out
	}
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= p {
			sum -= x[i-p]
		}
		if i >= p-1 {
			out[i] = sum / float64(p)
		}
	}
	return out
}

// EMA with smoothing 2/(p+1), seeded with the SMA of the first p points.
func EMA(x []float64, p int) []float64 {
	out := nanSlice(len(x))
	if p <= 0 || len(x) < p {
		return out
	}
	k := 2.0 / float64(p+1)
	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	out[p-1] = seed / float64(p)
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// MeanStd returns the rolling mean and population standard deviation over window p.
func MeanStd(x []float64, p int) (mean, std []float64) {
	n := len(x)
	mean, std = nanSlice(n), nanSlice(n)
	if p <= 0 {
		return
	}
	var sum, sum2 float64
	for i := 0; i < n; i++ {
		sum += x[i]
		sum2 += x[i] * x[i]
		if i >= p {
			sum -= x[i-p]
			sum2 -= x[i-p] * x[i-p]
		}
		if i < p-1 {
			continue
		}
		m := sum / float64(p)
		v := sum2/float64(p) - m*m
		if v < 0 {
			v = 0
		}
		mean[i] = m
		std[i] = math.Sqrt(v)
	}
	return
}

// Bollinger returns upper, middle and lower bands of width k standard deviations.
func Bollinger(x []float64, p int, k float64) (upper, middle, lower []float64) {
	middle, std := MeanStd(x, p)
	upper, lower = nanSlice(len(x)), nanSlice(len(x))
	for i := range x {
		if math.IsNaN(middle[i]) {
			continue
		}
		upper[i] = middle[i] + k*std[i]
		lower[i] = middle[i] - k*std[i]
	}
	return
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
