// Package stats provides the small numeric kernel shared by the analyzers:
// means, percentiles, rolling windows, and least-squares slopes. Percentile
// uses linear interpolation between closest ranks, matching the conventions
// the calibration constants were derived under.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean of xs, or NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Variance returns the sample variance (n-1 denominator) of xs.
// Returns NaN when fewer than two values are present.
func Variance(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs)-1)
}

// Std returns the sample standard deviation of xs.
func Std(xs []float64) float64 {
	v := Variance(xs)
	if math.IsNaN(v) {
		return math.NaN()
	}
	return math.Sqrt(v)
}

// Percentile returns the q-th percentile (q in [0,1]) of xs using linear
// interpolation. Returns NaN for an empty slice.
func Percentile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// OLSSlope fits y = a + b*x by ordinary least squares over the index positions
// 0..n-1 and returns the slope b. Requires at least two points; returns
// (0, false) otherwise.
func OLSSlope(ys []float64) (float64, bool) {
	n := len(ys)
	if n < 2 {
		return 0, false
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	return (fn*sumXY - sumX*sumY) / denom, true
}

// RollingMean computes a trailing-window mean over xs. Positions observed with
// fewer than minPeriods samples yield NaN.
func RollingMean(xs []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		n := i - start + 1
		if n < minPeriods {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for j := start; j <= i; j++ {
			sum += xs[j]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Min returns the minimum of xs ignoring NaN entries; NaN if none remain.
func Min(xs []float64) float64 {
	min := math.NaN()
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if math.IsNaN(min) || x < min {
			min = x
		}
	}
	return min
}

// Max returns the maximum of xs ignoring NaN entries; NaN if none remain.
func Max(xs []float64) float64 {
	max := math.NaN()
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if math.IsNaN(max) || x > max {
			max = x
		}
	}
	return max
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// PopStd returns the population standard deviation (n denominator) of xs.
func PopStd(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
