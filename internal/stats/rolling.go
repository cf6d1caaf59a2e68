// Package stats holds the windowed statistics shared by segmentation and the
// detectors. Everything here is pure and allocation-bounded by the input size.
package stats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Epsilon is the tolerance below which a spread is treated as zero.
const Epsilon = 1e-9

var (
	// ErrEmpty is returned for an empty input series.
	ErrEmpty = errors.New("empty series")
	// ErrNonFinite is returned when a series contains NaN or Inf.
	ErrNonFinite = errors.New("series contains non-finite values")
	// ErrDegenerate is returned when a fit cannot be computed.
	ErrDegenerate = errors.New("degenerate input")
)

// Validate rejects empty or non-finite series.
func Validate(values []float64) error {
	if len(values) == 0 {
		return ErrEmpty
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// MeanStd returns the mean and population standard deviation of values.
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// CV returns the coefficient of variation, or +Inf when the mean is ~0.
func CV(values []float64) float64 {
	mean, std := MeanStd(values)
	if math.Abs(mean) < Epsilon {
		if std < Epsilon {
			return 0
		}
		return math.Inf(1)
	}
	return std / math.Abs(mean)
}

// Median returns the median of values without modifying the input.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Quantile returns the empirical p-quantile of values.
func Quantile(p float64, values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// centredBounds returns the [lo, hi) bounds of a window of size w centred on i.
func centredBounds(i, w, n int) (int, int) {
	half := w / 2
	lo := i - half
	hi := i + half + 1
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}

// CentredMeanStd computes, for every index, the mean and std of the centred window
// of size w with the centre sample excluded. Indices with fewer than two
// neighbours get NaN.
func CentredMeanStd(values []float64, w int) ([]float64, []float64) {
	n := len(values)
	means := make([]float64, n)
	stds := make([]float64, n)
	buf := make([]float64, 0, w+1)
	for i := range values {
		lo, hi := centredBounds(i, w, n)
		buf = buf[:0]
		for j := lo; j < hi; j++ {
			if j != i {
				buf = append(buf, values[j])
			}
		}
		if len(buf) < 2 {
			means[i], stds[i] = math.NaN(), math.NaN()
			continue
		}
		means[i], stds[i] = MeanStd(buf)
	}
	return means, stds
}

// CentredMedian computes the median of the centred window of size w at each index.
func CentredMedian(values []float64, w int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range values {
		lo, hi := centredBounds(i, w, n)
		out[i] = Median(values[lo:hi])
	}
	return out
}

// CentredMean computes the mean of the centred window of size w at each index.
func CentredMean(values []float64, w int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range values {
		lo, hi := centredBounds(i, w, n)
		out[i] = stat.Mean(values[lo:hi], nil)
	}
	return out
}

// TrailingCV returns the coefficient of variation of the trailing window of size w
// ending at each index (inclusive). Windows shorter than two samples yield NaN.
func TrailingCV(values []float64, w int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		lo := i - w + 1
		if lo < 0 {
			lo = 0
		}
		if i-lo+1 < 2 {
			out[i] = math.NaN()
			continue
		}
		out[i] = CV(values[lo : i+1])
	}
	return out
}

// RollingCorrelation returns the Pearson correlation of x and y over trailing
// windows of size w. Indices before the first full window, and windows where
// either series is flat, yield NaN.
func RollingCorrelation(x, y []float64, w int) []float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < w-1 {
			out[i] = math.NaN()
			continue
		}
		xs := x[i-w+1 : i+1]
		ys := y[i-w+1 : i+1]
		_, sx := MeanStd(xs)
		_, sy := MeanStd(ys)
		if sx < Epsilon || sy < Epsilon {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Correlation(xs, ys, nil)
	}
	return out
}

// Trend is the result of an ordinary least squares fit against sample index.
type Trend struct {
	Slope  float64
	PValue float64
	Mean   float64
}

// FitTrend regresses values on their index and returns the slope with a two-sided
// p-value from Student's t with n-2 degrees of freedom.
func FitTrend(values []float64) (Trend, error) {
	n := len(values)
	if n < 3 {
		return Trend{}, ErrDegenerate
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(xs, values, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return Trend{}, ErrDegenerate
	}

	xMean := float64(n-1) / 2
	sxx := 0.0
	sse := 0.0
	for i, y := range values {
		dx := xs[i] - xMean
		sxx += dx * dx
		resid := y - (alpha + beta*xs[i])
		sse += resid * resid
	}
	mean := stat.Mean(values, nil)
	df := float64(n - 2)
	se := math.Sqrt(sse/df) / math.Sqrt(sxx)

	trend := Trend{Slope: beta, Mean: mean, PValue: 1}
	switch {
	case se < Epsilon && math.Abs(beta) < Epsilon:
		trend.PValue = 1
	case se < Epsilon:
		trend.PValue = 0
	default:
		t := math.Abs(beta / se)
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		trend.PValue = 2 * (1 - dist.CDF(t))
	}
	return trend, nil
}

// Variance returns the population variance of values.
func Variance(values []float64) float64 {
	_, std := MeanStd(values)
	return std * std
}
