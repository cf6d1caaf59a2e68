package detectors

import (
	"math"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/stats"
)

// StabilityTrend flags drift: a significant rolling slope, or rolling variance /
// coefficient of variation beyond their thresholds. It looks at trailing
// windows, so it reacts to sustained change rather than single spikes.
type StabilityTrend struct{}

// Name implements Detector.
func (StabilityTrend) Name() string { return "stability_trend" }

// Enabled implements Detector.
func (StabilityTrend) Enabled(s *config.Settings) bool { return s.StabilityEnabled }

// Detect implements Detector. In loose mode the slope test is skipped since a
// run without a steady phase drifts by construction.
func (StabilityTrend) Detect(in Input, s *config.Settings) ([]bool, error) {
	values := in.Values
	n := len(values)
	w := s.TrendWindow
	if n < w {
		return nil, stats.ErrDegenerate
	}

	_, globalStd := stats.MeanStd(values)
	flags := make([]bool, n)
	if globalStd < stats.Epsilon {
		return flags, nil
	}
	globalVar := globalStd * globalStd

	for i := w - 1; i < n; i++ {
		window := values[i-w+1 : i+1]

		if !in.Loose {
			trend, err := stats.FitTrend(window)
			if err == nil && relativeSlope(trend, globalStd) > s.TrendSlopeThreshold && trend.PValue < s.TrendPValue {
				flags[i] = true
				continue
			}
		}

		if cv := stats.CV(window); !math.IsInf(cv, 0) && cv > s.TrendCVThreshold {
			flags[i] = true
			continue
		}
		if stats.Variance(window) > s.TrendVarianceRatio*globalVar {
			flags[i] = true
		}
	}
	return flags, nil
}

// relativeSlope expresses the per-sample slope as a fraction of the window mean,
// or of the series spread when the mean is ~0.
func relativeSlope(t stats.Trend, globalStd float64) float64 {
	if math.Abs(t.Mean) > stats.Epsilon {
		return math.Abs(t.Slope) / math.Abs(t.Mean)
	}
	return math.Abs(t.Slope) / globalStd
}
