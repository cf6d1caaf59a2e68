package detectors

import (
	"math"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/stats"
)

// ZScore flags samples deviating from their baseline by more than threshold
// rolling standard deviations.
type ZScore struct{}

// Name implements Detector.
func (ZScore) Name() string { return "zscore" }

// Enabled implements Detector.
func (ZScore) Enabled(s *config.Settings) bool { return s.ZScoreEnabled }

// Detect implements Detector. A flat signal never produces flags.
func (ZScore) Detect(in Input, s *config.Settings) ([]bool, error) {
	values := in.Values
	flags := make([]bool, len(values))

	_, globalStd := stats.MeanStd(values)
	if globalStd < stats.Epsilon {
		return flags, nil
	}

	threshold := s.ZScoreThreshold
	if in.Loose {
		threshold *= s.LooseThresholdFactor
	}

	means, stds := stats.CentredMeanStd(values, s.ZScoreWindow)
	useBaseline := len(in.Baseline) == len(values)
	// A locally flat neighbourhood still has the series-wide spread as a floor,
	// otherwise a lone spike on a flat line could never be flagged.
	floor := 0.1 * globalStd
	for i, v := range values {
		std := stds[i]
		if math.IsNaN(std) {
			std = globalStd
		}
		std = math.Max(std, floor)
		base := means[i]
		if useBaseline && !math.IsNaN(in.Baseline[i]) {
			base = in.Baseline[i]
		}
		if math.Abs(v-base) > threshold*std {
			flags[i] = true
		}
	}
	return flags, nil
}
