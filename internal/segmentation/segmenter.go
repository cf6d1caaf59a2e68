// Package segmentation splits a load test into ramp-up and fixed-load phases.
package segmentation

import (
	"log/slog"
	"math"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/stats"
)

// Segmenter locates the ramp-up/fixed-load tipping point from the correlation
// between the load driver and throughput.
type Segmenter struct {
	logger   *slog.Logger
	settings *config.Settings
}

// NewSegmenter constructs a Segmenter.
func NewSegmenter(logger *slog.Logger, settings *config.Settings) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	if settings == nil {
		d := config.DefaultSettings()
		settings = &d
	}
	return &Segmenter{logger: logger, settings: settings}
}

// Split classifies the series. base and throughput are expected to share
// timestamps; the shorter of the two bounds the analysis.
func (s *Segmenter) Split(base, throughput []models.Point) models.Segmentation {
	seg := models.Segmentation{Mode: models.ModeFixedLoad, FixedLoad: true}
	if len(base) == 0 {
		return seg
	}
	seg.Split = base[0].Timestamp

	n := len(base)
	if len(throughput) > 0 && len(throughput) < n {
		n = len(throughput)
	}

	if idx, ok := s.tippingPoint(models.Values(base[:n]), models.Values(throughput), n); ok {
		seg.SplitIndex = idx
		seg.TippingHit = true
		seg.Split = base[idx].Timestamp
	}

	seg.StablePct = s.stablePct(models.Values(base[seg.SplitIndex:]))
	if seg.StablePct < s.settings.FixedLoadMinPct {
		seg.FixedLoad = false
		seg.Mode = models.ModeFullSeriesLoose
	}

	s.logger.Debug("segmentation complete",
		slog.Int("split_index", seg.SplitIndex),
		slog.Bool("tipping_point", seg.TippingHit),
		slog.Float64("stable_pct", seg.StablePct),
		slog.String("mode", string(seg.Mode)),
	)
	return seg
}

// tippingPoint walks the rolling correlation forward and returns the index of
// the first sample of the window that opened the confirming breach run.
func (s *Segmenter) tippingPoint(base, throughput []float64, n int) (int, bool) {
	w := s.settings.CorrelationWindow
	if n < w || len(throughput) < w {
		return 0, false
	}
	corr := stats.RollingCorrelation(base, throughput[:n], w)

	need := s.settings.TippingPointMinBreaches
	if s.settings.TippingPointMaxBreaches < need {
		need = s.settings.TippingPointMaxBreaches
	}
	fractionLimit := int(math.Ceil(s.settings.TippingPointFraction * float64(n)))
	if fractionLimit < 1 {
		fractionLimit = 1
	}

	consecutive := 0
	total := 0
	runStart := -1
	for i := w - 1; i < n; i++ {
		if !breach(corr[i], s.settings.TippingPointThreshold) {
			consecutive = 0
			runStart = -1
			continue
		}
		if consecutive == 0 {
			runStart = i
		}
		consecutive++
		total++
		if consecutive >= need || total >= fractionLimit {
			return runStart - w + 1, true
		}
	}
	return 0, false
}

func breach(corr, threshold float64) bool {
	if math.IsNaN(corr) {
		return true
	}
	return corr < threshold
}

// stablePct returns the percentage of samples whose trailing coefficient of
// variation is under the stability threshold.
func (s *Segmenter) stablePct(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) == 1 {
		return 100
	}
	cv := stats.TrailingCV(values, s.settings.StabilityWindow)
	stable := 0
	counted := 0
	for i, v := range cv {
		if math.IsNaN(v) {
			if i == 0 {
				continue
			}
			v = math.Inf(1)
		}
		counted++
		if v < s.settings.StabilityCVThreshold {
			stable++
		}
	}
	if counted == 0 {
		return 0
	}
	return 100 * float64(stable) / float64(counted)
}
