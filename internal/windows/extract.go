// Package windows turns per-sample anomaly flags into time-bounded windows and
// merges overlapping windows of one scope into events.
package windows

import (
	"math"
	"sort"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/detectors"
	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/scoring"
	"github.com/miradorstack/mirador-perf/internal/stats"
)

// zeroBaselineDelta is the effect size reported when the baseline is ~0 but the
// window is not.
const zeroBaselineDelta = 100.0

// Options control extraction for one metric within one scope.
type Options struct {
	Scope          string
	Metric         string
	GapSamples     int
	BaselineWindow int
	MinDeltaPct    float64
	Bands          scoring.Bands
}

// OptionsFor derives extraction options from settings, picking the noise floor by
// metric kind.
func OptionsFor(scope, metric string, s *config.Settings) Options {
	return Options{
		Scope:          scope,
		Metric:         metric,
		GapSamples:     s.MergeGapSamples,
		BaselineWindow: s.BaselineWindow,
		MinDeltaPct:    MinDeltaFor(metric, s),
		Bands:          scoring.BandsFrom(s),
	}
}

// MinDeltaFor returns the |delta_pct| floor for a metric.
func MinDeltaFor(metric string, s *config.Settings) float64 {
	switch models.KindOf(metric) {
	case models.KindLatency:
		return s.MinDeltaPctLatency
	case models.KindErrors:
		return s.MinDeltaPctErrors
	default:
		return s.MinDeltaPctDefault
	}
}

// Extract converts flags over points into anomaly windows. Runs of flagged
// samples separated by at most GapSamples unflagged ones form one window. A
// single-sample window widens to its neighbours' timestamps. Windows whose effect
// size stays under MinDeltaPct are dropped.
func Extract(points []models.Point, flags detectors.Flags, baseline []float64, opts Options) []models.AnomalyWindow {
	n := len(points)
	if n == 0 || len(flags.Any) != n {
		return nil
	}
	values := models.Values(points)

	out := make([]models.AnomalyWindow, 0)
	for _, r := range runs(flags.Any, opts.GapSamples) {
		delta := effectSize(values, baseline, r.first, r.last, opts.BaselineWindow)
		if math.Abs(delta) < opts.MinDeltaPct {
			continue
		}
		lo, hi := r.first, r.last
		if lo == hi {
			if lo > 0 {
				lo--
			}
			if hi < n-1 {
				hi++
			}
		}
		out = append(out, models.AnomalyWindow{
			Metric:     opts.Metric,
			Scope:      opts.Scope,
			Start:      points[lo].Timestamp,
			End:        points[hi].Timestamp,
			StartIndex: lo,
			EndIndex:   hi,
			DeltaPct:   delta,
			Severity:   opts.Bands.Classify(delta),
			Detectors:  methodsIn(flags.Methods, r.first, r.last),
		})
	}
	return out
}

type span struct{ first, last int }

// runs groups flagged indices, bridging gaps of up to gap unflagged samples.
// Unflagged samples never start or end a run.
func runs(flags []bool, gap int) []span {
	var out []span
	cur := span{first: -1}
	for i, f := range flags {
		if !f {
			continue
		}
		if cur.first >= 0 && i-cur.last-1 <= gap {
			cur.last = i
			continue
		}
		if cur.first >= 0 {
			out = append(out, cur)
		}
		cur = span{first: i, last: i}
	}
	if cur.first >= 0 {
		out = append(out, cur)
	}
	return out
}

// effectSize is the percent deviation of the window mean from the median of the
// samples just before it. Without preceding samples the contextual baseline over
// the window is used, then the samples just after it.
func effectSize(values, baseline []float64, first, last, lookback int) float64 {
	mean, _ := stats.MeanStd(values[first : last+1])

	var ref []float64
	if first > 0 {
		ref = values[max(0, first-lookback):first]
	} else if len(baseline) == len(values) {
		ref = finite(baseline[first : last+1])
	}
	if len(ref) == 0 && last+1 < len(values) {
		ref = values[last+1 : min(len(values), last+1+lookback)]
	}
	if len(ref) == 0 {
		return 0
	}

	base := stats.Median(ref)
	if math.Abs(base) < stats.Epsilon {
		switch {
		case mean > stats.Epsilon:
			return zeroBaselineDelta
		case mean < -stats.Epsilon:
			return -zeroBaselineDelta
		default:
			return 0
		}
	}
	return (mean - base) / math.Abs(base) * 100
}

func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func methodsIn(methods [][]string, first, last int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 3)
	for i := first; i <= last && i < len(methods); i++ {
		for _, m := range methods[i] {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
