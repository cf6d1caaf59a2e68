// Package scoring maps effect sizes onto severity labels and orders merged events
// by impact.
package scoring

import (
	"math"
	"sort"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/models"
)

// Bands are the lower |delta_pct| bounds of the medium, high and critical
// severities. Anything below Medium is low.
type Bands struct {
	Medium   float64
	High     float64
	Critical float64
}

// BandsFrom reads the severity bands from resolved settings.
func BandsFrom(s *config.Settings) Bands {
	return Bands{Medium: s.SeverityMediumPct, High: s.SeverityHighPct, Critical: s.SeverityCriticalPct}
}

// Classify maps an effect size onto a severity. Only the magnitude counts, so a
// 60% throughput drop classifies like a 60% latency rise.
func (b Bands) Classify(deltaPct float64) models.Severity {
	d := math.Abs(deltaPct)
	switch {
	case math.IsNaN(d):
		return models.SeverityLow
	case d >= b.Critical:
		return models.SeverityCritical
	case d >= b.High:
		return models.SeverityHigh
	case d >= b.Medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Weights holds the numeric score of each severity label.
type Weights map[models.Severity]float64

// WeightsFrom reads the severity scores from resolved settings.
func WeightsFrom(s *config.Settings) Weights {
	return Weights{
		models.SeverityLow:      s.SeverityScoreLow,
		models.SeverityMedium:   s.SeverityScoreMedium,
		models.SeverityHigh:     s.SeverityScoreHigh,
		models.SeverityCritical: s.SeverityScoreCritical,
	}
}

// Impact is severityScore × share × ln(1 + duration). It is never negative.
func Impact(severityScore, share, durationSec float64) float64 {
	if severityScore <= 0 || share <= 0 || durationSec < 0 {
		return 0
	}
	v := severityScore * share * math.Log1p(durationSec)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Scorer labels and weighs merged events.
type Scorer struct {
	bands   Bands
	weights Weights
}

// NewScorer builds a scorer from resolved settings.
func NewScorer(s *config.Settings) Scorer {
	return Scorer{bands: BandsFrom(s), weights: WeightsFrom(s)}
}

// Score returns copies of events with severity taken from the largest
// contributing effect size and impact computed from the event's volume share.
func (sc Scorer) Score(events []models.MergedEvent) []models.MergedEvent {
	out := make([]models.MergedEvent, len(events))
	for i, ev := range events {
		ev.Severity = models.MaxSeverity(ev.Severity, sc.bands.Classify(ev.MaxAbsDelta()))
		ev.Impact = Impact(sc.weights[ev.Severity], ev.Volume.Share, ev.DurationSec)
		out[i] = ev
	}
	return out
}

// Rank pools events and orders them by impact descending. Ties go to the
// earlier start, then scope and first contributing metric, so the order is
// total for any input.
func Rank(events []models.MergedEvent) []models.MergedEvent {
	out := append([]models.MergedEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Impact != b.Impact {
			return a.Impact > b.Impact
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		return firstMetric(a) < firstMetric(b)
	})
	return out
}

func firstMetric(e models.MergedEvent) string {
	if len(e.Metrics) == 0 {
		return ""
	}
	return e.Metrics[0].Name
}
