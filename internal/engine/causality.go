package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/miradorstack/mirador-perf/internal/models"
)

// CausalityEngine orders the metrics of a merged event by onset to suggest which
// one moved first.
type CausalityEngine struct {
	logger *slog.Logger
}

// CausalityResult captures the outcome of a causality evaluation.
type CausalityResult struct {
	// Score is the fraction of the other metrics whose onset trails the lead.
	Score float64
	Notes []string
	Lead  string
}

// NewCausalityEngine constructs a CausalityEngine.
func NewCausalityEngine(logger *slog.Logger) *CausalityEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &CausalityEngine{logger: logger}
}

// Evaluate inspects the onset of every metric's windows inside the event. A
// single-metric event has no ordering to report.
func (e *CausalityEngine) Evaluate(event models.MergedEvent, windows []models.AnomalyWindow) CausalityResult {
	result := CausalityResult{Lead: event.LeadMetric}
	onsets := onsetsWithin(event, windows)
	if len(onsets) < 2 {
		return result
	}

	lead := onsets[0]
	result.Lead = lead.metric
	trailing := 0
	for _, o := range onsets[1:] {
		lag := o.at.Sub(lead.at)
		if lag <= 0 {
			result.Notes = append(result.Notes, fmt.Sprintf("%s and %s start together", lead.metric, o.metric))
			continue
		}
		trailing++
		result.Notes = append(result.Notes, fmt.Sprintf("%s precedes %s by %s", lead.metric, o.metric, lag.Round(time.Second)))
	}
	result.Score = clamp(float64(trailing)/float64(len(onsets)-1), 0, 1)
	for _, note := range result.Notes {
		e.logger.Debug("causality note", slog.String("scope", event.Scope), slog.String("note", note))
	}
	return result
}

type onset struct {
	metric string
	at     time.Time
}

// onsetsWithin returns the earliest window start per metric among windows that
// fall inside the event, ordered by time then name.
func onsetsWithin(event models.MergedEvent, windows []models.AnomalyWindow) []onset {
	first := make(map[string]time.Time)
	for _, w := range windows {
		if w.Start.Before(event.Start) || w.End.After(event.End) {
			continue
		}
		if at, ok := first[w.Metric]; !ok || w.Start.Before(at) {
			first[w.Metric] = w.Start
		}
	}
	out := make([]onset, 0, len(first))
	for metric, at := range first {
		out = append(out, onset{metric: metric, at: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].at.Equal(out[j].at) {
			return out[i].at.Before(out[j].at)
		}
		return out[i].metric < out[j].metric
	})
	return out
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
