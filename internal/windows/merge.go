package windows

import (
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-perf/internal/models"
)

// Merge unions the windows of one scope into events. Windows are sorted once and
// swept forward; a window joins the open event when it starts no later than one
// sampling step after the event's current end, so chains of overlaps merge
// transitively regardless of metric.
func Merge(scope string, windows []models.AnomalyWindow, step time.Duration) []models.MergedEvent {
	if len(windows) == 0 {
		return nil
	}
	if step < 0 {
		step = 0
	}
	sorted := append([]models.AnomalyWindow(nil), windows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return a.Metric < b.Metric
	})

	var events []models.MergedEvent
	group := []models.AnomalyWindow{sorted[0]}
	end := sorted[0].End
	for _, w := range sorted[1:] {
		if !w.Start.After(end.Add(step)) {
			group = append(group, w)
			if w.End.After(end) {
				end = w.End
			}
			continue
		}
		events = append(events, fold(scope, group, end))
		group = []models.AnomalyWindow{w}
		end = w.End
	}
	return append(events, fold(scope, group, end))
}

// fold collapses a start-ordered group into one event.
func fold(scope string, group []models.AnomalyWindow, end time.Time) models.MergedEvent {
	start := group[0].Start
	byMetric := make(map[string]models.MetricContribution, len(group))
	methods := make(map[string]struct{})
	severity := models.Severity("")
	for _, w := range group {
		severity = models.MaxSeverity(severity, w.Severity)
		for _, d := range w.Detectors {
			methods[d] = struct{}{}
		}
		prev, ok := byMetric[w.Metric]
		if ok && math.Abs(prev.DeltaPct) >= math.Abs(w.DeltaPct) {
			continue
		}
		byMetric[w.Metric] = models.MetricContribution{Name: w.Metric, DeltaPct: w.DeltaPct, Severity: w.Severity}
	}

	contributions := make([]models.MetricContribution, 0, len(byMetric))
	for _, c := range byMetric {
		contributions = append(contributions, c)
	}
	sort.Slice(contributions, func(i, j int) bool {
		di, dj := math.Abs(contributions[i].DeltaPct), math.Abs(contributions[j].DeltaPct)
		if di != dj {
			return di > dj
		}
		return contributions[i].Name < contributions[j].Name
	})

	names := make([]string, 0, len(methods))
	for m := range methods {
		names = append(names, m)
	}
	sort.Strings(names)

	return models.MergedEvent{
		Scope:       scope,
		Start:       start,
		End:         end,
		DurationSec: end.Sub(start).Seconds(),
		Metrics:     contributions,
		Severity:    severity,
		Methods:     names,
		LeadMetric:  group[0].Metric,
	}
}
