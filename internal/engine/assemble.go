package engine

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/utils"
)

// Assemble packages ranked events into report events, keeping at most maxEvents
// (0 keeps all). Order is preserved.
func (e *Engine) Assemble(ranked []models.MergedEvent, maxEvents int) []models.ReportEvent {
	if maxEvents > 0 && len(ranked) > maxEvents {
		ranked = ranked[:maxEvents]
	}
	out := make([]models.ReportEvent, 0, len(ranked))
	for _, ev := range ranked {
		out = append(out, models.ReportEvent{
			Timestamp: ev.Start,
			Type:      models.EventTypeAnomaly,
			Severity:  ev.Severity,
			Message:   message(ev),
			Meta: models.EventMeta{
				Scope: ev.Scope,
				Window: models.EventWindow{
					Start:       ev.Start,
					End:         ev.End,
					DurationSec: ev.DurationSec,
				},
				Metrics:         ev.Metrics,
				Volume:          ev.Volume,
				Impact:          ev.Impact,
				Methods:         ev.Methods,
				LeadMetric:      ev.LeadMetric,
				LeadConfidence:  ev.LeadConfidence,
				Notes:           ev.Notes,
				Recommendations: e.rulesEngine.Recommend(ev),
			},
		})
	}
	return out
}

// message renders a one-line summary such as
// "High anomaly in transaction checkout: response_time +85.0%, throughput -32.0% for 2m30s".
func message(ev models.MergedEvent) string {
	scope := "overall test"
	if ev.Scope != models.ScopeOverall {
		scope = "transaction " + ev.Scope
	}
	parts := make([]string, 0, len(ev.Metrics))
	for _, m := range ev.Metrics {
		parts = append(parts, fmt.Sprintf("%s %+.1f%%", m.Name, m.DeltaPct))
	}
	return fmt.Sprintf("%s anomaly in %s: %s for %s", title(string(ev.Severity)), scope, strings.Join(parts, ", "), utils.Seconds(ev.DurationSec))
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
