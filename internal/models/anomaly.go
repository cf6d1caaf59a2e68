package models

import (
	"strings"
	"time"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// MaxSeverity returns the highest of the supplied severities.
func MaxSeverity(values ...Severity) Severity {
	max := Severity("")
	for _, v := range values {
		if v.Rank() > max.Rank() {
			max = v
		}
	}
	return max
}

// ParseSeverity maps free text onto a Severity, defaulting to low.
func ParseSeverity(value string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// AnomalyWindow is a contiguous (or gap-bridged) run of anomalous samples for one
// metric within one scope.
type AnomalyWindow struct {
	Metric     string    `json:"metric"`
	Scope      string    `json:"scope"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	StartIndex int       `json:"-"`
	EndIndex   int       `json:"-"`
	DeltaPct   float64   `json:"delta_pct"`
	Severity   Severity  `json:"severity"`
	Detectors  []string  `json:"detectors"`
}

// MetricContribution is one metric's share of a merged event.
type MetricContribution struct {
	Name     string   `json:"name"`
	DeltaPct float64  `json:"delta_pct"`
	Severity Severity `json:"severity"`
}

// Volume describes the traffic behind a scope.
type Volume struct {
	MeanRPS float64 `json:"mean_rps"`
	Share   float64 `json:"share"`
}

// MergedEvent is the union of overlapping anomaly windows within one scope.
// LeadConfidence is the fraction of the other metrics whose onset trails
// LeadMetric.
type MergedEvent struct {
	Scope          string               `json:"scope"`
	Start          time.Time            `json:"start"`
	End            time.Time            `json:"end"`
	DurationSec    float64              `json:"duration_sec"`
	Metrics        []MetricContribution `json:"contributing_metrics"`
	Volume         Volume               `json:"volume"`
	Severity       Severity             `json:"severity"`
	Impact         float64              `json:"impact"`
	Methods        []string             `json:"methods"`
	LeadMetric     string               `json:"lead_metric,omitempty"`
	LeadConfidence float64              `json:"lead_confidence,omitempty"`
	Notes          []string             `json:"notes,omitempty"`
}

// MaxAbsDelta returns the largest absolute effect size among contributing metrics.
func (e MergedEvent) MaxAbsDelta() float64 {
	max := 0.0
	for _, m := range e.Metrics {
		d := m.DeltaPct
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}

// TransactionCandidate summarises a transaction's fixed-load traffic.
type TransactionCandidate struct {
	Name        string  `json:"name"`
	MeanRPS     float64 `json:"mean_rps"`
	VolumeShare float64 `json:"volume_share"`
	SampleCount int     `json:"sample_count"`
}
