package models

import (
	"sort"
	"time"
)

// AnalysisMode records which slice of the run the detectors consumed.
type AnalysisMode string

const (
	// ModeFixedLoad analyses the steady-state samples after the split.
	ModeFixedLoad AnalysisMode = "fixed_load"
	// ModeFullSeriesLoose analyses every sample with relaxed thresholds.
	ModeFullSeriesLoose AnalysisMode = "full_series_loose"
)

// Segmentation is the outcome of ramp-up / fixed-load classification.
type Segmentation struct {
	Split      time.Time    `json:"split"`
	SplitIndex int          `json:"split_index"`
	TippingHit bool         `json:"tipping_point_found"`
	FixedLoad  bool         `json:"fixed_load"`
	StablePct  float64      `json:"stable_pct"`
	Mode       AnalysisMode `json:"mode"`
}

// Loose reports whether detectors run on the full series with relaxed thresholds.
func (s Segmentation) Loose() bool {
	return s.Mode == ModeFullSeriesLoose
}

// Analysed returns the part of pts the detectors consume: samples from the split
// on in fixed-load mode, every sample otherwise. pts must be time ordered.
func (s Segmentation) Analysed(pts []Point) []Point {
	if s.Mode != ModeFixedLoad || s.Split.IsZero() {
		return pts
	}
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Timestamp.Before(s.Split) })
	return pts[i:]
}

// EventWindow bounds a report event.
type EventWindow struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationSec float64   `json:"durationSec"`
}

// EventMeta carries the structured detail of a report event.
type EventMeta struct {
	Scope           string               `json:"scope"`
	Window          EventWindow          `json:"window"`
	Metrics         []MetricContribution `json:"metrics"`
	Volume          Volume               `json:"volume"`
	Impact          float64              `json:"impact"`
	Methods         []string             `json:"methods"`
	LeadMetric      string               `json:"lead_metric,omitempty"`
	LeadConfidence  float64              `json:"lead_confidence,omitempty"`
	Notes           []string             `json:"notes,omitempty"`
	Recommendations []string             `json:"recommendations,omitempty"`
}

// ReportEvent is the event-typed dataset entry consumed by the reporting layer.
type ReportEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Meta      EventMeta `json:"meta"`
}

// EventTypeAnomaly is the only event type the engine emits.
const EventTypeAnomaly = "anomaly"

// SkipNote records an analysis unit that was skipped without failing the run.
type SkipNote struct {
	Scope    string `json:"scope"`
	Metric   string `json:"metric,omitempty"`
	Detector string `json:"detector,omitempty"`
	Reason   string `json:"reason"`
}

// Result is the full output of one analysis run.
type Result struct {
	RunID        string                                `json:"run_id"`
	Segmentation Segmentation                          `json:"segmentation"`
	Events       []ReportEvent                         `json:"events"`
	Ranked       []MergedEvent                         `json:"ranked"`
	Windows      map[string]map[string][]AnomalyWindow `json:"windows"`
	Merged       map[string][]MergedEvent              `json:"merged"`
	Transactions []TransactionCandidate                `json:"transactions"`
	Skipped      []SkipNote                            `json:"skipped,omitempty"`
}

// WindowsFor returns the pre-merge windows for a scope/metric pair, for chart shading.
func (r Result) WindowsFor(scope, metric string) []AnomalyWindow {
	if r.Windows == nil {
		return nil
	}
	return r.Windows[scope][metric]
}
