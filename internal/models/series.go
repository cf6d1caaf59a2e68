package models

import (
	"math"
	"sort"
	"strings"
	"time"
)

// ScopeOverall labels the whole-test scope; any other scope is a transaction name.
const ScopeOverall = "overall"

// Well-known metric names.
const (
	MetricUsers        = "users"
	MetricThroughput   = "throughput"
	MetricResponseTime = "response_time"
	MetricErrorRate    = "error_rate"
)

// MetricKind groups metrics that share effect-size filtering rules.
type MetricKind string

const (
	KindLatency    MetricKind = "latency"
	KindErrors     MetricKind = "errors"
	KindThroughput MetricKind = "throughput"
	KindLoad       MetricKind = "load"
	KindOther      MetricKind = "other"
)

// KindOf classifies a metric name.
func KindOf(metric string) MetricKind {
	name := strings.ToLower(metric)
	switch {
	case name == MetricUsers || strings.Contains(name, "users") || strings.Contains(name, "threads"):
		return KindLoad
	case strings.Contains(name, "error") || strings.Contains(name, "fail"):
		return KindErrors
	case strings.Contains(name, "time") || strings.Contains(name, "latency") || strings.Contains(name, "duration"):
		return KindLatency
	case strings.Contains(name, "throughput") || strings.Contains(name, "rps") || strings.Contains(name, "hits"):
		return KindThroughput
	default:
		return KindOther
	}
}

// Sample is a single normalized telemetry reading.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Scope     string    `json:"scope"`
}

// Point is one timestamped value of a series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Frame holds every metric series for one scope.
type Frame struct {
	Scope  string             `json:"scope"`
	Series map[string][]Point `json:"series"`
}

// Points returns the series for metric, or nil.
func (f Frame) Points(metric string) []Point {
	if f.Series == nil {
		return nil
	}
	return f.Series[metric]
}

// Empty reports whether the frame carries no samples at all.
func (f Frame) Empty() bool {
	for _, pts := range f.Series {
		if len(pts) > 0 {
			return false
		}
	}
	return true
}

// RunInput is the immutable snapshot of one completed test.
type RunInput struct {
	RunID        string  `json:"run_id"`
	Overall      Frame   `json:"overall"`
	Transactions []Frame `json:"transactions"`
}

// TimeRange bounds the analysed test.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FramesFromSamples groups flat samples into an overall frame and per-transaction
// frames. Non-finite values are dropped, points are time ordered and a duplicated
// timestamp keeps the last reading.
func FramesFromSamples(runID string, samples []Sample) RunInput {
	byScope := make(map[string]map[string][]Point)
	for _, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) || s.Metric == "" {
			continue
		}
		scope := s.Scope
		if scope == "" {
			scope = ScopeOverall
		}
		series, ok := byScope[scope]
		if !ok {
			series = make(map[string][]Point)
			byScope[scope] = series
		}
		series[s.Metric] = append(series[s.Metric], Point{Timestamp: s.Timestamp, Value: s.Value})
	}

	input := RunInput{RunID: runID, Overall: Frame{Scope: ScopeOverall, Series: map[string][]Point{}}}
	scopes := make([]string, 0, len(byScope))
	for scope := range byScope {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	for _, scope := range scopes {
		frame := Frame{Scope: scope, Series: make(map[string][]Point, len(byScope[scope]))}
		for metric, pts := range byScope[scope] {
			frame.Series[metric] = normalisePoints(pts)
		}
		if scope == ScopeOverall {
			input.Overall = frame
			continue
		}
		input.Transactions = append(input.Transactions, frame)
	}
	return input
}

func normalisePoints(pts []Point) []Point {
	sort.SliceStable(pts, func(i, j int) bool {
		return pts[i].Timestamp.Before(pts[j].Timestamp)
	})
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(p.Timestamp) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// Values extracts the value column of pts.
func Values(pts []Point) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}

// SamplingInterval returns the median spacing between consecutive points, or zero
// when fewer than two points exist.
func SamplingInterval(pts []Point) time.Duration {
	if len(pts) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		gaps = append(gaps, pts[i].Timestamp.Sub(pts[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}
