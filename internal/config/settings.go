package config

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Transaction selection policies.
const (
	PolicyTopK     = "top_k"
	PolicyCoverage = "coverage"
)

// Settings is the per-run analysis configuration. It is resolved once from a
// settings dictionary and must not be modified afterwards; components receive it
// by pointer and only read it.
type Settings struct {
	BaseMetric       string
	ThroughputMetric string
	DetectMetrics    []string

	// CorrelationWindow and the other *Window settings count samples, not time.
	CorrelationWindow       int
	TippingPointThreshold   float64
	TippingPointMinBreaches int
	TippingPointMaxBreaches int
	TippingPointFraction    float64
	StabilityWindow         int
	StabilityCVThreshold    float64
	FixedLoadMinPct         float64
	LooseThresholdFactor    float64

	ZScoreEnabled   bool
	ZScoreThreshold float64
	ZScoreWindow    int

	IsolationEnabled        bool
	IsolationContamination  float64
	IsolationTrees          int
	IsolationSampleSize     int
	IsolationSeed           int64
	IsolationScoreThreshold float64
	IsolationFeatures       []string

	StabilityEnabled    bool
	TrendWindow         int
	TrendSlopeThreshold float64
	TrendPValue         float64
	TrendCVThreshold    float64
	TrendVarianceRatio  float64

	ContextualMedianEnabled bool
	ContextualMedianWindow  int

	MergeGapSamples    int
	BaselineWindow     int
	MinDeltaPctLatency float64
	MinDeltaPctErrors  float64
	MinDeltaPctDefault float64

	TxMinMeanRPS      float64
	TxMinSamples      int
	TxSelectionPolicy string
	TxTopK            int
	TxCoverage        float64

	SeverityMediumPct     float64
	SeverityHighPct       float64
	SeverityCriticalPct   float64
	SeverityScoreLow      float64
	SeverityScoreMedium   float64
	SeverityScoreHigh     float64
	SeverityScoreCritical float64

	MaxEvents int
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		BaseMetric:       "users",
		ThroughputMetric: "throughput",
		DetectMetrics:    []string{"response_time", "throughput", "error_rate"},

		CorrelationWindow:       10,
		TippingPointThreshold:   0.5,
		TippingPointMinBreaches: 3,
		TippingPointMaxBreaches: 10,
		TippingPointFraction:    0.05,
		StabilityWindow:         10,
		StabilityCVThreshold:    0.05,
		FixedLoadMinPct:         60,
		LooseThresholdFactor:    1.5,

		ZScoreEnabled:   true,
		ZScoreThreshold: 3.0,
		ZScoreWindow:    20,

		IsolationEnabled:        true,
		IsolationContamination:  0.05,
		IsolationTrees:          100,
		IsolationSampleSize:     256,
		IsolationSeed:           42,
		IsolationScoreThreshold: 0,
		IsolationFeatures:       []string{"response_time", "throughput", "error_rate"},

		StabilityEnabled:    true,
		TrendWindow:         15,
		TrendSlopeThreshold: 0.02,
		TrendPValue:         0.05,
		TrendCVThreshold:    0.3,
		TrendVarianceRatio:  4.0,

		ContextualMedianEnabled: true,
		ContextualMedianWindow:  15,

		MergeGapSamples:    2,
		BaselineWindow:     10,
		MinDeltaPctLatency: 10,
		MinDeltaPctErrors:  5,
		MinDeltaPctDefault: 10,

		TxMinMeanRPS:      1.0,
		TxMinSamples:      10,
		TxSelectionPolicy: PolicyTopK,
		TxTopK:            10,
		TxCoverage:        0.8,

		SeverityMediumPct:     20,
		SeverityHighPct:       50,
		SeverityCriticalPct:   100,
		SeverityScoreLow:      1,
		SeverityScoreMedium:   2,
		SeverityScoreHigh:     3,
		SeverityScoreCritical: 4,

		MaxEvents: 20,
	}
}

// ResolveSettings builds Settings from a settings dictionary. Absent keys take the
// default; mistyped or out-of-range values are logged and replaced by the default.
// Resolution never fails.
func ResolveSettings(raw map[string]any, logger *slog.Logger) *Settings {
	if logger == nil {
		logger = slog.Default()
	}
	r := resolver{raw: raw, logger: logger}
	d := DefaultSettings()

	s := Settings{
		BaseMetric:       r.str("base_metric", d.BaseMetric),
		ThroughputMetric: r.str("throughput_metric", d.ThroughputMetric),
		DetectMetrics:    r.list("detect_metrics", d.DetectMetrics),

		CorrelationWindow:       r.integer("correlation_window", d.CorrelationWindow, intRange(2, maxWindow)),
		TippingPointThreshold:   r.number("tipping_point_threshold", d.TippingPointThreshold, between(-1, 1)),
		TippingPointMinBreaches: r.integer("tipping_point_min_breaches", d.TippingPointMinBreaches, atLeast(1)),
		TippingPointMaxBreaches: r.integer("tipping_point_max_breaches", d.TippingPointMaxBreaches, atLeast(1)),
		TippingPointFraction:    r.number("tipping_point_fraction", d.TippingPointFraction, openUnit),
		StabilityWindow:         r.integer("stability_window", d.StabilityWindow, intRange(2, maxWindow)),
		StabilityCVThreshold:    r.number("stability_cv_threshold", d.StabilityCVThreshold, positive),
		FixedLoadMinPct:         r.number("fixed_load_min_pct", d.FixedLoadMinPct, between(0, 100)),
		LooseThresholdFactor:    r.number("loose_threshold_factor", d.LooseThresholdFactor, atLeastF(1)),

		ZScoreEnabled:   r.boolean("zscore_enabled", d.ZScoreEnabled),
		ZScoreThreshold: r.number("zscore_threshold", d.ZScoreThreshold, positive),
		ZScoreWindow:    r.integer("zscore_window", d.ZScoreWindow, intRange(3, maxWindow)),

		IsolationEnabled:        r.boolean("isolation_enabled", d.IsolationEnabled),
		IsolationContamination:  r.number("isolation_contamination", d.IsolationContamination, between(0.0001, 0.5)),
		IsolationTrees:          r.integer("isolation_trees", d.IsolationTrees, intRange(1, maxIsolationTrees)),
		IsolationSampleSize:     r.integer("isolation_sample_size", d.IsolationSampleSize, intRange(2, maxIsolationSampleSize)),
		IsolationSeed:           int64(r.integer("isolation_seed", int(d.IsolationSeed), nil)),
		IsolationScoreThreshold: r.number("isolation_score_threshold", d.IsolationScoreThreshold, between(-1, 1)),
		IsolationFeatures:       r.list("isolation_features", d.IsolationFeatures),

		StabilityEnabled:    r.boolean("stability_enabled", d.StabilityEnabled),
		TrendWindow:         r.integer("trend_window", d.TrendWindow, intRange(3, maxWindow)),
		TrendSlopeThreshold: r.number("trend_slope_threshold", d.TrendSlopeThreshold, positive),
		TrendPValue:         r.number("trend_p_value", d.TrendPValue, openUnit),
		TrendCVThreshold:    r.number("trend_cv_threshold", d.TrendCVThreshold, positive),
		TrendVarianceRatio:  r.number("trend_variance_ratio", d.TrendVarianceRatio, atLeastF(1)),

		ContextualMedianEnabled: r.boolean("contextual_median_enabled", d.ContextualMedianEnabled),
		ContextualMedianWindow:  r.integer("contextual_median_window", d.ContextualMedianWindow, intRange(3, maxWindow)),

		MergeGapSamples:    r.integer("merge_gap_samples", d.MergeGapSamples, atLeast(0)),
		BaselineWindow:     r.integer("baseline_window", d.BaselineWindow, atLeast(1)),
		MinDeltaPctLatency: r.number("min_delta_pct_latency", d.MinDeltaPctLatency, nonNegative),
		MinDeltaPctErrors:  r.number("min_delta_pct_errors", d.MinDeltaPctErrors, nonNegative),
		MinDeltaPctDefault: r.number("min_delta_pct", d.MinDeltaPctDefault, nonNegative),

		TxMinMeanRPS:      r.number("tx_min_mean_rps", d.TxMinMeanRPS, nonNegative),
		TxMinSamples:      r.integer("tx_min_samples", d.TxMinSamples, atLeast(1)),
		TxSelectionPolicy: r.choice("tx_selection_policy", d.TxSelectionPolicy, PolicyTopK, PolicyCoverage),
		TxTopK:            r.integer("tx_top_k", d.TxTopK, atLeast(1)),
		TxCoverage:        r.number("tx_coverage", d.TxCoverage, between(0.01, 1)),

		SeverityMediumPct:     r.number("severity_medium_pct", d.SeverityMediumPct, positive),
		SeverityHighPct:       r.number("severity_high_pct", d.SeverityHighPct, positive),
		SeverityCriticalPct:   r.number("severity_critical_pct", d.SeverityCriticalPct, positive),
		SeverityScoreLow:      r.number("severity_score_low", d.SeverityScoreLow, nonNegative),
		SeverityScoreMedium:   r.number("severity_score_medium", d.SeverityScoreMedium, nonNegative),
		SeverityScoreHigh:     r.number("severity_score_high", d.SeverityScoreHigh, nonNegative),
		SeverityScoreCritical: r.number("severity_score_critical", d.SeverityScoreCritical, nonNegative),

		MaxEvents: r.integer("max_events", d.MaxEvents, atLeast(0)),
	}

	if s.TippingPointMinBreaches > s.TippingPointMaxBreaches {
		logger.Warn("tipping point breach range inverted, swapping bounds",
			slog.Int("min", s.TippingPointMinBreaches), slog.Int("max", s.TippingPointMaxBreaches))
		s.TippingPointMinBreaches, s.TippingPointMaxBreaches = s.TippingPointMaxBreaches, s.TippingPointMinBreaches
	}
	if !(s.SeverityMediumPct < s.SeverityHighPct && s.SeverityHighPct < s.SeverityCriticalPct) {
		logger.Warn("severity bands not strictly increasing, using defaults")
		s.SeverityMediumPct, s.SeverityHighPct, s.SeverityCriticalPct = d.SeverityMediumPct, d.SeverityHighPct, d.SeverityCriticalPct
	}
	if len(s.DetectMetrics) == 0 {
		s.DetectMetrics = d.DetectMetrics
	}
	return &s
}

// Fingerprint renders the resolved settings deterministically, for cache keys.
func (s *Settings) Fingerprint() string {
	return fmt.Sprintf("%+v", *s)
}

// UnknownKeys lists dictionary keys that ResolveSettings does not recognise.
func UnknownKeys(raw map[string]any) []string {
	known := knownKeys()
	unknown := make([]string, 0)
	for k := range raw {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func knownKeys() map[string]struct{} {
	keys := []string{
		"base_metric", "throughput_metric", "detect_metrics",
		"correlation_window", "tipping_point_threshold", "tipping_point_min_breaches",
		"tipping_point_max_breaches", "tipping_point_fraction", "stability_window",
		"stability_cv_threshold", "fixed_load_min_pct", "loose_threshold_factor",
		"zscore_enabled", "zscore_threshold", "zscore_window",
		"isolation_enabled", "isolation_contamination", "isolation_trees", "isolation_sample_size",
		"isolation_seed", "isolation_score_threshold", "isolation_features",
		"stability_enabled", "trend_window", "trend_slope_threshold", "trend_p_value",
		"trend_cv_threshold", "trend_variance_ratio",
		"contextual_median_enabled", "contextual_median_window",
		"merge_gap_samples", "baseline_window", "min_delta_pct_latency", "min_delta_pct_errors", "min_delta_pct",
		"tx_min_mean_rps", "tx_min_samples", "tx_selection_policy", "tx_top_k", "tx_coverage",
		"severity_medium_pct", "severity_high_pct", "severity_critical_pct",
		"severity_score_low", "severity_score_medium", "severity_score_high", "severity_score_critical",
		"max_events",
	}
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

type resolver struct {
	raw    map[string]any
	logger *slog.Logger
}

func (r resolver) fallback(key string, value any, reason string) {
	r.logger.Warn("invalid analysis setting, using default",
		slog.String("key", key), slog.Any("value", value), slog.String("reason", reason))
}

func (r resolver) number(key string, def float64, valid func(float64) bool) float64 {
	v, ok := r.raw[key]
	if !ok || v == nil {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		r.fallback(key, v, "not a number")
		return def
	}
	if valid != nil && !valid(f) {
		r.fallback(key, v, "out of range")
		return def
	}
	return f
}

func (r resolver) integer(key string, def int, valid func(int) bool) int {
	v, ok := r.raw[key]
	if !ok || v == nil {
		return def
	}
	f, ok := toFloat(v)
	if !ok || math.Abs(f) > maxExactInt || f != math.Trunc(f) {
		r.fallback(key, v, "not an integer")
		return def
	}
	n := int(f)
	if valid != nil && !valid(n) {
		r.fallback(key, v, "out of range")
		return def
	}
	return n
}

func (r resolver) boolean(key string, def bool) bool {
	v, ok := r.raw[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err == nil {
			return b
		}
	case int:
		return t != 0
	case float64:
		return t != 0
	}
	r.fallback(key, v, "not a boolean")
	return def
}

func (r resolver) str(key, def string) string {
	v, ok := r.raw[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		r.fallback(key, v, "not a non-empty string")
		return def
	}
	return strings.TrimSpace(s)
}

func (r resolver) choice(key, def string, allowed ...string) string {
	s := strings.ToLower(r.str(key, def))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	r.fallback(key, s, "unsupported value")
	return def
}

func (r resolver) list(key string, def []string) []string {
	v, ok := r.raw[key]
	if !ok || v == nil {
		return append([]string(nil), def...)
	}
	var out []string
	switch t := v.(type) {
	case []string:
		out = append(out, t...)
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				r.fallback(key, v, "list contains a non-string")
				return append([]string(nil), def...)
			}
			out = append(out, s)
		}
	case string:
		out = strings.Split(t, ",")
	default:
		r.fallback(key, v, "not a list")
		return append([]string(nil), def...)
	}
	cleaned := make([]string, 0, len(out))
	seen := make(map[string]struct{}, len(out))
	for _, s := range out {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		cleaned = append(cleaned, s)
	}
	if len(cleaned) == 0 {
		return append([]string(nil), def...)
	}
	return cleaned
}

// toFloat converts a decoded settings value to a finite float64.
func toFloat(v any) (float64, bool) {
	f, ok := rawFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func rawFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Upper bounds for sample-count and ensemble-size settings. Values past these
// make a single run's cost unbounded.
const (
	maxWindow              = 1000
	maxIsolationTrees      = 1000
	maxIsolationSampleSize = 4096
	maxExactInt            = 1 << 53
)

func atLeast(min int) func(int) bool {
	return func(v int) bool { return v >= min }
}

func intRange(min, max int) func(int) bool {
	return func(v int) bool { return v >= min && v <= max }
}

func atLeastF(min float64) func(float64) bool {
	return func(v float64) bool { return v >= min }
}

func between(min, max float64) func(float64) bool {
	return func(v float64) bool { return v >= min && v <= max }
}

func positive(v float64) bool    { return v > 0 }
func nonNegative(v float64) bool { return v >= 0 }
func openUnit(v float64) bool    { return v > 0 && v < 1 }
