// Package detectors implements the per-metric anomaly detectors. Each detector
// turns one metric's values into a boolean flag per sample; detectors are
// independent and their flags are OR-combined by Run.
package detectors

import (
	"fmt"
	"sort"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/stats"
)

// Input is one metric's analysed slice for a scope and phase.
type Input struct {
	Metric string
	Values []float64
	// Baseline is the contextual baseline aligned with Values; may be nil.
	Baseline []float64
	// Companions holds other metrics of the same scope aligned with Values, used as
	// extra features by multivariate detectors.
	Companions map[string][]float64
	// Loose relaxes thresholds when the run has no stable fixed-load phase.
	Loose bool
}

// Detector flags anomalous samples of a single metric.
type Detector interface {
	Name() string
	Enabled(s *config.Settings) bool
	Detect(in Input, s *config.Settings) ([]bool, error)
}

// Defaults returns the standard detector set in a fixed order.
func Defaults() []Detector {
	return []Detector{ZScore{}, IsolationForest{}, StabilityTrend{}}
}

// Flags is the OR-combination of detector outputs with per-sample provenance.
type Flags struct {
	Any     []bool
	Methods [][]string
}

// Count returns the number of flagged samples.
func (f Flags) Count() int {
	n := 0
	for _, v := range f.Any {
		if v {
			n++
		}
	}
	return n
}

// Failure records a detector that was skipped for one input.
type Failure struct {
	Detector string
	Err      error
}

// Run executes every enabled detector against in. A detector that errors or
// panics contributes nothing; the remaining detectors still run.
func Run(detectors []Detector, in Input, s *config.Settings) (Flags, []Failure) {
	n := len(in.Values)
	out := Flags{Any: make([]bool, n), Methods: make([][]string, n)}
	var failures []Failure

	for _, d := range detectors {
		if !d.Enabled(s) {
			continue
		}
		flags, err := safeDetect(d, in, s)
		if err == nil && len(flags) != n {
			err = fmt.Errorf("returned %d flags for %d samples", len(flags), n)
		}
		if err != nil {
			failures = append(failures, Failure{Detector: d.Name(), Err: err})
			continue
		}
		for i, f := range flags {
			if !f {
				continue
			}
			out.Any[i] = true
			out.Methods[i] = append(out.Methods[i], d.Name())
		}
	}
	for i := range out.Methods {
		sort.Strings(out.Methods[i])
	}
	return out, failures
}

func safeDetect(d Detector, in Input, s *config.Settings) (flags []bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			flags = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	if err := stats.Validate(in.Values); err != nil {
		return nil, err
	}
	return d.Detect(in, s)
}

// ContextualBaseline returns the per-sample baseline used for deviations: a
// centred rolling median when the contextual filter is on, otherwise a centred
// rolling mean.
func ContextualBaseline(values []float64, s *config.Settings) []float64 {
	if s.ContextualMedianEnabled {
		return stats.CentredMedian(values, s.ContextualMedianWindow)
	}
	return stats.CentredMean(values, s.ZScoreWindow)
}
