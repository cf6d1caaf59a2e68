package detectors

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/stats"
)

func defaults() *config.Settings {
	s := config.DefaultSettings()
	return &s
}

// noisy returns a deterministic wobble around base.
func noisy(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + 2*math.Sin(float64(i)*1.7) + math.Cos(float64(i)*0.9)
	}
	return out
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func TestZScoreFlagsSpike(t *testing.T) {
	values := noisy(80, 200)
	values[40] = 400

	flags, err := ZScore{}.Detect(Input{Values: values}, defaults())
	require.NoError(t, err)
	assert.True(t, flags[40])
	assert.LessOrEqual(t, countTrue(flags), 3)
}

func TestZScoreFlatSignalNeverFlags(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 42
	}
	s := defaults()
	s.ZScoreThreshold = 0.0001
	flags, err := ZScore{}.Detect(Input{Values: values}, s)
	require.NoError(t, err)
	assert.Zero(t, countTrue(flags))
}

func TestZScoreLoneSpikeOnFlatLine(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 10
	}
	values[30] = 50
	flags, err := ZScore{}.Detect(Input{Values: values}, defaults())
	require.NoError(t, err)
	assert.True(t, flags[30])
	assert.Equal(t, 1, countTrue(flags))
}

func TestZScoreThresholdMonotonicity(t *testing.T) {
	values := noisy(200, 100)
	for _, i := range []int{20, 75, 76, 140} {
		values[i] += 15 + float64(i%5)
	}
	in := Input{Values: values, Baseline: ContextualBaseline(values, defaults())}

	prev := math.MaxInt
	for _, threshold := range []float64{0.5, 1, 1.5, 2, 2.5, 3, 4, 6, 10} {
		s := defaults()
		s.ZScoreThreshold = threshold
		flags, err := ZScore{}.Detect(in, s)
		require.NoError(t, err)
		count := countTrue(flags)
		assert.LessOrEqual(t, count, prev, "threshold %.1f increased flags", threshold)
		prev = count
	}
}

func TestZScoreLooseModeIsLessSensitive(t *testing.T) {
	values := noisy(120, 50)
	values[60] = 62
	strict, err := ZScore{}.Detect(Input{Values: values}, defaults())
	require.NoError(t, err)
	loose, err := ZScore{}.Detect(Input{Values: values, Loose: true}, defaults())
	require.NoError(t, err)
	assert.LessOrEqual(t, countTrue(loose), countTrue(strict))
}

func TestContextualBaselineFollowsMedianFlag(t *testing.T) {
	values := noisy(60, 100)
	values[30] = 300

	s := defaults()
	median := ContextualBaseline(values, s)
	assert.InDelta(t, 100, median[30], 5)

	s.ContextualMedianEnabled = false
	mean := ContextualBaseline(values, s)
	assert.Equal(t, stats.CentredMean(values, s.ZScoreWindow), mean)
	assert.Greater(t, mean[30], 105.0)
}

func TestZScoreWithRollingMeanBaseline(t *testing.T) {
	values := noisy(80, 200)
	values[40] = 400
	s := defaults()
	s.ContextualMedianEnabled = false

	flags, err := ZScore{}.Detect(Input{Values: values, Baseline: ContextualBaseline(values, s)}, s)
	require.NoError(t, err)
	assert.True(t, flags[40])
	assert.LessOrEqual(t, countTrue(flags), 3)
}

func TestIsolationForestDeterministic(t *testing.T) {
	values := noisy(150, 300)
	values[70] = 900
	values[71] = 880
	in := Input{
		Metric:     "response_time",
		Values:     values,
		Companions: map[string][]float64{"throughput": noisy(150, 40)},
	}
	s := defaults()

	first, err := IsolationForest{}.Detect(in, s)
	require.NoError(t, err)
	second, err := IsolationForest{}.Detect(in, s)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, first[70] || first[71], "outlier pair should be isolated")
}

func TestIsolationForestFlatAndShort(t *testing.T) {
	flat := make([]float64, 40)
	flags, err := IsolationForest{}.Detect(Input{Values: flat}, defaults())
	require.NoError(t, err)
	assert.Zero(t, countTrue(flags))

	_, err = IsolationForest{}.Detect(Input{Values: []float64{1, 2, 3}}, defaults())
	assert.ErrorIs(t, err, stats.ErrDegenerate)
}

func TestStabilityTrendFlagsDrift(t *testing.T) {
	values := noisy(120, 100)
	for i := 60; i < 120; i++ {
		values[i] += 4 * float64(i-60)
	}
	flags, err := StabilityTrend{}.Detect(Input{Values: values}, defaults())
	require.NoError(t, err)
	assert.Greater(t, countTrue(flags[60:95]), 10)
	assert.Zero(t, countTrue(flags[:55]))
}

func TestStabilityTrendLooseModeIgnoresSlope(t *testing.T) {
	// A steady climb: significant slope, yet CV and variance stay inside bounds
	// from sample 20 on.
	values := noisy(120, 10)
	for i := range values {
		values[i] += 2 * float64(i)
	}

	strict, err := StabilityTrend{}.Detect(Input{Values: values}, defaults())
	require.NoError(t, err)
	loose, err := StabilityTrend{}.Detect(Input{Values: values, Loose: true}, defaults())
	require.NoError(t, err)

	assert.Greater(t, countTrue(strict[20:45]), 20)
	assert.Zero(t, countTrue(loose[20:45]))
}

func TestStabilityTrendShortSeries(t *testing.T) {
	_, err := StabilityTrend{}.Detect(Input{Values: []float64{1, 2, 3}}, defaults())
	assert.ErrorIs(t, err, stats.ErrDegenerate)
}

type failingDetector struct{ panics bool }

func (failingDetector) Name() string                  { return "failing" }
func (failingDetector) Enabled(*config.Settings) bool { return true }
func (f failingDetector) Detect(Input, *config.Settings) ([]bool, error) {
	if f.panics {
		panic("boom")
	}
	return nil, errors.New("singular fit")
}

func TestRunContainsFailuresAndKeepsProvenance(t *testing.T) {
	values := noisy(80, 200)
	values[40] = 500
	dets := []Detector{failingDetector{}, ZScore{}, failingDetector{panics: true}}

	flags, failures := Run(dets, Input{Values: values}, defaults())
	require.Len(t, failures, 2)
	assert.Equal(t, "failing", failures[0].Detector)
	assert.True(t, flags.Any[40])
	assert.Equal(t, []string{"zscore"}, flags.Methods[40])
}

func TestRunRejectsMalformedInput(t *testing.T) {
	flags, failures := Run(Defaults(), Input{Values: []float64{1, math.NaN(), 3}}, defaults())
	assert.Len(t, failures, 3)
	assert.Zero(t, flags.Count())

	_, failures = Run(Defaults(), Input{}, defaults())
	require.NotEmpty(t, failures)
	assert.ErrorIs(t, failures[0].Err, stats.ErrEmpty)
}

func TestRunSkipsDisabledDetectors(t *testing.T) {
	s := defaults()
	s.ZScoreEnabled = false
	s.IsolationEnabled = false
	s.StabilityEnabled = false
	values := noisy(80, 10)
	values[5] = 100
	flags, failures := Run(Defaults(), Input{Values: values}, s)
	assert.Empty(t, failures)
	assert.Zero(t, flags.Count())
}
