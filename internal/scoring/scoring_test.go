package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/models"
)

func settings() *config.Settings {
	s := config.DefaultSettings()
	return &s
}

func TestBandsClassify(t *testing.T) {
	b := BandsFrom(settings())
	cases := map[float64]models.Severity{
		0:    models.SeverityLow,
		19.9: models.SeverityLow,
		20:   models.SeverityMedium,
		-55:  models.SeverityHigh,
		100:  models.SeverityCritical,
		-400: models.SeverityCritical,
	}
	for delta, want := range cases {
		assert.Equal(t, want, b.Classify(delta), "delta %.1f", delta)
	}
	assert.Equal(t, models.SeverityLow, b.Classify(math.NaN()))
}

func TestBandsAreConfigurable(t *testing.T) {
	b := Bands{Medium: 5, High: 10, Critical: 15}
	assert.Equal(t, models.SeverityCritical, b.Classify(16))
	assert.Equal(t, models.SeverityMedium, b.Classify(6))
}

func TestImpact(t *testing.T) {
	assert.InDelta(t, 3*0.5*math.Log(61), Impact(3, 0.5, 60), 1e-9)
	assert.Zero(t, Impact(3, 0, 60))
	assert.Zero(t, Impact(0, 1, 60))
	assert.Zero(t, Impact(3, 1, 0))
}

func TestRankPrefersHigherShare(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	base := models.MergedEvent{
		Start:       start,
		End:         start.Add(time.Minute),
		DurationSec: 60,
		Metrics:     []models.MetricContribution{{Name: models.MetricResponseTime, DeltaPct: 60}},
	}
	low := base
	low.Scope = "browse"
	low.Volume = models.Volume{MeanRPS: 5, Share: 0.1}
	high := base
	high.Scope = "checkout"
	high.Volume = models.Volume{MeanRPS: 40, Share: 0.8}

	ranked := Rank(NewScorer(settings()).Score([]models.MergedEvent{low, high}))
	require.Len(t, ranked, 2)
	assert.Equal(t, "checkout", ranked[0].Scope)
	assert.Equal(t, models.SeverityHigh, ranked[0].Severity)
	assert.Greater(t, ranked[0].Impact, ranked[1].Impact)
}

func TestRankTieBreaks(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	events := []models.MergedEvent{
		{Scope: "b", Start: t0.Add(time.Minute), Impact: 2},
		{Scope: "b", Start: t0, Impact: 2},
		{Scope: "a", Start: t0, Impact: 2},
		{Scope: "z", Start: t0.Add(time.Hour), Impact: 5},
	}
	ranked := Rank(events)
	assert.Equal(t, "z", ranked[0].Scope)
	assert.Equal(t, "a", ranked[1].Scope)
	assert.Equal(t, "b", ranked[2].Scope)
	assert.True(t, ranked[2].Start.Equal(t0))
	// input untouched
	assert.Equal(t, "b", events[0].Scope)
}
