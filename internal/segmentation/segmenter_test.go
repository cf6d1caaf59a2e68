package segmentation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/models"
)

// rampProfile builds 5 minutes of users rising 10 -> 100 followed by 20 minutes
// flat at 100, sampled every 10 seconds. Throughput tracks users during the rise
// and then flattens with a small wobble.
func rampProfile(start time.Time) ([]models.Point, []models.Point) {
	const step = 10 * time.Second
	var users, tput []models.Point
	for i := 0; i < 150; i++ {
		ts := start.Add(time.Duration(i) * step)
		u := 100.0
		tp := 200 + 3*math.Sin(float64(i)/3)
		if i < 30 {
			u = 10 + 90*float64(i)/30
			tp = 2 * u
		}
		users = append(users, models.Point{Timestamp: ts, Value: u})
		tput = append(tput, models.Point{Timestamp: ts, Value: tp})
	}
	return users, tput
}

func TestSplitRampThenSteady(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	users, tput := rampProfile(start)

	seg := NewSegmenter(nil, nil).Split(users, tput)

	require.True(t, seg.TippingHit)
	splitAt := seg.Split.Sub(start)
	assert.InDelta(t, (5 * time.Minute).Seconds(), splitAt.Seconds(), 30, "split near the 5 minute mark")
	assert.True(t, seg.FixedLoad)
	assert.Equal(t, models.ModeFixedLoad, seg.Mode)
	assert.True(t, users[seg.SplitIndex-1].Timestamp.Before(seg.Split))
	assert.True(t, users[seg.SplitIndex].Timestamp.Equal(seg.Split))
}

func TestSplitFlatProfileIsAllFixedLoad(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	var users, tput []models.Point
	for i := 0; i < 60; i++ {
		ts := start.Add(time.Duration(i) * time.Second)
		users = append(users, models.Point{Timestamp: ts, Value: 50})
		tput = append(tput, models.Point{Timestamp: ts, Value: 120 + float64(i%3)})
	}

	seg := NewSegmenter(nil, nil).Split(users, tput)
	assert.Equal(t, 0, seg.SplitIndex)
	assert.True(t, seg.FixedLoad)
	assert.Equal(t, start, seg.Split)
}

func TestSplitShortSeriesHasNoTippingPoint(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	var users, tput []models.Point
	for i := 0; i < 5; i++ {
		ts := start.Add(time.Duration(i) * time.Second)
		users = append(users, models.Point{Timestamp: ts, Value: 50})
		tput = append(tput, models.Point{Timestamp: ts, Value: 100})
	}
	seg := NewSegmenter(nil, nil).Split(users, tput)
	assert.False(t, seg.TippingHit)
	assert.Equal(t, 0, seg.SplitIndex)
}

func TestSplitUnstableLoadFallsBackToLooseMode(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	var users, tput []models.Point
	for i := 0; i < 80; i++ {
		ts := start.Add(time.Duration(i) * time.Second)
		u := 50.0
		if i%2 == 0 {
			u = 90
		}
		users = append(users, models.Point{Timestamp: ts, Value: u})
		tput = append(tput, models.Point{Timestamp: ts, Value: 100 + float64(i%7)})
	}

	seg := NewSegmenter(nil, nil).Split(users, tput)
	assert.False(t, seg.FixedLoad)
	assert.Equal(t, models.ModeFullSeriesLoose, seg.Mode)
	assert.Less(t, seg.StablePct, 60.0)
}

func TestSplitEmptyInput(t *testing.T) {
	d := config.DefaultSettings()
	seg := NewSegmenter(nil, &d).Split(nil, nil)
	assert.Equal(t, 0, seg.SplitIndex)
	assert.False(t, seg.TippingHit)
}
