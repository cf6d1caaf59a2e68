package utils

import (
	"fmt"
	"math"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error. Fractional
// seconds are accepted.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// Seconds converts a float second count into a duration rounded to the second.
// Non-finite or negative input yields zero.
func Seconds(sec float64) time.Duration {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second)).Round(time.Second)
}
