package utils

import (
	"errors"
	"math"
	"net/http"
	"testing"
	"time"
)

func TestParseRFC3339(t *testing.T) {
	got, err := ParseRFC3339("2024-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}
	frac, err := ParseRFC3339("2024-03-01T12:00:00.250+01:00")
	if err != nil {
		t.Fatalf("parse fractional: %v", err)
	}
	if frac.UTC().Hour() != 11 || frac.Nanosecond() != 250_000_000 {
		t.Fatalf("unexpected fractional time %v", frac)
	}
	if _, err := ParseRFC3339(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(150.4); got != 150*time.Second {
		t.Fatalf("expected 2m30s, got %s", got)
	}
	for _, v := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		if got := Seconds(v); got != 0 {
			t.Fatalf("expected zero for %v, got %s", v, got)
		}
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	base := errors.New("connection refused")
	err := NewAppError("loader.FetchSamples", "request failed", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error")
	}
	if err.Error() != "loader.FetchSamples: request failed: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if StatusOf(err) != 0 {
		t.Fatalf("transport errors carry no status")
	}
}

func TestStatusOfFindsCollaboratorStatus(t *testing.T) {
	err := NewStatusError("loader.FetchSamples", "samples request failed", http.StatusNotFound, nil)
	wrapped := errors.Join(errors.New("run data unavailable"), err)
	if got := StatusOf(wrapped); got != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", got)
	}
	if err.Error() != "loader.FetchSamples: samples request failed (status 404)" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
