package engine

import (
	"testing"
	"time"

	"github.com/miradorstack/mirador-perf/internal/models"
)

func TestCausalityEngineEvaluate(t *testing.T) {
	engine := NewCausalityEngine(nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	event := models.MergedEvent{Scope: "overall", Start: now, End: now.Add(2 * time.Minute), LeadMetric: "response_time"}
	windows := []models.AnomalyWindow{
		{Metric: "throughput", Start: now.Add(30 * time.Second), End: now.Add(2 * time.Minute)},
		{Metric: "response_time", Start: now, End: now.Add(time.Minute)},
		{Metric: "error_rate", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)},
	}

	res := engine.Evaluate(event, windows)
	if res.Lead != "response_time" {
		t.Fatalf("expected response_time to lead, got %q", res.Lead)
	}
	if res.Score != 1 {
		t.Fatalf("expected full causality score, got %f", res.Score)
	}
	if len(res.Notes) != 1 || res.Notes[0] != "response_time precedes throughput by 30s" {
		t.Fatalf("unexpected notes %v", res.Notes)
	}
}

func TestAnnotateCarriesLeadConfidence(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []models.MergedEvent{{Scope: "overall", Start: now, End: now.Add(2 * time.Minute)}}
	windows := []models.AnomalyWindow{
		{Metric: "response_time", Start: now, End: now.Add(time.Minute)},
		{Metric: "throughput", Start: now.Add(20 * time.Second), End: now.Add(time.Minute)},
		{Metric: "error_rate", Start: now, End: now.Add(2 * time.Minute)},
	}

	e := New(nil)
	out := e.annotate(events, windows)
	if out[0].LeadMetric != "error_rate" {
		t.Fatalf("expected error_rate to lead on the name tie-break, got %q", out[0].LeadMetric)
	}
	if out[0].LeadConfidence != 0.5 {
		t.Fatalf("expected half of the followers to trail, got %f", out[0].LeadConfidence)
	}

	report := e.Assemble(out, 0)
	if report[0].Meta.LeadConfidence != 0.5 {
		t.Fatalf("report meta lost lead confidence: %+v", report[0].Meta)
	}
}

func TestCausalityEngineNoEvidence(t *testing.T) {
	engine := NewCausalityEngine(nil)
	res := engine.Evaluate(models.MergedEvent{LeadMetric: "throughput"}, nil)
	if res.Score != 0 {
		t.Fatalf("expected zero score without data")
	}
	if res.Lead != "throughput" {
		t.Fatalf("expected lead to fall back to the merged lead metric")
	}
}
