package services

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-perf/internal/api"
	"github.com/miradorstack/mirador-perf/internal/cache"
	"github.com/miradorstack/mirador-perf/internal/engine"
	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/utils"
)

var runStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// runSamples is a fixed-load run whose response time jumps for a minute.
func runSamples() []models.Sample {
	var out []models.Sample
	for i := 0; i < 120; i++ {
		ts := runStart.Add(time.Duration(i) * 10 * time.Second)
		rt := 200 + 3*math.Sin(float64(i)*1.3)
		if i >= 70 && i < 76 {
			rt = 480
		}
		out = append(out,
			models.Sample{Timestamp: ts, Metric: models.MetricUsers, Value: 50},
			models.Sample{Timestamp: ts, Metric: models.MetricThroughput, Value: 150 + 2*math.Cos(float64(i))},
			models.Sample{Timestamp: ts, Metric: models.MetricResponseTime, Value: rt},
		)
	}
	return out
}

type loaderStub struct {
	samples     []models.Sample
	settings    map[string]any
	samplesErr  error
	settingsErr error
	sampleCalls int
}

func (l *loaderStub) FetchSamples(context.Context, string, string, time.Time, time.Time) ([]models.Sample, error) {
	l.sampleCalls++
	return l.samples, l.samplesErr
}

func (l *loaderStub) FetchSettings(context.Context, string, string) (map[string]any, error) {
	return l.settings, l.settingsErr
}

func TestAnalyzeInlineSamplesUsesResultCache(t *testing.T) {
	service := NewAnalysisService(nil, nil, engine.New(nil), cache.NewMemoryProvider(), time.Minute, nil)
	req := models.AnalysisRequest{RunID: "run-1", Samples: runSamples()}

	first, err := service.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if first.Cached {
		t.Fatalf("first analysis should not be cached")
	}
	if len(first.Events) == 0 {
		t.Fatalf("expected the response time jump to produce an event")
	}

	second, err := service.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("analyze again: %v", err)
	}
	if !second.Cached {
		t.Fatalf("expected cached result on repeat")
	}
	if len(second.Events) != len(first.Events) || second.Events[0].Message != first.Events[0].Message {
		t.Fatalf("cached result differs: %+v vs %+v", second.Events, first.Events)
	}
}

func TestAnalyzeSettingsChangeMissesCache(t *testing.T) {
	service := NewAnalysisService(nil, nil, engine.New(nil), cache.NewMemoryProvider(), time.Minute, nil)
	req := models.AnalysisRequest{RunID: "run-1", Samples: runSamples()}
	if _, err := service.Analyze(context.Background(), req); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	req.Settings = map[string]any{"zscore_threshold": 4.0}
	resp, err := service.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.Cached {
		t.Fatalf("different settings must not hit the cache")
	}
}

func TestAnalyzeFetchesFromLoader(t *testing.T) {
	loader := &loaderStub{samples: runSamples(), settingsErr: errors.New("settings down")}
	service := NewAnalysisService(nil, loader, engine.New(nil), nil, 0, map[string]any{"max_events": 1})

	resp, err := service.Analyze(context.Background(), models.AnalysisRequest{TenantID: "t", ProjectID: "p", RunID: "run-2"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if loader.sampleCalls != 1 {
		t.Fatalf("expected one sample fetch, got %d", loader.sampleCalls)
	}
	if len(resp.Events) > 1 {
		t.Fatalf("deployment default max_events not applied: %d events", len(resp.Events))
	}
}

func TestMergeSettingsLayering(t *testing.T) {
	got := mergeSettings(
		map[string]any{"top_k": 5, "max_events": 10},
		map[string]any{"top_k": 3},
		map[string]any{"max_events": 2},
	)
	if got["top_k"] != 3 || got["max_events"] != 2 {
		t.Fatalf("unexpected merge: %v", got)
	}
}

func TestAnalyzeRunStatusCodes(t *testing.T) {
	ctx := context.Background()
	newReq := func(fields map[string]any) *structpb.Struct {
		s, err := structpb.NewStruct(fields)
		if err != nil {
			t.Fatalf("build struct: %v", err)
		}
		return s
	}

	failing := NewAnalysisService(nil, &loaderStub{samplesErr: errors.New("connection refused")}, engine.New(nil), nil, 0, nil)
	_, err := failing.AnalyzeRun(ctx, newReq(map[string]any{"tenant_id": "t", "run_id": "r"}))
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}

	missing := NewAnalysisService(nil, &loaderStub{samplesErr: utils.NewStatusError("loader.post", "unexpected response", http.StatusNotFound, nil)}, engine.New(nil), nil, 0, nil)
	_, err = missing.AnalyzeRun(ctx, newReq(map[string]any{"tenant_id": "t", "run_id": "gone"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound for an unknown run, got %v", err)
	}

	empty := NewAnalysisService(nil, &loaderStub{}, engine.New(nil), nil, 0, nil)
	_, err = empty.AnalyzeRun(ctx, newReq(map[string]any{"tenant_id": "t", "run_id": "r"}))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition for insufficient data, got %v", err)
	}

	_, err = empty.AnalyzeRun(ctx, newReq(map[string]any{"tenant_id": "t"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	noLoader := NewAnalysisService(nil, nil, engine.New(nil), nil, 0, nil)
	_, err = noLoader.AnalyzeRun(ctx, newReq(map[string]any{"tenant_id": "t", "run_id": "r"}))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition without loader, got %v", err)
	}
}

func TestAnalyzeRunEncodesResponse(t *testing.T) {
	service := NewAnalysisService(nil, &loaderStub{samples: runSamples()}, engine.New(nil), nil, 0, nil)
	req, err := structpb.NewStruct(map[string]any{"tenant_id": "t", "run_id": "run-3"})
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	out, err := service.AnalyzeRun(context.Background(), req)
	if err != nil {
		t.Fatalf("AnalyzeRun: %v", err)
	}
	resp, err := api.DecodeAnalysisResponse(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID != "run-3" || len(resp.Events) == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHealthCheck(t *testing.T) {
	service := NewAnalysisService(nil, nil, engine.New(nil), nil, 0, nil)
	out, err := service.HealthCheck(context.Background(), nil)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if out.GetFields()["status"].GetStringValue() != "SERVING" {
		t.Fatalf("unexpected health: %v", out)
	}
	if out.GetFields()["analyses"].GetNumberValue() != 0 {
		t.Fatalf("fresh service should report no analyses: %v", out)
	}
}
