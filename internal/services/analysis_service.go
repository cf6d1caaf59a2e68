package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-perf/internal/api"
	"github.com/miradorstack/mirador-perf/internal/cache"
	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/engine"
	"github.com/miradorstack/mirador-perf/internal/metrics"
	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/utils"
)

// RunLoader fetches run samples and project settings from collaborators.
type RunLoader interface {
	FetchSamples(ctx context.Context, tenantID, runID string, start, end time.Time) ([]models.Sample, error)
	FetchSettings(ctx context.Context, tenantID, projectID string) (map[string]any, error)
}

// ErrUpstream marks failures of the loading collaborators.
var ErrUpstream = errors.New("run data unavailable")

// AnalysisService implements the gRPC PerfAnalysis service.
type AnalysisService struct {
	logger    *slog.Logger
	loader    RunLoader
	engine    *engine.Engine
	cache     cache.Provider
	resultTTL time.Duration
	defaults  map[string]any
	latencies *utils.LatencyTracker
}

// NewAnalysisService constructs the analysis service facade. defaults are the
// deployment-wide analysis settings; project and inline settings override them
// key by key. A nil cache disables result caching.
func NewAnalysisService(logger *slog.Logger, loader RunLoader, eng *engine.Engine, cacheProvider cache.Provider, resultTTL time.Duration, defaults map[string]any) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &AnalysisService{
		logger:    logger,
		loader:    loader,
		engine:    eng,
		cache:     cacheProvider,
		resultTTL: resultTTL,
		defaults:  defaults,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// AnalyzeRun decodes the request, runs the analysis and encodes the response.
func (s *AnalysisService) AnalyzeRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	domainReq, err := api.DecodeAnalyzeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resp, err := s.Analyze(ctx, domainReq)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := api.EncodeAnalysisResponse(resp)
	if err != nil {
		s.logger.Error("encode analysis response failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return out, nil
}

// Analyze runs one analysis, serving repeated identical requests from the
// result cache.
func (s *AnalysisService) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisResponse, error) {
	if s.engine == nil {
		return models.AnalysisResponse{}, status.Error(codes.FailedPrecondition, "engine not configured")
	}
	logger := s.logger.With(slog.String("run_id", req.RunID), slog.String("tenant_id", req.TenantID))
	started := time.Now()

	input, raw, err := s.load(ctx, logger, req)
	if err != nil {
		metrics.ObserveAnalysis(time.Since(started), metrics.OutcomeError)
		return models.AnalysisResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.AnalysisResponse{}, err
	}
	if unknown := config.UnknownKeys(raw); len(unknown) > 0 {
		logger.Debug("ignoring unknown analysis settings", slog.Any("keys", unknown))
	}
	settings := config.ResolveSettings(raw, logger)

	key, keyErr := resultKey(input, settings)
	if keyErr == nil {
		if cached, ok := s.cachedResult(ctx, logger, key); ok {
			return models.AnalysisResponse{Result: cached, Cached: true}, nil
		}
	}

	result, err := s.engine.AnalyzeWithSettings(input, settings)
	duration := time.Since(started)
	if err != nil {
		logger.Warn("analysis failed", slog.Any("error", err))
		return models.AnalysisResponse{}, err
	}
	s.observeLatency(duration)

	if keyErr == nil {
		if err := cache.SetJSON(ctx, s.cache, key, result, s.resultTTL); err != nil {
			logger.Warn("result cache write failed", slog.Any("error", err))
		}
	}
	logger.Info("analysis complete",
		slog.Int("events", len(result.Events)),
		slog.Int("transactions", len(result.Transactions)),
		slog.Duration("duration", duration))
	return models.AnalysisResponse{Result: result}, nil
}

// HealthCheck returns the current health state.
func (s *AnalysisService) HealthCheck(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	p := s.latencies.Percentiles(50, 95)
	return structpb.NewStruct(map[string]any{
		"status":         "SERVING",
		"analyses":       s.latencies.Total(),
		"latency_p50_ms": p[0].Milliseconds(),
		"latency_p95_ms": p[1].Milliseconds(),
	})
}

// LatencyP95 returns the current p95 analysis latency.
func (s *AnalysisService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *AnalysisService) load(ctx context.Context, logger *slog.Logger, req models.AnalysisRequest) (models.RunInput, map[string]any, error) {
	samples := req.Samples
	if len(samples) == 0 {
		if s.loader == nil {
			return models.RunInput{}, nil, status.Error(codes.FailedPrecondition, "loader not configured and no inline samples")
		}
		fetched, err := s.loader.FetchSamples(ctx, req.TenantID, req.RunID, req.TimeRange.Start, req.TimeRange.End)
		if err != nil {
			logger.Error("fetch samples failed", slog.Any("error", err))
			return models.RunInput{}, nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		samples = fetched
	}

	var project map[string]any
	if s.loader != nil && req.ProjectID != "" && req.Settings == nil {
		fetched, err := s.loader.FetchSettings(ctx, req.TenantID, req.ProjectID)
		if err != nil {
			logger.Warn("fetch settings failed, using defaults", slog.Any("error", err))
		} else {
			project = fetched
		}
	}
	return models.FramesFromSamples(req.RunID, samples), mergeSettings(s.defaults, project, req.Settings), nil
}

func (s *AnalysisService) cachedResult(ctx context.Context, logger *slog.Logger, key string) (models.Result, bool) {
	var result models.Result
	if err := cache.GetJSON(ctx, s.cache, key, &result); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("result cache read failed", slog.Any("error", err))
		}
		return models.Result{}, false
	}
	return result, true
}

func (s *AnalysisService) observeLatency(d time.Duration) {
	s.latencies.Observe(d)
	if total := s.latencies.Total(); total%20 == 0 {
		s.logger.Info("analysis latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("analyses", total))
	}
}

// mergeSettings overlays settings dictionaries; later layers win per key.
func mergeSettings(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

func resultKey(input models.RunInput, settings *config.Settings) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(settings.Fingerprint()))
	return cache.Key("result", hex.EncodeToString(h.Sum(nil))), nil
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, engine.ErrInsufficientData):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrUpstream) && utils.StatusOf(err) == http.StatusNotFound:
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrUpstream):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, fmt.Sprintf("analysis failed: %v", err))
	}
}
