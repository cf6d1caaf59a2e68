package api

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/utils"
)

// analyzeRunRequest is the JSON shape carried by an AnalyzeRun request Struct.
type analyzeRunRequest struct {
	TenantID  string          `json:"tenant_id"`
	ProjectID string          `json:"project_id"`
	RunID     string          `json:"run_id"`
	Start     string          `json:"start"`
	End       string          `json:"end"`
	Samples   []models.Sample `json:"samples"`
	Settings  map[string]any  `json:"settings"`
}

// DecodeAnalyzeRequest maps the gRPC request into a domain AnalysisRequest.
func DecodeAnalyzeRequest(req *structpb.Struct) (models.AnalysisRequest, error) {
	if req == nil {
		return models.AnalysisRequest{}, fmt.Errorf("request is nil")
	}
	data, err := json.Marshal(req.AsMap())
	if err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("encode request: %w", err)
	}
	var wire analyzeRunRequest
	if err := json.Unmarshal(data, &wire); err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("decode request: %w", err)
	}
	if wire.RunID == "" {
		return models.AnalysisRequest{}, fmt.Errorf("run_id is required")
	}
	if wire.TenantID == "" && len(wire.Samples) == 0 {
		return models.AnalysisRequest{}, fmt.Errorf("tenant_id is required unless samples are inline")
	}

	var tr models.TimeRange
	if wire.Start != "" {
		if tr.Start, err = utils.ParseRFC3339(wire.Start); err != nil {
			return models.AnalysisRequest{}, fmt.Errorf("start: %w", err)
		}
	}
	if wire.End != "" {
		if tr.End, err = utils.ParseRFC3339(wire.End); err != nil {
			return models.AnalysisRequest{}, fmt.Errorf("end: %w", err)
		}
	}
	if !tr.Start.IsZero() && !tr.End.IsZero() && !tr.End.After(tr.Start) {
		return models.AnalysisRequest{}, fmt.Errorf("end must be after start")
	}

	return models.AnalysisRequest{
		TenantID:  wire.TenantID,
		ProjectID: wire.ProjectID,
		RunID:     wire.RunID,
		TimeRange: tr,
		Samples:   wire.Samples,
		Settings:  wire.Settings,
	}, nil
}

// EncodeAnalyzeRequest is the client-side inverse of DecodeAnalyzeRequest.
func EncodeAnalyzeRequest(req models.AnalysisRequest) (*structpb.Struct, error) {
	wire := analyzeRunRequest{
		TenantID:  req.TenantID,
		ProjectID: req.ProjectID,
		RunID:     req.RunID,
		Samples:   req.Samples,
		Settings:  req.Settings,
	}
	if !req.TimeRange.Start.IsZero() {
		wire.Start = req.TimeRange.Start.UTC().Format(time.RFC3339)
	}
	if !req.TimeRange.End.IsZero() {
		wire.End = req.TimeRange.End.UTC().Format(time.RFC3339)
	}
	return toStruct(wire)
}

// EncodeAnalysisResponse converts a domain response into its Struct form.
func EncodeAnalysisResponse(resp models.AnalysisResponse) (*structpb.Struct, error) {
	return toStruct(resp)
}

// DecodeAnalysisResponse parses a response Struct back into the domain type.
func DecodeAnalysisResponse(s *structpb.Struct) (models.AnalysisResponse, error) {
	var resp models.AnalysisResponse
	if s == nil {
		return resp, fmt.Errorf("response is nil")
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return resp, fmt.Errorf("encode response: %w", err)
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return structpb.NewStruct(m)
}
