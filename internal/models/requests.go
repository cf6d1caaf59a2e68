package models

// AnalysisRequest asks for one run to be analysed. Inline samples or settings
// bypass the loader and settings collaborators.
type AnalysisRequest struct {
	TenantID  string         `json:"tenant_id"`
	ProjectID string         `json:"project_id"`
	RunID     string         `json:"run_id"`
	TimeRange TimeRange      `json:"time_range"`
	Samples   []Sample       `json:"samples,omitempty"`
	Settings  map[string]any `json:"settings,omitempty"`
}

// AnalysisResponse is the service-level result of an analysis.
type AnalysisResponse struct {
	Result
	Cached bool `json:"cached"`
}
