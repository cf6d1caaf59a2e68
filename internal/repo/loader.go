package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-perf/internal/cache"
	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/utils"
)

// LoaderClient pulls normalised run samples from the data-loading collaborator
// and per-project analysis settings from the settings collaborator.
type LoaderClient struct {
	baseURL      string
	samplesPath  string
	settingsPath string
	httpClient   *http.Client
	cache        cache.Provider
	settingsTTL  time.Duration
	logger       *slog.Logger
}

// NewLoaderClient constructs a client targeting the configured loader instance.
// A nil cache disables settings caching.
func NewLoaderClient(baseURL, samplesPath, settingsPath string, timeout time.Duration, cacheProvider cache.Provider, settingsTTL time.Duration) *LoaderClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &LoaderClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		samplesPath:  samplesPath,
		settingsPath: settingsPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:       cacheProvider,
		settingsTTL: settingsTTL,
		logger:      slog.Default().With(slog.String("component", "loader-client")),
	}
}

// FetchSamples returns every sample of a run within [start, end]. An empty
// result is not an error here; the engine reports it as insufficient data.
func (c *LoaderClient) FetchSamples(ctx context.Context, tenantID, runID string, start, end time.Time) ([]models.Sample, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"tenant_id": tenantID,
		"run_id":    runID,
	}
	if !start.IsZero() {
		payload["start"] = start.Format(time.RFC3339)
	}
	if !end.IsZero() {
		payload["end"] = end.Format(time.RFC3339)
	}

	var response struct {
		Samples []models.Sample `json:"samples"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.samplesPath), payload, &response); err != nil {
		return nil, utils.NewAppError("loader.FetchSamples", "samples request failed", err)
	}
	c.logger.Debug("samples fetched", slog.String("run_id", runID), slog.Int("samples", len(response.Samples)))
	return response.Samples, nil
}

// FetchSettings returns the project's analysis settings dictionary. Responses are
// cached per tenant and project.
func (c *LoaderClient) FetchSettings(ctx context.Context, tenantID, projectID string) (map[string]any, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	key := settingsCacheKey(tenantID, projectID)
	var cached map[string]any
	switch err := cache.GetJSON(ctx, c.cache, key, &cached); {
	case err == nil:
		return cached, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn("settings cache read failed", slog.Any("error", err))
	}

	payload := map[string]any{
		"tenant_id":  tenantID,
		"project_id": projectID,
	}
	var response struct {
		Settings map[string]any `json:"settings"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.settingsPath), payload, &response); err != nil {
		return nil, utils.NewAppError("loader.FetchSettings", "settings request failed", err)
	}
	if response.Settings == nil {
		response.Settings = map[string]any{}
	}

	if err := cache.SetJSON(ctx, c.cache, key, response.Settings, c.settingsTTL); err != nil {
		c.logger.Warn("settings cache write failed", slog.Any("error", err))
	}
	return response.Settings, nil
}

func (c *LoaderClient) ready() error {
	if c == nil {
		return fmt.Errorf("loader client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("loader base URL not configured")
	}
	return nil
}

func settingsCacheKey(tenantID, projectID string) string {
	return cache.Key("settings", tenantID, projectID)
}

func (c *LoaderClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *LoaderClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return utils.NewStatusError("loader.post", "unexpected response", resp.StatusCode, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
