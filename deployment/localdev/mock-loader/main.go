// Command mock-loader serves a synthetic load-test run and project settings on
// the paths the analysis service's loader client expects.
package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"
)

type sample struct {
	Timestamp time.Time `json:"timestamp"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Scope     string    `json:"scope"`
}

type samplesRequest struct {
	TenantID string `json:"tenant_id"`
	RunID    string `json:"run_id"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("component", "loader-mock"))
	runStart := time.Now().Add(-30 * time.Minute).Truncate(10 * time.Second)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           logRequests(logger, newMux(runStart)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newMux(runStart time.Time) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/runs/samples", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req samplesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RunID == "" {
			http.Error(w, "run_id is required", http.StatusBadRequest)
			return
		}
		if req.RunID == "empty" {
			writeJSON(w, map[string]any{"samples": []sample{}})
			return
		}
		writeJSON(w, map[string]any{"samples": syntheticRun(runStart)})
	})

	mux.HandleFunc("/api/v1/projects/settings", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"settings": map[string]any{
				"tx_selection_policy": "top_k",
				"tx_top_k":            3,
				"max_events":          20,
			},
		})
	})
	return mux
}

// syntheticRun is 25 minutes at 10s resolution: a five minute ramp to 100
// users, then fixed load with a one minute latency incident at minute 15 that
// the checkout transaction shares.
func syntheticRun(start time.Time) []sample {
	var out []sample
	add := func(scope, metric string, i int, v float64) {
		out = append(out, sample{Timestamp: start.Add(time.Duration(i) * 10 * time.Second), Metric: metric, Value: v, Scope: scope})
	}
	for i := 0; i < 150; i++ {
		users := 100.0
		tput := 200 + 3*math.Sin(float64(i)/3)
		if i < 30 {
			users = 10 + 90*float64(i)/30
			tput = 2 * users
		}
		rt := 200 + 3*math.Sin(float64(i)*1.3)
		errRate := 0.5 + 0.05*math.Cos(float64(i))
		if i >= 90 && i < 96 {
			rt = 450
			errRate = 4
		}
		add("overall", "users", i, users)
		add("overall", "throughput", i, tput)
		add("overall", "response_time", i, rt)
		add("overall", "error_rate", i, errRate)

		add("checkout", "throughput", i, tput*0.4)
		add("checkout", "response_time", i, rt*1.5)
		add("search", "throughput", i, tput*0.35)
		add("search", "response_time", i, 120+2*math.Sin(float64(i)))
		add("login", "throughput", i, 0.2)
		add("login", "response_time", i, 300)
	}
	return out
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
