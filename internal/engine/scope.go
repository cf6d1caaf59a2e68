package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/detectors"
	"github.com/miradorstack/mirador-perf/internal/metrics"
	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/windows"
)

// scopeResult is the detection output for one scope before scoring.
type scopeResult struct {
	scope   string
	windows map[string][]models.AnomalyWindow
	all     []models.AnomalyWindow
	events  []models.MergedEvent
	skipped []models.SkipNote
}

func (r *scopeResult) setVolume(v models.Volume) {
	for i := range r.events {
		r.events[i].Volume = v
	}
}

// analyseScope runs detection, extraction and merging for every configured
// metric of one scope. A panic anywhere in the scope drops the scope only.
func (e *Engine) analyseScope(logger *slog.Logger, scope string, frame models.Frame, seg models.Segmentation, s *config.Settings) (sr scopeResult) {
	sr = scopeResult{scope: scope, windows: map[string][]models.AnomalyWindow{}}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scope analysis failed", slog.String("scope", scope), slog.Any("panic", r))
			sr = scopeResult{
				scope:   scope,
				windows: map[string][]models.AnomalyWindow{},
				skipped: []models.SkipNote{{Scope: scope, Reason: fmt.Sprintf("analysis panic: %v", r)}},
			}
		}
	}()

	var step time.Duration
	for _, metric := range s.DetectMetrics {
		pts := seg.Analysed(frame.Points(metric))
		if len(pts) == 0 {
			sr.skipped = append(sr.skipped, models.SkipNote{Scope: scope, Metric: metric, Reason: "series missing or empty"})
			continue
		}
		ws, notes := e.analyseMetric(logger, scope, frame, metric, pts, seg, s)
		sr.skipped = append(sr.skipped, notes...)
		if len(ws) > 0 {
			sr.windows[metric] = ws
			sr.all = append(sr.all, ws...)
		}
		if iv := models.SamplingInterval(pts); iv > 0 && (step == 0 || iv < step) {
			step = iv
		}
	}
	sr.events = windows.Merge(scope, sr.all, step)
	return sr
}

// analyseMetric runs the detectors over one series and extracts its windows.
func (e *Engine) analyseMetric(logger *slog.Logger, scope string, frame models.Frame, metric string, pts []models.Point, seg models.Segmentation, s *config.Settings) (ws []models.AnomalyWindow, notes []models.SkipNote) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("metric analysis failed", slog.String("scope", scope), slog.String("metric", metric), slog.Any("panic", r))
			ws = nil
			notes = append(notes, models.SkipNote{Scope: scope, Metric: metric, Reason: fmt.Sprintf("analysis panic: %v", r)})
		}
	}()

	values := models.Values(pts)
	in := detectors.Input{
		Metric:   metric,
		Values:   values,
		Baseline: detectors.ContextualBaseline(values, s),
		Loose:    seg.Loose(),
	}
	if s.IsolationEnabled {
		in.Companions = companions(frame, metric, pts, seg, s)
	}

	flags, failures := detectors.Run(e.detectors, in, s)
	for _, f := range failures {
		logger.Warn("detector skipped",
			slog.String("scope", scope),
			slog.String("metric", metric),
			slog.String("detector", f.Detector),
			slog.Any("error", f.Err))
		metrics.ObserveDetectorFailure(f.Detector)
		notes = append(notes, models.SkipNote{Scope: scope, Metric: metric, Detector: f.Detector, Reason: f.Err.Error()})
	}
	return windows.Extract(pts, flags, in.Baseline, windows.OptionsFor(scope, metric, s)), notes
}

// companions aligns the configured feature metrics with pts by timestamp. A
// feature missing any of pts' timestamps is left out.
func companions(frame models.Frame, metric string, pts []models.Point, seg models.Segmentation, s *config.Settings) map[string][]float64 {
	out := make(map[string][]float64)
	for _, name := range s.IsolationFeatures {
		if name == metric {
			continue
		}
		other := seg.Analysed(frame.Points(name))
		if len(other) < len(pts) {
			continue
		}
		byTime := make(map[int64]float64, len(other))
		for _, p := range other {
			byTime[p.Timestamp.UnixNano()] = p.Value
		}
		aligned := make([]float64, len(pts))
		complete := true
		for i, p := range pts {
			v, ok := byTime[p.Timestamp.UnixNano()]
			if !ok {
				complete = false
				break
			}
			aligned[i] = v
		}
		if complete {
			out[name] = aligned
		}
	}
	return out
}
