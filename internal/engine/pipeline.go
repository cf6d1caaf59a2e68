// Package engine runs one load-test analysis end to end: segmentation, detection,
// window extraction and merging per scope, transaction selection, scoring and
// event assembly.
package engine

import (
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/detectors"
	"github.com/miradorstack/mirador-perf/internal/metrics"
	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/scoring"
	"github.com/miradorstack/mirador-perf/internal/segmentation"
	"github.com/miradorstack/mirador-perf/internal/stats"
	"github.com/miradorstack/mirador-perf/internal/transactions"
)

// ErrInsufficientData is returned when the overall sample set is absent or holds
// no usable series. It is distinct from a run with no anomalies.
var ErrInsufficientData = errors.New("insufficient data: overall sample set is empty")

// Scope kinds used for metrics labels.
const (
	scopeKindOverall     = "overall"
	scopeKindTransaction = "transaction"
)

// Engine orchestrates an analysis run. It holds no per-run state, so one Engine
// may serve concurrent runs.
type Engine struct {
	logger      *slog.Logger
	detectors   []detectors.Detector
	rulesEngine *RuleEngine
	causality   *CausalityEngine
	selector    *transactions.Selector
	parallelism int
}

// Option customises an Engine.
type Option func(*Engine)

// WithParallelism fans per-transaction analysis out over at most n goroutines.
// n <= 1 keeps the run sequential. Output is identical either way.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 1 {
			e.parallelism = n
		}
	}
}

// WithDetectors replaces the default detector set.
func WithDetectors(d ...detectors.Detector) Option {
	return func(e *Engine) {
		if len(d) > 0 {
			e.detectors = d
		}
	}
}

// WithRules attaches a recommendation rule engine to event assembly.
func WithRules(r *RuleEngine) Option {
	return func(e *Engine) { e.rulesEngine = r }
}

// New constructs an Engine.
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:      logger,
		detectors:   detectors.Defaults(),
		causality:   NewCausalityEngine(logger),
		selector:    transactions.NewSelector(logger),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze resolves raw settings and runs the analysis.
func (e *Engine) Analyze(input models.RunInput, raw map[string]any) (models.Result, error) {
	if unknown := config.UnknownKeys(raw); len(unknown) > 0 {
		e.logger.Debug("ignoring unknown analysis settings", slog.Any("keys", unknown))
	}
	return e.AnalyzeWithSettings(input, config.ResolveSettings(raw, e.logger))
}

// AnalyzeWithSettings runs the analysis with already resolved settings. s is
// only read.
func (e *Engine) AnalyzeWithSettings(input models.RunInput, s *config.Settings) (models.Result, error) {
	started := time.Now()
	if s == nil {
		d := config.DefaultSettings()
		s = &d
	}
	logger := e.logger.With(slog.String("run_id", input.RunID))

	if !usable(input.Overall, s) {
		metrics.ObserveAnalysis(time.Since(started), metrics.OutcomeInsufficient)
		return models.Result{RunID: input.RunID}, ErrInsufficientData
	}

	base := input.Overall.Points(s.BaseMetric)
	throughput := input.Overall.Points(s.ThroughputMetric)
	var skipped []models.SkipNote
	if len(base) == 0 {
		skipped = append(skipped, models.SkipNote{Scope: models.ScopeOverall, Metric: s.BaseMetric, Reason: "base metric missing, treating run as fixed load"})
	}
	seg := segmentation.NewSegmenter(logger, s).Split(base, throughput)

	overall := e.analyseScope(logger, models.ScopeOverall, input.Overall, seg, s)
	overallRPS := 0.0
	if pts := seg.Analysed(throughput); len(pts) > 0 {
		overallRPS, _ = stats.MeanStd(models.Values(pts))
	}
	overall.setVolume(models.Volume{MeanRPS: overallRPS, Share: 1})

	selection := e.selector.Select(input.Transactions, throughput, seg, s)
	metrics.ObserveExcludedTransactions(len(selection.Excluded))
	perTx := e.analyseTransactions(logger, input.Transactions, selection.Kept, seg, s)

	result := models.Result{
		RunID:        input.RunID,
		Segmentation: seg,
		Windows:      map[string]map[string][]models.AnomalyWindow{models.ScopeOverall: overall.windows},
		Merged:       map[string][]models.MergedEvent{},
		Transactions: selection.Kept,
	}

	scorer := scoring.NewScorer(s)
	pooled := make([]models.MergedEvent, 0)
	for _, sr := range append([]scopeResult{overall}, perTx...) {
		scored := e.annotate(scorer.Score(sr.events), sr.all)
		if sr.scope != models.ScopeOverall {
			result.Windows[sr.scope] = sr.windows
		}
		result.Merged[sr.scope] = scored
		pooled = append(pooled, scored...)
		skipped = append(skipped, sr.skipped...)
	}
	result.Ranked = scoring.Rank(pooled)
	result.Events = e.Assemble(result.Ranked, s.MaxEvents)
	result.Skipped = skipped

	for _, ev := range result.Events {
		metrics.ObserveEvents(scopeKind(ev.Meta.Scope), 1)
	}
	metrics.ObserveAnalysis(time.Since(started), metrics.OutcomeSuccess)
	logger.Info("analysis complete",
		slog.String("mode", string(seg.Mode)),
		slog.Int("transactions", len(selection.Kept)),
		slog.Int("events", len(result.Ranked)),
		slog.Int("skipped", len(skipped)),
		slog.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (e *Engine) analyseTransactions(logger *slog.Logger, frames []models.Frame, kept []models.TransactionCandidate, seg models.Segmentation, s *config.Settings) []scopeResult {
	byName := make(map[string]models.Frame, len(frames))
	for _, f := range frames {
		byName[f.Scope] = f
	}

	results := make([]scopeResult, len(kept))
	run := func(i int) {
		c := kept[i]
		sr := e.analyseScope(logger, c.Name, byName[c.Name], seg, s)
		sr.setVolume(models.Volume{MeanRPS: c.MeanRPS, Share: c.VolumeShare})
		results[i] = sr
	}

	if e.parallelism <= 1 || len(kept) < 2 {
		for i := range kept {
			run(i)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i := range kept {
		i := i
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// annotate adds onset ordering to each event of one scope.
func (e *Engine) annotate(events []models.MergedEvent, all []models.AnomalyWindow) []models.MergedEvent {
	for i := range events {
		res := e.causality.Evaluate(events[i], all)
		events[i].LeadMetric = res.Lead
		events[i].LeadConfidence = res.Score
		events[i].Notes = res.Notes
	}
	return events
}

// usable reports whether the overall frame holds at least one series the run can
// analyse.
func usable(f models.Frame, s *config.Settings) bool {
	if f.Empty() {
		return false
	}
	for _, m := range s.DetectMetrics {
		if len(f.Points(m)) > 0 {
			return true
		}
	}
	return false
}

func scopeKind(scope string) string {
	if scope == models.ScopeOverall {
		return scopeKindOverall
	}
	return scopeKindTransaction
}
