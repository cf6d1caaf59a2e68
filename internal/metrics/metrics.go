package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels analyses that produced a result, including empty ones.
	OutcomeSuccess = "success"
	// OutcomeInsufficient labels runs rejected for lack of overall samples.
	OutcomeInsufficient = "insufficient_data"
	// OutcomeError labels failed analyses (collaborator or transport issues).
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_perf",
			Name:      "analyses_total",
			Help:      "Total number of load-test analyses handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_perf",
			Name:      "analysis_seconds",
			Help:      "Analysis latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_perf",
			Name:      "events_total",
			Help:      "Anomaly events emitted, partitioned by scope kind.",
		},
		[]string{"scope_kind"},
	)

	detectorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_perf",
			Name:      "detector_failures_total",
			Help:      "Detector runs skipped on malformed input or numerical failure.",
		},
		[]string{"detector"},
	)

	transactionsExcludedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mirador_perf",
			Name:      "transactions_excluded_total",
			Help:      "Transactions left out of per-transaction analysis by floors or policy.",
		},
	)
)

// Register attaches mirador-perf collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		eventsTotal,
		detectorFailuresTotal,
		transactionsExcludedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	label := outcome
	switch label {
	case OutcomeError, OutcomeInsufficient:
	default:
		label = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveEvents counts emitted events; scopeKind is "overall" or "transaction".
func ObserveEvents(scopeKind string, n int) {
	if n <= 0 {
		return
	}
	eventsTotal.WithLabelValues(scopeKind).Add(float64(n))
}

// ObserveDetectorFailure counts one skipped detector run.
func ObserveDetectorFailure(detector string) {
	detectorFailuresTotal.WithLabelValues(detector).Inc()
}

// ObserveExcludedTransactions counts transactions left out of analysis.
func ObserveExcludedTransactions(n int) {
	if n <= 0 {
		return
	}
	transactionsExcludedTotal.Add(float64(n))
}
