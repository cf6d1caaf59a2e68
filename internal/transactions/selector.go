// Package transactions picks the bounded, high-traffic subset of transactions
// that receive per-transaction analysis.
package transactions

import (
	"log/slog"
	"sort"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/stats"
)

// Selector applies the traffic floors and the selection policy.
type Selector struct {
	logger *slog.Logger
}

// NewSelector constructs a Selector.
func NewSelector(logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{logger: logger}
}

// Selection is the outcome of Select.
type Selection struct {
	Kept     []models.TransactionCandidate
	Excluded []models.TransactionCandidate
}

// Select measures every transaction over the fixed-load samples and keeps those
// passing the mean-RPS and sample-count floors, ordered by share and cut by the
// configured policy. Failing a floor is not an error.
func (sel *Selector) Select(frames []models.Frame, overallThroughput []models.Point, seg models.Segmentation, s *config.Settings) Selection {
	candidates := make([]models.TransactionCandidate, 0, len(frames))
	for _, f := range frames {
		pts := seg.Analysed(f.Points(s.ThroughputMetric))
		c := models.TransactionCandidate{Name: f.Scope, SampleCount: len(pts)}
		if len(pts) > 0 {
			c.MeanRPS, _ = stats.MeanStd(models.Values(pts))
		}
		candidates = append(candidates, c)
	}
	assignShares(candidates, seg.Analysed(overallThroughput))

	var out Selection
	eligible := make([]models.TransactionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.MeanRPS < s.TxMinMeanRPS || c.SampleCount < s.TxMinSamples || c.MeanRPS <= 0 {
			sel.logger.Debug("transaction below traffic floor",
				slog.String("transaction", c.Name),
				slog.Float64("mean_rps", c.MeanRPS),
				slog.Int("samples", c.SampleCount))
			out.Excluded = append(out.Excluded, c)
			continue
		}
		eligible = append(eligible, c)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].VolumeShare != eligible[j].VolumeShare {
			return eligible[i].VolumeShare > eligible[j].VolumeShare
		}
		return eligible[i].Name < eligible[j].Name
	})

	keep := cut(eligible, s)
	out.Kept = eligible[:keep]
	out.Excluded = append(out.Excluded, eligible[keep:]...)
	return out
}

func cut(sorted []models.TransactionCandidate, s *config.Settings) int {
	switch s.TxSelectionPolicy {
	case config.PolicyCoverage:
		cumulative := 0.0
		for i, c := range sorted {
			cumulative += c.VolumeShare
			if cumulative >= s.TxCoverage-stats.Epsilon {
				return i + 1
			}
		}
		return len(sorted)
	default:
		return min(s.TxTopK, len(sorted))
	}
}

// assignShares divides each transaction's mean RPS by the overall mean
// throughput, or by the transactions' combined RPS when no overall throughput is
// available.
func assignShares(candidates []models.TransactionCandidate, overall []models.Point) {
	total := 0.0
	if len(overall) > 0 {
		total, _ = stats.MeanStd(models.Values(overall))
	}
	if total <= stats.Epsilon {
		total = 0
		for _, c := range candidates {
			total += c.MeanRPS
		}
	}
	if total <= stats.Epsilon {
		return
	}
	for i := range candidates {
		share := candidates[i].MeanRPS / total
		if share > 1 {
			share = 1
		}
		if share < 0 {
			share = 0
		}
		candidates[i].VolumeShare = share
	}
}
