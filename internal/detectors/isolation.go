package detectors

import (
	"math"
	"math/rand"
	"sort"

	"github.com/miradorstack/mirador-perf/internal/config"
	"github.com/miradorstack/mirador-perf/internal/stats"
)

// minIsolationSamples is the smallest training set the forest accepts.
const minIsolationSamples = 8

// isolationScoreFloor is the score under which a sample is never an outlier;
// 0.5 means "indistinguishable from the bulk".
const isolationScoreFloor = 0.6

// IsolationForest is a multivariate outlier detector trained on the run's own
// samples. Features per sample are the metric value, its first difference and
// the configured companion metrics, each standardised.
type IsolationForest struct{}

// Name implements Detector.
func (IsolationForest) Name() string { return "isolation_forest" }

// Enabled implements Detector.
func (IsolationForest) Enabled(s *config.Settings) bool { return s.IsolationEnabled }

// Detect implements Detector. The forest is seeded from settings so identical
// input always yields identical flags.
func (IsolationForest) Detect(in Input, s *config.Settings) ([]bool, error) {
	n := len(in.Values)
	if n < minIsolationSamples {
		return nil, stats.ErrDegenerate
	}

	points := buildFeatures(in, s.IsolationFeatures)
	forest := newForest(s.IsolationTrees, s.IsolationSampleSize, s.IsolationSeed)
	forest.fit(points)

	scores := make([]float64, n)
	for i, p := range points {
		scores[i] = forest.score(p)
	}

	offset := stats.Quantile(1-s.IsolationContamination, scores)
	flags := make([]bool, n)
	for i, score := range scores {
		if score <= isolationScoreFloor {
			continue
		}
		if score-offset >= s.IsolationScoreThreshold {
			flags[i] = true
		}
	}
	return flags, nil
}

func buildFeatures(in Input, companions []string) [][]float64 {
	n := len(in.Values)
	columns := [][]float64{in.Values, firstDifference(in.Values)}
	names := make([]string, 0, len(companions))
	for _, name := range companions {
		if name == in.Metric {
			continue
		}
		col, ok := in.Companions[name]
		if !ok || len(col) != n || stats.Validate(col) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		columns = append(columns, in.Companions[name])
	}

	for c := range columns {
		columns[c] = standardise(columns[c])
	}
	points := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(columns))
		for c := range columns {
			row[c] = columns[c][i]
		}
		points[i] = row
	}
	return points
}

func firstDifference(values []float64) []float64 {
	out := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}

func standardise(values []float64) []float64 {
	mean, std := stats.MeanStd(values)
	out := make([]float64, len(values))
	if std < stats.Epsilon {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}

// isolationTree is a single random partitioning tree.
type isolationTree struct {
	splitFeature int
	splitValue   float64
	left         *isolationTree
	right        *isolationTree
	size         int
	isLeaf       bool
}

type forest struct {
	trees         []*isolationTree
	numTrees      int
	subSampleSize int
	maxDepth      int
	rng           *rand.Rand
}

func newForest(numTrees, subSampleSize int, seed int64) *forest {
	return &forest{
		trees:         make([]*isolationTree, 0, numTrees),
		numTrees:      numTrees,
		subSampleSize: subSampleSize,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

func (f *forest) fit(data [][]float64) {
	if f.subSampleSize > len(data) {
		f.subSampleSize = len(data)
	}
	f.maxDepth = int(math.Ceil(math.Log2(float64(f.subSampleSize))))
	for i := 0; i < f.numTrees; i++ {
		f.trees = append(f.trees, f.buildTree(f.sample(data), 0))
	}
}

// score returns 2^(-E[h(x)]/c(n)); values near 1 are outliers, ~0.5 normal.
func (f *forest) score(point []float64) float64 {
	if len(f.trees) == 0 {
		return 0.5
	}
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, point, 0)
	}
	avg := total / float64(len(f.trees))
	c := averagePathLength(f.subSampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -avg/c)
}

// sample draws subSampleSize rows with a partial Fisher-Yates shuffle.
func (f *forest) sample(data [][]float64) [][]float64 {
	shuffled := make([][]float64, len(data))
	copy(shuffled, data)
	for i := 0; i < f.subSampleSize; i++ {
		j := i + f.rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:f.subSampleSize]
}

func (f *forest) buildTree(data [][]float64, depth int) *isolationTree {
	if len(data) <= 1 || depth >= f.maxDepth || allIdentical(data) {
		return &isolationTree{size: len(data), isLeaf: true}
	}

	feature := f.rng.Intn(len(data[0]))
	lo, hi := featureRange(data, feature)
	if hi-lo < stats.Epsilon {
		return &isolationTree{size: len(data), isLeaf: true}
	}
	split := lo + f.rng.Float64()*(hi-lo)

	left := make([][]float64, 0, len(data))
	right := make([][]float64, 0, len(data))
	for _, p := range data {
		if p[feature] < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isolationTree{size: len(data), isLeaf: true}
	}

	return &isolationTree{
		splitFeature: feature,
		splitValue:   split,
		left:         f.buildTree(left, depth+1),
		right:        f.buildTree(right, depth+1),
		size:         len(data),
	}
}

func pathLength(tree *isolationTree, point []float64, depth int) float64 {
	if tree.isLeaf {
		return float64(depth) + averagePathLength(tree.size)
	}
	if point[tree.splitFeature] < tree.splitValue {
		return pathLength(tree.left, point, depth+1)
	}
	return pathLength(tree.right, point, depth+1)
}

// averagePathLength is c(n), the mean unsuccessful-search depth in a BST.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	harmonic := math.Log(float64(n-1)) + 0.5772156649
	return 2*harmonic - 2*float64(n-1)/float64(n)
}

func allIdentical(data [][]float64) bool {
	first := data[0]
	for _, p := range data[1:] {
		for j := range first {
			if math.Abs(p[j]-first[j]) > 1e-10 {
				return false
			}
		}
	}
	return true
}

func featureRange(data [][]float64, feature int) (float64, float64) {
	lo, hi := data[0][feature], data[0][feature]
	for _, p := range data[1:] {
		v := p[feature]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
