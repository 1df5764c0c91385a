package ml

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
)

// ForestConfig holds random forest hyperparameters
type ForestConfig struct {
	NumTrees        int    // Number of bootstrapped trees
	Seed            uint64 // Makes fits reproducible
	MinSamplesSplit int    // Nodes smaller than this become leaves
	MinSamplesLeaf  int    // Minimum samples on each side of a split
	MaxDepth        int    // 0 grows trees until leaves are pure
}

// DefaultForestConfig returns default configuration
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NumTrees:        100,
		Seed:            42,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxDepth:        0,
	}
}

// RandomForest is a bagged ensemble of CART regression trees
type RandomForest struct {
	Config      ForestConfig     `json:"config"`
	NumFeatures int              `json:"num_features"`
	Trees       []regressionTree `json:"trees"`
}

// regressionTree stores nodes in a flat slice; node 0 is the root
type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

type treeNode struct {
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// NewRandomForest creates an unfitted forest
func NewRandomForest(config ForestConfig) *RandomForest {
	if config.NumTrees <= 0 {
		config.NumTrees = 1
	}
	if config.MinSamplesSplit < 2 {
		config.MinSamplesSplit = 2
	}
	if config.MinSamplesLeaf < 1 {
		config.MinSamplesLeaf = 1
	}
	return &RandomForest{Config: config}
}

// Fitted reports whether the forest holds trees
func (f *RandomForest) Fitted() bool {
	return f != nil && len(f.Trees) > 0 && f.NumFeatures > 0
}

// Fit grows every tree on a bootstrap sample of (X, y)
func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("forest: %w", ErrEmptyTrainingSet)
	}
	if len(X) != len(y) {
		return fmt.Errorf("forest: %d samples but %d targets", len(X), len(y))
	}
	numFeatures := len(X[0])
	for i, row := range X {
		if len(row) != numFeatures {
			return fmt.Errorf("forest: sample %d has %d features, want %d: %w",
				i, len(row), numFeatures, ErrFeatureMismatch)
		}
	}

	rng := rand.New(rand.NewPCG(f.Config.Seed, f.Config.Seed^0x9e3779b97f4a7c15))
	n := len(X)
	trees := make([]regressionTree, f.Config.NumTrees)

	for t := range trees {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		b := treeBuilder{X: X, y: y, numFeatures: numFeatures, config: f.Config}
		b.build(sample, 0)
		trees[t] = regressionTree{Nodes: b.nodes}
	}

	f.Trees = trees
	f.NumFeatures = numFeatures
	return nil
}

// Predict averages the tree outputs for one sample
func (f *RandomForest) Predict(sample []float64) (float64, error) {
	if !f.Fitted() {
		return 0, fmt.Errorf("forest: %w", ErrNotFitted)
	}
	if len(sample) != f.NumFeatures {
		return 0, fmt.Errorf("forest: got %d features, fitted on %d: %w",
			len(sample), f.NumFeatures, ErrFeatureMismatch)
	}

	sum := 0.0
	for i := range f.Trees {
		value, err := f.Trees[i].predict(sample)
		if err != nil {
			return 0, fmt.Errorf("forest: tree %d: %w", i, err)
		}
		sum += value
	}
	return sum / float64(len(f.Trees)), nil
}

func (t *regressionTree) predict(sample []float64) (float64, error) {
	idx := 0
	// A well-formed tree reaches a leaf in at most len(Nodes) steps
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, fmt.Errorf("node index %d out of range", idx)
		}
		node := t.Nodes[idx]
		if node.Leaf {
			return node.Value, nil
		}
		if node.Feature < 0 || node.Feature >= len(sample) {
			return 0, fmt.Errorf("split feature %d out of range", node.Feature)
		}
		if sample[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
	return 0, fmt.Errorf("cycle in tree")
}

type treeBuilder struct {
	X           [][]float64
	y           []float64
	numFeatures int
	config      ForestConfig
	nodes       []treeNode
}

type split struct {
	feature   int
	threshold float64
	sse       float64
	pivot     int // Number of sorted samples going left
	order     []int
}

// build appends the subtree for sample and returns its node index
func (b *treeBuilder) build(sample []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Leaf: true, Value: b.mean(sample)})

	if len(sample) < b.config.MinSamplesSplit || b.pure(sample) {
		return idx
	}
	if b.config.MaxDepth > 0 && depth >= b.config.MaxDepth {
		return idx
	}

	best, ok := b.bestSplit(sample)
	if !ok {
		return idx
	}

	left := b.build(best.order[:best.pivot], depth+1)
	right := b.build(best.order[best.pivot:], depth+1)
	b.nodes[idx] = treeNode{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      left,
		Right:     right,
		Value:     b.nodes[idx].Value,
	}
	return idx
}

// bestSplit scans every feature for the split minimizing summed squared error
func (b *treeBuilder) bestSplit(sample []int) (split, bool) {
	var best split
	found := false
	n := len(sample)
	minLeaf := b.config.MinSamplesLeaf

	for feature := 0; feature < b.numFeatures; feature++ {
		order := slices.Clone(sample)
		slices.SortStableFunc(order, func(i, j int) int {
			return cmp.Compare(b.X[i][feature], b.X[j][feature])
		})

		var totalSum, totalSq float64
		for _, i := range order {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}

		var leftSum, leftSq float64
		for k := 1; k < n; k++ {
			prev := order[k-1]
			leftSum += b.y[prev]
			leftSq += b.y[prev] * b.y[prev]

			lo, hi := b.X[prev][feature], b.X[order[k]][feature]
			if lo == hi || k < minLeaf || n-k < minLeaf {
				continue
			}

			nl, nr := float64(k), float64(n-k)
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)

			if !found || sse < best.sse {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = split{feature: feature, threshold: threshold, sse: sse, pivot: k, order: order}
				found = true
			}
		}
	}
	return best, found
}

func (b *treeBuilder) mean(sample []int) float64 {
	if len(sample) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range sample {
		sum += b.y[i]
	}
	return sum / float64(len(sample))
}

func (b *treeBuilder) pure(sample []int) bool {
	first := b.y[sample[0]]
	for _, i := range sample[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}
