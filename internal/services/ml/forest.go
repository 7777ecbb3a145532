package ml

import (
	"errors"
	"fmt"
	"math/rand"

	"TWSignal/pkg/config"
)

// Forest is a bagged ensemble of CART trees.
type Forest struct {
	NumFeatures int     `json:"num_features"`
	Trees       []*Node `json:"trees"`
}

// TrainForest fits params.Trees trees on bootstrap samples of (x, y) using a seeded RNG,
// so identical inputs give identical forests.
func TrainForest(x [][]float64, y []int, params config.Forest, seed int64) (*Forest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("train forest: %d rows, %d labels", len(x), len(y))
	}
	if params.Trees < 1 || params.MaxDepth < 1 || params.MinLeaf < 1 {
		return nil, errors.New("train forest: trees, max_depth and min_leaf must be positive")
	}

	nFeat := len(x[0])
	rng := rand.New(rand.NewSource(seed))
	f := &Forest{NumFeatures: nFeat, Trees: make([]*Node, 0, params.Trees)}
	tp := treeParams{maxDepth: params.MaxDepth, minLeaf: params.MinLeaf, maxFeatures: sqrtFeatures(nFeat)}

	for t := 0; t < params.Trees; t++ {
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = rng.Intn(len(x))
		}
		b := &treeBuilder{x: x, y: y, p: tp, rng: rand.New(rand.NewSource(rng.Int63()))}
		f.Trees = append(f.Trees, b.grow(sample, 0))
	}
	return f, nil
}

// PredictProba is the mean leaf probability of class 1 across trees.
func (f *Forest) PredictProba(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0.5
	}
	var sum float64
	for _, t := range f.Trees {
		sum += t.predict(x)
	}
	return sum / float64(len(f.Trees))
}
