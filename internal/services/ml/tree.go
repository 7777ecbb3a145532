package ml

import (
	"math"
	"math/rand"
	"sort"
)

// Node is one CART node. Leaves carry the positive-class share of their training rows.
type Node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      *Node   `json:"l,omitempty"`
	Right     *Node   `json:"r,omitempty"`
	Prob      float64 `json:"p"`
	Leaf      bool    `json:"leaf,omitempty"`
}

// predict walks to a leaf: x[Feature] <= Threshold goes left.
func (n *Node) predict(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Prob
}

type treeParams struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int
}

type treeBuilder struct {
	x   [][]float64
	y   []int
	p   treeParams
	rng *rand.Rand
}

// grow builds a Gini tree over the rows in idx.
func (b *treeBuilder) grow(idx []int, depth int) *Node {
	pos := 0
	for _, i := range idx {
		pos += b.y[i]
	}
	prob := float64(pos) / float64(len(idx))
	if depth >= b.p.maxDepth || len(idx) < 2*b.p.minLeaf || pos == 0 || pos == len(idx) {
		return &Node{Leaf: true, Prob: prob}
	}

	feat, thr, ok := b.bestSplit(idx, pos)
	if !ok {
		return &Node{Leaf: true, Prob: prob}
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &Node{
		Feature:   feat,
		Threshold: thr,
		Prob:      prob,
		Left:      b.grow(left, depth+1),
		Right:     b.grow(right, depth+1),
	}
}

// bestSplit scans a random subset of features for the lowest weighted Gini impurity.
func (b *treeBuilder) bestSplit(idx []int, pos int) (int, float64, bool) {
	nFeat := len(b.x[0])
	feats := b.rng.Perm(nFeat)[:min(b.p.maxFeatures, nFeat)]

	n := float64(len(idx))
	best := gini(pos, len(idx)) * n
	bestFeat, bestThr, found := -1, 0.0, false

	sorted := make([]int, len(idx))
	for _, f := range feats {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })

		leftPos := 0
		for k := 0; k < len(sorted)-1; k++ {
			leftPos += b.y[sorted[k]]
			nl := k + 1
			nr := len(sorted) - nl
			if nl < b.p.minLeaf || nr < b.p.minLeaf {
				continue
			}
			v, next := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if v == next {
				continue
			}
			imp := gini(leftPos, nl)*float64(nl) + gini(pos-leftPos, nr)*float64(nr)
			if imp < best-1e-12 {
				best, bestFeat, bestThr, found = imp, f, (v+next)/2, true
			}
		}
	}
	return bestFeat, bestThr, found
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 1 - p*p - (1-p)*(1-p)
}

// sqrtFeatures is the default per-split feature budget.
func sqrtFeatures(n int) int {
	return max(1, int(math.Sqrt(float64(n))))
}
