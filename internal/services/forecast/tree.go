package forecast

import (
	"math"
	"math/rand/v2"
	"sort"
)

// treeNode is a leaf when left < 0.
type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

// regressionTree is a CART tree grown on squared error.
type regressionTree struct {
	nodes []treeNode
}

type treeParams struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int // 0 = every feature at every split
}

func fitTree(x [][]float64, y []float64, idx []int, p treeParams, rng *rand.Rand) *regressionTree {
	if p.minLeaf < 1 {
		p.minLeaf = 1
	}
	t := &regressionTree{nodes: make([]treeNode, 0, 64)}
	t.grow(x, y, idx, 0, p, rng)
	return t
}

func (t *regressionTree) grow(x [][]float64, y []float64, idx []int, depth int, p treeParams, rng *rand.Rand) int {
	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		sum += y[i]
		lo = math.Min(lo, y[i])
		hi = math.Max(hi, y[i])
	}
	id := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{left: -1, right: -1, value: sum / float64(len(idx))})

	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf || hi == lo {
		return id
	}
	f, thr, ok := bestSplit(x, y, idx, sum, p, rng)
	if !ok {
		return id
	}
	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if x[i][f] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := t.grow(x, y, left, depth+1, p, rng)
	r := t.grow(x, y, right, depth+1, p, rng)
	t.nodes[id].feature = f
	t.nodes[id].threshold = thr
	t.nodes[id].left = l
	t.nodes[id].right = r
	return id
}

// bestSplit maximises sumL²/nL + sumR²/nR, which is equivalent to minimising
// the children's summed squared error.
func bestSplit(x [][]float64, y []float64, idx []int, total float64, p treeParams, rng *rand.Rand) (int, float64, bool) {
	n := len(idx)
	parent := total * total / float64(n)
	bestScore := parent + 1e-9*math.Max(1, math.Abs(parent))
	bestFeature, bestThr := -1, 0.0

	order := make([]int, n)
	for _, f := range candidateFeatures(len(x[idx[0]]), p.maxFeatures, rng) {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		left := 0.0
		for i := 0; i < n-1; i++ {
			left += y[order[i]]
			nl, nr := i+1, n-i-1
			if nl < p.minLeaf || nr < p.minLeaf {
				continue
			}
			xv, xn := x[order[i]][f], x[order[i+1]][f]
			if xv == xn {
				continue
			}
			right := total - left
			score := left*left/float64(nl) + right*right/float64(nr)
			if score > bestScore {
				bestScore = score
				bestFeature = f
				bestThr = xv + (xn-xv)/2
			}
		}
	}
	return bestFeature, bestThr, bestFeature >= 0
}

func candidateFeatures(p, maxFeatures int, rng *rand.Rand) []int {
	if maxFeatures <= 0 || maxFeatures >= p || rng == nil {
		out := make([]int, p)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return rng.Perm(p)[:maxFeatures]
}

func (t *regressionTree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.left < 0 {
			return n.value
		}
		if row[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}
