package forecast

import (
	"context"
	"math/rand/v2"
)

// baggingForest averages trees grown on bootstrap resamples.
type baggingForest struct {
	trees []*regressionTree
}

func fitForest(ctx context.Context, x [][]float64, y []float64, trees int, p treeParams, seed uint64) (*baggingForest, error) {
	n := len(y)
	f := &baggingForest{trees: make([]*regressionTree, 0, trees)}
	idx := make([]int, n)
	for t := 0; t < trees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewPCG(seed, uint64(t)+1))
		for i := range idx {
			idx[i] = rng.IntN(n)
		}
		f.trees = append(f.trees, fitTree(x, y, append([]int(nil), idx...), p, rng))
	}
	return f, nil
}

func (f *baggingForest) predict(row []float64) float64 {
	s := 0.0
	for _, t := range f.trees {
		s += t.predict(row)
	}
	return s / float64(len(f.trees))
}
