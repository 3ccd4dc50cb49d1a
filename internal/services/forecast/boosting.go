package forecast

import (
	"context"
	"math"
)

// gradientBoosting fits shallow trees to squared-loss residuals.
type gradientBoosting struct {
	init  float64
	rate  float64
	trees []*regressionTree
}

func fitBoosting(ctx context.Context, x [][]float64, y []float64, rounds int, rate float64, depth int) (*gradientBoosting, error) {
	n := len(y)
	g := &gradientBoosting{rate: rate}
	for _, v := range y {
		g.init += v
	}
	g.init /= float64(n)

	pred := make([]float64, n)
	idx := make([]int, n)
	for i := range pred {
		pred[i] = g.init
		idx[i] = i
	}
	resid := make([]float64, n)
	for r := 0; r < rounds; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		worst := 0.0
		for i := range resid {
			resid[i] = y[i] - pred[i]
			worst = math.Max(worst, math.Abs(resid[i]))
		}
		if worst < 1e-12 {
			break
		}
		t := fitTree(x, resid, idx, treeParams{maxDepth: depth, minLeaf: 1}, nil)
		for i := range pred {
			pred[i] += rate * t.predict(x[i])
		}
		g.trees = append(g.trees, t)
	}
	return g, nil
}

func (g *gradientBoosting) predict(row []float64) float64 {
	s := g.init
	for _, t := range g.trees {
		s += g.rate * t.predict(row)
	}
	return s
}
