package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// linearModel is least squares with an intercept. A tiny ridge term keeps
// the normal equations solvable when columns are collinear.
type linearModel struct {
	intercept float64
	coef      []float64
}

func fitLinear(x [][]float64, y []float64) (*linearModel, error) {
	n, p := len(x), len(x[0])

	xm := make([]float64, p)
	ym := 0.0
	for i := 0; i < n; i++ {
		ym += y[i]
		for j := 0; j < p; j++ {
			xm[j] += x[i][j]
		}
	}
	ym /= float64(n)
	for j := range xm {
		xm[j] /= float64(n)
	}

	X := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, x[i][j]-xm[j])
		}
		yc.SetVec(i, y[i]-ym)
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, X.T())
	var xty mat.VecDense
	xty.MulVec(X.T(), yc)

	trace := 0.0
	for j := 0; j < p; j++ {
		trace += xtx.At(j, j)
	}
	lambda := 1e-10 * max(1, trace/float64(p))

	var beta mat.VecDense
	for attempt := 0; attempt < 4; attempt++ {
		reg := mat.NewSymDense(p, nil)
		reg.CopySym(&xtx)
		for j := 0; j < p; j++ {
			reg.SetSym(j, j, reg.At(j, j)+lambda)
		}
		var chol mat.Cholesky
		if chol.Factorize(reg) {
			if err := chol.SolveVecTo(&beta, &xty); err == nil {
				m := &linearModel{intercept: ym, coef: make([]float64, p)}
				for j := 0; j < p; j++ {
					m.coef[j] = beta.AtVec(j)
					m.intercept -= m.coef[j] * xm[j]
				}
				return m, nil
			}
		}
		lambda *= 1e3
	}
	return nil, fmt.Errorf("linear model: normal equations are singular")
}

func (m *linearModel) predict(row []float64) float64 {
	s := m.intercept
	for j, c := range m.coef {
		s += c * row[j]
	}
	return s
}
