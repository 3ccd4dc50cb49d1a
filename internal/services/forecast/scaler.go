package forecast

import "math"

// scaler standardises columns to zero mean and unit population variance.
// Constant columns keep a scale of 1.
type scaler struct {
	mean  []float64
	scale []float64
}

func fitScaler(x [][]float64) *scaler {
	p := len(x[0])
	s := &scaler{mean: make([]float64, p), scale: make([]float64, p)}
	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			s.mean[j] += v
		}
	}
	for j := range s.mean {
		s.mean[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			d := v - s.mean[j]
			s.scale[j] += d * d
		}
	}
	for j := range s.scale {
		sd := math.Sqrt(s.scale[j] / n)
		if sd < 1e-12 {
			sd = 1
		}
		s.scale[j] = sd
	}
	return s
}

func (s *scaler) transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.mean[j]) / s.scale[j]
	}
	return out
}

func (s *scaler) transformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.transform(row)
	}
	return out
}
