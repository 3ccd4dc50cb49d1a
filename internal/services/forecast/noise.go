package forecast

import (
	"math"
	"math/rand/v2"
)

// NoiseSource perturbs day d of a projection by a relative factor.
type NoiseSource interface {
	Factor(day int) float64
}

const noiseCap = 0.015

// seededNoise draws 0.005·sin(0.2d) + 0.003·N(0,1) from a fixed seed.
type seededNoise struct {
	rng *rand.Rand
}

// NewSeededNoise returns a reproducible noise stream.
func NewSeededNoise(seed uint64) NoiseSource {
	return &seededNoise{rng: rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))}
}

func (s *seededNoise) Factor(day int) float64 {
	z := math.Max(-3, math.Min(3, s.rng.NormFloat64()))
	v := 0.005*math.Sin(float64(day)*0.2) + 0.003*z
	return math.Max(-noiseCap, math.Min(noiseCap, v))
}

// NoNoise disables perturbation.
type NoNoise struct{}

func (NoNoise) Factor(int) float64 { return 0 }
