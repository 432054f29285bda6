package ml

import (
	"math"
	"math/rand/v2"
)

// GaussianSampler implements the reparameterization trick:
// z = mu + exp(logvar/2) * eps with eps ~ N(0, EpsilonStd^2) drawn fresh
// per element on every forward pass. The noise is held constant with
// respect to gradients, which is what keeps the stochastic layer
// differentiable in mu and logvar.
type GaussianSampler struct {
	EpsilonStd float64

	eps *Matrix
}

func NewGaussianSampler(epsilonStd float64) *GaussianSampler {
	return &GaussianSampler{EpsilonStd: epsilonStd}
}

// Sample draws z for a batch of encoded means and log variances. Output
// shape equals the input shape. With EpsilonStd = 0 the draw degenerates
// to z = mu exactly.
func (s *GaussianSampler) Sample(mu, logvar *Matrix) *Matrix {
	if mu.rows != logvar.rows || mu.cols != logvar.cols {
		panic("sampler shape mismatch between mu and logvar")
	}

	s.eps = NewMatrix(mu.rows, mu.cols)
	z := NewMatrix(mu.rows, mu.cols)
	for i := range z.data {
		eps := rand.NormFloat64() * s.EpsilonStd
		s.eps.data[i] = eps
		z.data[i] = mu.data[i] + math.Exp(logvar.data[i]/2)*eps
	}
	return z
}

// Backward pushes the gradient at z back onto mu and logvar:
// dz/dmu = 1 and dz/dlogvar = 0.5 * exp(logvar/2) * eps, i.e. 0.5*(z - mu).
func (s *GaussianSampler) Backward(dz, mu, z *Matrix) (dMu, dLogvar *Matrix) {
	dMu = dz.Clone()
	dLogvar = NewMatrix(dz.rows, dz.cols)
	for i := range dz.data {
		dLogvar.data[i] = 0.5 * dz.data[i] * (z.data[i] - mu.data[i])
	}
	return dMu, dLogvar
}
