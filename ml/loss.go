package ml

import (
	"fmt"
	"math"
)

const (
	LossBinaryCrossEntropy LossKind = "binary_crossentropy"
	LossMSE                LossKind = "mse"
)

type LossKind string

func ParseLossKind(name string) (LossKind, error) {
	switch LossKind(name) {
	case LossBinaryCrossEntropy, LossMSE:
		return LossKind(name), nil
	default:
		return "", fmt.Errorf("unsupported loss %q", name)
	}
}

// -------- SHARED BETA SCALAR -------- //

// BetaReader is the read-only view of the KL weight handed to the loss
// path. Only the warm-up callback holds the writable *BetaCell.
type BetaReader interface {
	Value() float64
}

// BetaCell is the single mutable KL weight shared between the loss and the
// warm-up schedule. One writer (the schedule, between epochs), many readers
// (every forward pass within an epoch).
type BetaCell struct {
	v float64
}

func NewBetaCell(v float64) *BetaCell { return &BetaCell{v: v} }

func (b *BetaCell) Value() float64 { return b.v }

func (b *BetaCell) set(v float64) { b.v = v }

// -------- LOSS TERMS -------- //

// Probabilities are clipped away from {0, 1} before the logs, matching the
// usual backend epsilon.
const probEps = 1e-7

// ReconstructionLoss returns the batch mean of scale * mean_features(err),
// where err is per-element binary cross-entropy or squared error. The
// variational models pass scale = originalDim, which turns the per-feature
// mean into a per-sample total and keeps magnitudes comparable across
// models with different feature counts. The denoising models pass scale = 1.
func ReconstructionLoss(kind LossKind, x, xhat *Matrix, scale float64) float64 {
	if x.rows != xhat.rows || x.cols != xhat.cols {
		panic(fmt.Sprintf("reconstruction shape mismatch: [%d,%d] vs [%d,%d]",
			x.rows, x.cols, xhat.rows, xhat.cols))
	}

	var total float64
	switch kind {
	case LossBinaryCrossEntropy:
		for i, v := range x.data {
			p := clip(xhat.data[i], probEps, 1-probEps)
			total += -(v*math.Log(p) + (1-v)*math.Log(1-p))
		}
	case LossMSE:
		for i, v := range x.data {
			diff := xhat.data[i] - v
			total += diff * diff
		}
	}
	return scale * total / float64(x.rows*x.cols)
}

// KLDivergence returns the batch mean of the closed-form KL divergence
// between N(mu, sigma^2) and the standard normal prior:
// -0.5 * sum_latent(1 + logvar - mu^2 - exp(logvar)).
// Diverging log variances can overflow the exp; no clamping is applied so
// the objective keeps its exact analytic form.
func KLDivergence(mu, logvar *Matrix) float64 {
	var total float64
	for i, m := range mu.data {
		lv := logvar.data[i]
		total += -0.5 * (1 + lv - m*m - math.Exp(lv))
	}
	return total / float64(mu.rows)
}

// reconstructionZGrad returns the gradient of the batch-averaged
// reconstruction term with respect to the pre-sigmoid decoder output. Both
// loss kinds collapse into a (xhat - x) form once the sigmoid derivative is
// folded in, which is why the decoder exposes BackwardZ.
func reconstructionZGrad(kind LossKind, x, xhat *Matrix, scale float64) *Matrix {
	factor := scale / float64(x.rows*x.cols)
	dZ := NewMatrix(x.rows, x.cols)

	switch kind {
	case LossBinaryCrossEntropy:
		for i := range x.data {
			dZ.data[i] = factor * (xhat.data[i] - x.data[i])
		}
	case LossMSE:
		for i := range x.data {
			a := xhat.data[i]
			dZ.data[i] = 2 * factor * (a - x.data[i]) * a * (1 - a)
		}
	}
	return dZ
}

// addKLGrads accumulates the gradient of beta * KL (batch averaged) into
// the encoded mean and log-variance gradients.
func addKLGrads(dMu, dLogvar, mu, logvar *Matrix, beta float64) {
	factor := beta / float64(mu.rows)
	for i := range mu.data {
		dMu.data[i] += factor * mu.data[i]
		dLogvar.data[i] += factor * 0.5 * (math.Exp(logvar.data[i]) - 1)
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
