package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

const (
	ActLinear ActivationType = iota
	ActRelu
	ActSigmoid
)

var activationMap = map[string]ActivationType{
	"linear":  ActLinear,
	"relu":    ActRelu,
	"sigmoid": ActSigmoid,
}

// -------- TYPE DEFINITIONS -------- //
type ActivationType int

// Param is one trainable tensor together with its gradient accumulator.
// Layers hand these out by reference; the optimizer never owns them.
type Param struct {
	Value *Matrix
	Grad  *Matrix
}

func ParseActivation(name string) (ActivationType, error) {
	act, ok := activationMap[name]
	if !ok {
		return ActLinear, fmt.Errorf("unknown activation %q", name)
	}
	return act, nil
}

// -------- DENSE LAYER -------- //

// Dense is a fully connected layer with Glorot uniform initialized weights.
// Gradients accumulate across Backward calls and are cleared by the model
// at the start of every batch, so several paths may contribute to the same
// weight tensor (the tied-weights decoder relies on this).
type Dense struct {
	Weights *Matrix // [in, out]
	Biases  *Matrix // [1, out]
	ActType ActivationType

	// Forward state
	input *Matrix
	Z     *Matrix
	A     *Matrix

	// Gradient accumulators
	dW *Matrix
	db *Matrix
}

func NewDense(in, out int, act ActivationType) *Dense {
	d := &Dense{
		Weights: NewMatrix(in, out),
		Biases:  NewMatrix(1, out),
		ActType: act,
		dW:      NewMatrix(in, out),
		db:      NewMatrix(1, out),
	}
	d.Weights.RandomizeXavier()
	return d
}

func (d *Dense) InputDim() int  { return d.Weights.rows }
func (d *Dense) OutputDim() int { return d.Weights.cols }

func (d *Dense) Params() []Param {
	return []Param{
		{Value: d.Weights, Grad: d.dW},
		{Value: d.Biases, Grad: d.db},
	}
}

func (d *Dense) ParamCount() int {
	return d.Weights.rows*d.Weights.cols + d.Biases.cols
}

func (d *Dense) Forward(x *Matrix) *Matrix {
	if x.cols != d.Weights.rows {
		panic(fmt.Sprintf("Dense shape mismatch: input %d, weights expect %d", x.cols, d.Weights.rows))
	}

	d.input = x
	d.Z = NewMatrix(x.rows, d.Weights.cols)
	MatMul(x.dense, d.Weights.dense, d.Z)
	d.Z.AddVector(d.Biases)

	d.A = d.Z.Clone()
	switch d.ActType {
	case ActRelu:
		d.A.ApplyRelu()
	case ActSigmoid:
		d.A.ApplySigmoid()
	}
	return d.A
}

// Backward takes the gradient with respect to the layer's activation output,
// folds it through the activation derivative and delegates to BackwardZ.
func (d *Dense) Backward(dA *Matrix) *Matrix {
	dZ := dA.Clone()
	switch d.ActType {
	case ActRelu:
		for i, z := range d.Z.data {
			if z <= 0 {
				dZ.data[i] = 0
			}
		}
	case ActSigmoid:
		for i, a := range d.A.data {
			dZ.data[i] *= a * (1 - a)
		}
	}
	return d.BackwardZ(dZ)
}

// BackwardZ takes the gradient with respect to the pre-activation output.
// Loss functions paired with a sigmoid output produce this directly, which
// avoids the numerically hostile (xhat*(1-xhat)) division round trip.
func (d *Dense) BackwardZ(dZ *Matrix) *Matrix {
	// dW += X^T * dZ
	dWTmp := NewMatrix(d.Weights.rows, d.Weights.cols)
	MatMul(d.input.dense.T(), dZ.dense, dWTmp)
	floats.Add(d.dW.data, dWTmp.data)

	// db += column sums of dZ
	for i := 0; i < dZ.rows; i++ {
		for j := 0; j < dZ.cols; j++ {
			d.db.data[j] += dZ.data[i*dZ.cols+j]
		}
	}

	// dX = dZ * W^T
	dX := NewMatrix(dZ.rows, d.Weights.rows)
	MatMul(dZ.dense, d.Weights.dense.T(), dX)
	return dX
}

// -------- BATCH NORMALIZATION -------- //

const (
	batchNormMomentum = 0.99
	batchNormEps      = 1e-3
)

// BatchNorm normalizes activations per feature over the batch during
// training and with running statistics at inference time.
type BatchNorm struct {
	Gamma  *Matrix // [1, dim]
	BetaBN *Matrix // [1, dim]

	RunningMean *Matrix
	RunningVar  *Matrix

	// Forward cache (training mode)
	xhat   *Matrix
	invStd []float64

	dGamma *Matrix
	dBeta  *Matrix
}

func NewBatchNorm(dim int) *BatchNorm {
	bn := &BatchNorm{
		Gamma:       NewMatrix(1, dim),
		BetaBN:      NewMatrix(1, dim),
		RunningMean: NewMatrix(1, dim),
		RunningVar:  NewMatrix(1, dim),
		invStd:      make([]float64, dim),
		dGamma:      NewMatrix(1, dim),
		dBeta:       NewMatrix(1, dim),
	}
	for j := range bn.Gamma.data {
		bn.Gamma.data[j] = 1.0
		bn.RunningVar.data[j] = 1.0
	}
	return bn
}

func (bn *BatchNorm) Params() []Param {
	return []Param{
		{Value: bn.Gamma, Grad: bn.dGamma},
		{Value: bn.BetaBN, Grad: bn.dBeta},
	}
}

func (bn *BatchNorm) Forward(x *Matrix, training bool) *Matrix {
	dim := bn.Gamma.cols
	if x.cols != dim {
		panic(fmt.Sprintf("BatchNorm shape mismatch: input %d, expected %d", x.cols, dim))
	}

	out := NewMatrix(x.rows, x.cols)

	if !training {
		for i := 0; i < x.rows; i++ {
			for j := 0; j < dim; j++ {
				xh := (x.data[i*dim+j] - bn.RunningMean.data[j]) / math.Sqrt(bn.RunningVar.data[j]+batchNormEps)
				out.data[i*dim+j] = bn.Gamma.data[j]*xh + bn.BetaBN.data[j]
			}
		}
		return out
	}

	n := float64(x.rows)
	bn.xhat = NewMatrix(x.rows, x.cols)

	for j := 0; j < dim; j++ {
		var mean float64
		for i := 0; i < x.rows; i++ {
			mean += x.data[i*dim+j]
		}
		mean /= n

		var variance float64
		for i := 0; i < x.rows; i++ {
			diff := x.data[i*dim+j] - mean
			variance += diff * diff
		}
		variance /= n

		bn.invStd[j] = 1.0 / math.Sqrt(variance+batchNormEps)
		for i := 0; i < x.rows; i++ {
			xh := (x.data[i*dim+j] - mean) * bn.invStd[j]
			bn.xhat.data[i*dim+j] = xh
			out.data[i*dim+j] = bn.Gamma.data[j]*xh + bn.BetaBN.data[j]
		}

		bn.RunningMean.data[j] = batchNormMomentum*bn.RunningMean.data[j] + (1-batchNormMomentum)*mean
		bn.RunningVar.data[j] = batchNormMomentum*bn.RunningVar.data[j] + (1-batchNormMomentum)*variance
	}
	return out
}

// Backward implements the full batch-statistics gradient:
// dx = gamma*invStd/N * (N*dxhat - sum(dxhat) - xhat*sum(dxhat*xhat))
func (bn *BatchNorm) Backward(dy *Matrix) *Matrix {
	dim := bn.Gamma.cols
	n := float64(dy.rows)
	dx := NewMatrix(dy.rows, dy.cols)

	for j := 0; j < dim; j++ {
		var sumD, sumDX float64
		for i := 0; i < dy.rows; i++ {
			idx := i*dim + j
			d := dy.data[idx]
			xh := bn.xhat.data[idx]
			sumD += d
			sumDX += d * xh
			bn.dGamma.data[j] += d * xh
			bn.dBeta.data[j] += d
		}

		g := bn.Gamma.data[j] * bn.invStd[j] / n
		for i := 0; i < dy.rows; i++ {
			idx := i*dim + j
			dx.data[idx] = g * (n*dy.data[idx] - sumD - bn.xhat.data[idx]*sumDX)
		}
	}
	return dx
}

// -------- DROPOUT / CORRUPTION -------- //

// Dropout zeroes a random fraction of its input during training with
// inverted scaling, and is the identity at inference time. The denoising
// models use it as their corruption step.
type Dropout struct {
	Rate float64
	mask []float64
}

func NewDropout(rate float64) *Dropout {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("dropout rate %v out of range [0, 1)", rate))
	}
	return &Dropout{Rate: rate}
}

func (d *Dropout) Forward(x *Matrix, training bool) *Matrix {
	if !training || d.Rate == 0 {
		return x
	}

	keep := 1.0 - d.Rate
	d.mask = make([]float64, len(x.data))
	out := NewMatrix(x.rows, x.cols)
	for i, v := range x.data {
		if rand.Float64() < keep {
			d.mask[i] = 1.0 / keep
			out.data[i] = v * d.mask[i]
		}
	}
	return out
}

func (d *Dropout) Backward(dy *Matrix) *Matrix {
	if d.mask == nil {
		return dy
	}
	dx := NewMatrix(dy.rows, dy.cols)
	for i, v := range dy.data {
		dx.data[i] = v * d.mask[i]
	}
	return dx
}
