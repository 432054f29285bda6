package ml

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// TiedDecoder is a decoding layer whose weight matrix is the transpose of
// a paired encoder layer's weights, read live at every pass rather than
// copied, so training updates to the encoder are immediately reflected
// here. Only the bias vector is independently owned, which leaves the
// layer exactly outputDim free parameters.
type TiedDecoder struct {
	encoder *Dense
	Bias    *Matrix // [1, outputDim]
	ActType ActivationType

	input *Matrix
	Z     *Matrix
	A     *Matrix

	db *Matrix
}

// NewTiedDecoder binds a decoder of shape [encoder out -> outputDim] to an
// existing encoder layer. Construction fails unless the transposed encoder
// weights have exactly that shape.
func NewTiedDecoder(encoder *Dense, outputDim int, act ActivationType) (*TiedDecoder, error) {
	if encoder.InputDim() != outputDim {
		return nil, fmt.Errorf("tied decoder output dim %d does not match encoder input dim %d",
			outputDim, encoder.InputDim())
	}

	return &TiedDecoder{
		encoder: encoder,
		Bias:    NewMatrix(1, outputDim),
		ActType: act,
		db:      NewMatrix(1, outputDim),
	}, nil
}

func (t *TiedDecoder) InputDim() int  { return t.encoder.OutputDim() }
func (t *TiedDecoder) OutputDim() int { return t.encoder.InputDim() }

// Params exposes only the bias; the weights belong to the encoder.
func (t *TiedDecoder) Params() []Param {
	return []Param{{Value: t.Bias, Grad: t.db}}
}

func (t *TiedDecoder) ParamCount() int {
	return t.Bias.cols
}

// Forward computes activation(z * W_enc^T + bias).
func (t *TiedDecoder) Forward(z *Matrix) *Matrix {
	if z.cols != t.InputDim() {
		panic(fmt.Sprintf("TiedDecoder shape mismatch: input %d, expected %d", z.cols, t.InputDim()))
	}

	t.input = z
	t.Z = NewMatrix(z.rows, t.OutputDim())
	MatMul(z.dense, t.encoder.Weights.dense.T(), t.Z)
	t.Z.AddVector(t.Bias)

	t.A = t.Z.Clone()
	switch t.ActType {
	case ActRelu:
		t.A.ApplyRelu()
	case ActSigmoid:
		t.A.ApplySigmoid()
	}
	return t.A
}

// BackwardZ takes the gradient at the pre-activation output, accumulates
// the bias gradient here and the weight gradient into the paired encoder's
// accumulator, and returns the gradient at the decoder input.
func (t *TiedDecoder) BackwardZ(dZ *Matrix) *Matrix {
	// db += column sums of dZ
	for i := 0; i < dZ.rows; i++ {
		for j := 0; j < dZ.cols; j++ {
			t.db.data[j] += dZ.data[i*dZ.cols+j]
		}
	}

	// out = z * W^T, so dW += dZ^T * z  (shape [outputDim, latentDim])
	dWTmp := NewMatrix(t.encoder.Weights.rows, t.encoder.Weights.cols)
	MatMul(dZ.dense.T(), t.input.dense, dWTmp)
	floats.Add(t.encoder.dW.data, dWTmp.data)

	// dz = dZ * W
	dz := NewMatrix(dZ.rows, t.InputDim())
	MatMul(dZ.dense, t.encoder.Weights.dense, dz)
	return dz
}
