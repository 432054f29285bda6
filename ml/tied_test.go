package ml

import (
	"math"
	"testing"
)

// Small hand-checkable setup: originalDim=3, latentDim=2.
func buildTiedPair(t *testing.T) (*Dense, *TiedDecoder) {
	t.Helper()
	enc := NewDense(3, 2, ActRelu)
	copy(enc.Weights.data, []float64{
		0.1, -0.2,
		0.3, 0.4,
		-0.5, 0.6,
	})

	dec, err := NewTiedDecoder(enc, 3, ActSigmoid)
	if err != nil {
		t.Fatalf("tied decoder construction: %v", err)
	}
	copy(dec.Bias.data, []float64{0.05, -0.1, 0.2})
	return enc, dec
}

func TestTiedDecoderUsesTransposedEncoderWeights(t *testing.T) {
	enc, dec := buildTiedPair(t)

	z := NewMatrixFromSlice(1, 2, []float64{0.7, -0.3})
	out := dec.Forward(z)

	// Expected: sigmoid(z * W^T + bias), W of shape [3, 2].
	for j := 0; j < 3; j++ {
		raw := z.At(0, 0)*enc.Weights.At(j, 0) + z.At(0, 1)*enc.Weights.At(j, 1) + dec.Bias.At(0, j)
		want := 1.0 / (1.0 + math.Exp(-raw))
		if math.Abs(out.At(0, j)-want) > 1e-12 {
			t.Errorf("out[%d] = %v, want %v", j, out.At(0, j), want)
		}
	}
}

func TestTiedDecoderReadsEncoderWeightsLive(t *testing.T) {
	enc, dec := buildTiedPair(t)
	z := NewMatrixFromSlice(1, 2, []float64{0.7, -0.3})

	before := dec.Forward(z).Clone()
	enc.Weights.Set(0, 0, 5.0) // simulate a training update
	after := dec.Forward(z)

	if before.At(0, 0) == after.At(0, 0) {
		t.Error("decoder output did not reflect the encoder weight update")
	}
}

func TestTiedDecoderShapeMismatchFails(t *testing.T) {
	enc := NewDense(3, 2, ActRelu)
	if _, err := NewTiedDecoder(enc, 4, ActSigmoid); err == nil {
		t.Error("expected construction error for outputDim 4 against encoder input 3")
	}
}

func TestTiedDecoderParamCount(t *testing.T) {
	_, dec := buildTiedPair(t)
	if got := dec.ParamCount(); got != 3 {
		t.Errorf("tied decoder has %d parameters, want originalDim = 3", got)
	}

	untied := NewDense(2, 3, ActSigmoid)
	if got := untied.ParamCount(); got != 3*2+3 {
		t.Errorf("untied decoder has %d parameters, want %d", got, 3*2+3)
	}
}

func TestTiedDecoderBackwardAccumulatesIntoEncoder(t *testing.T) {
	enc, dec := buildTiedPair(t)
	enc.dW.Reset()

	z := NewMatrixFromSlice(2, 2, []float64{0.7, -0.3, 0.1, 0.9})
	dec.Forward(z)
	dZ := NewMatrixFromSlice(2, 3, []float64{0.1, 0.2, -0.1, 0.3, -0.2, 0.1})
	dz := dec.BackwardZ(dZ)

	if dz.Rows() != 2 || dz.Cols() != 2 {
		t.Fatalf("input gradient shape [%d,%d], want [2,2]", dz.Rows(), dz.Cols())
	}

	// dW += dZ^T * z lands in the encoder's accumulator.
	var nonzero bool
	for _, v := range enc.dW.data {
		if v != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		t.Error("encoder weight gradient untouched by tied decoder backward")
	}

	// Spot check one entry: dW[0,0] = sum_i dZ[i,0] * z[i,0]
	want := 0.1*0.7 + 0.3*0.1
	if math.Abs(enc.dW.At(0, 0)-want) > 1e-12 {
		t.Errorf("dW[0,0] = %v, want %v", enc.dW.At(0, 0), want)
	}
}
