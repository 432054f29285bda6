package ml

import (
	"fmt"
	"math"

	"github.com/sunny1205124/tybalt/data"
)

// DefaultAdageConfig carries the historical ADAGE settings; copy it and
// override what differs. The tied-weights variant is the default.
var DefaultAdageConfig = AdageConfig{
	Noise:        0.05,
	BatchSize:    50,
	Epochs:       100,
	LearningRate: 0.0005,
	Loss:         string(LossMSE),
	Optimizer:    string(OptAdam),
	TiedWeights:  true,
}

// AdageConfig configures a denoising autoencoder. Zero numeric values fall
// back to the DefaultAdageConfig settings; TiedWeights is taken as given.
type AdageConfig struct {
	OriginalDim  int
	LatentDim    int
	Noise        float64 // corruption rate applied during training
	BatchSize    int
	Epochs       int
	Sparsity     float64 // L1 penalty on the encoded activations
	LearningRate float64
	Loss         string // mse or binary_crossentropy
	Optimizer    string // adam, adadelta or sgd
	TiedWeights  bool
	Verbose      bool
}

func (cfg *AdageConfig) applyDefaults() {
	if cfg.Noise == 0 {
		cfg.Noise = DefaultAdageConfig.Noise
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultAdageConfig.BatchSize
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = DefaultAdageConfig.Epochs
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = DefaultAdageConfig.LearningRate
	}
	if cfg.Loss == "" {
		cfg.Loss = DefaultAdageConfig.Loss
	}
	if cfg.Optimizer == "" {
		cfg.Optimizer = DefaultAdageConfig.Optimizer
	}
}

// Adage is the denoising autoencoder: the training pass corrupts its input
// (or, in the tied variant, the encoded representation) and the model is
// fit to reconstruct the uncorrupted data. No stochastic latent layer and
// no KL term are involved.
type Adage struct {
	cfg      AdageConfig
	lossKind LossKind

	corrupt     *Dropout
	encoder     *Dense
	decoder     *Dense       // untied variant
	tiedDecoder *TiedDecoder // tied variant

	// untied forward cache: pre-relu code and its activation
	encoded *Matrix
	hidden  *Matrix

	optimizer Optimizer
	params    []Param

	state   modelState
	history *History
}

func NewAdage(cfg AdageConfig) (*Adage, error) {
	cfg.applyDefaults()
	if cfg.OriginalDim <= 0 || cfg.LatentDim <= 0 {
		return nil, fmt.Errorf("adage requires positive original and latent dims, got %d and %d",
			cfg.OriginalDim, cfg.LatentDim)
	}
	if cfg.Noise < 0 || cfg.Noise >= 1 {
		return nil, fmt.Errorf("adage noise %v out of range [0, 1)", cfg.Noise)
	}
	return &Adage{cfg: cfg, history: &History{}}, nil
}

func (a *Adage) Initialize() error {
	return initializeModel(a, &a.state)
}

func (a *Adage) buildGraph() error {
	a.corrupt = NewDropout(a.cfg.Noise)
	if a.cfg.TiedWeights {
		a.encoder = NewDense(a.cfg.OriginalDim, a.cfg.LatentDim, ActRelu)
		dec, err := NewTiedDecoder(a.encoder, a.cfg.OriginalDim, ActSigmoid)
		if err != nil {
			return err
		}
		a.tiedDecoder = dec
		return nil
	}

	a.encoder = NewDense(a.cfg.OriginalDim, a.cfg.LatentDim, ActLinear)
	a.decoder = NewDense(a.cfg.LatentDim, a.cfg.OriginalDim, ActSigmoid)
	return nil
}

func (a *Adage) connectLayers() error {
	a.params = append(a.params, a.encoder.Params()...)
	if a.cfg.TiedWeights {
		a.params = append(a.params, a.tiedDecoder.Params()...)
	} else {
		a.params = append(a.params, a.decoder.Params()...)
	}
	return nil
}

func (a *Adage) compile() error {
	kind, err := ParseLossKind(a.cfg.Loss)
	if err != nil {
		return err
	}
	a.lossKind = kind

	a.optimizer, err = NewOptimizer(a.cfg.Optimizer, a.cfg.LearningRate)
	return err
}

func (a *Adage) TrainingHistory() *History { return a.history }

// DecoderParamCount reports the number of free decoder parameters: bias
// only under tied weights, full weight matrix plus bias otherwise.
func (a *Adage) DecoderParamCount() int {
	if a.cfg.TiedWeights {
		return a.tiedDecoder.ParamCount()
	}
	return a.decoder.ParamCount()
}

// forward runs the denoising pass. The untied graph corrupts the input
// before encoding; the tied graph corrupts the encoded representation.
// Both reconstruct toward the clean input.
func (a *Adage) forward(x *Matrix, training bool) *Matrix {
	if a.cfg.TiedWeights {
		h := a.encoder.Forward(x)
		a.hidden = h
		hc := a.corrupt.Forward(h, training)
		return a.tiedDecoder.Forward(hc)
	}

	xc := a.corrupt.Forward(x, training)
	a.encoded = a.encoder.Forward(xc)
	a.hidden = a.encoded.Clone()
	a.hidden.ApplyRelu()
	return a.decoder.Forward(a.hidden)
}

// sparsityTarget is the tensor the L1 activity penalty applies to: the
// linear code in the untied graph, the relu code in the tied graph.
func (a *Adage) sparsityTarget() *Matrix {
	if a.cfg.TiedWeights {
		return a.hidden
	}
	return a.encoded
}

func (a *Adage) objective(x, xhat *Matrix) float64 {
	loss := ReconstructionLoss(a.lossKind, x, xhat, 1)
	if a.cfg.Sparsity > 0 {
		target := a.sparsityTarget()
		var l1 float64
		for _, v := range target.data {
			l1 += math.Abs(v)
		}
		loss += a.cfg.Sparsity * l1 / float64(target.rows)
	}
	return loss
}

// addSparsityGrad accumulates d(sparsity * |target|_1 / N) into the
// gradient at the encoded representation.
func (a *Adage) addSparsityGrad(dTarget *Matrix) {
	if a.cfg.Sparsity == 0 {
		return
	}
	target := a.sparsityTarget()
	factor := a.cfg.Sparsity / float64(target.rows)
	for i, v := range target.data {
		if v > 0 {
			dTarget.data[i] += factor
		} else if v < 0 {
			dTarget.data[i] -= factor
		}
	}
}

func (a *Adage) zeroGrads() {
	for _, p := range a.params {
		p.Grad.Reset()
	}
}

func (a *Adage) trainBatch(x *Matrix) float64 {
	a.zeroGrads()
	xhat := a.forward(x, true)
	loss := a.objective(x, xhat)

	dZdec := reconstructionZGrad(a.lossKind, x, xhat, 1)
	if a.cfg.TiedWeights {
		dhc := a.tiedDecoder.BackwardZ(dZdec)
		dh := a.corrupt.Backward(dhc)
		a.addSparsityGrad(dh)
		a.encoder.Backward(dh)
	} else {
		dh := a.decoder.BackwardZ(dZdec)
		de := dh.Clone()
		for i, v := range a.encoded.data {
			if v <= 0 {
				de.data[i] = 0
			}
		}
		a.addSparsityGrad(de)
		a.encoder.BackwardZ(de)
	}

	a.optimizer.Step(a.params)
	return loss
}

// Train fits the denoising model. comparableLoss rescales the recorded
// history by originalDim afterwards: the plain objective is a mean over
// features, and the rescaling makes the numbers line up with the
// variational models' per-sample totals.
func (a *Adage) Train(train, test *data.Table, comparableLoss bool) error {
	if a.state != stateCompiled {
		return fmt.Errorf("train requires a compiled model, state is %s", a.state)
	}
	if err := checkTableDim("train", train, a.cfg.OriginalDim); err != nil {
		return err
	}
	if err := checkTableDim("test", test, a.cfg.OriginalDim); err != nil {
		return err
	}

	x := matrixFromTable(train)
	xVal := matrixFromTable(test)

	err := runTraining(trainRun{
		Name:      "adage",
		Samples:   x.rows,
		Epochs:    a.cfg.Epochs,
		BatchSize: a.cfg.BatchSize,
		Verbose:   a.cfg.Verbose,
		TrainBatch: func(rows []int) float64 {
			xb := NewMatrix(len(rows), x.cols)
			gatherRows(rows, x, xb)
			return a.trainBatch(xb)
		},
		Validate: func() float64 {
			xhat := a.forward(xVal, false)
			return a.objective(xVal, xhat)
		},
		History: a.history,
	})
	if err != nil {
		return err
	}

	if comparableLoss {
		a.history.scale(float64(a.cfg.OriginalDim))
	}
	a.state = stateTrained
	return nil
}

// Compress maps samples through the encoder only. The tied encoder emits
// its relu activation; the untied encoder emits the linear code its
// separate relu layer would consume. No corruption and no gradient updates
// are involved, so the mapping is deterministic for fixed weights.
func (a *Adage) Compress(tbl *data.Table) (*data.Table, error) {
	if a.state != stateTrained {
		return nil, fmt.Errorf("compress requires a trained model, state is %s", a.state)
	}
	if err := checkTableDim("compress", tbl, a.cfg.OriginalDim); err != nil {
		return nil, err
	}

	encoded := a.encoder.Forward(matrixFromTable(tbl))
	return latentTable(tbl.Index(), encoded)
}
