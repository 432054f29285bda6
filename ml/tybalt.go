package ml

import (
	"fmt"

	"github.com/sunny1205124/tybalt/data"
)

// encoderBranch is one latent funnel of the variational encoder: dense
// connections, batch normalization and relu activation, in that order.
// The mean and log-variance branches are two independent instances fed by
// the same input tensor.
type encoderBranch struct {
	dense *Dense
	bn    *BatchNorm

	preRelu *Matrix
	out     *Matrix
}

func newEncoderBranch(in, latent int) *encoderBranch {
	return &encoderBranch{
		dense: NewDense(in, latent, ActLinear),
		bn:    NewBatchNorm(latent),
	}
}

func (b *encoderBranch) Params() []Param {
	return append(b.dense.Params(), b.bn.Params()...)
}

func (b *encoderBranch) Forward(x *Matrix, training bool) *Matrix {
	h := b.dense.Forward(x)
	hb := b.bn.Forward(h, training)
	b.preRelu = hb

	out := hb.Clone()
	out.ApplyRelu()
	b.out = out
	return out
}

func (b *encoderBranch) Backward(dOut *Matrix) *Matrix {
	dhb := dOut.Clone()
	for i, z := range b.preRelu.data {
		if z <= 0 {
			dhb.data[i] = 0
		}
	}
	dh := b.bn.Backward(dhb)
	return b.dense.BackwardZ(dh)
}

// -------- TYBALT -------- //

// TybaltConfig configures a Tybalt variational autoencoder. Zero values
// fall back to the historical defaults, except EpsilonStd which defaults
// to 1 (construct the sampler directly for a deterministic zero-noise run).
type TybaltConfig struct {
	OriginalDim  int
	LatentDim    int
	BatchSize    int     // default 50
	Epochs       int     // default 50
	LearningRate float64 // default 0.0005
	Kappa        float64 // default 1, KL warm-up rate per epoch
	EpsilonStd   float64 // default 1, sampling noise scale
	Loss         string  // default binary_crossentropy
	Verbose      bool
}

func (cfg *TybaltConfig) applyDefaults() {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 50
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.0005
	}
	if cfg.Kappa == 0 {
		cfg.Kappa = 1
	}
	if cfg.EpsilonStd == 0 {
		cfg.EpsilonStd = 1
	}
	if cfg.Loss == "" {
		cfg.Loss = string(LossBinaryCrossEntropy)
	}
}

// Tybalt compresses expression profiles through a stochastic latent layer
// trained against a reconstruction + beta*KL objective with KL warm-up.
type Tybalt struct {
	cfg      TybaltConfig
	lossKind LossKind
	beta     *BetaCell

	meanBranch   *encoderBranch
	logvarBranch *encoderBranch
	sampler      *GaussianSampler
	decoder      *Dense

	optimizer Optimizer
	params    []Param

	state   modelState
	history *History
}

func NewTybalt(cfg TybaltConfig) (*Tybalt, error) {
	cfg.applyDefaults()
	if cfg.OriginalDim <= 0 || cfg.LatentDim <= 0 {
		return nil, fmt.Errorf("tybalt requires positive original and latent dims, got %d and %d",
			cfg.OriginalDim, cfg.LatentDim)
	}
	return &Tybalt{cfg: cfg, history: &History{}}, nil
}

// Initialize drives the model through graph-built, layers-connected and
// compiled. It must be called exactly once before Train.
func (t *Tybalt) Initialize() error {
	return initializeModel(t, &t.state)
}

func (t *Tybalt) buildGraph() error {
	t.beta = NewBetaCell(0)
	t.meanBranch = newEncoderBranch(t.cfg.OriginalDim, t.cfg.LatentDim)
	t.logvarBranch = newEncoderBranch(t.cfg.OriginalDim, t.cfg.LatentDim)
	t.sampler = NewGaussianSampler(t.cfg.EpsilonStd)
	t.decoder = NewDense(t.cfg.LatentDim, t.cfg.OriginalDim, ActSigmoid)
	return nil
}

// connectLayers fixes the encoder and decoder views over the full graph.
// The views alias the trained weight tensors, they are not snapshots.
func (t *Tybalt) connectLayers() error {
	t.params = append(t.params, t.meanBranch.Params()...)
	t.params = append(t.params, t.logvarBranch.Params()...)
	t.params = append(t.params, t.decoder.Params()...)
	return nil
}

func (t *Tybalt) compile() error {
	kind, err := ParseLossKind(t.cfg.Loss)
	if err != nil {
		return err
	}
	t.lossKind = kind

	t.optimizer, err = NewOptimizer(string(OptAdam), t.cfg.LearningRate)
	return err
}

// Beta exposes the current KL weight.
func (t *Tybalt) Beta() float64 { return t.beta.Value() }

func (t *Tybalt) TrainingHistory() *History { return t.history }

func (t *Tybalt) forward(x *Matrix, training bool) (mu, logvar, z, xhat *Matrix) {
	mu = t.meanBranch.Forward(x, training)
	logvar = t.logvarBranch.Forward(x, training)
	z = t.sampler.Sample(mu, logvar)
	xhat = t.decoder.Forward(z)
	return mu, logvar, z, xhat
}

func (t *Tybalt) objective(x, mu, logvar, xhat *Matrix) float64 {
	recon := ReconstructionLoss(t.lossKind, x, xhat, float64(t.cfg.OriginalDim))
	return recon + t.beta.Value()*KLDivergence(mu, logvar)
}

func (t *Tybalt) zeroGrads() {
	for _, p := range t.params {
		p.Grad.Reset()
	}
}

// encode runs the mean and log-variance funnels in inference mode.
func (t *Tybalt) encode(x *Matrix) (mu, logvar *Matrix) {
	return t.meanBranch.Forward(x, false), t.logvarBranch.Forward(x, false)
}

func (t *Tybalt) decode(z *Matrix) *Matrix {
	return t.decoder.Forward(z)
}

// Train fits the full model. separateLoss additionally records the
// reconstruction and KL contributions per epoch by pushing the held-out
// set through the current encoder and decoder, at the cost of one extra
// inference pass per epoch.
func (t *Tybalt) Train(train, test *data.Table, separateLoss bool) error {
	if t.state != stateCompiled {
		return fmt.Errorf("train requires a compiled model, state is %s", t.state)
	}
	if err := checkTableDim("train", train, t.cfg.OriginalDim); err != nil {
		return err
	}
	if err := checkTableDim("test", test, t.cfg.OriginalDim); err != nil {
		return err
	}

	x := matrixFromTable(train)
	xVal := matrixFromTable(test)

	// Warm-up runs first at every epoch boundary, the tracker second.
	callbacks := []EpochCallback{NewWarmUpCallback(t.beta, t.cfg.Kappa)}
	var tracker *LossCallback
	if separateLoss {
		tracker = NewLossCallback(xVal, t.encode, t.decode, t.lossKind, t.cfg.OriginalDim)
		callbacks = append(callbacks, tracker)
	}

	err := runTraining(trainRun{
		Name:      "tybalt",
		Samples:   x.rows,
		Epochs:    t.cfg.Epochs,
		BatchSize: t.cfg.BatchSize,
		Verbose:   t.cfg.Verbose,
		TrainBatch: func(rows []int) float64 {
			xb := NewMatrix(len(rows), x.cols)
			gatherRows(rows, x, xb)

			t.zeroGrads()
			mu, logvar, z, xhat := t.forward(xb, true)
			loss := t.objective(xb, mu, logvar, xhat)

			dZdec := reconstructionZGrad(t.lossKind, xb, xhat, float64(t.cfg.OriginalDim))
			dz := t.decoder.BackwardZ(dZdec)
			dMu, dLogvar := t.sampler.Backward(dz, mu, z)
			addKLGrads(dMu, dLogvar, mu, logvar, t.beta.Value())
			t.meanBranch.Backward(dMu)
			t.logvarBranch.Backward(dLogvar)

			t.optimizer.Step(t.params)
			return loss
		},
		Validate: func() float64 {
			mu, logvar, _, xhat := t.forward(xVal, false)
			return t.objective(xVal, mu, logvar, xhat)
		},
		Callbacks: callbacks,
		History:   t.history,
	})
	if err != nil {
		return err
	}

	if tracker != nil {
		t.history.attachDecomposition(tracker.ReconLoss, tracker.KLLoss)
	}
	t.state = stateTrained
	return nil
}

// Compress maps samples into latent space through the encoder mean path
// only. No sampling noise is involved, so repeated calls over the same
// input and weights return identical tables.
func (t *Tybalt) Compress(tbl *data.Table) (*data.Table, error) {
	if t.state != stateTrained {
		return nil, fmt.Errorf("compress requires a trained model, state is %s", t.state)
	}
	if err := checkTableDim("compress", tbl, t.cfg.OriginalDim); err != nil {
		return nil, err
	}

	encoded := t.meanBranch.Forward(matrixFromTable(tbl), false)
	return latentTable(tbl.Index(), encoded)
}
