package ml

import (
	"fmt"

	"github.com/sunny1205124/tybalt/data"
)

// CTybaltConfig configures the conditional variant. Label vectors (usually
// one-hot) of width LabelDim ride along with every expression sample.
// Zero values fall back to the same defaults as TybaltConfig.
type CTybaltConfig struct {
	OriginalDim  int
	LatentDim    int
	LabelDim     int
	BatchSize    int
	Epochs       int
	LearningRate float64
	Kappa        float64
	EpsilonStd   float64
	Loss         string
	Verbose      bool
}

// CTybalt is the conditional VAE: the label input is concatenated to the
// expression input before encoding and again to the sampled z before
// decoding. The decoder reconstructs from (latent code, label) jointly,
// which conditions generation on the label while encouraging z to capture
// label-independent variation.
type CTybalt struct {
	cfg      CTybaltConfig
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

func NewCTybalt(cfg CTybaltConfig) (*CTybalt, error) {
	base := TybaltConfig{
		BatchSize:    cfg.BatchSize,
		Epochs:       cfg.Epochs,
		LearningRate: cfg.LearningRate,
		Kappa:        cfg.Kappa,
		EpsilonStd:   cfg.EpsilonStd,
		Loss:         cfg.Loss,
	}
	base.applyDefaults()
	cfg.BatchSize = base.BatchSize
	cfg.Epochs = base.Epochs
	cfg.LearningRate = base.LearningRate
	cfg.Kappa = base.Kappa
	cfg.EpsilonStd = base.EpsilonStd
	cfg.Loss = base.Loss

	if cfg.OriginalDim <= 0 || cfg.LatentDim <= 0 || cfg.LabelDim <= 0 {
		return nil, fmt.Errorf("ctybalt requires positive original, latent and label dims, got %d, %d and %d",
			cfg.OriginalDim, cfg.LatentDim, cfg.LabelDim)
	}
	return &CTybalt{cfg: cfg, history: &History{}}, nil
}

func (c *CTybalt) Initialize() error {
	return initializeModel(c, &c.state)
}

// inputDim is the width of the concatenated (expression, label) input the
// encoder sees; latentInputDim is what the decoder consumes.
func (c *CTybalt) inputDim() int       { return c.cfg.OriginalDim + c.cfg.LabelDim }
func (c *CTybalt) latentInputDim() int { return c.cfg.LatentDim + c.cfg.LabelDim }

func (c *CTybalt) buildGraph() error {
	c.beta = NewBetaCell(0)
	c.meanBranch = newEncoderBranch(c.inputDim(), c.cfg.LatentDim)
	c.logvarBranch = newEncoderBranch(c.inputDim(), c.cfg.LatentDim)
	c.sampler = NewGaussianSampler(c.cfg.EpsilonStd)
	c.decoder = NewDense(c.latentInputDim(), c.inputDim(), ActSigmoid)
	return nil
}

func (c *CTybalt) connectLayers() error {
	c.params = append(c.params, c.meanBranch.Params()...)
	c.params = append(c.params, c.logvarBranch.Params()...)
	c.params = append(c.params, c.decoder.Params()...)
	return nil
}

func (c *CTybalt) compile() error {
	kind, err := ParseLossKind(c.cfg.Loss)
	if err != nil {
		return err
	}
	c.lossKind = kind

	c.optimizer, err = NewOptimizer(string(OptAdam), c.cfg.LearningRate)
	return err
}

func (c *CTybalt) Beta() float64 { return c.beta.Value() }

func (c *CTybalt) TrainingHistory() *History { return c.history }

// forward reconstructs the concatenated input, not just the expression
// block, so the loss covers (x, label) jointly.
func (c *CTybalt) forward(xy, y *Matrix, training bool) (mu, logvar, z, xhat *Matrix) {
	mu = c.meanBranch.Forward(xy, training)
	logvar = c.logvarBranch.Forward(xy, training)
	z = c.sampler.Sample(mu, logvar)
	zc := hstack(z, y)
	xhat = c.decoder.Forward(zc)
	return mu, logvar, z, xhat
}

func (c *CTybalt) objective(xy, mu, logvar, xhat *Matrix) float64 {
	recon := ReconstructionLoss(c.lossKind, xy, xhat, float64(c.cfg.OriginalDim))
	return recon + c.beta.Value()*KLDivergence(mu, logvar)
}

func (c *CTybalt) zeroGrads() {
	for _, p := range c.params {
		p.Grad.Reset()
	}
}

func (c *CTybalt) trainBatch(xy, y *Matrix) float64 {
	c.zeroGrads()
	mu, logvar, z, xhat := c.forward(xy, y, true)
	loss := c.objective(xy, mu, logvar, xhat)

	dZdec := reconstructionZGrad(c.lossKind, xy, xhat, float64(c.cfg.OriginalDim))
	dzc := c.decoder.BackwardZ(dZdec)
	// Only the z block of the concatenated decoder input carries gradient;
	// the label block is a model input.
	dz := colSlice(dzc, 0, c.cfg.LatentDim)
	dMu, dLogvar := c.sampler.Backward(dz, mu, z)
	addKLGrads(dMu, dLogvar, mu, logvar, c.beta.Value())
	c.meanBranch.Backward(dMu)
	c.logvarBranch.Backward(dLogvar)

	c.optimizer.Step(c.params)
	return loss
}

// Train fits the conditional model on row-aligned expression and label
// tables for each split.
func (c *CTybalt) Train(train, trainLabels, test, testLabels *data.Table) error {
	if c.state != stateCompiled {
		return fmt.Errorf("train requires a compiled model, state is %s", c.state)
	}
	for _, check := range []struct {
		name string
		tbl  *data.Table
		cols int
	}{
		{"train", train, c.cfg.OriginalDim},
		{"train labels", trainLabels, c.cfg.LabelDim},
		{"test", test, c.cfg.OriginalDim},
		{"test labels", testLabels, c.cfg.LabelDim},
	} {
		if err := checkTableDim(check.name, check.tbl, check.cols); err != nil {
			return err
		}
	}
	if train.Rows() != trainLabels.Rows() || test.Rows() != testLabels.Rows() {
		return fmt.Errorf("label tables must be row-aligned with their expression tables")
	}

	x := matrixFromTable(train)
	y := matrixFromTable(trainLabels)
	xyVal := hstack(matrixFromTable(test), matrixFromTable(testLabels))
	yVal := matrixFromTable(testLabels)

	err := runTraining(trainRun{
		Name:      "ctybalt",
		Samples:   x.rows,
		Epochs:    c.cfg.Epochs,
		BatchSize: c.cfg.BatchSize,
		Verbose:   c.cfg.Verbose,
		TrainBatch: func(rows []int) float64 {
			xb := NewMatrix(len(rows), x.cols)
			yb := NewMatrix(len(rows), y.cols)
			gatherRows(rows, x, xb)
			gatherRows(rows, y, yb)
			return c.trainBatch(hstack(xb, yb), yb)
		},
		Validate: func() float64 {
			mu, logvar, _, xhat := c.forward(xyVal, yVal, false)
			return c.objective(xyVal, mu, logvar, xhat)
		},
		Callbacks: []EpochCallback{NewWarmUpCallback(c.beta, c.cfg.Kappa)},
		History:   c.history,
	})
	if err != nil {
		return err
	}

	c.state = stateTrained
	return nil
}

// Compress maps (expression, label) pairs into latent space through the
// encoder mean path only; deterministic for fixed weights and input.
func (c *CTybalt) Compress(tbl, labels *data.Table) (*data.Table, error) {
	if c.state != stateTrained {
		return nil, fmt.Errorf("compress requires a trained model, state is %s", c.state)
	}
	if err := checkTableDim("compress", tbl, c.cfg.OriginalDim); err != nil {
		return nil, err
	}
	if err := checkTableDim("compress labels", labels, c.cfg.LabelDim); err != nil {
		return nil, err
	}
	if tbl.Rows() != labels.Rows() {
		return nil, fmt.Errorf("label table must be row-aligned with the expression table")
	}

	xy := hstack(matrixFromTable(tbl), matrixFromTable(labels))
	encoded := c.meanBranch.Forward(xy, false)
	return latentTable(tbl.Index(), encoded)
}
