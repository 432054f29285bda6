package ml

// EpochCallback is an end-of-epoch hook. Callbacks run strictly between
// epochs, never interleaved with in-epoch gradient updates, and in
// registration order: the warm-up schedule is always registered before the
// loss-decomposition tracker.
type EpochCallback interface {
	OnEpochEnd(epoch int)
}

// -------- KL WARM-UP -------- //

// WarmUpCallback linearly ramps the shared KL weight from 0 to 1:
// beta <- min(1, beta + kappa) once per epoch. Starting the penalty at
// zero keeps the latent space from collapsing before the reconstruction
// pathway has learned anything useful.
type WarmUpCallback struct {
	beta  *BetaCell
	kappa float64
}

func NewWarmUpCallback(beta *BetaCell, kappa float64) *WarmUpCallback {
	return &WarmUpCallback{beta: beta, kappa: kappa}
}

func (w *WarmUpCallback) OnEpochEnd(epoch int) {
	next := w.beta.Value() + w.kappa
	if next > 1.0 {
		next = 1.0
	}
	w.beta.set(next)
}

// -------- LOSS DECOMPOSITION -------- //

// LossCallback records the reconstruction and KL contributions separately
// after every epoch, since the combined training objective conflates them.
// It pushes held-out data through the current encoder mean path and the
// decoder, so it costs one extra full inference pass per epoch and is
// opt-in. The KL weight is held at 1 regardless of the live training beta,
// so the recorded series stay comparable across runs and schedules.
type LossCallback struct {
	data        *Matrix
	encode      func(x *Matrix) (mu, logvar *Matrix)
	decode      func(z *Matrix) *Matrix
	lossKind    LossKind
	originalDim int

	ReconLoss []float64
	KLLoss    []float64
}

func NewLossCallback(data *Matrix, encode func(*Matrix) (*Matrix, *Matrix),
	decode func(*Matrix) *Matrix, lossKind LossKind, originalDim int) *LossCallback {
	return &LossCallback{
		data:        data,
		encode:      encode,
		decode:      decode,
		lossKind:    lossKind,
		originalDim: originalDim,
	}
}

func (c *LossCallback) OnEpochEnd(epoch int) {
	mu, logvar := c.encode(c.data)
	xhat := c.decode(mu)

	c.ReconLoss = append(c.ReconLoss, ReconstructionLoss(c.lossKind, c.data, xhat, float64(c.originalDim)))
	c.KLLoss = append(c.KLLoss, KLDivergence(mu, logvar))
}
