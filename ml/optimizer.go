package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	OptSGD      OptimizerType = "sgd"
	OptAdam     OptimizerType = "adam"
	OptAdadelta OptimizerType = "adadelta"
)

// Default settings generally recommended for Adam
var DefaultAdamConfig = AdamConfig{
	Beta1:        0.9,
	Beta2:        0.999,
	Epsilon:      1e-8,
	LearningRate: 0.001,
}

type OptimizerType string

type AdamConfig struct {
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	LearningRate float64
}

type Optimizer interface {
	Step(params []Param)
}

// NewOptimizer resolves an optimizer name at compile time. Unknown names
// are an error, never a silent fallback.
func NewOptimizer(name string, learningRate float64) (Optimizer, error) {
	switch OptimizerType(name) {
	case OptAdam:
		cfg := DefaultAdamConfig
		cfg.LearningRate = learningRate
		return NewAdamOptimizer(cfg), nil
	case OptAdadelta:
		return NewAdadeltaOptimizer(learningRate), nil
	case OptSGD:
		return &SGDOptimizer{LearningRate: learningRate}, nil
	default:
		return nil, fmt.Errorf("unsupported optimizer %q", name)
	}
}

// ------ ADAM ------ //

type AdamOptimizer struct {
	cfg      AdamConfig
	m, v     [][]float64
	timeStep int // 't' in the Adam paper, tracks number of updates
}

func NewAdamOptimizer(cfg AdamConfig) *AdamOptimizer {
	return &AdamOptimizer{cfg: cfg}
}

// Step applies the Adam update rule to every parameter tensor.
func (opt *AdamOptimizer) Step(params []Param) {
	opt.timeStep++
	t := float64(opt.timeStep)

	// correction1 = 1 - beta1^t, correction2 = 1 - beta2^t
	correction1 := 1.0 - math.Pow(opt.cfg.Beta1, t)
	correction2 := 1.0 - math.Pow(opt.cfg.Beta2, t)

	if opt.m == nil {
		opt.m = make([][]float64, len(params))
		opt.v = make([][]float64, len(params))
		for i, p := range params {
			opt.m[i] = make([]float64, len(p.Value.data))
			opt.v[i] = make([]float64, len(p.Value.data))
		}
	}

	beta1 := opt.cfg.Beta1
	beta2 := opt.cfg.Beta2
	eps := opt.cfg.Epsilon
	lr := opt.cfg.LearningRate

	for pi, p := range params {
		m := opt.m[pi]
		v := opt.v[pi]
		grads := p.Grad.data
		values := p.Value.data

		for i := range values {
			g := grads[i]

			// m_t = beta1 * m_{t-1} + (1 - beta1) * g
			m[i] = beta1*m[i] + (1.0-beta1)*g

			// v_t = beta2 * v_{t-1} + (1 - beta2) * g^2
			v[i] = beta2*v[i] + (1.0-beta2)*(g*g)

			// Bias correction
			mHat := m[i] / correction1
			vHat := v[i] / correction2

			// theta = theta - lr * mHat / (sqrt(vHat) + eps)
			values[i] -= lr * mHat / (math.Sqrt(vHat) + eps)
		}
	}
}

// ------ ADADELTA ------ //

type AdadeltaOptimizer struct {
	LearningRate float64
	Rho          float64
	Epsilon      float64

	accumGrad   [][]float64
	accumUpdate [][]float64
}

func NewAdadeltaOptimizer(learningRate float64) *AdadeltaOptimizer {
	return &AdadeltaOptimizer{
		LearningRate: learningRate,
		Rho:          0.95,
		Epsilon:      1e-6,
	}
}

func (opt *AdadeltaOptimizer) Step(params []Param) {
	if opt.accumGrad == nil {
		opt.accumGrad = make([][]float64, len(params))
		opt.accumUpdate = make([][]float64, len(params))
		for i, p := range params {
			opt.accumGrad[i] = make([]float64, len(p.Value.data))
			opt.accumUpdate[i] = make([]float64, len(p.Value.data))
		}
	}

	rho := opt.Rho
	eps := opt.Epsilon

	for pi, p := range params {
		eg := opt.accumGrad[pi]
		ex := opt.accumUpdate[pi]
		grads := p.Grad.data
		values := p.Value.data

		for i := range values {
			g := grads[i]
			eg[i] = rho*eg[i] + (1.0-rho)*g*g
			update := -math.Sqrt(ex[i]+eps) / math.Sqrt(eg[i]+eps) * g
			ex[i] = rho*ex[i] + (1.0-rho)*update*update
			values[i] += opt.LearningRate * update
		}
	}
}

// ------ SGD ------ //

type SGDOptimizer struct {
	LearningRate float64
}

func (opt *SGDOptimizer) Step(params []Param) {
	// Simple update: W = W - (lr * gradient)
	for _, p := range params {
		floats.AddScaled(p.Value.data, -opt.LearningRate, p.Grad.data)
	}
}
