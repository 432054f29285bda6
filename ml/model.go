// Package ml implements the Tybalt, cTybalt and ADAGE autoencoders for
// compressing gene-expression matrices into low-dimensional latent tables,
// together with the training machinery they share: the reparameterization
// trick, the beta-weighted variational objective, KL warm-up, and the
// tied-weights decoder.
package ml

import (
	"fmt"
	"math"
	"strconv"

	"github.com/sunny1205124/tybalt/data"
)

const (
	stateNew modelState = iota
	stateGraphBuilt
	stateConnected
	stateCompiled
	stateTrained
)

type modelState int

func (s modelState) String() string {
	switch s {
	case stateNew:
		return "uninitialized"
	case stateGraphBuilt:
		return "graph-built"
	case stateConnected:
		return "layers-connected"
	case stateCompiled:
		return "compiled"
	case stateTrained:
		return "trained"
	}
	return "unknown"
}

// modelGraph is the capability set every model variant provides to the
// shared lifecycle driver.
type modelGraph interface {
	buildGraph() error
	connectLayers() error
	compile() error
}

// initializeModel drives uninitialized -> graph-built -> layers-connected
// -> compiled. Each step fails fast and leaves the recorded state at the
// last completed stage.
func initializeModel(m modelGraph, state *modelState) error {
	if *state != stateNew {
		return fmt.Errorf("model already initialized (state %s)", *state)
	}

	if err := m.buildGraph(); err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	*state = stateGraphBuilt

	if err := m.connectLayers(); err != nil {
		return fmt.Errorf("connect layers: %w", err)
	}
	*state = stateConnected

	if err := m.compile(); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	*state = stateCompiled
	return nil
}

// -------- SHARED TRAINING LOOP -------- //

type trainRun struct {
	Name      string
	Samples   int
	Epochs    int
	BatchSize int
	Verbose   bool

	// TrainBatch runs forward/backward/update over the given sample rows
	// and returns the batch objective.
	TrainBatch func(rows []int) float64

	// Validate computes the objective over the held-out set.
	Validate func() float64

	Callbacks []EpochCallback
	History   *History
}

// runTraining processes epochs sequentially; within an epoch, batches are
// processed sequentially over a reshuffled index. Callbacks fire only at
// epoch boundaries, after the validation pass.
func runTraining(run trainRun) error {
	if run.BatchSize <= 0 || run.BatchSize > run.Samples {
		return fmt.Errorf("batch size %d invalid for %d samples", run.BatchSize, run.Samples)
	}

	indices := newIndexList(run.Samples)

	for epoch := 0; epoch < run.Epochs; epoch++ {
		shuffleIndices(indices)

		var totalLoss float64
		batches := 0
		for start := 0; start < run.Samples; start += run.BatchSize {
			end := start + run.BatchSize
			if end > run.Samples {
				end = run.Samples
			}
			totalLoss += run.TrainBatch(indices[start:end])
			batches++
		}

		loss := totalLoss / float64(batches)
		valLoss := run.Validate()
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return fmt.Errorf("%s epoch %d: training diverged (loss %v)", run.Name, epoch+1, loss)
		}

		run.History.append(loss, valLoss)

		for _, cbk := range run.Callbacks {
			cbk.OnEpochEnd(epoch)
		}

		if run.Verbose {
			fmt.Printf("%s epoch %d/%d | loss %.4f | val_loss %.4f\n",
				run.Name, epoch+1, run.Epochs, loss, valLoss)
		}
	}
	return nil
}

// -------- TABLE HELPERS -------- //

// matrixFromTable wraps a table's backing slice without copying.
func matrixFromTable(t *data.Table) *Matrix {
	return NewMatrixFromSlice(t.Rows(), t.Cols(), t.Values())
}

func checkTableDim(name string, t *data.Table, wantCols int) error {
	if t == nil {
		return fmt.Errorf("%s table is nil", name)
	}
	if t.Cols() != wantCols {
		return fmt.Errorf("%s table has %d features, model expects %d", name, t.Cols(), wantCols)
	}
	return nil
}

// latentTable packs an encoded batch into a table indexed by the original
// sample IDs with columns 1..latentDim.
func latentTable(index []string, encoded *Matrix) (*data.Table, error) {
	columns := make([]string, encoded.cols)
	for j := range columns {
		columns[j] = strconv.Itoa(j + 1)
	}
	return data.NewTable(index, columns, encoded.data)
}
