package ml

import (
	"math"
	"testing"

	"github.com/sunny1205124/tybalt/data"
)

// --- 1. ADAGE end to end ---

func trainedAdage(t *testing.T, tied bool) (*Adage, *data.Table) {
	t.Helper()

	cfg := DefaultAdageConfig
	cfg.OriginalDim = 10
	cfg.LatentDim = 2
	cfg.Epochs = 1
	cfg.BatchSize = 5
	cfg.TiedWeights = tied

	model, err := NewAdage(cfg)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	train := data.SyntheticExpression(20, 10, 7)
	test := data.SyntheticExpression(5, 10, 9)
	if err := model.Train(train, test, false); err != nil {
		t.Fatalf("train: %v", err)
	}
	return model, test
}

func TestAdageEndToEnd(t *testing.T) {
	model, held := trainedAdage(t, true)

	hist := model.TrainingHistory()
	if hist.Len() != 1 {
		t.Fatalf("history has %d rows, want 1", hist.Len())
	}
	if math.IsNaN(hist.Loss[0]) || math.IsNaN(hist.ValLoss[0]) {
		t.Errorf("non-finite history: loss %v, val_loss %v", hist.Loss[0], hist.ValLoss[0])
	}

	latent, err := model.Compress(held)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if latent.Rows() != 5 || latent.Cols() != 2 {
		t.Errorf("latent table is %dx%d, want 5x2", latent.Rows(), latent.Cols())
	}
	wantCols := []string{"1", "2"}
	for j, col := range latent.Columns() {
		if col != wantCols[j] {
			t.Errorf("latent column %d named %q, want %q", j, col, wantCols[j])
		}
	}
	for i, id := range latent.Index() {
		if id != held.Index()[i] {
			t.Errorf("latent row %d indexed %q, want %q", i, id, held.Index()[i])
		}
	}
}

func TestAdageDecoderParamCounts(t *testing.T) {
	tied, _ := trainedAdage(t, true)
	if got := tied.DecoderParamCount(); got != 10 {
		t.Errorf("tied decoder has %d free parameters, want 10", got)
	}

	untied, _ := trainedAdage(t, false)
	if got := untied.DecoderParamCount(); got != 10*2+10 {
		t.Errorf("untied decoder has %d free parameters, want %d", got, 10*2+10)
	}
}

func TestAdageComparableLossRescaling(t *testing.T) {
	cfg := DefaultAdageConfig
	cfg.OriginalDim = 10
	cfg.LatentDim = 2
	cfg.Epochs = 1
	cfg.BatchSize = 5

	model, err := NewAdage(cfg)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	train := data.SyntheticExpression(20, 10, 7)
	test := data.SyntheticExpression(5, 10, 9)
	if err := model.Train(train, test, true); err != nil {
		t.Fatalf("train: %v", err)
	}

	// Per-feature mean losses on [0,1] data are well below 1; the rescaled
	// per-sample totals should be an order of magnitude larger.
	if model.TrainingHistory().Loss[0] < 0.5 {
		t.Errorf("comparable loss %v looks unscaled", model.TrainingHistory().Loss[0])
	}
}

// --- 2. Tybalt end to end ---

func trainedTybalt(t *testing.T, epochs int, kappa float64, separateLoss bool) (*Tybalt, *data.Table) {
	t.Helper()

	model, err := NewTybalt(TybaltConfig{
		OriginalDim: 10,
		LatentDim:   2,
		BatchSize:   5,
		Epochs:      epochs,
		Kappa:       kappa,
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	train := data.SyntheticExpression(20, 10, 11)
	test := data.SyntheticExpression(5, 10, 13)
	if err := model.Train(train, test, separateLoss); err != nil {
		t.Fatalf("train: %v", err)
	}
	return model, test
}

func TestTybaltAggressiveWarmUpClampsAtCap(t *testing.T) {
	// kappa = 1 reaches the cap after a single epoch; two epochs confirm
	// the clamp holds rather than overshooting to 2.
	model, _ := trainedTybalt(t, 2, 1, false)
	if model.Beta() != 1.0 {
		t.Errorf("beta after training = %v, want 1.0", model.Beta())
	}
}

func TestTybaltHistoryAndFiniteLosses(t *testing.T) {
	model, _ := trainedTybalt(t, 2, 1, false)
	hist := model.TrainingHistory()
	if hist.Len() != 2 {
		t.Fatalf("history has %d rows, want 2", hist.Len())
	}
	for i := 0; i < hist.Len(); i++ {
		if math.IsNaN(hist.Loss[i]) || math.IsNaN(hist.ValLoss[i]) {
			t.Errorf("epoch %d: loss %v, val_loss %v", i, hist.Loss[i], hist.ValLoss[i])
		}
	}
}

func TestTybaltCompressDeterministic(t *testing.T) {
	model, held := trainedTybalt(t, 1, 1, false)

	first, err := model.Compress(held)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	second, err := model.Compress(held)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	for i := 0; i < first.Rows(); i++ {
		for j := 0; j < first.Cols(); j++ {
			if first.At(i, j) != second.At(i, j) {
				t.Fatalf("compress not deterministic at [%d,%d]: %v vs %v",
					i, j, first.At(i, j), second.At(i, j))
			}
		}
	}
}

func TestTybaltSeparateLossDecomposition(t *testing.T) {
	model, _ := trainedTybalt(t, 2, 0.5, true)
	hist := model.TrainingHistory()

	if len(hist.Recon) != 2 || len(hist.KL) != 2 {
		t.Fatalf("decomposition lengths %d/%d, want 2/2", len(hist.Recon), len(hist.KL))
	}
	for i := range hist.Recon {
		if math.IsNaN(hist.Recon[i]) || hist.KL[i] < 0 {
			t.Errorf("epoch %d: recon %v, kl %v", i, hist.Recon[i], hist.KL[i])
		}
	}

	tbl := hist.Table()
	if tbl.Cols() != 4 {
		t.Errorf("history table has %d columns, want loss/val_loss/recon/kl", tbl.Cols())
	}
}

// --- 3. cTybalt end to end ---

func TestCTybaltEndToEnd(t *testing.T) {
	model, err := NewCTybalt(CTybaltConfig{
		OriginalDim: 10,
		LatentDim:   2,
		LabelDim:    3,
		BatchSize:   5,
		Epochs:      1,
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	train := data.SyntheticExpression(20, 10, 17)
	trainLabels := data.SyntheticLabels(20, 3, 17)
	test := data.SyntheticExpression(5, 10, 19)
	testLabels := data.SyntheticLabels(5, 3, 19)

	if err := model.Train(train, trainLabels, test, testLabels); err != nil {
		t.Fatalf("train: %v", err)
	}

	hist := model.TrainingHistory()
	if hist.Len() != 1 || math.IsNaN(hist.Loss[0]) || math.IsNaN(hist.ValLoss[0]) {
		t.Fatalf("history rows %d, loss %v, val_loss %v", hist.Len(), hist.Loss[0], hist.ValLoss[0])
	}

	latent, err := model.Compress(test, testLabels)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if latent.Rows() != 5 || latent.Cols() != 2 {
		t.Errorf("latent table is %dx%d, want 5x2", latent.Rows(), latent.Cols())
	}
}

func TestCTybaltMisalignedLabelsFail(t *testing.T) {
	model, err := NewCTybalt(CTybaltConfig{OriginalDim: 10, LatentDim: 2, LabelDim: 3, BatchSize: 5, Epochs: 1})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	train := data.SyntheticExpression(20, 10, 17)
	badLabels := data.SyntheticLabels(15, 3, 17)
	test := data.SyntheticExpression(5, 10, 19)
	testLabels := data.SyntheticLabels(5, 3, 19)

	if err := model.Train(train, badLabels, test, testLabels); err == nil {
		t.Error("expected error for misaligned label table")
	}
}

// --- 4. Lifecycle and fail-fast errors ---

func TestTrainRequiresCompiledModel(t *testing.T) {
	model, err := NewTybalt(TybaltConfig{OriginalDim: 10, LatentDim: 2, BatchSize: 5, Epochs: 1})
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	train := data.SyntheticExpression(20, 10, 7)
	test := data.SyntheticExpression(5, 10, 9)
	if err := model.Train(train, test, false); err == nil {
		t.Error("expected error training an uninitialized model")
	}
}

func TestCompressRequiresTrainedModel(t *testing.T) {
	model, err := NewTybalt(TybaltConfig{OriginalDim: 10, LatentDim: 2, BatchSize: 5, Epochs: 1})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, err := model.Compress(data.SyntheticExpression(5, 10, 9)); err == nil {
		t.Error("expected error compressing before training")
	}
}

func TestDoubleInitializeFails(t *testing.T) {
	model, err := NewAdage(AdageConfig{OriginalDim: 10, LatentDim: 2, TiedWeights: true})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	if err := model.Initialize(); err == nil {
		t.Error("expected error on second initialize")
	}
}

func TestUnsupportedLossFailsAtCompile(t *testing.T) {
	cfg := DefaultAdageConfig
	cfg.OriginalDim = 10
	cfg.LatentDim = 2
	cfg.Loss = "hinge"

	model, err := NewAdage(cfg)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err == nil {
		t.Error("expected compile error for unsupported loss")
	}
}

func TestUnsupportedOptimizerFailsAtCompile(t *testing.T) {
	cfg := DefaultAdageConfig
	cfg.OriginalDim = 10
	cfg.LatentDim = 2
	cfg.Optimizer = "rmsprop"

	model, err := NewAdage(cfg)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err == nil {
		t.Error("expected compile error for unsupported optimizer")
	}
}

func TestDimensionMismatchFailsBeforeTraining(t *testing.T) {
	model, err := NewTybalt(TybaltConfig{OriginalDim: 10, LatentDim: 2, BatchSize: 5, Epochs: 1})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := model.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	wrong := data.SyntheticExpression(20, 8, 7) // 8 features, model expects 10
	test := data.SyntheticExpression(5, 10, 9)
	if err := model.Train(wrong, test, false); err == nil {
		t.Error("expected dimension mismatch error before any training")
	}
	if model.TrainingHistory().Len() != 0 {
		t.Error("history populated despite failed training")
	}
}
