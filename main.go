package main

import (
	"fmt"

	"github.com/sunny1205124/tybalt/data"
	. "github.com/sunny1205124/tybalt/ml"
)

// -------- MAIN -------- //
func main() {
	// Synthetic expression data in [0,1]: 200 samples x 100 genes, plus a
	// held-out split. Swap in a real normalized matrix via data.NewTable.
	fmt.Println("Building dataset...")
	train := data.SyntheticExpression(200, 100, 42)
	test := data.SyntheticExpression(50, 100, 43)

	// 1. Tybalt VAE with KL warm-up and per-epoch loss decomposition
	tybalt, err := NewTybalt(TybaltConfig{
		OriginalDim: 100,
		LatentDim:   10,
		BatchSize:   50,
		Epochs:      20,
		Kappa:       0.1,
		Verbose:     true,
	})
	if err != nil {
		panic("tybalt config: " + err.Error())
	}
	if err := tybalt.Initialize(); err != nil {
		panic("tybalt init: " + err.Error())
	}

	fmt.Println("\nTraining Tybalt...")
	if err := tybalt.Train(train, test, true); err != nil {
		panic("tybalt train: " + err.Error())
	}
	fmt.Printf("Final beta: %.2f\n", tybalt.Beta())

	latent, err := tybalt.Compress(test)
	if err != nil {
		panic("tybalt compress: " + err.Error())
	}
	printLatentPreview("Tybalt", latent)

	// 2. ADAGE denoising autoencoder with tied weights
	adageCfg := DefaultAdageConfig
	adageCfg.OriginalDim = 100
	adageCfg.LatentDim = 10
	adageCfg.Epochs = 20
	adageCfg.Verbose = true

	adage, err := NewAdage(adageCfg)
	if err != nil {
		panic("adage config: " + err.Error())
	}
	if err := adage.Initialize(); err != nil {
		panic("adage init: " + err.Error())
	}

	fmt.Println("\nTraining ADAGE...")
	if err := adage.Train(train, test, false); err != nil {
		panic("adage train: " + err.Error())
	}
	fmt.Printf("Decoder free parameters (tied): %d\n", adage.DecoderParamCount())

	latent, err = adage.Compress(test)
	if err != nil {
		panic("adage compress: " + err.Error())
	}
	printLatentPreview("ADAGE", latent)
}

func printLatentPreview(name string, latent *data.Table) {
	fmt.Printf("\n%s latent table (%dx%d), first rows:\n", name, latent.Rows(), latent.Cols())
	n := latent.Rows()
	if n > 3 {
		n = 3
	}
	for i := 0; i < n; i++ {
		fmt.Printf("  %s:", latent.Index()[i])
		for _, v := range latent.Row(i) {
			fmt.Printf(" %7.4f", v)
		}
		fmt.Println()
	}
}
