package ml

import (
	"strconv"

	"github.com/sunny1205124/tybalt/data"
)

// History is the append-only record of per-epoch training metrics. Recon
// and KL columns are only populated when loss decomposition was enabled.
type History struct {
	Loss    []float64
	ValLoss []float64
	Recon   []float64
	KL      []float64
}

func (h *History) Len() int { return len(h.Loss) }

func (h *History) append(loss, valLoss float64) {
	h.Loss = append(h.Loss, loss)
	h.ValLoss = append(h.ValLoss, valLoss)
}

func (h *History) attachDecomposition(recon, kl []float64) {
	h.Recon = recon
	h.KL = kl
}

// scale multiplies the combined loss columns in place. The denoising model
// uses it to rescale its per-feature mean loss up to a per-sample total so
// the numbers line up with the variational models.
func (h *History) scale(factor float64) {
	for i := range h.Loss {
		h.Loss[i] *= factor
		h.ValLoss[i] *= factor
	}
}

// Table lays the history out as a sample table: one row per completed
// epoch, indexed by epoch number starting at 1.
func (h *History) Table() *data.Table {
	if h.Len() == 0 {
		return nil
	}

	columns := []string{"loss", "val_loss"}
	decomposed := len(h.Recon) == h.Len() && h.Len() > 0
	if decomposed {
		columns = append(columns, "recon", "kl")
	}

	index := make([]string, h.Len())
	values := make([]float64, 0, h.Len()*len(columns))
	for i := 0; i < h.Len(); i++ {
		index[i] = strconv.Itoa(i + 1)
		values = append(values, h.Loss[i], h.ValLoss[i])
		if decomposed {
			values = append(values, h.Recon[i], h.KL[i])
		}
	}

	tbl, err := data.NewTable(index, columns, values)
	if err != nil {
		panic("history table construction: " + err.Error())
	}
	return tbl
}
