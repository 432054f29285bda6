// Package data holds the in-memory tabular form of expression matrices:
// rows are samples addressed by ID, columns are features. Loading and
// normalizing matrices from disk is left to callers.
package data

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Table is a sample-indexed numeric table. The row order of the index is
// preserved through every operation that produces a new table.
type Table struct {
	index   []string
	columns []string
	rows    int
	cols    int
	data    []float64
	dense   *mat.Dense
}

func NewTable(index, columns []string, values []float64) (*Table, error) {
	rows, cols := len(index), len(columns)
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("table requires at least one row and one column")
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("table shape mismatch: %d values for %dx%d", len(values), rows, cols)
	}

	return &Table{
		index:   index,
		columns: columns,
		rows:    rows,
		cols:    cols,
		data:    values,
		dense:   mat.NewDense(rows, cols, values),
	}, nil
}

func (t *Table) Rows() int { return t.rows }
func (t *Table) Cols() int { return t.cols }

// Index returns the ordered sample IDs.
func (t *Table) Index() []string { return t.index }

func (t *Table) Columns() []string { return t.columns }

// Values exposes the flat row-major backing slice (not a copy).
func (t *Table) Values() []float64 { return t.data }

func (t *Table) Dense() *mat.Dense { return t.dense }

func (t *Table) At(i, j int) float64 {
	return t.data[i*t.cols+j]
}

// Row returns one sample's feature vector as a view into the backing slice.
func (t *Table) Row(i int) []float64 {
	return t.data[i*t.cols : (i+1)*t.cols]
}

// Slice returns a new table over rows [from, to), sharing no storage with
// the receiver.
func (t *Table) Slice(from, to int) (*Table, error) {
	if from < 0 || to > t.rows || from >= to {
		return nil, fmt.Errorf("slice bounds [%d, %d) out of range for %d rows", from, to, t.rows)
	}

	index := make([]string, to-from)
	copy(index, t.index[from:to])
	values := make([]float64, (to-from)*t.cols)
	copy(values, t.data[from*t.cols:to*t.cols])
	return NewTable(index, t.columns, values)
}
