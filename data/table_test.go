package data

import "testing"

func TestNewTableShapeMismatch(t *testing.T) {
	_, err := NewTable([]string{"a", "b"}, []string{"x"}, []float64{1, 2, 3})
	if err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestTableAccessors(t *testing.T) {
	tbl, err := NewTable(
		[]string{"s1", "s2"},
		[]string{"g1", "g2", "g3"},
		[]float64{1, 2, 3, 4, 5, 6},
	)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}

	if tbl.Rows() != 2 || tbl.Cols() != 3 {
		t.Errorf("shape %dx%d, want 2x3", tbl.Rows(), tbl.Cols())
	}
	if tbl.At(1, 2) != 6 {
		t.Errorf("At(1,2) = %v, want 6", tbl.At(1, 2))
	}
	if got := tbl.Row(0); got[0] != 1 || got[2] != 3 {
		t.Errorf("Row(0) = %v", got)
	}
}

func TestTableSlicePreservesIndexOrder(t *testing.T) {
	tbl, err := NewTable(
		[]string{"s1", "s2", "s3", "s4"},
		[]string{"g1"},
		[]float64{1, 2, 3, 4},
	)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}

	sub, err := tbl.Slice(1, 3)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if sub.Rows() != 2 || sub.Index()[0] != "s2" || sub.Index()[1] != "s3" {
		t.Errorf("slice index = %v", sub.Index())
	}

	// The slice owns its storage.
	sub.Values()[0] = 99
	if tbl.At(1, 0) == 99 {
		t.Error("slice aliases the parent table storage")
	}
}

func TestSyntheticExpressionReproducible(t *testing.T) {
	a := SyntheticExpression(5, 3, 42)
	b := SyntheticExpression(5, 3, 42)

	for i := 0; i < 5; i++ {
		for j := 0; j < 3; j++ {
			if a.At(i, j) != b.At(i, j) {
				t.Fatalf("same seed produced different values at [%d,%d]", i, j)
			}
			if a.At(i, j) < 0 || a.At(i, j) > 1 {
				t.Fatalf("value %v outside [0,1]", a.At(i, j))
			}
		}
	}
}

func TestSyntheticLabelsOneHot(t *testing.T) {
	labels := SyntheticLabels(10, 4, 7)
	for i := 0; i < labels.Rows(); i++ {
		var sum float64
		for j := 0; j < labels.Cols(); j++ {
			sum += labels.At(i, j)
		}
		if sum != 1 {
			t.Errorf("row %d sums to %v, want one-hot", i, sum)
		}
	}
}
