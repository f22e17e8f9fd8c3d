package sparse

import (
	"math"
	"testing"
)

func TestNewFromDenseRoundTrip(t *testing.T) {
	rows := [][]float64{
		{0, 1, 0, 2},
		{0, 0, 0, 0},
		{3, 0, 0.5, 0},
	}
	m, err := NewFromDense(rows, 4)
	if err != nil {
		t.Fatalf("NewFromDense: %v", err)
	}
	r, c := m.Dims()
	if r != 3 || c != 4 {
		t.Fatalf("Dims() = (%d, %d), want (3, 4)", r, c)
	}
	if got := m.NNZ(); got != 4 {
		t.Errorf("NNZ() = %d, want 4", got)
	}
	if got := m.RowNNZ(1); got != 0 {
		t.Errorf("RowNNZ(1) = %d, want 0", got)
	}
	back := m.ToDense()
	for i := range rows {
		for j := range rows[i] {
			if back[i][j] != rows[i][j] {
				t.Errorf("ToDense()[%d][%d] = %g, want %g", i, j, back[i][j], rows[i][j])
			}
		}
	}
}

func TestNewFromDenseWidthMismatch(t *testing.T) {
	if _, err := NewFromDense([][]float64{{1, 2}}, 3); err == nil {
		t.Fatal("expected error for row width mismatch")
	}
}

func TestVstack(t *testing.T) {
	a, _ := NewFromDense([][]float64{{1, 0}, {0, 2}}, 2)
	b, _ := NewFromDense([][]float64{{0, 3}}, 2)
	m, err := Vstack([]*CSR{a, b})
	if err != nil {
		t.Fatalf("Vstack: %v", err)
	}
	r, c := m.Dims()
	if r != 3 || c != 2 {
		t.Fatalf("Dims() = (%d, %d), want (3, 2)", r, c)
	}
	want := [][]float64{{1, 0}, {0, 2}, {0, 3}}
	got := m.ToDense()
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("row %d col %d = %g, want %g", i, j, got[i][j], want[i][j])
			}
		}
	}
}

func TestVstackColumnMismatch(t *testing.T) {
	a, _ := NewFromDense([][]float64{{1}}, 1)
	b, _ := NewFromDense([][]float64{{1, 2}}, 2)
	if _, err := Vstack([]*CSR{a, b}); err == nil {
		t.Fatal("expected error for column mismatch")
	}
}

func TestScrubNaN(t *testing.T) {
	m, _ := NewFromDense([][]float64{{math.NaN(), 1, math.Inf(1)}}, 3)
	m.ScrubNaN()
	got := m.ToDense()[0]
	if got[0] != 0 || got[2] != 0 {
		t.Errorf("ScrubNaN left %v", got)
	}
	if got[1] != 1 {
		t.Errorf("ScrubNaN clobbered finite value: %v", got)
	}
}

func TestRowIter(t *testing.T) {
	m, _ := NewFromDense([][]float64{{0, 5, 0, 7}}, 4)
	seen := map[int]float64{}
	m.RowIter(0, func(col int, v float64) { seen[col] = v })
	if len(seen) != 2 || seen[1] != 5 || seen[3] != 7 {
		t.Errorf("RowIter saw %v", seen)
	}
}

func TestClone(t *testing.T) {
	m, _ := NewFromDense([][]float64{{1, 2}}, 2)
	c := m.Clone()
	c.ScrubNaN() // no-op, but exercises the copy
	dst := make([]float64, 2)
	m.RowDense(0, dst)
	if dst[0] != 1 || dst[1] != 2 {
		t.Errorf("original mutated after clone: %v", dst)
	}
}
