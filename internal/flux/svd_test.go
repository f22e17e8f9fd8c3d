package flux

import (
	"math"
	"testing"
)

func TestTruncatedSVDProjectionDims(t *testing.T) {
	train := [][]float64{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
	svd := NewTruncatedSVD(2)
	if err := svd.Fit(train); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if svd.Components() != 2 {
		t.Errorf("Components() = %d, want 2", svd.Components())
	}
	out := svd.Transform(train)
	if len(out) != 4 || len(out[0]) != 2 {
		t.Fatalf("Transform dims = %dx%d, want 4x2", len(out), len(out[0]))
	}
}

func TestTruncatedSVDCapturesDominantDirection(t *testing.T) {
	// Rank-1 data along (1, 1, 0): the first component must carry all of it.
	train := [][]float64{
		{1, 1, 0},
		{2, 2, 0},
		{-1, -1, 0},
		{3, 3, 0},
	}
	svd := NewTruncatedSVD(2)
	if err := svd.Fit(train); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out := svd.Transform(train)
	for i, row := range out {
		if math.Abs(row[1]) > 1e-9 {
			t.Errorf("row %d second component = %g, want ~0", i, row[1])
		}
	}
	// Projections along the dominant direction keep relative magnitudes.
	if math.Abs(out[1][0]) <= math.Abs(out[0][0]) {
		t.Errorf("|proj(2,2,0)| = %g not greater than |proj(1,1,0)| = %g", math.Abs(out[1][0]), math.Abs(out[0][0]))
	}

	ratios := svd.VarianceRatio()
	if len(ratios) != 2 {
		t.Fatalf("VarianceRatio() has %d entries, want 2", len(ratios))
	}
	if ratios[0] < 0.99 {
		t.Errorf("first component explains %g, want ~1", ratios[0])
	}
}

func TestTruncatedSVDZeroRowsStayZero(t *testing.T) {
	train := [][]float64{
		{1, 2, 3},
		{0, 0, 0},
		{4, 5, 6},
	}
	svd := NewTruncatedSVD(2)
	if err := svd.Fit(train); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	out := svd.Transform(train)
	for j, v := range out[1] {
		if v != 0 {
			t.Errorf("zero row projected to nonzero component %d = %g", j, v)
		}
	}
}

func TestTruncatedSVDClampsToTrainingRows(t *testing.T) {
	// A thin SVD of a 3x6 matrix has only 3 right singular vectors, so the
	// component count clamps to the row count instead of reading past the
	// factorization.
	train := [][]float64{
		{1, 0, 2, 0, 0, 1},
		{0, 3, 0, 1, 0, 0},
		{0, 0, 1, 0, 4, 0},
	}
	svd := NewTruncatedSVD(5)
	if err := svd.Fit(train); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if svd.Components() != 3 {
		t.Errorf("Components() = %d, want 3", svd.Components())
	}
	out := svd.Transform(train)
	if len(out[0]) != 3 {
		t.Errorf("Transform row width = %d, want 3", len(out[0]))
	}
	if got := len(svd.VarianceRatio()); got != 3 {
		t.Errorf("VarianceRatio() has %d entries, want 3", got)
	}
}

func TestTruncatedSVDValidation(t *testing.T) {
	svd := NewTruncatedSVD(5)
	if err := svd.Fit([][]float64{{1, 2}}); err == nil {
		t.Error("expected error when components exceed columns")
	}
	if err := svd.Fit(nil); err == nil {
		t.Error("expected error for empty training set")
	}
}
