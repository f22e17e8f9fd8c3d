package flux

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Reducer is the dimensionality-reduction strategy the flux embedding is
// projected through. The basis is fit once, dataset-wide, and read-only
// afterward.
type Reducer interface {
	// Fit learns a basis from the training rows.
	Fit(train [][]float64) error
	// Transform projects rows through the fitted basis.
	Transform(rows [][]float64) [][]float64
	// Components returns the embedding dimensionality.
	Components() int
	// VarianceRatio returns the explained-variance ratio per component,
	// measured on the training rows.
	VarianceRatio() []float64
}

// TruncatedSVD reduces rows to their projection onto the top right-singular
// vectors of the training matrix. Unlike PCA the data is not centered first,
// which keeps all-zero flux rows at exactly zero in the embedding.
type TruncatedSVD struct {
	k        int
	basis    *mat.Dense // cols x k
	varRatio []float64
}

// NewTruncatedSVD creates a reducer with k components.
func NewTruncatedSVD(k int) *TruncatedSVD {
	return &TruncatedSVD{k: k}
}

// Fit factorizes the training matrix and keeps the top-k right singular
// vectors as the projection basis.
func (t *TruncatedSVD) Fit(train [][]float64) error {
	n := len(train)
	if n == 0 {
		return fmt.Errorf("truncated svd: no training rows")
	}
	cols := len(train[0])
	if t.k > cols {
		return fmt.Errorf("truncated svd: %d components exceed %d columns", t.k, cols)
	}
	// A thin factorization yields only min(rows, cols) right singular
	// vectors; clamp the component count so small training sets stay in range.
	if t.k > n {
		t.k = n
	}

	a := mat.NewDense(n, cols, nil)
	for i, row := range train {
		a.SetRow(i, row)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return fmt.Errorf("truncated svd: factorization failed")
	}
	var v mat.Dense
	svd.VTo(&v)

	t.basis = mat.NewDense(cols, t.k, nil)
	for j := 0; j < t.k; j++ {
		for i := 0; i < cols; i++ {
			t.basis.Set(i, j, v.At(i, j))
		}
	}

	t.varRatio = t.varianceRatio(train)
	return nil
}

// Transform projects rows through the fitted basis.
func (t *TruncatedSVD) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		proj := make([]float64, t.k)
		for j := 0; j < t.k; j++ {
			var sum float64
			for c, v := range row {
				if v != 0 {
					sum += v * t.basis.At(c, j)
				}
			}
			proj[j] = sum
		}
		out[i] = proj
	}
	return out
}

// Components returns the embedding dimensionality.
func (t *TruncatedSVD) Components() int {
	return t.k
}

// VarianceRatio returns the explained-variance ratio per component.
func (t *TruncatedSVD) VarianceRatio() []float64 {
	return t.varRatio
}

// varianceRatio measures, per component, the variance of the projected
// training rows over the total column variance of the training matrix.
func (t *TruncatedSVD) varianceRatio(train [][]float64) []float64 {
	n := len(train)
	cols := len(train[0])

	colMean := make([]float64, cols)
	for _, row := range train {
		for c, v := range row {
			colMean[c] += v
		}
	}
	for c := range colMean {
		colMean[c] /= float64(n)
	}
	var totalVar float64
	for _, row := range train {
		for c, v := range row {
			d := v - colMean[c]
			totalVar += d * d
		}
	}
	totalVar /= float64(n)

	proj := t.Transform(train)
	ratios := make([]float64, t.k)
	if totalVar == 0 {
		return ratios
	}
	for j := 0; j < t.k; j++ {
		var mean float64
		for i := range proj {
			mean += proj[i][j]
		}
		mean /= float64(n)
		var v float64
		for i := range proj {
			d := proj[i][j] - mean
			v += d * d
		}
		ratios[j] = v / float64(n) / totalVar
	}
	return ratios
}
