// Package sparse provides a minimal compressed sparse row matrix for
// pixel-by-gene flux storage. Rows are pixels, columns are genes; most
// neighborhoods see only a handful of genes, so dense storage would waste
// memory on large panels.
package sparse

import (
	"fmt"
	"math"
)

// CSR is an immutable compressed sparse row matrix.
type CSR struct {
	rows, cols int
	rowPtr     []int
	colIdx     []int
	data       []float64
}

// NewFromDense builds a CSR matrix from dense rows, dropping exact zeros.
// All rows must have length cols.
func NewFromDense(rows [][]float64, cols int) (*CSR, error) {
	m := &CSR{rows: len(rows), cols: cols}
	m.rowPtr = make([]int, len(rows)+1)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		for j, v := range row {
			if v != 0 {
				m.colIdx = append(m.colIdx, j)
				m.data = append(m.data, v)
			}
		}
		m.rowPtr[i+1] = len(m.data)
	}
	return m, nil
}

// Vstack concatenates matrices vertically. All inputs must share a column count.
func Vstack(blocks []*CSR) (*CSR, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("vstack of zero blocks")
	}
	cols := blocks[0].cols
	out := &CSR{cols: cols, rowPtr: []int{0}}
	for i, b := range blocks {
		if b.cols != cols {
			return nil, fmt.Errorf("block %d has %d columns, want %d", i, b.cols, cols)
		}
		out.rows += b.rows
		base := len(out.data)
		out.colIdx = append(out.colIdx, b.colIdx...)
		out.data = append(out.data, b.data...)
		for r := 1; r <= b.rows; r++ {
			out.rowPtr = append(out.rowPtr, base+b.rowPtr[r])
		}
	}
	return out, nil
}

// Dims returns the matrix dimensions.
func (m *CSR) Dims() (rows, cols int) {
	return m.rows, m.cols
}

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int {
	return len(m.data)
}

// ScrubNaN replaces NaN and Inf entries with 0 in place.
func (m *CSR) ScrubNaN() {
	for i, v := range m.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			m.data[i] = 0
		}
	}
}

// RowDense writes row i into dst, which must have length cols.
func (m *CSR) RowDense(i int, dst []float64) {
	for j := range dst {
		dst[j] = 0
	}
	for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
		dst[m.colIdx[k]] = m.data[k]
	}
}

// RowNNZ returns the number of stored entries in row i.
func (m *CSR) RowNNZ(i int) int {
	return m.rowPtr[i+1] - m.rowPtr[i]
}

// RowIter calls fn for every stored entry of row i.
func (m *CSR) RowIter(i int, fn func(col int, v float64)) {
	for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
		fn(m.colIdx[k], m.data[k])
	}
}

// ToDense expands the matrix into newly allocated dense rows.
func (m *CSR) ToDense() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = make([]float64, m.cols)
		m.RowDense(i, out[i])
	}
	return out
}

// Clone returns a deep copy.
func (m *CSR) Clone() *CSR {
	c := &CSR{rows: m.rows, cols: m.cols}
	c.rowPtr = append([]int(nil), m.rowPtr...)
	c.colIdx = append([]int(nil), m.colIdx...)
	c.data = append([]float64(nil), m.data...)
	return c
}
