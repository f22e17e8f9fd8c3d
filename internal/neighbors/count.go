package neighbors

import (
	"fmt"

	"rnaflux/internal/sparse"
	"rnaflux/pkg/geometry"
)

// Options selects the neighborhood definition for Count. Exactly one of
// Radius and KNeighbors must be set.
type Options struct {
	// Radius searches for all queries within this distance of each
	// reference point.
	Radius float64

	// KNeighbors searches for the k nearest queries to each reference
	// point. Clamped to the number of query points.
	KNeighbors int

	// Binary clips per-gene counts to {0,1}.
	Binary bool
}

// Count returns a sparse [len(refs) x numGenes] matrix where entry (i, g)
// is the number of query points with gene code g inside the neighborhood of
// reference point i. Reference points with no neighbors produce all-zero
// rows; genes absent from the neighborhood simply stay zero.
func Count(queries []geometry.Point2D, genes []int, refs []geometry.Point2D, numGenes int, opts Options) (*sparse.CSR, error) {
	if len(queries) != len(genes) {
		return nil, fmt.Errorf("have %d query points but %d gene labels", len(queries), len(genes))
	}
	if (opts.Radius > 0) == (opts.KNeighbors > 0) {
		return nil, fmt.Errorf("exactly one of Radius and KNeighbors must be set")
	}

	tree := NewKDTree(queries)
	row := make([]float64, numGenes)
	rows := make([][]float64, 0, len(refs))
	for _, ref := range refs {
		var hits []int
		if opts.Radius > 0 {
			hits = tree.Radius(ref, opts.Radius)
		} else {
			hits = tree.KNearest(ref, opts.KNeighbors)
		}
		for i := range row {
			row[i] = 0
		}
		for _, h := range hits {
			g := genes[h]
			if g < 0 || g >= numGenes {
				return nil, fmt.Errorf("gene code %d out of range [0,%d)", g, numGenes)
			}
			if opts.Binary {
				row[g] = 1
			} else {
				row[g]++
			}
		}
		rows = append(rows, append([]float64(nil), row...))
	}
	return sparse.NewFromDense(rows, numGenes)
}
