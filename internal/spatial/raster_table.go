package spatial

import (
	"rnaflux/internal/sparse"
)

// RasterTable is the typed per-pixel table produced by rasterization and
// filled in by the flux and fluxmap stages. All per-pixel slices are either
// nil (field not computed) or have length Len().
//
// When interchanging with column-oriented stores, fields map to the
// conventional column names: Flux columns carry the gene names in FluxGenes
// order, Embed columns serialize as flux_embed_0..flux_embed_{d-1}, Color as
// flux_color, Label as fluxmap, and Scores entries as flux_{source}.
type RasterTable struct {
	Cell []string
	X    []float64
	Y    []float64

	// Step is the grid spacing the pixels were generated at. Pixels sit on
	// multiples of Step anchored at the global origin.
	Step float64

	// Flux is the pixel-by-gene flux matrix.
	Flux *sparse.CSR

	// Embed is the reduced flux embedding, one row per pixel.
	Embed [][]float64

	// Color is the per-pixel display color as a #rrggbbaa hex string.
	Color []string

	// Density is the raw neighborhood transcript count per pixel.
	Density []float64

	// Label is the fluxmap domain label per pixel; 0 means unassigned.
	Label []int

	// Scores holds per-pixel functional enrichment columns keyed by
	// gene-set source name.
	Scores map[string][]float64
}

// Len returns the number of raster points.
func (rt *RasterTable) Len() int {
	return len(rt.Cell)
}

// HasFlux reports whether the flux embedding stage has populated the table.
func (rt *RasterTable) HasFlux() bool {
	return rt != nil && rt.Flux != nil && len(rt.Embed) == rt.Len()
}

// CellGroups groups pixel row indices by cell id.
func (rt *RasterTable) CellGroups() map[string][]int {
	groups := make(map[string][]int)
	for i, c := range rt.Cell {
		groups[c] = append(groups[c], i)
	}
	return groups
}

// Clone returns a deep copy for copy-then-swap replacement.
func (rt *RasterTable) Clone() *RasterTable {
	if rt == nil {
		return nil
	}
	c := &RasterTable{
		Cell:    append([]string(nil), rt.Cell...),
		X:       append([]float64(nil), rt.X...),
		Y:       append([]float64(nil), rt.Y...),
		Step:    rt.Step,
		Color:   append([]string(nil), rt.Color...),
		Density: append([]float64(nil), rt.Density...),
		Label:   append([]int(nil), rt.Label...),
	}
	if rt.Flux != nil {
		c.Flux = rt.Flux.Clone()
	}
	if rt.Embed != nil {
		c.Embed = make([][]float64, len(rt.Embed))
		for i, row := range rt.Embed {
			c.Embed[i] = append([]float64(nil), row...)
		}
	}
	if rt.Scores != nil {
		c.Scores = make(map[string][]float64, len(rt.Scores))
		for k, v := range rt.Scores {
			c.Scores[k] = append([]float64(nil), v...)
		}
	}
	return c
}
