// Package raster generates the uniform grid of sample points ("pixels")
// inside each cell boundary that the flux embedding attaches to.
package raster

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"rnaflux/internal/spatial"
	"rnaflux/pkg/geometry"
)

// Rasterize samples every cell boundary in the layer on a regular grid with
// the given spacing. The grid is anchored at the global origin, not per cell,
// so pixel positions are comparable in absolute index space across cells.
//
// The returned table is a complete replacement; callers must install it via
// Dataset.SetRaster, never merge it with a previous grid. Cells too small to
// contain a single grid point are excluded and returned in skipped.
func Rasterize(boundaries *spatial.ShapeLayer, step float64, log zerolog.Logger) (*spatial.RasterTable, []string, error) {
	if step <= 0 {
		return nil, nil, fmt.Errorf("rasterize: step must be positive, got %g", step)
	}

	ids := append([]string(nil), boundaries.IDs...)
	sort.Strings(ids)

	rt := &spatial.RasterTable{Step: step}
	var skipped []string
	for _, id := range ids {
		geom, _ := boundaries.Get(id)
		n := appendCellGrid(rt, id, geom, step)
		if n == 0 {
			skipped = append(skipped, id)
			log.Warn().Str("cell", id).Float64("step", step).
				Msg("cell boundary yields no raster points; excluding from flux")
		}
	}
	return rt, skipped, nil
}

// appendCellGrid appends grid points covering one cell and returns how many
// points were added.
func appendCellGrid(rt *spatial.RasterTable, cell string, geom geometry.MultiPolygon, step float64) int {
	if geom.IsEmpty() {
		return 0
	}
	b := geom.Bounds()
	// Snap the scan window outward to global grid coordinates.
	x0 := math.Ceil(b.X/step) * step
	y0 := math.Ceil(b.Y/step) * step
	added := 0
	for y := y0; y <= b.Y+b.Height; y += step {
		for x := x0; x <= b.X+b.Width; x += step {
			if geom.Contains(geometry.Point2D{X: x, Y: y}) {
				rt.Cell = append(rt.Cell, cell)
				rt.X = append(rt.X, x)
				rt.Y = append(rt.Y, y)
				added++
			}
		}
	}
	return added
}
