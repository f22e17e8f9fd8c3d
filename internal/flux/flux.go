// Package flux computes the RNAflux embedding: for every raster pixel inside
// a cell, the local gene composition relative to the cell's overall
// composition, reduced to a low-dimensional embedding shared dataset-wide.
package flux

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"rnaflux/internal/neighbors"
	"rnaflux/internal/raster"
	"rnaflux/internal/sparse"
	"rnaflux/internal/spatial"
	"rnaflux/pkg/geometry"
)

// MinGenes is the smallest gene vocabulary the embedding accepts: with fewer
// than 5 genes the G-1 component cap leaves too few usable components.
const MinGenes = 5

// minExpressedGenes is the per-cell expression threshold below which the
// cell's composition vectors are near-constant and degrade the shared basis.
const minExpressedGenes = 4

// ErrTooFewGenes reports a gene vocabulary below MinGenes.
var ErrTooFewGenes = errors.New("flux: gene vocabulary too small")

// Method selects the neighborhood definition.
type Method string

const (
	// MethodRadius aggregates transcripts within a distance of each pixel.
	MethodRadius Method = "radius"
	// MethodKNN aggregates the k nearest transcripts to each pixel.
	MethodKNN Method = "knn"
)

// Options configures the flux embedding.
type Options struct {
	Method Method

	// KNeighbors is the neighbor count for MethodKNN.
	KNeighbors int

	// RadiusAbsolute is the neighborhood radius in coordinate units.
	// When zero, RadiusFraction applies instead.
	RadiusAbsolute float64

	// RadiusFraction sizes the neighborhood as a fraction of the mean
	// equivalent cell radius. Only used when RadiusAbsolute is zero.
	RadiusFraction float64

	// Res is the rendering resolution; pixels are spaced 1/Res units apart.
	Res float64

	// TrainSize is the fraction of pixels the reduction basis is fit on.
	// 1 fits on all pixels. Must be in (0, 1].
	TrainSize float64

	// RandomState seeds subsampling and the reducer.
	RandomState int64

	// Recompute forces a full recomputation even when a flux embedding is
	// already present.
	Recompute bool

	// Workers bounds per-cell parallelism; 0 means runtime.NumCPU().
	Workers int

	// Reducer overrides the dimensionality-reduction strategy. Defaults to
	// a truncated SVD with min(G-1, 10) components.
	Reducer Reducer
}

// DefaultOptions returns the standard flux configuration.
func DefaultOptions() Options {
	return Options{
		Method:         MethodRadius,
		RadiusFraction: 0.25,
		Res:            0.1,
		TrainSize:      1.0,
		RandomState:    11,
	}
}

// cellResult is the owned output of one per-cell task.
type cellResult struct {
	cell    string
	rows    [][]float64 // pixel flux vectors
	density []float64   // raw neighborhood counts
	err     error
}

// Compute runs the flux embedding over the whole dataset and installs the
// resulting raster table. A second call with identical inputs and
// Recompute=false is a no-op.
func Compute(ds *spatial.Dataset, opts Options, log zerolog.Logger) error {
	if rt := ds.Raster(); rt.HasFlux() && !opts.Recompute {
		log.Debug().Msg("flux already computed; skipping")
		return nil
	}

	g := ds.Vocab.Len()
	if g < MinGenes {
		return fmt.Errorf("%w: have %d genes, need at least %d", ErrTooFewGenes, g, MinGenes)
	}
	if opts.TrainSize <= 0 || opts.TrainSize > 1 {
		return fmt.Errorf("flux: train size must be in (0, 1], got %g", opts.TrainSize)
	}
	if opts.Res <= 0 {
		return fmt.Errorf("flux: res must be positive, got %g", opts.Res)
	}

	boundaries, ok := ds.Shapes(spatial.CellBoundariesLayer)
	if !ok {
		return fmt.Errorf("flux: shape layer %q not found", spatial.CellBoundariesLayer)
	}

	nopts, err := neighborOptions(opts, boundaries)
	if err != nil {
		return err
	}

	step := 1 / opts.Res
	grid, skipped, err := raster.Rasterize(boundaries, step, log)
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		log.Warn().Int("cells", len(skipped)).Msg("cells excluded from rasterization")
	}

	pointGroups := ds.PointsByCell()
	rasterGroups := grid.CellGroups()
	cells := sharedCells(pointGroups, rasterGroups)
	if len(cells) == 0 {
		return fmt.Errorf("flux: no cell has both transcripts and raster points")
	}

	counts := ds.CountMatrix(cells)
	cellComp := make([][]float64, len(cells))
	for i, row := range counts {
		cellComp[i] = normalizeComposition(row)
		if expressed(row) < minExpressedGenes {
			log.Warn().Str("cell", cells[i]).Int("expressed_genes", expressed(row)).
				Msg("cell below minimum expressed genes; embedding may be degenerate")
		}
	}

	results := computeCells(ds, grid, cells, cellComp, pointGroups, rasterGroups, nopts, opts.Workers)

	// Concatenate per-cell results in ascending cell order, dropping cells
	// whose task failed.
	table := &spatial.RasterTable{Step: step}
	var blocks []*sparse.CSR
	var density []float64
	for i, res := range results {
		if res.err != nil {
			log.Error().Str("cell", res.cell).Err(res.err).
				Msg("flux computation failed for cell; excluding")
			continue
		}
		block, berr := sparse.NewFromDense(res.rows, g)
		if berr != nil {
			return fmt.Errorf("flux: cell %s: %w", res.cell, berr)
		}
		blocks = append(blocks, block)
		density = append(density, res.density...)
		for _, ri := range rasterGroups[cells[i]] {
			table.Cell = append(table.Cell, grid.Cell[ri])
			table.X = append(table.X, grid.X[ri])
			table.Y = append(table.Y, grid.Y[ri])
		}
	}
	if len(blocks) == 0 {
		return fmt.Errorf("flux: every cell failed")
	}
	fluxMat, err := sparse.Vstack(blocks)
	if err != nil {
		return err
	}
	fluxMat.ScrubNaN()

	// Fit the shared reduction basis, optionally on a subsample, then
	// project every pixel through it.
	reducer := opts.Reducer
	if reducer == nil {
		k := g - 1
		if k > 10 {
			k = 10
		}
		reducer = NewTruncatedSVD(k)
	}
	dense := fluxMat.ToDense()
	train := dense
	if opts.TrainSize < 1 {
		rng := rand.New(rand.NewSource(opts.RandomState))
		train = subsampleRows(dense, opts.TrainSize, rng)
	}
	if err := reducer.Fit(train); err != nil {
		return fmt.Errorf("flux: %w", err)
	}
	embed := reducer.Transform(dense)

	table.Flux = fluxMat
	table.Embed = embed
	table.Density = density
	table.Color = embeddingColors(embed, density)

	ds.SetRaster(table)
	ds.FluxGenes = append([]string(nil), ds.Vocab.Names()...)
	ds.FluxVarianceRatio = append([]float64(nil), reducer.VarianceRatio()...)

	log.Info().Int("pixels", table.Len()).Int("cells", len(blocks)).
		Int("components", reducer.Components()).Msg("flux embedding computed")
	return nil
}

// computeCells runs the per-cell flux tasks on a bounded worker pool.
// Results are ordered by cell index; a failing cell reports its error
// without aborting siblings.
func computeCells(
	ds *spatial.Dataset,
	grid *spatial.RasterTable,
	cells []string,
	cellComp [][]float64,
	pointGroups, rasterGroups map[string][]int,
	nopts neighbors.Options,
	workers int,
) []cellResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]cellResult, len(cells))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = computeCell(ds, grid, cells[i], cellComp[i], pointGroups[cells[i]], rasterGroups[cells[i]], nopts)
			}
		}()
	}
	for i := range cells {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// computeCell derives the flux vectors for one cell's pixels.
func computeCell(
	ds *spatial.Dataset,
	grid *spatial.RasterTable,
	cell string,
	comp []float64,
	pointIdx, rasterIdx []int,
	nopts neighbors.Options,
) cellResult {
	queries := make([]geometry.Point2D, len(pointIdx))
	genes := make([]int, len(pointIdx))
	for i, pi := range pointIdx {
		queries[i] = geometry.Point2D{X: ds.Points.X[pi], Y: ds.Points.Y[pi]}
		genes[i] = ds.Points.Gene[pi]
	}
	refs := make([]geometry.Point2D, len(rasterIdx))
	for i, ri := range rasterIdx {
		refs[i] = geometry.Point2D{X: grid.X[ri], Y: grid.Y[ri]}
	}

	countMat, err := neighbors.Count(queries, genes, refs, len(comp), nopts)
	if err != nil {
		return cellResult{cell: cell, err: err}
	}

	nPix, g := countMat.Dims()
	rows := make([][]float64, nPix)
	density := make([]float64, nPix)
	for i := 0; i < nPix; i++ {
		row := make([]float64, g)
		countMat.RowDense(i, row)
		var total float64
		for _, v := range row {
			total += v
		}
		density[i] = total
		if total == 0 {
			// An empty neighborhood carries no local signal; its flux
			// stays exactly zero rather than -cell composition.
			rows[i] = row
			continue
		}
		for j := range row {
			row[j] = row[j]/total - comp[j]
		}
		rows[i] = row
	}
	scaleUnitVariance(rows)
	return cellResult{cell: cell, rows: rows, density: density}
}

// scaleUnitVariance divides each column by its standard deviation without
// centering, so exact zeros stay exact zeros. Constant columns are left as is.
func scaleUnitVariance(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	g := len(rows[0])
	for j := 0; j < g; j++ {
		var mean float64
		for _, row := range rows {
			mean += row[j]
		}
		mean /= float64(len(rows))
		var v float64
		for _, row := range rows {
			d := row[j] - mean
			v += d * d
		}
		std := math.Sqrt(v / float64(len(rows)))
		if std == 0 {
			continue
		}
		for _, row := range rows {
			row[j] /= std
		}
	}
}

// neighborOptions resolves the radius or neighbor count from Options,
// deriving a radius from the mean cell radius when requested as a fraction.
func neighborOptions(opts Options, boundaries *spatial.ShapeLayer) (neighbors.Options, error) {
	switch opts.Method {
	case MethodKNN:
		if opts.KNeighbors <= 0 {
			return neighbors.Options{}, fmt.Errorf("flux: knn method requires a positive neighbor count")
		}
		return neighbors.Options{KNeighbors: opts.KNeighbors}, nil
	case MethodRadius:
		if opts.RadiusAbsolute > 0 {
			return neighbors.Options{Radius: opts.RadiusAbsolute}, nil
		}
		frac := opts.RadiusFraction
		if frac <= 0 {
			frac = 0.25
		}
		mean := meanCellRadius(boundaries)
		if mean <= 0 {
			return neighbors.Options{}, fmt.Errorf("flux: cannot derive radius, mean cell radius is zero")
		}
		return neighbors.Options{Radius: frac * mean}, nil
	default:
		return neighbors.Options{}, fmt.Errorf("flux: unknown method %q", opts.Method)
	}
}

// meanCellRadius computes the mean equivalent circle radius over the layer
// and records it as the per-shape "radius" metadata column.
func meanCellRadius(boundaries *spatial.ShapeLayer) float64 {
	radii := make([]float64, boundaries.Len())
	var sum float64
	for i, geom := range boundaries.Geoms {
		r := math.Sqrt(geom.Area() / math.Pi)
		radii[i] = r
		sum += r
	}
	_ = boundaries.SetMeta("radius", radii)
	if boundaries.Len() == 0 {
		return 0
	}
	return sum / float64(boundaries.Len())
}

// normalizeComposition converts raw counts to relative abundance, zero-filling
// when the cell has no transcripts.
func normalizeComposition(counts []float64) []float64 {
	var total float64
	for _, v := range counts {
		total += v
	}
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}
	for i, v := range counts {
		out[i] = v / total
	}
	return out
}

// expressed counts genes with nonzero counts.
func expressed(counts []float64) int {
	n := 0
	for _, v := range counts {
		if v > 0 {
			n++
		}
	}
	return n
}

// sharedCells returns the sorted cell ids present in both groupings.
func sharedCells(points, rasters map[string][]int) []string {
	var cells []string
	for c := range points {
		if _, ok := rasters[c]; ok {
			cells = append(cells, c)
		}
	}
	sort.Strings(cells)
	return cells
}

// subsampleRows draws a fraction of rows without replacement.
func subsampleRows(rows [][]float64, fraction float64, rng *rand.Rand) [][]float64 {
	n := int(fraction * float64(len(rows)))
	if n < 1 {
		n = 1
	}
	perm := rng.Perm(len(rows))[:n]
	sort.Ints(perm)
	out := make([][]float64, n)
	for i, p := range perm {
		out[i] = rows[p]
	}
	return out
}
