// Package fluxmap segments cells into spatial domains by clustering flux
// embeddings with self-organizing maps, selecting the cluster count via an
// elbow heuristic, and vectorizing same-label pixel regions into polygon
// shape layers.
package fluxmap

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"rnaflux/internal/elbow"
	"rnaflux/internal/spatial"
	"rnaflux/pkg/geometry"
)

// ErrFluxNotComputed reports a missing flux embedding prerequisite.
var ErrFluxNotComputed = errors.New("fluxmap: flux embedding not computed; run flux first")

// ErrNoElbow reports that no knee was found over the candidate cluster counts.
var ErrNoElbow = errors.New("fluxmap: no elbow found over candidate cluster counts")

// LayerPrefix names the domain shape layers: fluxmap1, fluxmap2, ...
const LayerPrefix = "fluxmap"

// Options configures the domain segmentation.
type Options struct {
	// NClusters lists the candidate cluster counts. A single entry skips
	// model selection. See ClusterRange for the common contiguous case.
	NClusters []int

	// NumIterations is the number of SOM training steps per candidate.
	NumIterations int

	// TrainSize is the fraction of pixels used for training, drawn without
	// replacement. 1 trains on the full set. Must be in (0, 1].
	TrainSize float64

	// RandomState seeds subsampling and SOM training.
	RandomState int64

	// Clusterer overrides the clustering strategy per candidate count.
	// Defaults to NewSOMBuilder(NumIterations, RandomState).
	Clusterer ClustererBuilder
}

// DefaultOptions returns the standard fluxmap configuration.
func DefaultOptions() Options {
	return Options{
		NClusters:     ClusterRange(2, 8),
		NumIterations: 1000,
		TrainSize:     0.2,
		RandomState:   11,
	}
}

// ClusterRange returns the inclusive range [lo, hi] as a candidate list.
func ClusterRange(lo, hi int) []int {
	var ks []int
	for k := lo; k <= hi; k++ {
		ks = append(ks, k)
	}
	return ks
}

// Compute clusters all pixel embeddings, assigns every pixel a domain label,
// and replaces the fluxmap shape layers with freshly vectorized domain
// polygons. On any error no state is written.
func Compute(ds *spatial.Dataset, opts Options, log zerolog.Logger) error {
	rt := ds.Raster()
	if !rt.HasFlux() {
		return ErrFluxNotComputed
	}
	ks, err := normalizeCandidates(opts.NClusters)
	if err != nil {
		return err
	}
	if opts.TrainSize <= 0 || opts.TrainSize > 1 {
		return fmt.Errorf("fluxmap: train size must be in (0, 1], got %g", opts.TrainSize)
	}
	if opts.NumIterations <= 0 {
		return fmt.Errorf("fluxmap: num iterations must be positive, got %d", opts.NumIterations)
	}

	embed := rt.Embed
	train := embed
	if opts.TrainSize < 1 {
		rng := rand.New(rand.NewSource(opts.RandomState))
		train = subsampleRows(embed, opts.TrainSize, rng)
	}

	builder := opts.Clusterer
	if builder == nil {
		builder = NewSOMBuilder(opts.NumIterations, opts.RandomState)
	}

	// Train one model per candidate k in ascending order. Quantization
	// error is evaluated on the full pixel set, not the training subsample,
	// so errors stay comparable across subsample draws.
	models := make(map[int]Clusterer, len(ks))
	qErrors := make([]float64, len(ks))
	for i, k := range ks {
		c, err := builder(k)
		if err != nil {
			return fmt.Errorf("fluxmap: k=%d: %w", k, err)
		}
		if err := c.Train(train); err != nil {
			return fmt.Errorf("fluxmap: k=%d: %w", k, err)
		}
		models[k] = c
		qErrors[i] = c.QuantizationError(embed)
		log.Debug().Int("k", k).Float64("quantization_error", qErrors[i]).Msg("candidate trained")
	}

	bestK := ks[0]
	if len(ks) > 1 {
		k, ok, err := elbow.Locate(ks, qErrors)
		if err != nil {
			return fmt.Errorf("fluxmap: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: tried k=%v; retry with a fixed k or a different range", ErrNoElbow, ks)
		}
		bestK = k
	}
	log.Info().Int("best_k", bestK).Msg("cluster count selected")

	// Assign every pixel, trained and held-out alike. Unit indices shift
	// by one so 0 stays free for "unassigned".
	winner := models[bestK]
	labels := make([]int, len(embed))
	for i, x := range embed {
		labels[i] = winner.Winner(x) + 1
	}

	layers, err := vectorizeCells(ds, rt, labels, bestK)
	if err != nil {
		return err
	}

	// All computation succeeded; now replace prior state. The raster table
	// swap keeps concurrent readers on the old labels until the new table
	// is complete.
	newRT := rt.Clone()
	newRT.Label = labels
	ds.SetRaster(newRT)

	ds.DeleteShapesWithPrefix(LayerPrefix)
	for label := 1; label <= bestK; label++ {
		ds.SetShapes(layerName(label), layers[label])
	}

	assignTranscriptDomains(ds, bestK)
	return nil
}

func layerName(label int) string {
	return fmt.Sprintf("%s%d", LayerPrefix, label)
}

// normalizeCandidates validates and sorts the candidate list ascending,
// dropping duplicates.
func normalizeCandidates(ks []int) ([]int, error) {
	if len(ks) == 0 {
		return nil, fmt.Errorf("fluxmap: no candidate cluster counts")
	}
	seen := make(map[int]bool)
	var out []int
	for _, k := range ks {
		if k < 1 {
			return nil, fmt.Errorf("fluxmap: cluster count must be >= 1, got %d", k)
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out, nil
}

// vectorizeCells reconstructs domain polygons per cell and groups them into
// one shape layer per label, with an explicit empty geometry for every cell
// that has no region of that label.
func vectorizeCells(ds *spatial.Dataset, rt *spatial.RasterTable, labels []int, k int) (map[int]*spatial.ShapeLayer, error) {
	boundaries, ok := ds.Shapes(spatial.CellBoundariesLayer)
	if !ok {
		return nil, fmt.Errorf("fluxmap: shape layer %q not found", spatial.CellBoundariesLayer)
	}
	cellIDs := append([]string(nil), boundaries.IDs...)
	sort.Strings(cellIDs)
	rowOf := make(map[string]int, len(cellIDs))
	for i, id := range cellIDs {
		rowOf[id] = i
	}

	// geoms[label][cellRow]
	geoms := make(map[int][]geometry.MultiPolygon, k)
	for label := 1; label <= k; label++ {
		geoms[label] = make([]geometry.MultiPolygon, len(cellIDs))
	}

	step := rt.Step
	for cell, rows := range rt.CellGroups() {
		cellRow, known := rowOf[cell]
		if !known || len(rows) == 0 {
			// A cell with no boundary or no pixels is skipped, not an error.
			continue
		}
		ix := make([]int, len(rows))
		iy := make([]int, len(rows))
		cellLabels := make([]int, len(rows))
		for i, r := range rows {
			ix[i] = int(math.Round(rt.X[r] / step))
			iy[i] = int(math.Round(rt.Y[r] / step))
			cellLabels[i] = labels[r]
		}
		img := newLabelImage(ix, iy, cellLabels)
		for label, geom := range vectorizeLabels(img) {
			// Rescale from grid-index space back to true coordinates.
			geoms[label][cellRow] = geom.Scale(step)
		}
	}

	layers := make(map[int]*spatial.ShapeLayer, k)
	for label := 1; label <= k; label++ {
		layer := spatial.NewShapeLayer(cellIDs, geoms[label])
		layer.Parent = parentCells(layer, boundaries)
		layers[label] = layer
	}
	return layers, nil
}

// parentCells associates every domain polygon with the boundary shape
// containing its centroid (spatial containment join). Empty geometries get
// an empty parent.
func parentCells(layer, boundaries *spatial.ShapeLayer) []string {
	parents := make([]string, layer.Len())
	for i, geom := range layer.Geoms {
		if geom.IsEmpty() {
			continue
		}
		probe := geom.Polygons[0].Centroid()
		for j, b := range boundaries.Geoms {
			if b.Contains(probe) {
				parents[i] = boundaries.IDs[j]
				break
			}
		}
	}
	return parents
}

// assignTranscriptDomains rewrites the per-transcript domain column by
// spatially joining each transcript against its cell's domain polygons.
func assignTranscriptDomains(ds *spatial.Dataset, k int) {
	domains := make([]int, ds.Points.Len())
	layers := make([]*spatial.ShapeLayer, 0, k)
	for label := 1; label <= k; label++ {
		if l, ok := ds.Shapes(layerName(label)); ok {
			layers = append(layers, l)
		}
	}
	for i := 0; i < ds.Points.Len(); i++ {
		pt := geometry.Point2D{X: ds.Points.X[i], Y: ds.Points.Y[i]}
		for label, layer := range layers {
			geom, ok := layer.Get(ds.Points.Cell[i])
			if !ok || geom.IsEmpty() {
				continue
			}
			if geom.Contains(pt) {
				domains[i] = label + 1
				break
			}
		}
	}
	ds.Points.Domain = domains
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
