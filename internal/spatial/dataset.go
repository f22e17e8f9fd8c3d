// Package spatial holds the in-process spatial dataset: the transcript point
// table, named shape layers, and the derived raster point table. It plays the
// role of the external spatial container the pipeline reads from and writes to.
//
// Derived tables follow a copy-then-swap discipline: producers build a complete
// replacement and install it under the write lock, so concurrent readers see
// either the fully-old or fully-new state, never a mix.
package spatial

import (
	"fmt"
	"sort"
	"sync"

	"rnaflux/pkg/geometry"
)

// Vocabulary is the fixed, ordered gene vocabulary for one dataset.
// Codes are assigned in first-appearance order and never change afterward.
type Vocabulary struct {
	names []string
	codes map[string]int
}

// BuildVocabulary assigns codes to gene names in first-appearance order.
func BuildVocabulary(genes []string) *Vocabulary {
	v := &Vocabulary{codes: make(map[string]int)}
	for _, g := range genes {
		if _, ok := v.codes[g]; !ok {
			v.codes[g] = len(v.names)
			v.names = append(v.names, g)
		}
	}
	return v
}

// Code returns the integer code for a gene name.
func (v *Vocabulary) Code(name string) (int, bool) {
	c, ok := v.codes[name]
	return c, ok
}

// Name returns the gene name for a code.
func (v *Vocabulary) Name(code int) string {
	return v.names[code]
}

// Len returns the vocabulary size.
func (v *Vocabulary) Len() int {
	return len(v.names)
}

// Names returns the ordered gene names. The returned slice is shared; do not modify.
func (v *Vocabulary) Names() []string {
	return v.names
}

// PointTable is a struct-of-arrays table of transcripts. All slices have
// equal length; row i describes one detected molecule.
type PointTable struct {
	Cell []string  // owning cell id
	Gene []int     // gene code into the dataset vocabulary
	X    []float64 // spatial coordinates
	Y    []float64

	// Domain is the fluxmap label of the enclosing domain polygon,
	// 0 when the transcript falls in no domain. Populated by fluxmap.
	Domain []int
}

// Len returns the number of transcripts.
func (t *PointTable) Len() int {
	return len(t.Cell)
}

// Transcript is one decoded row of a PointTable.
type Transcript struct {
	Cell string
	Gene int
	X, Y float64
}

// Append adds a transcript row.
func (t *PointTable) Append(cell string, gene int, x, y float64) {
	t.Cell = append(t.Cell, cell)
	t.Gene = append(t.Gene, gene)
	t.X = append(t.X, x)
	t.Y = append(t.Y, y)
}

// ShapeLayer is a set of named geometries, e.g. cell boundaries or the
// domain polygons of one fluxmap label. Meta holds per-shape scalar columns
// such as the equivalent cell radius.
type ShapeLayer struct {
	IDs   []string
	Geoms []geometry.MultiPolygon
	Meta  map[string][]float64

	// Parent maps each shape to its enclosing shape in another layer
	// (domain polygon -> cell). Empty when not applicable.
	Parent []string

	index map[string]int
}

// NewShapeLayer builds a layer from parallel id and geometry slices.
func NewShapeLayer(ids []string, geoms []geometry.MultiPolygon) *ShapeLayer {
	l := &ShapeLayer{IDs: ids, Geoms: geoms, Meta: make(map[string][]float64)}
	l.index = make(map[string]int, len(ids))
	for i, id := range ids {
		l.index[id] = i
	}
	return l
}

// Get returns the geometry for a shape id.
func (l *ShapeLayer) Get(id string) (geometry.MultiPolygon, bool) {
	i, ok := l.index[id]
	if !ok {
		return geometry.MultiPolygon{}, false
	}
	return l.Geoms[i], true
}

// Len returns the number of shapes.
func (l *ShapeLayer) Len() int {
	return len(l.IDs)
}

// SetMeta attaches a per-shape scalar column. The column length must match
// the layer length.
func (l *ShapeLayer) SetMeta(name string, values []float64) error {
	if len(values) != len(l.IDs) {
		return fmt.Errorf("meta column %q has %d values, layer has %d shapes", name, len(values), len(l.IDs))
	}
	l.Meta[name] = values
	return nil
}

// Dataset is the top-level spatial container.
type Dataset struct {
	mu sync.RWMutex

	Vocab  *Vocabulary
	Points *PointTable

	shapes map[string]*ShapeLayer
	raster *RasterTable

	// Dataset-wide outputs of the flux embedding. FluxGenes records the
	// vocabulary order the flux matrix columns follow.
	FluxGenes         []string
	FluxVarianceRatio []float64
}

// CellBoundariesLayer is the canonical layer name for cell outlines.
const CellBoundariesLayer = "cell_boundaries"

// NucleusLayer is the canonical layer name for nucleus outlines.
const NucleusLayer = "nucleus_boundaries"

// NewDataset creates a dataset from a transcript table and its vocabulary.
func NewDataset(vocab *Vocabulary, points *PointTable) *Dataset {
	return &Dataset{
		Vocab:  vocab,
		Points: points,
		shapes: make(map[string]*ShapeLayer),
	}
}

// SetShapes installs or replaces a shape layer.
func (d *Dataset) SetShapes(name string, layer *ShapeLayer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shapes[name] = layer
}

// Shapes returns a shape layer by name.
func (d *Dataset) Shapes(name string) (*ShapeLayer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.shapes[name]
	return l, ok
}

// ShapeNames returns the sorted names of all shape layers.
func (d *Dataset) ShapeNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.shapes))
	for name := range d.shapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteShapesWithPrefix removes every layer whose name begins with prefix
// and returns the removed names.
func (d *Dataset) DeleteShapesWithPrefix(prefix string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var removed []string
	for name := range d.shapes {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			delete(d.shapes, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}

// Raster returns the current raster table, or nil when none is computed.
func (d *Dataset) Raster() *RasterTable {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.raster
}

// SetRaster installs a complete replacement raster table.
func (d *Dataset) SetRaster(rt *RasterTable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raster = rt
}

// Cells returns the sorted ids of cells that have at least one transcript.
func (d *Dataset) Cells() []string {
	seen := make(map[string]bool)
	var cells []string
	for _, c := range d.Points.Cell {
		if !seen[c] {
			seen[c] = true
			cells = append(cells, c)
		}
	}
	sort.Strings(cells)
	return cells
}

// CountMatrix returns the dense cell-by-gene count matrix for the given
// cell order, with columns following the vocabulary order.
func (d *Dataset) CountMatrix(cells []string) [][]float64 {
	rowOf := make(map[string]int, len(cells))
	for i, c := range cells {
		rowOf[c] = i
	}
	g := d.Vocab.Len()
	counts := make([][]float64, len(cells))
	for i := range counts {
		counts[i] = make([]float64, g)
	}
	for i, c := range d.Points.Cell {
		row, ok := rowOf[c]
		if !ok {
			continue
		}
		counts[row][d.Points.Gene[i]]++
	}
	return counts
}

// SyncPoints drops transcripts that fall outside their cell's geometry in
// the given layer, returning how many rows were removed. Transcripts of
// cells absent from the layer are dropped as well.
func (d *Dataset) SyncPoints(layerName string) (int, error) {
	layer, ok := d.Shapes(layerName)
	if !ok {
		return 0, fmt.Errorf("shape layer %q not found", layerName)
	}
	kept := &PointTable{}
	for i := 0; i < d.Points.Len(); i++ {
		geom, ok := layer.Get(d.Points.Cell[i])
		if !ok || geom.IsEmpty() {
			continue
		}
		if !geom.Contains(geometry.Point2D{X: d.Points.X[i], Y: d.Points.Y[i]}) {
			continue
		}
		kept.Append(d.Points.Cell[i], d.Points.Gene[i], d.Points.X[i], d.Points.Y[i])
	}
	removed := d.Points.Len() - kept.Len()
	d.Points = kept
	return removed, nil
}

// PointsByCell groups transcript row indices by cell id.
func (d *Dataset) PointsByCell() map[string][]int {
	groups := make(map[string][]int)
	for i, c := range d.Points.Cell {
		groups[c] = append(groups[c], i)
	}
	return groups
}
