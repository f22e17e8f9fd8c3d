package flux

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"rnaflux/internal/spatial"
	"rnaflux/pkg/geometry"
)

func squareCell(x, y, size float64) geometry.MultiPolygon {
	return geometry.MultiPolygon{Polygons: []geometry.Polygon{{Exterior: []geometry.Point2D{
		{X: x, Y: y},
		{X: x + size, Y: y},
		{X: x + size, Y: y + size},
		{X: x, Y: y + size},
	}}}}
}

// testDataset builds two 20x20 cells with spatially structured expression:
// in each cell the left half leans on the first three genes and the right
// half on the last three, so the flux embedding has signal to find. Cell b
// keeps its right half empty to exercise empty neighborhoods.
func testDataset(seed int64) *spatial.Dataset {
	genes := []string{"g0", "g1", "g2", "g3", "g4", "g5"}
	vocab := spatial.BuildVocabulary(genes)
	points := &spatial.PointTable{}
	rng := rand.New(rand.NewSource(seed))

	addCell := func(id string, x0 float64, rightHalf bool) {
		for i := 0; i < 150; i++ {
			x := rng.Float64() * 20
			if !rightHalf && x > 10 {
				x = x - 10 // fold into the left half
			}
			y := rng.Float64() * 20
			var g int
			if x < 10 {
				g = rng.Intn(3)
			} else {
				g = 3 + rng.Intn(3)
			}
			points.Append(id, g, x0+x, y)
		}
	}
	addCell("a", 0, true)
	addCell("b", 40, false)

	ds := spatial.NewDataset(vocab, points)
	ds.SetShapes(spatial.CellBoundariesLayer, spatial.NewShapeLayer(
		[]string{"a", "b"},
		[]geometry.MultiPolygon{squareCell(0, 0, 20), squareCell(40, 0, 20)},
	))
	return ds
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RadiusAbsolute = 5
	opts.Res = 1
	return opts
}

func TestComputePopulatesRaster(t *testing.T) {
	ds := testDataset(1)
	if err := Compute(ds, testOptions(), zerolog.Nop()); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	rt := ds.Raster()
	if !rt.HasFlux() {
		t.Fatal("raster table has no flux after Compute")
	}
	n := rt.Len()
	if n == 0 {
		t.Fatal("no raster points")
	}
	if len(rt.Embed) != n || len(rt.Color) != n || len(rt.Density) != n {
		t.Fatalf("column lengths embed=%d color=%d density=%d, want %d",
			len(rt.Embed), len(rt.Color), len(rt.Density), n)
	}
	if r, _ := rt.Flux.Dims(); r != n {
		t.Fatalf("flux matrix has %d rows, want %d", r, n)
	}

	// 6 genes cap the embedding at 5 components.
	if len(rt.Embed[0]) != 5 {
		t.Errorf("embedding has %d components, want 5", len(rt.Embed[0]))
	}
	if len(ds.FluxVarianceRatio) != 5 {
		t.Errorf("variance ratio has %d entries, want 5", len(ds.FluxVarianceRatio))
	}
	var total float64
	for _, v := range ds.FluxVarianceRatio {
		if v < 0 {
			t.Errorf("negative variance ratio %g", v)
		}
		total += v
	}
	if total > 1+1e-9 {
		t.Errorf("variance ratios sum to %g, want <= 1", total)
	}
	if len(ds.FluxGenes) != 6 || ds.FluxGenes[0] != "g0" {
		t.Errorf("FluxGenes = %v", ds.FluxGenes)
	}

	cells := map[string]bool{}
	for _, c := range rt.Cell {
		cells[c] = true
	}
	if !cells["a"] || !cells["b"] {
		t.Errorf("raster covers cells %v, want a and b", cells)
	}
}

func TestComputeEmptyNeighborhoodsStayZero(t *testing.T) {
	ds := testDataset(2)
	if err := Compute(ds, testOptions(), zerolog.Nop()); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	rt := ds.Raster()

	// Cell b has no transcripts in its right half; pixels more than the
	// radius away from every transcript must stay exactly zero.
	foundEmpty := false
	for i := 0; i < rt.Len(); i++ {
		if rt.Density[i] != 0 {
			continue
		}
		foundEmpty = true
		if rt.Flux.RowNNZ(i) != 0 {
			t.Fatalf("pixel %d has zero density but %d nonzero flux entries", i, rt.Flux.RowNNZ(i))
		}
		for j, v := range rt.Embed[i] {
			if v != 0 {
				t.Fatalf("pixel %d has zero density but embedding[%d] = %g", i, j, v)
			}
		}
		if !strings.HasSuffix(rt.Color[i], "00") {
			t.Fatalf("pixel %d has zero density but opaque color %q", i, rt.Color[i])
		}
	}
	if !foundEmpty {
		t.Fatal("expected at least one empty-neighborhood pixel in cell b")
	}
}

func TestComputeDeterministic(t *testing.T) {
	run := func() [][]float64 {
		ds := testDataset(3)
		if err := Compute(ds, testOptions(), zerolog.Nop()); err != nil {
			t.Fatalf("Compute: %v", err)
		}
		return ds.Raster().Embed
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("runs produced %d and %d pixels", len(a), len(b))
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("embedding differs at pixel %d component %d: %g vs %g", i, j, a[i][j], b[i][j])
			}
		}
	}
}

func TestComputeIdempotent(t *testing.T) {
	ds := testDataset(4)
	opts := testOptions()
	if err := Compute(ds, opts, zerolog.Nop()); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	first := ds.Raster()
	if err := Compute(ds, opts, zerolog.Nop()); err != nil {
		t.Fatalf("second Compute: %v", err)
	}
	if ds.Raster() != first {
		t.Error("second Compute replaced the raster table despite Recompute=false")
	}

	opts.Recompute = true
	if err := Compute(ds, opts, zerolog.Nop()); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if ds.Raster() == first {
		t.Error("Recompute=true did not rebuild the raster table")
	}
}

func TestComputeValidation(t *testing.T) {
	t.Run("too few genes", func(t *testing.T) {
		vocab := spatial.BuildVocabulary([]string{"g0", "g1", "g2"})
		points := &spatial.PointTable{}
		points.Append("a", 0, 1, 1)
		ds := spatial.NewDataset(vocab, points)
		err := Compute(ds, testOptions(), zerolog.Nop())
		if !errors.Is(err, ErrTooFewGenes) {
			t.Errorf("err = %v, want ErrTooFewGenes", err)
		}
	})
	t.Run("bad train size", func(t *testing.T) {
		ds := testDataset(5)
		opts := testOptions()
		opts.TrainSize = 1.5
		if err := Compute(ds, opts, zerolog.Nop()); err == nil {
			t.Error("expected error for train size > 1")
		}
	})
	t.Run("missing boundaries", func(t *testing.T) {
		ds := testDataset(6)
		ds.DeleteShapesWithPrefix(spatial.CellBoundariesLayer)
		if err := Compute(ds, testOptions(), zerolog.Nop()); err == nil {
			t.Error("expected error for missing boundary layer")
		}
	})
	t.Run("knn without count", func(t *testing.T) {
		ds := testDataset(7)
		opts := testOptions()
		opts.Method = MethodKNN
		opts.KNeighbors = 0
		if err := Compute(ds, opts, zerolog.Nop()); err == nil {
			t.Error("expected error for knn without neighbor count")
		}
	})
}

func TestComputeTrainSubsample(t *testing.T) {
	ds := testDataset(8)
	opts := testOptions()
	opts.TrainSize = 0.5
	if err := Compute(ds, opts, zerolog.Nop()); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !ds.Raster().HasFlux() {
		t.Fatal("subsampled fit produced no flux")
	}
}

func TestComputeTinyTrainSubsample(t *testing.T) {
	// A train fraction small enough to leave fewer training rows than the
	// default component count still embeds, with the dimensionality clamped
	// to the training rows.
	ds := testDataset(9)
	opts := testOptions()
	opts.TrainSize = 1e-9
	if err := Compute(ds, opts, zerolog.Nop()); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	rt := ds.Raster()
	if !rt.HasFlux() {
		t.Fatal("tiny subsampled fit produced no flux")
	}
	if len(rt.Embed[0]) != 1 {
		t.Errorf("embedding has %d components, want 1 (single training row)", len(rt.Embed[0]))
	}
	if len(ds.FluxVarianceRatio) != 1 {
		t.Errorf("variance ratio has %d entries, want 1", len(ds.FluxVarianceRatio))
	}
}

func TestScaleUnitVariancePreservesZeros(t *testing.T) {
	rows := [][]float64{
		{0, 2},
		{0, -2},
		{0, 4},
	}
	scaleUnitVariance(rows)
	for i, row := range rows {
		if row[0] != 0 {
			t.Errorf("row %d constant column scaled to %g", i, row[0])
		}
	}
	// Scaled column has unit variance around its mean.
	var mean float64
	for _, row := range rows {
		mean += row[1]
	}
	mean /= 3
	var v float64
	for _, row := range rows {
		d := row[1] - mean
		v += d * d
	}
	if got := v / 3; math.Abs(got-1) > 1e-12 {
		t.Errorf("scaled column variance = %g, want 1", got)
	}
}

func TestNormalizeComposition(t *testing.T) {
	got := normalizeComposition([]float64{2, 0, 6})
	want := []float64{0.25, 0, 0.75}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("composition[%d] = %g, want %g", i, got[i], want[i])
		}
	}
	for _, v := range normalizeComposition([]float64{0, 0}) {
		if v != 0 {
			t.Error("empty cell composition should be all zero")
		}
	}
}

func TestMeanCellRadius(t *testing.T) {
	layer := spatial.NewShapeLayer(
		[]string{"a"},
		[]geometry.MultiPolygon{squareCell(0, 0, 10)},
	)
	got := meanCellRadius(layer)
	want := math.Sqrt(100 / math.Pi)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("meanCellRadius = %g, want %g", got, want)
	}
	if _, ok := layer.Meta["radius"]; !ok {
		t.Error("radius metadata column not recorded")
	}
}
