package spatial

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"rnaflux/pkg/geometry"
)

// LoadTranscriptsCSV reads a transcript table from CSV with header columns
// cell, gene, x and y. The gene vocabulary is built in first-appearance
// order of the gene column.
func LoadTranscriptsCSV(r io.Reader) (*Vocabulary, *PointTable, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("spatial: read transcript header: %w", err)
	}
	cols, err := columnIndex(header, "cell", "gene", "x", "y")
	if err != nil {
		return nil, nil, fmt.Errorf("spatial: transcripts: %w", err)
	}

	var cells, genes []string
	var xs, ys []float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("spatial: read transcript line %d: %w", line, err)
		}
		x, err := strconv.ParseFloat(rec[cols[2]], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("spatial: transcript line %d: bad x %q: %w", line, rec[cols[2]], err)
		}
		y, err := strconv.ParseFloat(rec[cols[3]], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("spatial: transcript line %d: bad y %q: %w", line, rec[cols[3]], err)
		}
		cells = append(cells, rec[cols[0]])
		genes = append(genes, rec[cols[1]])
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(cells) == 0 {
		return nil, nil, fmt.Errorf("spatial: transcript table is empty")
	}

	vocab := BuildVocabulary(genes)
	points := &PointTable{}
	for i := range cells {
		code, _ := vocab.Code(genes[i])
		points.Append(cells[i], code, xs[i], ys[i])
	}
	return vocab, points, nil
}

// LoadBoundariesCSV reads a shape layer from CSV with header columns cell,
// x and y. Consecutive rows with the same cell id form one polygon ring in
// vertex order; a cell id appearing in several separated blocks contributes
// one part per block to a single multi-part geometry.
func LoadBoundariesCSV(r io.Reader) (*ShapeLayer, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("spatial: read boundary header: %w", err)
	}
	cols, err := columnIndex(header, "cell", "x", "y")
	if err != nil {
		return nil, fmt.Errorf("spatial: boundaries: %w", err)
	}

	var ids []string
	var geoms []geometry.MultiPolygon
	seen := make(map[string]int)
	var curID string
	var ring []geometry.Point2D
	flush := func() {
		if len(ring) == 0 {
			return
		}
		poly := geometry.Polygon{Exterior: ring}
		if i, ok := seen[curID]; ok {
			geoms[i].Polygons = append(geoms[i].Polygons, poly)
		} else {
			seen[curID] = len(ids)
			ids = append(ids, curID)
			geoms = append(geoms, geometry.MultiPolygon{Polygons: []geometry.Polygon{poly}})
		}
		ring = nil
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("spatial: read boundary line %d: %w", line, err)
		}
		x, err := strconv.ParseFloat(rec[cols[1]], 64)
		if err != nil {
			return nil, fmt.Errorf("spatial: boundary line %d: bad x %q: %w", line, rec[cols[1]], err)
		}
		y, err := strconv.ParseFloat(rec[cols[2]], 64)
		if err != nil {
			return nil, fmt.Errorf("spatial: boundary line %d: bad y %q: %w", line, rec[cols[2]], err)
		}
		if rec[cols[0]] != curID {
			flush()
			curID = rec[cols[0]]
		}
		ring = append(ring, geometry.Point2D{X: x, Y: y})
	}
	flush()
	if len(ids) == 0 {
		return nil, fmt.Errorf("spatial: boundary table is empty")
	}
	return NewShapeLayer(ids, geoms), nil
}

// LoadTranscriptsFile reads a transcript table from a CSV file on disk.
func LoadTranscriptsFile(path string) (*Vocabulary, *PointTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("spatial: %w", err)
	}
	defer f.Close()
	return LoadTranscriptsCSV(f)
}

// LoadBoundariesFile reads a shape layer from a CSV file on disk.
func LoadBoundariesFile(path string) (*ShapeLayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("spatial: %w", err)
	}
	defer f.Close()
	return LoadBoundariesCSV(f)
}

// columnIndex resolves required header column positions.
func columnIndex(header []string, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = -1
		for j, h := range header {
			if h == name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("header %v lacks column %q", header, name)
		}
	}
	return idx, nil
}
