// Package enrich scores per-pixel flux profiles against gene-set networks
// using a weighted-sum statistic.
package enrich

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"rnaflux/internal/spatial"
)

// ErrFluxNotComputed reports a missing flux embedding prerequisite.
var ErrFluxNotComputed = errors.New("enrich: flux embedding not computed; run flux first")

// Link is one weighted edge of a gene-set network: the set name, the gene it
// contains and the gene's weight within the set.
type Link struct {
	Source string
	Target string
	Weight float64
}

// Net is a gene-set network as a flat list of links.
type Net []Link

// Sources returns the distinct set names in first-appearance order.
func (n Net) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range n {
		if !seen[l.Source] {
			seen[l.Source] = true
			out = append(out, l.Source)
		}
	}
	return out
}

// Options configures the enrichment run.
type Options struct {
	// BatchSize is the number of pixel rows scored per batch.
	BatchSize int

	// MinN drops gene sets whose overlap with the flux gene vocabulary is
	// below this count.
	MinN int
}

// DefaultOptions returns the standard enrichment configuration.
func DefaultOptions() Options {
	return Options{BatchSize: 10000, MinN: 0}
}

// Stats summarizes gene-set coverage per cell: how many of each cell's
// expressed genes (count >= 5) fall in each set, plus the set sizes.
type Stats struct {
	Cells    []string
	Sources  []string
	SetSizes map[string]int
	// Counts[source][i] is the overlap size for Cells[i].
	Counts map[string][]int
}

// Run scores every raster pixel's flux vector against each gene set by
// weighted sum and writes one score column per set into the raster table.
// Sets with fewer than MinN genes in the flux vocabulary are skipped. The
// returned stats describe per-cell expressed-gene overlap with each set.
func Run(ds *spatial.Dataset, net Net, opts Options, log zerolog.Logger) (*Stats, error) {
	rt := ds.Raster()
	if !rt.HasFlux() {
		return nil, ErrFluxNotComputed
	}
	if len(net) == 0 {
		return nil, fmt.Errorf("enrich: empty gene-set network")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("enrich: batch size must be positive, got %d", opts.BatchSize)
	}

	geneCol := make(map[string]int, len(ds.FluxGenes))
	for i, g := range ds.FluxGenes {
		geneCol[g] = i
	}

	// One weight vector per set over the flux vocabulary; sets with too few
	// matched genes are dropped up front.
	sources := net.Sources()
	weights := make(map[string][]float64, len(sources))
	matched := make(map[string]int, len(sources))
	for _, l := range net {
		w, ok := weights[l.Source]
		if !ok {
			w = make([]float64, len(ds.FluxGenes))
			weights[l.Source] = w
		}
		if col, ok := geneCol[l.Target]; ok {
			w[col] = l.Weight
			matched[l.Source]++
		}
	}
	kept := sources[:0]
	for _, s := range sources {
		if matched[s] < opts.MinN {
			log.Warn().Str("source", s).Int("matched", matched[s]).Int("min_n", opts.MinN).
				Msg("gene set below minimum overlap, skipped")
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("enrich: no gene set matched at least %d flux genes", opts.MinN)
	}

	n := rt.Len()
	scores := make(map[string][]float64, len(kept))
	for _, s := range kept {
		scores[s] = make([]float64, n)
	}
	for start := 0; start < n; start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > n {
			end = n
		}
		for row := start; row < end; row++ {
			rt.Flux.RowIter(row, func(col int, v float64) {
				for _, s := range kept {
					scores[s][row] += v * weights[s][col]
				}
			})
		}
	}

	newRT := rt.Clone()
	if newRT.Scores == nil {
		newRT.Scores = make(map[string][]float64, len(kept))
	}
	for s, vals := range scores {
		newRT.Scores[s] = vals
	}
	ds.SetRaster(newRT)
	log.Info().Int("sets", len(kept)).Int("pixels", n).Msg("enrichment scores written")

	return computeStats(ds, net, kept), nil
}

// computeStats counts, per cell, the expressed genes (count >= 5) overlapping
// each gene set.
func computeStats(ds *spatial.Dataset, net Net, sources []string) *Stats {
	cells := ds.Cells()
	counts := ds.CountMatrix(cells)

	targets := make(map[string]map[int]bool, len(sources))
	sizes := make(map[string]int, len(sources))
	for _, s := range sources {
		targets[s] = make(map[int]bool)
	}
	for _, l := range net {
		sizes[l.Source]++
		if set, ok := targets[l.Source]; ok {
			if code, ok := ds.Vocab.Code(l.Target); ok {
				set[code] = true
			}
		}
	}

	stats := &Stats{
		Cells:    cells,
		Sources:  append([]string(nil), sources...),
		SetSizes: sizes,
		Counts:   make(map[string][]int, len(sources)),
	}
	sort.Strings(stats.Sources)
	for _, s := range stats.Sources {
		stats.Counts[s] = make([]int, len(cells))
	}
	for i := range cells {
		for g, c := range counts[i] {
			if c < 5 {
				continue
			}
			for _, s := range stats.Sources {
				if targets[s][g] {
					stats.Counts[s][i]++
				}
			}
		}
	}
	return stats
}
