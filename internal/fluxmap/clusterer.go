package fluxmap

import (
	"fmt"
	"math"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"rnaflux/internal/som"
)

// Clusterer is the clustering strategy trained per candidate cluster count.
// Implementations are injected into Compute rather than hard-wired, so the
// model can be swapped without touching the pipeline.
type Clusterer interface {
	// Train fits the model on the training rows.
	Train(data [][]float64) error
	// Winner returns the zero-based cluster index nearest to x.
	Winner(x []float64) int
	// QuantizationError returns the mean distance from each row to its
	// nearest cluster prototype.
	QuantizationError(data [][]float64) float64
}

// ClustererBuilder constructs a fresh Clusterer for one candidate k.
type ClustererBuilder func(k int) (Clusterer, error)

// NewSOMBuilder returns the default strategy: a one-dimensional
// self-organizing map trained with fixed-order steps, deterministic for a
// given seed.
func NewSOMBuilder(iterations int, seed int64) ClustererBuilder {
	return func(k int) (Clusterer, error) {
		return &somClusterer{k: k, iterations: iterations, seed: seed}, nil
	}
}

type somClusterer struct {
	k          int
	iterations int
	seed       int64
	m          *som.SOM
}

func (c *somClusterer) Train(data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("som clusterer: no training rows")
	}
	m, err := som.New(c.k, len(data[0]), c.seed)
	if err != nil {
		return err
	}
	m.RandomWeightsInit(data)
	m.Train(data, c.iterations)
	c.m = m
	return nil
}

func (c *somClusterer) Winner(x []float64) int {
	return c.m.Winner(x)
}

func (c *somClusterer) QuantizationError(data [][]float64) float64 {
	return c.m.QuantizationError(data)
}

// NewKMeansBuilder returns an alternative strategy backed by k-means.
// Useful for sanity-checking SOM segmentations; note the library seeds its
// own randomness, so runs are not reproducible bit-for-bit.
func NewKMeansBuilder() ClustererBuilder {
	return func(k int) (Clusterer, error) {
		km, err := kmeans.NewWithOptions(0.01, nil)
		if err != nil {
			return nil, err
		}
		return &kmeansClusterer{k: k, km: km}, nil
	}
}

type kmeansClusterer struct {
	k       int
	km      kmeans.Kmeans
	centers [][]float64
}

func (c *kmeansClusterer) Train(data [][]float64) error {
	obs := make(clusters.Observations, len(data))
	for i, row := range data {
		obs[i] = clusters.Coordinates(row)
	}
	result, err := c.km.Partition(obs, c.k)
	if err != nil {
		return fmt.Errorf("kmeans clusterer: %w", err)
	}
	c.centers = make([][]float64, len(result))
	for i, cl := range result {
		c.centers[i] = append([]float64(nil), cl.Center...)
	}
	return nil
}

func (c *kmeansClusterer) Winner(x []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, center := range c.centers {
		d := sqDist(x, center)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func (c *kmeansClusterer) QuantizationError(data [][]float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var total float64
	for _, x := range data {
		total += math.Sqrt(sqDist(x, c.centers[c.Winner(x)]))
	}
	return total / float64(len(data))
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
