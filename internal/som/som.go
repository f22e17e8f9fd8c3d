// Package som implements a one-dimensional self-organizing map used to
// cluster flux embeddings. Training follows the classic online scheme with
// gaussian neighborhood and asymptotic decay of both learning rate and
// neighborhood width; given a fixed seed, results are bit-for-bit
// reproducible.
package som

import (
	"fmt"
	"math"
	"math/rand"
)

// SOM is a 1-by-k map of prototype vectors.
type SOM struct {
	units   int
	dim     int
	sigma   float64
	rate    float64
	rng     *rand.Rand
	weights [][]float64
}

// New creates an untrained map with k units over dim-dimensional inputs.
func New(units, dim int, seed int64) (*SOM, error) {
	if units < 1 {
		return nil, fmt.Errorf("som: need at least 1 unit, got %d", units)
	}
	if dim < 1 {
		return nil, fmt.Errorf("som: need at least 1 input dimension, got %d", dim)
	}
	s := &SOM{
		units: units,
		dim:   dim,
		sigma: 1.0,
		rate:  0.5,
		rng:   rand.New(rand.NewSource(seed)),
	}
	s.weights = make([][]float64, units)
	for i := range s.weights {
		s.weights[i] = make([]float64, dim)
	}
	return s, nil
}

// RandomWeightsInit initializes each prototype from a randomly drawn sample.
func (s *SOM) RandomWeightsInit(data [][]float64) {
	for i := range s.weights {
		copy(s.weights[i], data[s.rng.Intn(len(data))])
	}
}

// Train runs the given number of online update steps, presenting samples in
// fixed order (sample t%len(data) at step t).
func (s *SOM) Train(data [][]float64, iterations int) {
	if len(data) == 0 || iterations <= 0 {
		return
	}
	for t := 0; t < iterations; t++ {
		x := data[t%len(data)]
		eta := decay(s.rate, t, iterations)
		sig := decay(s.sigma, t, iterations)
		win := s.Winner(x)
		for u := range s.weights {
			d := float64(u - win)
			g := eta * math.Exp(-d*d/(2*sig*sig))
			if g < 1e-12 {
				continue
			}
			w := s.weights[u]
			for j := range w {
				w[j] += g * (x[j] - w[j])
			}
		}
	}
}

// Winner returns the index of the prototype closest to x.
func (s *SOM) Winner(x []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for u, w := range s.weights {
		d := sqDist(x, w)
		if d < bestDist {
			bestDist = d
			best = u
		}
	}
	return best
}

// QuantizationError returns the mean distance from each sample to its
// nearest prototype.
func (s *SOM) QuantizationError(data [][]float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var total float64
	for _, x := range data {
		total += math.Sqrt(sqDist(x, s.weights[s.Winner(x)]))
	}
	return total / float64(len(data))
}

// Units returns the number of map units.
func (s *SOM) Units() int {
	return s.units
}

// Weights exposes the prototype vectors; callers must not modify them.
func (s *SOM) Weights() [][]float64 {
	return s.weights
}

// decay applies asymptotic decay: value / (1 + t/(maxIter/2)).
func decay(value float64, t, maxIter int) float64 {
	return value / (1 + float64(t)/(float64(maxIter)/2))
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
