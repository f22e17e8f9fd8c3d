package flux

import (
	"fmt"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// colorRange bounds the min-max rescale of color channels so no channel
// saturates to pure black or white.
const (
	colorVMin = 0.1
	colorVMax = 0.9
)

// embeddingColors maps each embedding row to a display color. The first up
// to three embedding dimensions are quantile-normalized, min-max scaled into
// [colorVMin, colorVMax] and used as RGB; missing channels are zero-padded.
// The alpha channel encodes the pixel's neighborhood density relative to the
// dataset maximum.
func embeddingColors(embed [][]float64, density []float64) []string {
	n := len(embed)
	if n == 0 {
		return nil
	}
	channels := len(embed[0])
	if channels > 3 {
		channels = 3
	}

	rgb := make([][3]float64, n)
	for c := 0; c < channels; c++ {
		col := make([]float64, n)
		for i := range embed {
			col[i] = embed[i][c]
		}
		quantileTransform(col)
		minMaxScale(col, colorVMin, colorVMax)
		for i := range col {
			rgb[i][c] = col[i]
		}
	}

	var maxDensity float64
	for _, d := range density {
		if d > maxDensity {
			maxDensity = d
		}
	}

	out := make([]string, n)
	for i := range out {
		c := colorful.Color{R: rgb[i][0], G: rgb[i][1], B: rgb[i][2]}.Clamped()
		alpha := 1.0
		if maxDensity > 0 {
			alpha = density[i] / maxDensity
		}
		out[i] = fmt.Sprintf("%s%02x", c.Hex(), uint8(alpha*255+0.5))
	}
	return out
}

// quantileTransform replaces each value with its empirical quantile in [0,1].
// Ties map to the midpoint of their rank range.
func quantileTransform(col []float64) {
	n := len(col)
	if n < 2 {
		for i := range col {
			col[i] = 0
		}
		return
	}
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)
	denom := float64(n - 1)
	for i, v := range col {
		lo := sort.SearchFloat64s(sorted, v)
		hi := sort.Search(n, func(j int) bool { return sorted[j] > v })
		col[i] = (float64(lo) + float64(hi-1)) / 2 / denom
	}
}

// minMaxScale rescales values into [lo, hi]. A constant column maps to lo.
func minMaxScale(col []float64, lo, hi float64) {
	minV, maxV := col[0], col[0]
	for _, v := range col {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	span := maxV - minV
	for i, v := range col {
		if span == 0 {
			col[i] = lo
			continue
		}
		col[i] = lo + (v-minV)/span*(hi-lo)
	}
}
