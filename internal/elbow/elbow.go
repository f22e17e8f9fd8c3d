// Package elbow locates the knee of a convex decreasing error-vs-complexity
// curve, in the manner of the Kneedle algorithm: normalize both axes, flip
// the curve so a knee becomes a peak of the difference curve, and take the
// interior maximum. A curve with no curvature (a straight line) has a flat
// difference curve and yields no elbow.
package elbow

import "fmt"

// minCurvature is the minimum normalized difference-curve peak height for a
// knee to count. A perfectly linear curve peaks at exactly 0.
const minCurvature = 1e-9

// Locate returns the x value at the elbow of a convex decreasing curve.
// ok is false when the sequence is too short or contains no detectable knee.
func Locate(xs []int, ys []float64) (elbowX int, ok bool, err error) {
	if len(xs) != len(ys) {
		return 0, false, fmt.Errorf("elbow: %d x values but %d y values", len(xs), len(ys))
	}
	n := len(xs)
	if n < 3 {
		return 0, false, nil
	}

	xMin, xMax := float64(xs[0]), float64(xs[n-1])
	yMin, yMax := ys[0], ys[0]
	for _, y := range ys {
		if y < yMin {
			yMin = y
		}
		if y > yMax {
			yMax = y
		}
	}
	if xMax == xMin || yMax == yMin {
		return 0, false, nil
	}

	// For a convex decreasing curve, 1-ynorm is concave increasing and the
	// knee is where it pulls furthest ahead of the diagonal.
	bestIdx := -1
	bestDiff := minCurvature
	for i := 0; i < n; i++ {
		xn := (float64(xs[i]) - xMin) / (xMax - xMin)
		yn := (ys[i] - yMin) / (yMax - yMin)
		diff := (1 - yn) - xn
		if diff > bestDiff {
			bestDiff = diff
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return 0, false, nil
	}
	return xs[bestIdx], true, nil
}
