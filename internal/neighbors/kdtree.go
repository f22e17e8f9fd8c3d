// Package neighbors counts neighboring transcripts per gene around reference
// points, producing a sparse reference-by-gene count matrix. Neighbor lookup
// runs on a k-d tree so cells with thousands of transcripts and pixels stay
// far from quadratic.
package neighbors

import (
	"sort"

	"rnaflux/pkg/geometry"
)

// KDTree is a static 2-d tree over a point set. Queries return indices into
// the original slice passed to NewKDTree.
type KDTree struct {
	points []geometry.Point2D
	order  []int // point indices arranged in tree order
}

// NewKDTree builds a balanced tree. The input slice is not modified.
func NewKDTree(points []geometry.Point2D) *KDTree {
	t := &KDTree{points: points, order: make([]int, len(points))}
	for i := range t.order {
		t.order[i] = i
	}
	t.build(0, len(t.order), 0)
	return t
}

func (t *KDTree) build(lo, hi, axis int) {
	if hi-lo <= 1 {
		return
	}
	sub := t.order[lo:hi]
	if axis == 0 {
		sort.Slice(sub, func(a, b int) bool { return t.points[sub[a]].X < t.points[sub[b]].X })
	} else {
		sort.Slice(sub, func(a, b int) bool { return t.points[sub[a]].Y < t.points[sub[b]].Y })
	}
	mid := (lo + hi) / 2
	t.build(lo, mid, 1-axis)
	t.build(mid+1, hi, 1-axis)
}

// Radius returns the indices of all points within distance r of p.
func (t *KDTree) Radius(p geometry.Point2D, r float64) []int {
	var out []int
	t.radius(0, len(t.order), 0, p, r*r, &out)
	return out
}

func (t *KDTree) radius(lo, hi, axis int, p geometry.Point2D, r2 float64, out *[]int) {
	if lo >= hi {
		return
	}
	mid := (lo + hi) / 2
	pt := t.points[t.order[mid]]
	dx := p.X - pt.X
	dy := p.Y - pt.Y
	if dx*dx+dy*dy <= r2 {
		*out = append(*out, t.order[mid])
	}
	var delta float64
	if axis == 0 {
		delta = p.X - pt.X
	} else {
		delta = p.Y - pt.Y
	}
	if delta <= 0 || delta*delta <= r2 {
		t.radius(lo, mid, 1-axis, p, r2, out)
	}
	if delta >= 0 || delta*delta <= r2 {
		t.radius(mid+1, hi, 1-axis, p, r2, out)
	}
}

// KNearest returns the indices of the k points closest to p. Fewer indices
// are returned when the tree holds fewer than k points.
func (t *KDTree) KNearest(p geometry.Point2D, k int) []int {
	if k <= 0 || len(t.order) == 0 {
		return nil
	}
	if k > len(t.order) {
		k = len(t.order)
	}
	best := &knnAcc{idx: make([]int, 0, k), dist: make([]float64, 0, k), cap: k}
	t.knn(0, len(t.order), 0, p, best)
	return best.idx
}

// knnAcc keeps the current k best candidates, worst last.
type knnAcc struct {
	idx  []int
	dist []float64
	cap  int
}

func (a *knnAcc) worst() float64 {
	if len(a.dist) < a.cap {
		return -1
	}
	return a.dist[len(a.dist)-1]
}

func (a *knnAcc) offer(idx int, d2 float64) {
	pos := sort.SearchFloat64s(a.dist, d2)
	if len(a.dist) < a.cap {
		a.idx = append(a.idx, 0)
		a.dist = append(a.dist, 0)
	} else if pos >= a.cap {
		return
	}
	copy(a.idx[pos+1:], a.idx[pos:])
	copy(a.dist[pos+1:], a.dist[pos:])
	a.idx[pos] = idx
	a.dist[pos] = d2
}

func (t *KDTree) knn(lo, hi, axis int, p geometry.Point2D, best *knnAcc) {
	if lo >= hi {
		return
	}
	mid := (lo + hi) / 2
	pt := t.points[t.order[mid]]
	dx := p.X - pt.X
	dy := p.Y - pt.Y
	d2 := dx*dx + dy*dy
	if w := best.worst(); w < 0 || d2 < w {
		best.offer(t.order[mid], d2)
	}
	var delta float64
	if axis == 0 {
		delta = p.X - pt.X
	} else {
		delta = p.Y - pt.Y
	}
	// Descend the near side first, then the far side only if the splitting
	// plane is closer than the current worst candidate.
	if delta <= 0 {
		t.knn(lo, mid, 1-axis, p, best)
		if w := best.worst(); w < 0 || delta*delta <= w {
			t.knn(mid+1, hi, 1-axis, p, best)
		}
	} else {
		t.knn(mid+1, hi, 1-axis, p, best)
		if w := best.worst(); w < 0 || delta*delta <= w {
			t.knn(lo, mid, 1-axis, p, best)
		}
	}
}
