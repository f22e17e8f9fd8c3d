package fluxmap

import (
	"sort"

	"rnaflux/pkg/geometry"
)

// labelImage is a dense per-cell integer label raster in grid-index space.
// Pixel (ix, iy) covers the unit square [ix, ix+1) x [iy, iy+1).
type labelImage struct {
	minX, minY int
	w, h       int
	labels     []int
}

// newLabelImage builds the dense image from pixel grid indices and labels.
func newLabelImage(ix, iy, labels []int) *labelImage {
	if len(ix) == 0 {
		return &labelImage{}
	}
	minX, minY := ix[0], iy[0]
	maxX, maxY := ix[0], iy[0]
	for i := range ix {
		if ix[i] < minX {
			minX = ix[i]
		}
		if ix[i] > maxX {
			maxX = ix[i]
		}
		if iy[i] < minY {
			minY = iy[i]
		}
		if iy[i] > maxY {
			maxY = iy[i]
		}
	}
	img := &labelImage{
		minX: minX, minY: minY,
		w: maxX - minX + 1, h: maxY - minY + 1,
	}
	img.labels = make([]int, img.w*img.h)
	for i := range ix {
		img.labels[(iy[i]-img.minY)*img.w+(ix[i]-img.minX)] = labels[i]
	}
	return img
}

func (img *labelImage) at(x, y int) int {
	if x < 0 || x >= img.w || y < 0 || y >= img.h {
		return 0
	}
	return img.labels[y*img.w+x]
}

// vectorizeLabels traces the boundary of every distinct nonzero label in the
// image into polygon rings, dissolving disjoint regions of the same label
// into one multi-part geometry. Ring vertices live on the integer lattice of
// grid-index space, each pixel contributing its full unit square.
func vectorizeLabels(img *labelImage) map[int]geometry.MultiPolygon {
	if img.w == 0 || img.h == 0 {
		return nil
	}
	present := make(map[int]bool)
	for _, l := range img.labels {
		if l != 0 {
			present[l] = true
		}
	}
	out := make(map[int]geometry.MultiPolygon, len(present))
	for label := range present {
		rings := traceRings(img, label)
		out[label] = assembleMulti(rings)
	}
	return out
}

// edge is a directed unit segment between lattice points.
type edge struct {
	fromX, fromY, toX, toY int
}

// traceRings collects the boundary edges of all pixels carrying the label and
// stitches them into closed rings. Boundary edges are oriented so the labeled
// region lies on their left, which makes exterior rings counter-clockwise and
// hole rings clockwise.
func traceRings(img *labelImage, label int) [][]geometry.Point2D {
	edges := make(map[[2]int]edge)
	addEdge := func(fx, fy, tx, ty int) {
		edges[[2]int{fx*(img.h+2) + fy, tx*(img.h+2) + ty}] = edge{fx, fy, tx, ty}
	}
	for y := 0; y < img.h; y++ {
		for x := 0; x < img.w; x++ {
			if img.at(x, y) != label {
				continue
			}
			// Emit each pixel side whose neighbor is outside the region.
			if img.at(x, y-1) != label { // bottom, left-to-right
				addEdge(x, y, x+1, y)
			}
			if img.at(x+1, y) != label { // right, upward
				addEdge(x+1, y, x+1, y+1)
			}
			if img.at(x, y+1) != label { // top, right-to-left
				addEdge(x+1, y+1, x, y+1)
			}
			if img.at(x-1, y) != label { // left, downward
				addEdge(x, y+1, x, y)
			}
		}
	}

	// Index edges by start vertex for ring walking. At saddle vertices two
	// edges start at the same point; keep both and let takeEdge resolve the
	// crossing by turn direction.
	starts := make(map[int][]edge)
	for _, e := range edges {
		key := e.fromX*(img.h+2) + e.fromY
		starts[key] = append(starts[key], e)
	}

	var rings [][]geometry.Point2D
	for len(starts) > 0 {
		// Deterministic starting edge: lowest start key.
		var firstKey int
		first := true
		for k := range starts {
			if first || k < firstKey {
				firstKey = k
				first = false
			}
		}
		// The ring start has no incoming edge; a diagonal stand-in
		// direction breaks a saddle tie at the start deterministically.
		e := takeEdge(starts, firstKey, 1, 1)
		ring := []geometry.Point2D{{X: float64(e.fromX + img.minX), Y: float64(e.fromY + img.minY)}}
		startX, startY := e.fromX, e.fromY
		for {
			curX, curY := e.toX, e.toY
			if curX == startX && curY == startY {
				break
			}
			ring = append(ring, geometry.Point2D{X: float64(curX + img.minX), Y: float64(curY + img.minY)})
			e = takeEdge(starts, curX*(img.h+2)+curY, e.toX-e.fromX, e.toY-e.fromY)
		}
		rings = append(rings, simplifyRing(ring))
	}
	return rings
}

// takeEdge removes and returns an edge starting at the keyed vertex, given
// the direction (inDX, inDY) the walk arrived from. When two candidates exist
// (a saddle vertex), the one turning left is taken: it hugs the region on the
// walk's left, so the two rings meeting at the saddle never cross and every
// emitted ring stays simple.
func takeEdge(starts map[int][]edge, key, inDX, inDY int) edge {
	cands := starts[key]
	pick := 0
	if len(cands) > 1 {
		best := turn(inDX, inDY, cands[0])
		for i := 1; i < len(cands); i++ {
			if c := turn(inDX, inDY, cands[i]); c > best {
				best = c
				pick = i
			}
		}
	}
	e := cands[pick]
	cands = append(cands[:pick], cands[pick+1:]...)
	if len(cands) == 0 {
		delete(starts, key)
	} else {
		starts[key] = cands
	}
	return e
}

// turn is the cross product of the incoming direction with the candidate
// edge's direction; positive means the candidate turns left.
func turn(inDX, inDY int, e edge) int {
	return inDX*(e.toY-e.fromY) - inDY*(e.toX-e.fromX)
}

// simplifyRing drops collinear intermediate vertices from an axis-aligned ring.
func simplifyRing(ring []geometry.Point2D) []geometry.Point2D {
	n := len(ring)
	if n < 4 {
		return ring
	}
	var out []geometry.Point2D
	for i := 0; i < n; i++ {
		prev := ring[(i+n-1)%n]
		cur := ring[i]
		next := ring[(i+1)%n]
		cross := (cur.X-prev.X)*(next.Y-cur.Y) - (cur.Y-prev.Y)*(next.X-cur.X)
		if cross != 0 {
			out = append(out, cur)
		}
	}
	return out
}

// assembleMulti splits rings into exterior shells and holes by orientation,
// assigns each hole to the shell containing it, and returns the parts as one
// multi-part geometry.
func assembleMulti(rings [][]geometry.Point2D) geometry.MultiPolygon {
	var shells [][]geometry.Point2D
	var holes [][]geometry.Point2D
	for _, r := range rings {
		if geometry.RingArea(r) > 0 {
			shells = append(shells, r)
		} else {
			holes = append(holes, r)
		}
	}
	// Largest shells first so holes attach to the innermost containing shell
	// last; with disjoint shells any containing shell is the right one.
	sort.Slice(shells, func(i, j int) bool {
		return geometry.RingArea(shells[i]) > geometry.RingArea(shells[j])
	})
	polys := make([]geometry.Polygon, len(shells))
	for i, s := range shells {
		polys[i] = geometry.Polygon{Exterior: s}
	}
	for _, h := range holes {
		probe := holeProbe(h)
		for i := len(polys) - 1; i >= 0; i-- {
			if geometry.PointInPolygon(probe, polys[i].Exterior) {
				polys[i].Holes = append(polys[i].Holes, h)
				break
			}
		}
	}
	return geometry.MultiPolygon{Polygons: polys}
}

// holeProbe returns a point strictly inside the cavity a clockwise hole ring
// encloses: half a unit to the right of its first edge's midpoint. Using an
// off-lattice probe keeps the ray cast away from degenerate vertex hits.
func holeProbe(h []geometry.Point2D) geometry.Point2D {
	a, b := h[0], h[1]
	mx, my := (a.X+b.X)/2, (a.Y+b.Y)/2
	dx, dy := b.X-a.X, b.Y-a.Y
	return geometry.Point2D{X: mx + dy/2, Y: my - dx/2}
}
