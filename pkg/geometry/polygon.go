package geometry

import "math"

// Polygon is a simple polygon with an exterior ring and zero or more
// interior rings (holes). Rings are closed implicitly: the last vertex
// connects back to the first.
type Polygon struct {
	Exterior []Point2D   `json:"exterior"`
	Holes    [][]Point2D `json:"holes,omitempty"`
}

// NewPolygon creates a polygon from an exterior ring.
func NewPolygon(exterior []Point2D) Polygon {
	return Polygon{Exterior: exterior}
}

// IsEmpty reports whether the polygon has no exterior ring.
func (p Polygon) IsEmpty() bool {
	return len(p.Exterior) < 3
}

// Area returns the polygon area: the exterior ring area minus hole areas.
func (p Polygon) Area() float64 {
	area := math.Abs(RingArea(p.Exterior))
	for _, h := range p.Holes {
		area -= math.Abs(RingArea(h))
	}
	return area
}

// Bounds returns the bounding box of the exterior ring.
func (p Polygon) Bounds() Rect {
	return BoundingBox(p.Exterior)
}

// Centroid returns the vertex centroid of the exterior ring.
func (p Polygon) Centroid() Point2D {
	return Centroid(p.Exterior)
}

// Contains tests whether a point lies inside the polygon, holes excluded.
// Points on the exterior boundary count as inside.
func (p Polygon) Contains(pt Point2D) bool {
	if p.IsEmpty() {
		return false
	}
	if !pointInRing(pt, p.Exterior) && !pointOnRing(pt, p.Exterior) {
		return false
	}
	for _, h := range p.Holes {
		if pointInRing(pt, h) && !pointOnRing(pt, h) {
			return false
		}
	}
	return true
}

// Scale returns a copy of the polygon scaled by a factor about the origin.
func (p Polygon) Scale(factor float64) Polygon {
	out := Polygon{Exterior: scaleRing(p.Exterior, factor)}
	for _, h := range p.Holes {
		out.Holes = append(out.Holes, scaleRing(h, factor))
	}
	return out
}

// EquivalentRadius returns the radius of the circle with the same area.
func (p Polygon) EquivalentRadius() float64 {
	return math.Sqrt(p.Area() / math.Pi)
}

// MultiPolygon is a collection of polygons treated as one geometry.
type MultiPolygon struct {
	Polygons []Polygon `json:"polygons,omitempty"`
}

// IsEmpty reports whether the geometry has no polygon parts.
func (m MultiPolygon) IsEmpty() bool {
	return len(m.Polygons) == 0
}

// Area returns the total area across all parts.
func (m MultiPolygon) Area() float64 {
	var total float64
	for _, p := range m.Polygons {
		total += p.Area()
	}
	return total
}

// Contains tests whether a point lies inside any part.
func (m MultiPolygon) Contains(pt Point2D) bool {
	for _, p := range m.Polygons {
		if p.Contains(pt) {
			return true
		}
	}
	return false
}

// Scale returns a copy with every part scaled by a factor about the origin.
func (m MultiPolygon) Scale(factor float64) MultiPolygon {
	out := MultiPolygon{}
	for _, p := range m.Polygons {
		out.Polygons = append(out.Polygons, p.Scale(factor))
	}
	return out
}

// Bounds returns the bounding box over all parts.
func (m MultiPolygon) Bounds() Rect {
	if m.IsEmpty() {
		return Rect{}
	}
	b := m.Polygons[0].Bounds()
	for _, p := range m.Polygons[1:] {
		pb := p.Bounds()
		minX := math.Min(b.X, pb.X)
		minY := math.Min(b.Y, pb.Y)
		maxX := math.Max(b.X+b.Width, pb.X+pb.Width)
		maxY := math.Max(b.Y+b.Height, pb.Y+pb.Height)
		b = Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
	}
	return b
}

// RingArea returns the signed area of a ring via the shoelace formula.
// Counter-clockwise rings have positive area.
func RingArea(ring []Point2D) float64 {
	if len(ring) < 3 {
		return 0
	}
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return sum / 2
}

// PointInPolygon tests if a point is inside a ring using ray casting.
func PointInPolygon(p Point2D, ring []Point2D) bool {
	return pointInRing(p, ring)
}

func pointInRing(p Point2D, ring []Point2D) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := ring[i], ring[j]
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}
	return inside
}

// pointOnRing tests if a point lies on a ring edge within a small tolerance.
func pointOnRing(p Point2D, ring []Point2D) bool {
	const eps = 1e-9
	n := len(ring)
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		if pointToSegmentDistance(p, a, b) < eps {
			return true
		}
	}
	return false
}

// pointToSegmentDistance calculates minimum distance from point to line segment.
func pointToSegmentDistance(p, a, b Point2D) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	if dx == 0 && dy == 0 {
		return p.Distance(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / (dx*dx + dy*dy)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return p.Distance(Point2D{X: a.X + t*dx, Y: a.Y + t*dy})
}

func scaleRing(ring []Point2D, factor float64) []Point2D {
	out := make([]Point2D, len(ring))
	for i, pt := range ring {
		out[i] = pt.Scale(factor)
	}
	return out
}
