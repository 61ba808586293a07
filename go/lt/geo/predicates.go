/*
Copyright 2026 The Lattice Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package geo

import "math"

// Op is a spatial predicate.
type Op int32

const (
	OpIntersects Op = iota
	OpContains
	OpWithin
	OpDisjoint
)

func (o Op) String() string {
	switch o {
	case OpIntersects:
		return "INTERSECTS"
	case OpContains:
		return "CONTAINS"
	case OpWithin:
		return "WITHIN"
	case OpDisjoint:
		return "DISJOINT"
	default:
		return "UNKNOWN"
	}
}

// Eval evaluates op between a and b. A positive buffer (in coordinate
// units) relaxes the predicate: INTERSECTS becomes a distance check and
// CONTAINS/WITHIN accept boundary slack up to the buffer.
func Eval(op Op, a, b *Geometry, buffer float64) bool {
	switch op {
	case OpIntersects:
		if buffer > 0 {
			return Distance(a, b) <= buffer
		}
		return intersects(a, b)
	case OpDisjoint:
		if buffer > 0 {
			return Distance(a, b) > buffer
		}
		return !intersects(a, b)
	case OpContains:
		return contains(a, b, buffer)
	case OpWithin:
		return contains(b, a, buffer)
	default:
		return false
	}
}

func intersects(a, b *Geometry) bool {
	if !a.bbox.intersects(b.bbox) {
		return false
	}
	// point against point/line/polygon
	for _, p := range a.points {
		if b.coversPoint(p) {
			return true
		}
	}
	for _, p := range b.points {
		if a.coversPoint(p) {
			return true
		}
	}
	// any edge crossing
	for _, ea := range a.edges() {
		for _, eb := range b.edges() {
			if segIntersect(ea[0], ea[1], eb[0], eb[1]) {
				return true
			}
		}
	}
	// full containment without edge crossings
	if v, ok := a.anyVertex(); ok && b.coversPoint(v) {
		return true
	}
	if v, ok := b.anyVertex(); ok && a.coversPoint(v) {
		return true
	}
	return false
}

// contains reports whether outer covers every part of inner. With a
// positive buffer, vertices within buffer of the outer geometry also count
// as covered.
func contains(outer, inner *Geometry, buffer float64) bool {
	if len(outer.polys) == 0 {
		return false
	}
	if !outer.bbox.expand(buffer).intersects(inner.bbox) {
		return false
	}
	covered := func(p Point) bool {
		if outer.coversPoint(p) {
			return true
		}
		return buffer > 0 && outer.distanceToPoint(p) <= buffer
	}
	for _, p := range inner.points {
		if !covered(p) {
			return false
		}
	}
	for _, line := range inner.lines {
		for _, p := range line {
			if !covered(p) {
				return false
			}
		}
	}
	for _, poly := range inner.polys {
		for _, p := range poly[0] {
			if !covered(p) {
				return false
			}
		}
	}
	if buffer > 0 {
		return true
	}
	// an inner edge crossing the outer boundary breaks containment even
	// when all vertices are inside (concave outer rings)
	for _, ei := range inner.edges() {
		for _, eo := range outer.edges() {
			if segCross(ei[0], ei[1], eo[0], eo[1]) {
				return false
			}
		}
	}
	return true
}

// Distance returns the minimum planar distance between a and b. Touching
// or overlapping geometries report zero.
func Distance(a, b *Geometry) float64 {
	if intersects(a, b) {
		return 0
	}
	min := math.Inf(1)
	consider := func(d float64) {
		if d < min {
			min = d
		}
	}
	for _, p := range a.points {
		consider(b.distanceToPoint(p))
	}
	for _, p := range b.points {
		consider(a.distanceToPoint(p))
	}
	for _, ea := range a.edges() {
		for _, eb := range b.edges() {
			consider(segToSegDistance(ea[0], ea[1], eb[0], eb[1]))
		}
	}
	return min
}

// coversPoint reports whether p lies on the geometry: inside a polygon, on
// a line, or equal to a point member.
func (g *Geometry) coversPoint(p Point) bool {
	for _, gp := range g.points {
		if gp == p {
			return true
		}
	}
	for _, line := range g.lines {
		for i := 1; i < len(line); i++ {
			if pointOnSeg(p, line[i-1], line[i]) {
				return true
			}
		}
	}
	for _, poly := range g.polys {
		if pointInPolygon(p, poly) {
			return true
		}
	}
	return false
}

func (g *Geometry) distanceToPoint(p Point) float64 {
	if g.coversPoint(p) {
		return 0
	}
	min := math.Inf(1)
	for _, gp := range g.points {
		if d := math.Hypot(gp.X-p.X, gp.Y-p.Y); d < min {
			min = d
		}
	}
	for _, e := range g.edges() {
		if d := pointToSegDistance(p, e[0], e[1]); d < min {
			min = d
		}
	}
	return min
}

func (g *Geometry) edges() [][2]Point {
	var out [][2]Point
	for _, line := range g.lines {
		for i := 1; i < len(line); i++ {
			out = append(out, [2]Point{line[i-1], line[i]})
		}
	}
	for _, poly := range g.polys {
		for _, ring := range poly {
			for i := 1; i < len(ring); i++ {
				out = append(out, [2]Point{ring[i-1], ring[i]})
			}
		}
	}
	return out
}

func (g *Geometry) anyVertex() (Point, bool) {
	if len(g.points) > 0 {
		return g.points[0], true
	}
	if len(g.lines) > 0 && len(g.lines[0]) > 0 {
		return g.lines[0][0], true
	}
	if len(g.polys) > 0 && len(g.polys[0]) > 0 && len(g.polys[0][0]) > 0 {
		return g.polys[0][0][0], true
	}
	return Point{}, false
}

// pointInPolygon ray-casts p against the polygon's rings. Points inside a
// hole are outside.
func pointInPolygon(p Point, poly [][]Point) bool {
	if len(poly) == 0 {
		return false
	}
	if !pointInRing(p, poly[0]) {
		return false
	}
	for _, hole := range poly[1:] {
		if pointInRing(p, hole) && !pointOnRing(p, hole) {
			return false
		}
	}
	return true
}

func pointInRing(p Point, ring []Point) bool {
	if pointOnRing(p, ring) {
		return true
	}
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

func pointOnRing(p Point, ring []Point) bool {
	for i := 1; i < len(ring); i++ {
		if pointOnSeg(p, ring[i-1], ring[i]) {
			return true
		}
	}
	return false
}

const eps = 1e-12

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func pointOnSeg(p, a, b Point) bool {
	if math.Abs(cross(a, b, p)) > eps {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-eps && p.X <= math.Max(a.X, b.X)+eps &&
		p.Y >= math.Min(a.Y, b.Y)-eps && p.Y <= math.Max(a.Y, b.Y)+eps
}

// segIntersect includes touching endpoints and collinear overlap.
func segIntersect(a1, a2, b1, b2 Point) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)
	if ((d1 > eps && d2 < -eps) || (d1 < -eps && d2 > eps)) &&
		((d3 > eps && d4 < -eps) || (d3 < -eps && d4 > eps)) {
		return true
	}
	return pointOnSeg(a1, b1, b2) || pointOnSeg(a2, b1, b2) ||
		pointOnSeg(b1, a1, a2) || pointOnSeg(b2, a1, a2)
}

// segCross is a strict crossing: shared endpoints and grazing touches do
// not count.
func segCross(a1, a2, b1, b2 Point) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)
	return ((d1 > eps && d2 < -eps) || (d1 < -eps && d2 > eps)) &&
		((d3 > eps && d4 < -eps) || (d3 < -eps && d4 > eps))
}

func pointToSegDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

func segToSegDistance(a1, a2, b1, b2 Point) float64 {
	if segIntersect(a1, a2, b1, b2) {
		return 0
	}
	return math.Min(
		math.Min(pointToSegDistance(a1, b1, b2), pointToSegDistance(a2, b1, b2)),
		math.Min(pointToSegDistance(b1, a1, a2), pointToSegDistance(b2, a1, a2)),
	)
}
