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

// Package geo evaluates spatial predicates over GeoJSON values in process.
// It backs spatial joins and geometry filters on sources without spatial
// pushdown. All math is planar in coordinate units; callers working with
// geographic coordinates convert meter distances before calling in.
package geo

import (
	"fmt"
	"math"
)

// Point is a planar coordinate pair.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned bounding box.
type Rect struct {
	Min, Max Point
}

func (r Rect) expand(d float64) Rect {
	return Rect{
		Min: Point{X: r.Min.X - d, Y: r.Min.Y - d},
		Max: Point{X: r.Max.X + d, Y: r.Max.Y + d},
	}
}

func (r Rect) intersects(o Rect) bool {
	return r.Min.X <= o.Max.X && o.Min.X <= r.Max.X &&
		r.Min.Y <= o.Max.Y && o.Min.Y <= r.Max.Y
}

// Geometry is a parsed GeoJSON geometry flattened into point, line and
// polygon parts. Polygons store rings with the outer ring first.
type Geometry struct {
	points []Point
	lines  [][]Point
	polys  [][][]Point
	bbox   Rect
}

// Parse decodes a GeoJSON geometry object.
func Parse(v map[string]any) (*Geometry, error) {
	if v == nil {
		return nil, fmt.Errorf("nil geometry")
	}
	typ, _ := v["type"].(string)
	g := &Geometry{bbox: Rect{
		Min: Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}}
	coords := v["coordinates"]
	var err error
	switch typ {
	case "Point":
		var p Point
		p, err = parsePoint(coords)
		g.points = append(g.points, p)
	case "MultiPoint":
		g.points, err = parsePointList(coords)
	case "LineString":
		var line []Point
		line, err = parsePointList(coords)
		g.lines = append(g.lines, line)
	case "MultiLineString":
		g.lines, err = parseLineList(coords)
	case "Polygon":
		var poly [][]Point
		poly, err = parseLineList(coords)
		g.polys = append(g.polys, poly)
	case "MultiPolygon":
		list, ok := coords.([]any)
		if !ok {
			return nil, fmt.Errorf("invalid MultiPolygon coordinates")
		}
		for _, raw := range list {
			var poly [][]Point
			poly, err = parseLineList(raw)
			if err != nil {
				break
			}
			g.polys = append(g.polys, poly)
		}
	case "GeometryCollection":
		raw, ok := v["geometries"].([]any)
		if !ok {
			return nil, fmt.Errorf("invalid GeometryCollection")
		}
		for _, member := range raw {
			mm, ok := member.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("invalid GeometryCollection member")
			}
			sub, perr := Parse(mm)
			if perr != nil {
				return nil, perr
			}
			g.points = append(g.points, sub.points...)
			g.lines = append(g.lines, sub.lines...)
			g.polys = append(g.polys, sub.polys...)
		}
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", typ)
	}
	if err != nil {
		return nil, fmt.Errorf("geometry %s: %w", typ, err)
	}
	g.computeBBox()
	return g, nil
}

func (g *Geometry) computeBBox() {
	grow := func(p Point) {
		g.bbox.Min.X = math.Min(g.bbox.Min.X, p.X)
		g.bbox.Min.Y = math.Min(g.bbox.Min.Y, p.Y)
		g.bbox.Max.X = math.Max(g.bbox.Max.X, p.X)
		g.bbox.Max.Y = math.Max(g.bbox.Max.Y, p.Y)
	}
	for _, p := range g.points {
		grow(p)
	}
	for _, line := range g.lines {
		for _, p := range line {
			grow(p)
		}
	}
	for _, poly := range g.polys {
		for _, ring := range poly {
			for _, p := range ring {
				grow(p)
			}
		}
	}
}

// BBox returns the bounding box.
func (g *Geometry) BBox() Rect {
	return g.bbox
}

func parsePoint(v any) (Point, error) {
	pair, ok := v.([]any)
	if !ok || len(pair) < 2 {
		return Point{}, fmt.Errorf("invalid position")
	}
	x, xok := toFloat(pair[0])
	y, yok := toFloat(pair[1])
	if !xok || !yok {
		return Point{}, fmt.Errorf("invalid position values")
	}
	return Point{X: x, Y: y}, nil
}

func parsePointList(v any) ([]Point, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid position list")
	}
	out := make([]Point, 0, len(list))
	for _, raw := range list {
		p, err := parsePoint(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseLineList(v any) ([][]Point, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid line list")
	}
	out := make([][]Point, 0, len(list))
	for _, raw := range list {
		line, err := parsePointList(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
