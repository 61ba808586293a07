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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, geojson string) *Geometry {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(geojson), &raw))
	g, err := Parse(raw)
	require.NoError(t, err)
	return g
}

const unitSquare = `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := Parse(map[string]any{"type": "Circle"})
	assert.Error(t, err)
	_, err = Parse(nil)
	assert.Error(t, err)
}

func TestPointInPolygon(t *testing.T) {
	poly := mustParse(t, unitSquare)
	inside := mustParse(t, `{"type":"Point","coordinates":[5,5]}`)
	outside := mustParse(t, `{"type":"Point","coordinates":[15,5]}`)
	onEdge := mustParse(t, `{"type":"Point","coordinates":[10,5]}`)

	assert.True(t, Eval(OpIntersects, poly, inside, 0))
	assert.True(t, Eval(OpContains, poly, inside, 0))
	assert.True(t, Eval(OpWithin, inside, poly, 0))
	assert.False(t, Eval(OpIntersects, poly, outside, 0))
	assert.True(t, Eval(OpDisjoint, poly, outside, 0))
	assert.True(t, Eval(OpIntersects, poly, onEdge, 0))
}

func TestPolygonWithHole(t *testing.T) {
	donut := mustParse(t, `{"type":"Polygon","coordinates":[
		[[0,0],[10,0],[10,10],[0,10],[0,0]],
		[[4,4],[6,4],[6,6],[4,6],[4,4]]]}`)
	inHole := mustParse(t, `{"type":"Point","coordinates":[5,5]}`)
	inRing := mustParse(t, `{"type":"Point","coordinates":[2,2]}`)

	assert.False(t, Eval(OpContains, donut, inHole, 0))
	assert.True(t, Eval(OpContains, donut, inRing, 0))
}

func TestLinePolygonIntersection(t *testing.T) {
	poly := mustParse(t, unitSquare)
	crossing := mustParse(t, `{"type":"LineString","coordinates":[[-5,5],[15,5]]}`)
	outside := mustParse(t, `{"type":"LineString","coordinates":[[20,20],[30,30]]}`)
	insideLine := mustParse(t, `{"type":"LineString","coordinates":[[1,1],[2,2]]}`)

	assert.True(t, Eval(OpIntersects, poly, crossing, 0))
	assert.False(t, Eval(OpIntersects, poly, outside, 0))
	assert.True(t, Eval(OpIntersects, poly, insideLine, 0))
	assert.True(t, Eval(OpContains, poly, insideLine, 0))
	// a crossing line is not contained even though it intersects
	assert.False(t, Eval(OpContains, poly, crossing, 0))
}

func TestPolygonPolygon(t *testing.T) {
	a := mustParse(t, unitSquare)
	overlapping := mustParse(t, `{"type":"Polygon","coordinates":[[[5,5],[15,5],[15,15],[5,15],[5,5]]]}`)
	disjoint := mustParse(t, `{"type":"Polygon","coordinates":[[[20,20],[30,20],[30,30],[20,30],[20,20]]]}`)
	inner := mustParse(t, `{"type":"Polygon","coordinates":[[[2,2],[4,2],[4,4],[2,4],[2,2]]]}`)

	assert.True(t, Eval(OpIntersects, a, overlapping, 0))
	assert.False(t, Eval(OpIntersects, a, disjoint, 0))
	assert.True(t, Eval(OpContains, a, inner, 0))
	assert.False(t, Eval(OpContains, a, overlapping, 0))
	assert.True(t, Eval(OpWithin, inner, a, 0))
}

func TestBufferDistance(t *testing.T) {
	a := mustParse(t, `{"type":"Point","coordinates":[0,0]}`)
	b := mustParse(t, `{"type":"Point","coordinates":[3,4]}`)

	assert.InDelta(t, 5.0, Distance(a, b), 1e-9)
	assert.False(t, Eval(OpIntersects, a, b, 0))
	assert.True(t, Eval(OpIntersects, a, b, 5.0))
	assert.False(t, Eval(OpIntersects, a, b, 4.9))
	assert.True(t, Eval(OpDisjoint, a, b, 4.9))
}

func TestMeasure(t *testing.T) {
	poly := mustParse(t, unitSquare)
	donut := mustParse(t, `{"type":"Polygon","coordinates":[
		[[0,0],[10,0],[10,10],[0,10],[0,0]],
		[[4,4],[6,4],[6,6],[4,6],[4,4]]]}`)
	line := mustParse(t, `{"type":"LineString","coordinates":[[0,0],[3,4],[3,10]]}`)

	assert.InDelta(t, 100.0, Measure(MeasureArea, poly), 1e-9)
	assert.InDelta(t, 96.0, Measure(MeasureArea, donut), 1e-9)
	assert.InDelta(t, 40.0, Measure(MeasurePerimeter, poly), 1e-9)
	assert.InDelta(t, 11.0, Measure(MeasureLength, line), 1e-9)
}

func TestMetersToDegrees(t *testing.T) {
	assert.InDelta(t, 0.0450000405, MetersToDegrees(5000), 1e-6)
}
