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

package rowset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullsafeCompare(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"nils", nil, nil, 0},
		{"nil first", nil, int64(1), -1},
		{"nil last", "x", nil, 1},
		{"ints", int64(2), int64(5), -1},
		{"int float mix", int64(2), float64(2.0), 0},
		{"float int mix", float64(2.5), int64(2), 1},
		{"strings", "abc", "abd", -1},
		{"bools", false, true, -1},
		{"times", ts, ts.Add(time.Hour), -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NullsafeCompare(tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := NullsafeCompare("abc", int64(1))
	assert.ErrorIs(t, err, ErrIncomparable)
}

func TestKeyStringCollapsesIntegralFloats(t *testing.T) {
	// Rows decoded from JSON sources carry float64 ids and must join
	// against int64 ids from SQL drivers.
	assert.Equal(t, KeyString(int64(42)), KeyString(float64(42)))
	assert.NotEqual(t, KeyString(int64(42)), KeyString(float64(42.5)))
	assert.NotEqual(t, KeyString("42"), KeyString(int64(42)))
}

func TestRowKey(t *testing.T) {
	row := Row{int64(1), "a", true}
	assert.Equal(t, RowKey(row, []int{0, 1}), RowKey(Row{float64(1), "a"}, []int{0, 1}))
	assert.NotEqual(t, RowKey(row, []int{0}), RowKey(row, []int{1}))
}

func TestCoerceValue(t *testing.T) {
	got, err := CoerceValue(Int64, false, float64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	_, err = CoerceValue(Int64, false, float64(7.5))
	assert.Error(t, err)

	got, err = CoerceValue(Timestamp, false, "2026-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), got)

	got, err = CoerceValue(Boolean, false, "true")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = CoerceValue(Int64, true, []any{float64(1), float64(2)})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, got)

	got, err = CoerceValue(Geometry, false, `{"type":"Point","coordinates":[1,2]}`)
	require.NoError(t, err)
	assert.Equal(t, "Point", got.(map[string]any)["type"])
}

func TestResultHelpers(t *testing.T) {
	r := &Result{
		Fields: []Field{{Name: "id", Type: Int64}, {Name: "name", Type: String}},
	}
	r.AppendRow(Row{int64(1), "a"})
	r.AppendRow(Row{int64(2), "b"})
	r.AppendRow(Row{int64(3), "c"})

	assert.Equal(t, 1, r.ColumnIndex("name"))
	assert.Equal(t, -1, r.ColumnIndex("missing"))

	clone := r.ShallowClone()
	clone.Truncate(2)
	assert.Len(t, clone.Rows, 2)
	assert.Len(t, r.Rows, 3)
}

func TestDocumentOrder(t *testing.T) {
	d := NewDocument()
	d.Set("zeta", int64(1))
	d.Set("alpha", "x")
	d.Set("mid", []any{NewDocument()})
	d.Set("zeta", int64(2))

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":2,"alpha":"x","mid":[{}]}`, string(out))
}

func TestRenderValue(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01T12:30:00Z", RenderValue(Timestamp, false, ts))
	assert.Equal(t, "2026-03-01", RenderValue(Date, false, ts))
	assert.Equal(t, int64(5), RenderValue(BigInt, false, int64(5)))
	assert.Equal(t, []any{"2026-03-01"}, RenderValue(Date, true, []any{ts}))
	assert.Nil(t, RenderValue(String, false, nil))
}
