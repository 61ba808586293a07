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

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

func productRows() *rowset.Result {
	return makeResult(
		fieldList(
			f("id", rowset.Int64),
			f("name", rowset.String),
			f("price", rowset.Float64),
			f("active", rowset.Boolean),
			f("created", rowset.Timestamp),
			lf("tags", rowset.String),
			f("location", rowset.Geometry),
		),
		rowset.Row{int64(1), "alpha test", 10.0, true,
			time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), []any{"red", "blue"}, point(5, 5)},
		rowset.Row{int64(2), "beta", 20.0, false,
			time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), []any{"blue"}, point(25, 25)},
		rowset.Row{int64(3), nil, nil, nil, nil, nil, nil},
	)
}

func runFilter(t *testing.T, pred map[string]any, vars map[string]any) []int64 {
	t.Helper()
	fl := &Filter{Input: &fakePrimitive{res: productRows()}, Predicate: pred}
	ec := testContext(t, nil)
	for k, v := range vars {
		ec.Variables[k] = v
	}
	res, err := fl.Execute(context.Background(), ec)
	require.NoError(t, err)
	ids := make([]int64, len(res.Rows))
	for i, row := range res.Rows {
		ids[i] = row[0].(int64)
	}
	return ids
}

func TestFilterOperators(t *testing.T) {
	tests := []struct {
		name string
		pred map[string]any
		want []int64
	}{{
		name: "eq int",
		pred: map[string]any{"id": map[string]any{"eq": float64(2)}},
		want: []int64{2},
	}, {
		name: "in",
		pred: map[string]any{"id": map[string]any{"in": []any{float64(1), float64(3)}}},
		want: []int64{1, 3},
	}, {
		name: "gt float",
		pred: map[string]any{"price": map[string]any{"gt": 15.0}},
		want: []int64{2},
	}, {
		name: "gte lte band",
		pred: map[string]any{"price": map[string]any{"gte": 10.0, "lte": 10.0}},
		want: []int64{1},
	}, {
		name: "like",
		pred: map[string]any{"name": map[string]any{"like": "%test%"}},
		want: []int64{1},
	}, {
		name: "like underscore",
		pred: map[string]any{"name": map[string]any{"like": "bet_"}},
		want: []int64{2},
	}, {
		name: "ilike",
		pred: map[string]any{"name": map[string]any{"ilike": "%TEST%"}},
		want: []int64{1},
	}, {
		name: "regex",
		pred: map[string]any{"name": map[string]any{"regex": "^beta$"}},
		want: []int64{2},
	}, {
		name: "is_null true",
		pred: map[string]any{"name": map[string]any{"is_null": true}},
		want: []int64{3},
	}, {
		name: "is_null false",
		pred: map[string]any{"name": map[string]any{"is_null": false}},
		want: []int64{1, 2},
	}, {
		name: "boolean eq",
		pred: map[string]any{"active": map[string]any{"eq": true}},
		want: []int64{1},
	}, {
		name: "timestamp gt string operand",
		pred: map[string]any{"created": map[string]any{"gt": "2024-03-01T00:00:00Z"}},
		want: []int64{2},
	}, {
		name: "array contains all",
		pred: map[string]any{"tags": map[string]any{"contains": []any{"red", "blue"}}},
		want: []int64{1},
	}, {
		name: "array intersects any",
		pred: map[string]any{"tags": map[string]any{"intersects": []any{"blue", "green"}}},
		want: []int64{1, 2},
	}, {
		name: "array eq exact",
		pred: map[string]any{"tags": map[string]any{"eq": []any{"blue"}}},
		want: []int64{2},
	}, {
		name: "geometry within",
		pred: map[string]any{"location": map[string]any{"within": square(0, 0, 10, 10)}},
		want: []int64{1},
	}, {
		name: "and across columns",
		pred: map[string]any{
			"price":  map[string]any{"gt": 5.0},
			"active": map[string]any{"eq": true},
		},
		want: []int64{1},
	}, {
		name: "_or",
		pred: map[string]any{"_or": []any{
			map[string]any{"id": map[string]any{"eq": float64(1)}},
			map[string]any{"id": map[string]any{"eq": float64(3)}},
		}},
		want: []int64{1, 3},
	}, {
		name: "_and",
		pred: map[string]any{"_and": []any{
			map[string]any{"price": map[string]any{"gt": 5.0}},
			map[string]any{"price": map[string]any{"lt": 15.0}},
		}},
		want: []int64{1},
	}}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, runFilter(t, tc.pred, nil))
		})
	}
}

func TestFilterNotFollowsSQLNulls(t *testing.T) {
	// NOT (name LIKE '%test%') is unknown for a null name, so the
	// null row stays excluded either way.
	ids := runFilter(t, map[string]any{
		"_not": map[string]any{"name": map[string]any{"like": "%test%"}},
	}, nil)
	assert.Equal(t, []int64{2}, ids)

	ids = runFilter(t, map[string]any{
		"_not": map[string]any{"name": map[string]any{"is_null": true}},
	}, nil)
	assert.Equal(t, []int64{1, 2}, ids, "_not over is_null is two-valued")
}

func TestFilterNullComparisonsNeverMatch(t *testing.T) {
	ids := runFilter(t, map[string]any{"price": map[string]any{"lt": 1000.0}}, nil)
	assert.Equal(t, []int64{1, 2}, ids, "null price is not less than anything")
}

func TestFilterBindVars(t *testing.T) {
	ids := runFilter(t,
		map[string]any{"price": map[string]any{"gte": BindVar{Name: "minPrice"}}},
		map[string]any{"minPrice": 15.0},
	)
	assert.Equal(t, []int64{2}, ids)
}

func TestFilterEmptyPredicate(t *testing.T) {
	ids := runFilter(t, map[string]any{}, nil)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestFilterErrors(t *testing.T) {
	tests := []struct {
		name string
		pred map[string]any
	}{{
		name: "unknown operator",
		pred: map[string]any{"name": map[string]any{"near": "x"}},
	}, {
		name: "bare value instead of operator map",
		pred: map[string]any{"name": "beta"},
	}, {
		name: "invalid regex",
		pred: map[string]any{"name": map[string]any{"regex": "("}},
	}, {
		name: "boolean logic inside scalar filter",
		pred: map[string]any{"name": map[string]any{"_not": map[string]any{"eq": "x"}}},
	}, {
		name: "geometry operand not geojson",
		pred: map[string]any{"location": map[string]any{"within": "POLYGON(...)"}},
	}}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fl := &Filter{Input: &fakePrimitive{res: productRows()}, Predicate: tc.pred}
			_, err := fl.Execute(context.Background(), testContext(t, nil))
			require.Error(t, err)
			assert.Equal(t, lterrors.CodeQueryValidation, lterrors.ErrCode(err))
		})
	}
}

func TestLikeToRegexp(t *testing.T) {
	assert.Equal(t, `(?s)^.*a\.b.$`, likeToRegexp("%a.b_", false))
	assert.Equal(t, `(?i)(?s)^x$`, likeToRegexp("x", true))
}
