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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/rowset"
)

func TestProjectionRendersLeaves(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	input := &fakePrimitive{res: makeResult(
		fieldList(f("id", rowset.Int64), f("created", rowset.Timestamp), f("day", rowset.Date)),
		rowset.Row{int64(7), created, created},
	)}
	p := &Projection{Input: input, Cols: []ProjCol{
		{From: "id", As: "id", Type: rowset.Int64},
		{From: "created", As: "createdAt", Type: rowset.Timestamp},
		{From: "day", As: "day", Type: rowset.Date},
	}}
	res, err := p.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	row := res.Rows[0]
	assert.Equal(t, int64(7), row[0])
	assert.Equal(t, "2024-03-01T12:30:00Z", row[1])
	assert.Equal(t, "2024-03-01", row[2])
	assert.Equal(t, "createdAt", res.Fields[1].Name, "aliases name the output")
}

func TestProjectionShapesDocuments(t *testing.T) {
	// The same relation column in its three arrival shapes: a local
	// join document, a decoded JSON object, and raw JSON text.
	doc := rowset.NewDocument()
	doc.Set("name", "ada")
	doc.Set("secret", "x")

	input := &fakePrimitive{res: makeResult(
		fieldList(f("id", rowset.Int64), f("customer", rowset.JSON)),
		rowset.Row{int64(1), doc},
		rowset.Row{int64(2), map[string]any{"name": "grace", "secret": "y"}},
		rowset.Row{int64(3), []byte(`{"name":"edsger","secret":"z"}`)},
		rowset.Row{int64(4), nil},
	)}
	p := &Projection{Input: input, Cols: []ProjCol{
		{From: "id", As: "id", Type: rowset.Int64},
		{From: "customer", As: "customer", Shape: []ProjCol{
			{From: "name", As: "name", Type: rowset.String},
		}},
	}}
	res, err := p.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		shaped, ok := res.Rows[i][1].(*rowset.Document)
		require.True(t, ok, "row %d", i)
		name, _ := shaped.Get("name")
		assert.NotNil(t, name)
		_, leaked := shaped.Get("secret")
		assert.False(t, leaked, "unselected fields must not survive projection")
	}
	assert.Nil(t, res.Rows[3][1])
}

func TestProjectionShapesLists(t *testing.T) {
	orders := []any{
		map[string]any{"id": float64(10), "total": 12.5},
		map[string]any{"id": float64(11), "total": 3.0},
	}
	input := &fakePrimitive{res: makeResult(
		fieldList(f("name", rowset.String), lf("orders", rowset.JSON)),
		rowset.Row{"ada", orders},
		rowset.Row{"grace", []byte(`[{"id":12,"total":9.5}]`)},
		rowset.Row{"edsger", []any{}},
	)}
	p := &Projection{Input: input, Cols: []ProjCol{
		{From: "name", As: "name", Type: rowset.String},
		{From: "orders", As: "orders", List: true, Shape: []ProjCol{
			{From: "id", As: "id", Type: rowset.Int64},
			{From: "total", As: "total", Type: rowset.Float64},
		}},
	}}
	res, err := p.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	ada := res.Rows[0][1].([]any)
	require.Len(t, ada, 2)
	id, _ := ada[0].(*rowset.Document).Get("id")
	assert.Equal(t, int64(10), id, "JSON numbers land as typed integers")

	grace := res.Rows[1][1].([]any)
	require.Len(t, grace, 1)
	total, _ := grace[0].(*rowset.Document).Get("total")
	assert.Equal(t, 9.5, total)

	assert.Empty(t, res.Rows[2][1])
}

func TestProjectionFieldOrderFollowsSelection(t *testing.T) {
	// JSON object decoding loses key order; the projection restores
	// the selection's order.
	input := &fakePrimitive{res: makeResult(
		fieldList(f("customer", rowset.JSON)),
		rowset.Row{map[string]any{"zeta": "z", "alpha": "a", "mid": "m"}},
	)}
	p := &Projection{Input: input, Cols: []ProjCol{
		{From: "customer", As: "customer", Shape: []ProjCol{
			{From: "zeta", As: "zeta", Type: rowset.String},
			{From: "alpha", As: "alpha", Type: rowset.String},
			{From: "mid", As: "mid", Type: rowset.String},
		}},
	}}
	res, err := p.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	doc := res.Rows[0][0].(*rowset.Document)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, doc.Keys())
	text, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"z","alpha":"a","mid":"m"}`, string(text))
}

func TestProjectionNestedShapes(t *testing.T) {
	input := &fakePrimitive{res: makeResult(
		fieldList(f("order", rowset.JSON)),
		rowset.Row{[]byte(`{"id":1,"customer":{"name":"ada","city":{"name":"Oslo"}}}`)},
	)}
	p := &Projection{Input: input, Cols: []ProjCol{
		{From: "order", As: "order", Shape: []ProjCol{
			{From: "id", As: "id", Type: rowset.Int64},
			{From: "customer", As: "customer", Shape: []ProjCol{
				{From: "name", As: "name", Type: rowset.String},
				{From: "city", As: "city", Shape: []ProjCol{
					{From: "name", As: "name", Type: rowset.String},
				}},
			}},
		}},
	}}
	res, err := p.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	order := res.Rows[0][0].(*rowset.Document)
	customer, _ := order.Get("customer")
	city, _ := customer.(*rowset.Document).Get("city")
	name, _ := city.(*rowset.Document).Get("name")
	assert.Equal(t, "Oslo", name)
}

func TestProjectionUnwrapsCarrierDocuments(t *testing.T) {
	tag := rowset.NewDocument()
	tag.Set("name", "sale")
	carrier := rowset.NewDocument()
	carrier.Set("__m2m", tag)
	input := &fakePrimitive{res: makeResult(
		fieldList(f("id", rowset.Int64), f("tags", rowset.JSON)),
		rowset.Row{int64(1), []any{carrier}},
	)}
	p := &Projection{Input: input, Cols: []ProjCol{
		{From: "id", As: "id", Type: rowset.Int64},
		{From: "tags", As: "tags", List: true, Unwrap: "__m2m", Shape: []ProjCol{
			{From: "name", As: "name", Type: rowset.String},
		}},
	}}
	res, err := p.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	tags := res.Rows[0][1].([]any)
	require.Len(t, tags, 1)
	name, _ := tags[0].(*rowset.Document).Get("name")
	assert.Equal(t, "sale", name)
}

func TestProjectionNullAndLiteralColumns(t *testing.T) {
	input := &fakePrimitive{res: makeResult(
		fieldList(f("id", rowset.Int64), f("price", rowset.Float64)),
		rowset.Row{int64(1), 9.5},
	)}
	p := &Projection{Input: input, Cols: []ProjCol{
		{From: "id", As: "id", Type: rowset.Int64},
		{From: "price", As: "price", Type: rowset.Float64, Null: true},
		{As: "__typename", Literal: "Product"},
	}}
	res, err := p.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	assert.Nil(t, res.Rows[0][1], "redacted columns render null even when the row has a value")
	assert.Equal(t, "Product", res.Rows[0][2])
}

func TestProjectionRowsAffected(t *testing.T) {
	input := &fakePrimitive{res: &rowset.Result{
		Fields:       fieldList(f("id", rowset.Int64)),
		Rows:         []rowset.Row{{int64(1)}},
		RowsAffected: 3,
	}}
	p := &Projection{Input: input, Cols: []ProjCol{
		{As: "affected_rows", FromRowsAffected: true},
		{From: "id", As: "id", Type: rowset.Int64},
	}}
	res, err := p.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rows[0][0])
	assert.Equal(t, rowset.BigInt, res.Fields[0].Type)
}

func TestProjectionMissingColumn(t *testing.T) {
	input := &fakePrimitive{res: makeResult(fieldList(f("id", rowset.Int64)), rowset.Row{int64(1)})}
	p := &Projection{Input: input, Cols: []ProjCol{{From: "nope", As: "nope", Type: rowset.String}}}
	_, err := p.Execute(context.Background(), testContext(t, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope"`)
}
