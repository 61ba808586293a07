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

	"github.com/latticeio/lattice/go/rowset"
)

func aggregateInput() *fakePrimitive {
	return &fakePrimitive{res: makeResult(
		fieldList(
			f("status", rowset.String),
			f("total", rowset.Float64),
			f("qty", rowset.Int64),
			f("ok", rowset.Boolean),
		),
		rowset.Row{"open", 10.0, int64(1), true},
		rowset.Row{"open", 30.0, int64(3), true},
		rowset.Row{"closed", nil, int64(2), false},
		rowset.Row{nil, 20.0, nil, nil},
	)}
}

func runAggregate(t *testing.T, cols []AggregateColumn) *rowset.Result {
	t.Helper()
	a := &LocalAggregate{Input: aggregateInput(), Columns: cols}
	res, err := a.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	return res
}

func TestLocalAggregateNumeric(t *testing.T) {
	res := runAggregate(t, []AggregateColumn{
		{Alias: "_rows_count", Func: "count"},
		{Alias: "total_count", Field: "total", Func: "count"},
		{Alias: "total_sum", Field: "total", Func: "sum"},
		{Alias: "total_avg", Field: "total", Func: "avg"},
		{Alias: "total_min", Field: "total", Func: "min"},
		{Alias: "total_max", Field: "total", Func: "max"},
		{Alias: "qty_sum", Field: "qty", Func: "sum"},
		{Alias: "total_var", Field: "total", Func: "variance"},
		{Alias: "total_stddev", Field: "total", Func: "stddev"},
	})
	row := res.Rows[0]
	assert.Equal(t, int64(4), row[0], "row count includes rows with nulls")
	assert.Equal(t, int64(3), row[1], "count skips nulls")
	assert.Equal(t, 60.0, row[2])
	assert.Equal(t, 20.0, row[3])
	assert.Equal(t, 10.0, row[4])
	assert.Equal(t, 30.0, row[5])
	assert.Equal(t, int64(6), row[6], "integer columns sum to integers")
	assert.InDelta(t, 100.0, row[7].(float64), 1e-9, "sample variance over {10,30,20}")
	assert.InDelta(t, 10.0, row[8].(float64), 1e-9)

	assert.Equal(t, rowset.BigInt, res.Fields[0].Type)
	assert.Equal(t, rowset.Float64, res.Fields[2].Type)
	assert.Equal(t, rowset.BigInt, res.Fields[6].Type)
}

func TestLocalAggregateStringsAndBools(t *testing.T) {
	res := runAggregate(t, []AggregateColumn{
		{Alias: "names", Field: "status", Func: "string_agg", Separator: ", "},
		{Alias: "status_list", Field: "status", Func: "list"},
		{Alias: "status_any", Field: "status", Func: "any"},
		{Alias: "status_last", Field: "status", Func: "last"},
		{Alias: "all_ok", Field: "ok", Func: "bool_and"},
		{Alias: "any_ok", Field: "ok", Func: "bool_or"},
	})
	row := res.Rows[0]
	assert.Equal(t, "open, open, closed", row[0], "string_agg skips nulls")
	assert.Equal(t, []any{"open", "open", "closed", nil}, row[1], "list keeps nulls")
	assert.Equal(t, "open", row[2])
	assert.Nil(t, row[3], "last sees the trailing null")
	assert.Equal(t, false, row[4])
	assert.Equal(t, true, row[5])
	assert.True(t, res.Fields[1].List)
}

func TestLocalAggregateEmptyInput(t *testing.T) {
	a := &LocalAggregate{
		Input: &fakePrimitive{res: makeResult(fieldList(f("total", rowset.Float64)))},
		Columns: []AggregateColumn{
			{Alias: "_rows_count", Func: "count"},
			{Alias: "total_sum", Field: "total", Func: "sum"},
			{Alias: "total_avg", Field: "total", Func: "avg"},
			{Alias: "total_stddev", Field: "total", Func: "stddev"},
		},
	}
	res, err := a.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)
	row := res.Rows[0]
	assert.Equal(t, int64(0), row[0])
	assert.Nil(t, row[1], "sum of nothing is null, not zero")
	assert.Nil(t, row[2])
	assert.Nil(t, row[3])
}

func TestLocalAggregateErrors(t *testing.T) {
	a := &LocalAggregate{
		Input:   aggregateInput(),
		Columns: []AggregateColumn{{Alias: "x", Field: "status", Func: "sum"}},
	}
	_, err := a.Execute(context.Background(), testContext(t, nil))
	require.Error(t, err)

	a = &LocalAggregate{
		Input:   aggregateInput(),
		Columns: []AggregateColumn{{Alias: "x", Func: "sum"}},
	}
	_, err = a.Execute(context.Background(), testContext(t, nil))
	require.Error(t, err, "only count may omit the column")
}

func TestLocalBucketAggregate(t *testing.T) {
	b := &LocalBucketAggregate{
		Input: aggregateInput(),
		Keys:  []BucketColumn{{Alias: "status", Field: "status"}},
		Columns: []AggregateColumn{
			{Alias: "_rows_count", Func: "count"},
			{Alias: "total_sum", Field: "total", Func: "sum"},
		},
	}
	res, err := b.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	require.Len(t, res.Rows, 3, "null keys group together, separate from values")
	assert.Equal(t, rowset.Row{"open", int64(2), 40.0}, res.Rows[0])
	assert.Equal(t, rowset.Row{"closed", int64(1), nil}, res.Rows[1])
	assert.Equal(t, rowset.Row{nil, int64(1), 20.0}, res.Rows[2])
}

func TestLocalBucketAggregateTimeBucket(t *testing.T) {
	input := &fakePrimitive{res: makeResult(
		fieldList(f("created", rowset.Timestamp), f("total", rowset.Float64)),
		rowset.Row{time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), 1.0},
		rowset.Row{time.Date(2024, 1, 28, 23, 0, 0, 0, time.UTC), 2.0},
		rowset.Row{time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 4.0},
	)}
	b := &LocalBucketAggregate{
		Input: input,
		Keys:  []BucketColumn{{Alias: "month", Field: "created", Bucket: "month"}},
		Columns: []AggregateColumn{
			{Alias: "total_sum", Field: "total", Func: "sum"},
		},
	}
	res, err := b.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), res.Rows[0][0])
	assert.Equal(t, 3.0, res.Rows[0][1])
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), res.Rows[1][0])
	assert.Equal(t, 4.0, res.Rows[1][1])
}

func TestLocalBucketAggregateDatePart(t *testing.T) {
	input := &fakePrimitive{res: makeResult(
		fieldList(f("created", rowset.Timestamp)),
		rowset.Row{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		rowset.Row{time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC)},
	)}
	b := &LocalBucketAggregate{
		Input:   input,
		Keys:    []BucketColumn{{Alias: "year", Field: "created", Part: "YEAR"}},
		Columns: []AggregateColumn{{Alias: "_rows_count", Func: "count"}},
	}
	res, err := b.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, rowset.BigInt, res.Fields[0].Type)
	assert.Equal(t, int64(2024), res.Rows[0][0])
	assert.Equal(t, int64(2023), res.Rows[1][0])
}

func TestLocalBucketAggregateEmptyInput(t *testing.T) {
	b := &LocalBucketAggregate{
		Input:   &fakePrimitive{res: makeResult(fieldList(f("status", rowset.String)))},
		Keys:    []BucketColumn{{Alias: "status", Field: "status"}},
		Columns: []AggregateColumn{{Alias: "_rows_count", Func: "count"}},
	}
	res, err := b.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)
	assert.Empty(t, res.Rows, "no input rows means no buckets")
	require.Len(t, res.Fields, 2, "the shape survives an empty input")
}

func TestTruncateTime(t *testing.T) {
	ts := time.Date(2024, 8, 14, 13, 45, 27, 500, time.UTC)
	tests := []struct {
		unit string
		want time.Time
	}{
		{"year", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"quarter", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"month", time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)},
		{"week", time.Date(2024, 8, 12, 0, 0, 0, 0, time.UTC)},
		{"day", time.Date(2024, 8, 14, 0, 0, 0, 0, time.UTC)},
		{"hour", time.Date(2024, 8, 14, 13, 0, 0, 0, time.UTC)},
		{"minute", time.Date(2024, 8, 14, 13, 45, 0, 0, time.UTC)},
		{"second", time.Date(2024, 8, 14, 13, 45, 27, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.unit, func(t *testing.T) {
			got, err := truncateTime(ts, tc.unit)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	// 2024-08-11 is a Sunday; its week starts the Monday before.
	sunday := time.Date(2024, 8, 11, 12, 0, 0, 0, time.UTC)
	got, err := truncateTime(sunday, "week")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC), got)

	_, err = truncateTime(ts, "fortnight")
	require.Error(t, err)
}

func TestTimePartValue(t *testing.T) {
	ts := time.Date(2024, 8, 14, 13, 45, 27, 0, time.UTC)
	tests := []struct {
		part string
		want int64
	}{
		{"YEAR", 2024},
		{"QUARTER", 3},
		{"MONTH", 8},
		{"WEEK", 33},
		{"DAY", 14},
		{"HOUR", 13},
		{"MINUTE", 45},
		{"SECOND", 27},
		{"DOW", 3},
		{"DOY", 227},
		{"EPOCH", ts.Unix()},
	}
	for _, tc := range tests {
		t.Run(tc.part, func(t *testing.T) {
			got, err := timePartValue(ts, tc.part)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
	_, err := timePartValue(ts, "DECADE")
	require.Error(t, err)
}
