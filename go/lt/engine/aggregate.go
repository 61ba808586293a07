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
	"math"
	"strings"
	"time"

	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// AggregateColumn is one locally computed aggregate. An empty Field
// with the count function counts rows. Null handling follows SQL:
// count, sum, avg, min, max, stddev, variance, string_agg, bool_and
// and bool_or skip nulls; list, any and last keep them.
type AggregateColumn struct {
	Alias string
	Field string
	Func  string
	// Separator applies to string_agg only.
	Separator string
}

// BucketColumn is one grouping expression: a plain column, a temporal
// truncation, or a date part. Bucket and Part are mutually exclusive.
type BucketColumn struct {
	Alias string
	Field string
	// Bucket truncates a time column to a calendar unit, in UTC.
	Bucket string
	// Part extracts a date part as an integer.
	Part string
}

// LocalAggregate collapses its input to a single row of aggregate
// values. It is the fallback for aggregation queries whose source
// cannot push aggregation down.
type LocalAggregate struct {
	Input   Primitive
	Columns []AggregateColumn
}

var _ Primitive = (*LocalAggregate)(nil)

// Execute implements Primitive.
func (a *LocalAggregate) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	input, err := a.Input.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}
	fields, row, err := aggregateRows(a.Columns, input.Fields, input.Rows)
	if err != nil {
		return nil, err
	}
	out := &rowset.Result{Fields: fields}
	out.AppendRow(row)
	return out, nil
}

// Description implements Primitive.
func (a *LocalAggregate) Description() PrimitiveDescription {
	return PrimitiveDescription{
		OperatorType: "Aggregate",
		Variant:      "Scalar",
		Other:        map[string]any{"Aggregates": describeAggregates(a.Columns)},
		Inputs:       []PrimitiveDescription{a.Input.Description()},
	}
}

// LocalBucketAggregate groups its input by key expressions and
// aggregates within each group. Groups appear in first-seen row
// order; ordering and limits are applied by downstream primitives.
type LocalBucketAggregate struct {
	Input   Primitive
	Keys    []BucketColumn
	Columns []AggregateColumn
}

var _ Primitive = (*LocalBucketAggregate)(nil)

// Execute implements Primitive.
func (b *LocalBucketAggregate) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	input, err := b.Input.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}

	keyFields := make([]rowset.Field, len(b.Keys))
	keyCols := make([]int, len(b.Keys))
	for i, k := range b.Keys {
		idx, err := columnIndexes(input.Fields, []string{k.Field})
		if err != nil {
			return nil, err
		}
		keyCols[i] = idx[0]
		f := input.Fields[idx[0]]
		switch {
		case k.Part != "":
			keyFields[i] = rowset.Field{Name: k.Alias, Type: rowset.BigInt}
		default:
			keyFields[i] = rowset.Field{Name: k.Alias, Type: f.Type, List: f.List}
		}
	}

	type group struct {
		key  rowset.Row
		rows []rowset.Row
	}
	groups := make([]*group, 0, 16)
	byKey := make(map[string]*group)
	keyIdx := make([]int, len(b.Keys))
	for i := range keyIdx {
		keyIdx[i] = i
	}
	for _, row := range input.Rows {
		key := make(rowset.Row, len(b.Keys))
		for i, k := range b.Keys {
			cell, err := bucketKeyValue(&k, row[keyCols[i]])
			if err != nil {
				return nil, err
			}
			key[i] = cell
		}
		ks := rowset.RowKey(key, keyIdx)
		g := byKey[ks]
		if g == nil {
			g = &group{key: key}
			byKey[ks] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}

	var out *rowset.Result
	for _, g := range groups {
		aggFields, aggRow, err := aggregateRows(b.Columns, input.Fields, g.rows)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = &rowset.Result{Fields: append(append([]rowset.Field{}, keyFields...), aggFields...)}
		}
		out.AppendRow(append(append(rowset.Row{}, g.key...), aggRow...))
	}
	if out == nil {
		aggFields, _, err := aggregateRows(b.Columns, input.Fields, nil)
		if err != nil {
			return nil, err
		}
		out = &rowset.Result{Fields: append(append([]rowset.Field{}, keyFields...), aggFields...)}
	}
	return out, nil
}

// Description implements Primitive.
func (b *LocalBucketAggregate) Description() PrimitiveDescription {
	keys := make([]string, len(b.Keys))
	for i, k := range b.Keys {
		switch {
		case k.Bucket != "":
			keys[i] = k.Field + "/" + k.Bucket
		case k.Part != "":
			keys[i] = k.Field + "/" + k.Part
		default:
			keys[i] = k.Field
		}
	}
	return PrimitiveDescription{
		OperatorType: "Aggregate",
		Variant:      "Bucket",
		Other: map[string]any{
			"GroupBy":    strings.Join(keys, ", "),
			"Aggregates": describeAggregates(b.Columns),
		},
		Inputs: []PrimitiveDescription{b.Input.Description()},
	}
}

func describeAggregates(cols []AggregateColumn) string {
	terms := make([]string, len(cols))
	for i, c := range cols {
		field := c.Field
		if field == "" {
			field = "*"
		}
		terms[i] = c.Func + "(" + field + ") AS " + c.Alias
	}
	return strings.Join(terms, ", ")
}

func bucketKeyValue(k *BucketColumn, cell any) (any, error) {
	if k.Bucket == "" && k.Part == "" {
		return cell, nil
	}
	if cell == nil {
		return nil, nil
	}
	t, ok := cell.(time.Time)
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeExecution, "bucket key %q is not a time value", k.Field)
	}
	if k.Part != "" {
		return timePartValue(t, k.Part)
	}
	return truncateTime(t, k.Bucket)
}

// truncateTime floors a time to a calendar unit in UTC, the local
// equivalent of date_trunc.
func truncateTime(t time.Time, unit string) (time.Time, error) {
	t = t.UTC()
	switch strings.ToLower(unit) {
	case "year":
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC), nil
	case "quarter":
		q := (int(t.Month()) - 1) / 3
		return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC), nil
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case "week":
		// date_trunc weeks start on Monday.
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		back := (int(t.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -back), nil
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case "hour":
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC), nil
	case "minute":
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
	case "second":
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
	}
	return time.Time{}, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown bucket unit %q", unit)
}

func timePartValue(t time.Time, part string) (int64, error) {
	t = t.UTC()
	switch part {
	case "YEAR":
		return int64(t.Year()), nil
	case "QUARTER":
		return int64((int(t.Month())-1)/3 + 1), nil
	case "MONTH":
		return int64(t.Month()), nil
	case "WEEK":
		_, w := t.ISOWeek()
		return int64(w), nil
	case "DAY":
		return int64(t.Day()), nil
	case "HOUR":
		return int64(t.Hour()), nil
	case "MINUTE":
		return int64(t.Minute()), nil
	case "SECOND":
		return int64(t.Second()), nil
	case "DOW":
		return int64(t.Weekday()), nil
	case "DOY":
		return int64(t.YearDay()), nil
	case "EPOCH":
		return t.Unix(), nil
	}
	return 0, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown time part %q", part)
}

func aggregateRows(cols []AggregateColumn, fields []rowset.Field, rows []rowset.Row) ([]rowset.Field, rowset.Row, error) {
	outFields := make([]rowset.Field, len(cols))
	outRow := make(rowset.Row, len(cols))
	for i, c := range cols {
		if c.Field == "" {
			if c.Func != "count" {
				return nil, nil, lterrors.Errorf(lterrors.CodeQueryValidation, "aggregation %q needs a column", c.Func)
			}
			outFields[i] = rowset.Field{Name: c.Alias, Type: rowset.BigInt}
			outRow[i] = int64(len(rows))
			continue
		}
		idx, err := columnIndexes(fields, []string{c.Field})
		if err != nil {
			return nil, nil, err
		}
		field := fields[idx[0]]
		values := make([]any, len(rows))
		for r, row := range rows {
			values[r] = row[idx[0]]
		}
		typ, val, err := computeAggregate(&c, field, values)
		if err != nil {
			return nil, nil, err
		}
		outFields[i] = rowset.Field{Name: c.Alias, Type: typ, List: c.Func == "list"}
		outRow[i] = val
	}
	return outFields, outRow, nil
}

func computeAggregate(c *AggregateColumn, field rowset.Field, values []any) (rowset.Type, any, error) {
	nonNull := make([]any, 0, len(values))
	for _, v := range values {
		if v != nil {
			nonNull = append(nonNull, v)
		}
	}
	switch c.Func {
	case "count":
		return rowset.BigInt, int64(len(nonNull)), nil
	case "sum":
		return sumValues(field, nonNull)
	case "avg":
		if len(nonNull) == 0 {
			return rowset.Float64, nil, nil
		}
		total, err := floatSum(field, nonNull)
		if err != nil {
			return rowset.Float64, nil, err
		}
		return rowset.Float64, total / float64(len(nonNull)), nil
	case "min", "max":
		return minMax(c.Func == "max", field, nonNull)
	case "stddev", "variance":
		return sampleMoment(c.Func == "stddev", field, nonNull)
	case "list":
		if len(values) == 0 {
			return field.Type, nil, nil
		}
		return field.Type, append([]any{}, values...), nil
	case "any":
		if len(values) == 0 {
			return field.Type, nil, nil
		}
		return field.Type, values[0], nil
	case "last":
		if len(values) == 0 {
			return field.Type, nil, nil
		}
		return field.Type, values[len(values)-1], nil
	case "string_agg":
		return stringAgg(c.Separator, field, nonNull)
	case "bool_and", "bool_or":
		return boolAgg(c.Func == "bool_and", field, nonNull)
	}
	return rowset.Unknown, nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown aggregation %q", c.Func)
}

func sumValues(field rowset.Field, values []any) (rowset.Type, any, error) {
	if len(values) == 0 {
		if field.Type == rowset.Float64 {
			return rowset.Float64, nil, nil
		}
		return rowset.BigInt, nil, nil
	}
	if field.Type == rowset.Float64 {
		var total float64
		for _, v := range values {
			f, err := cellFloat(field, v)
			if err != nil {
				return rowset.Float64, nil, err
			}
			total += f
		}
		return rowset.Float64, total, nil
	}
	var total int64
	for _, v := range values {
		n, ok := v.(int64)
		if !ok {
			return rowset.BigInt, nil, lterrors.Errorf(lterrors.CodeExecution, "cannot sum %q", field.Name)
		}
		total += n
	}
	return rowset.BigInt, total, nil
}

func minMax(max bool, field rowset.Field, values []any) (rowset.Type, any, error) {
	var best any
	for _, v := range values {
		if best == nil {
			best = v
			continue
		}
		c, err := rowset.NullsafeCompare(v, best)
		if err != nil {
			return field.Type, nil, lterrors.Errorf(lterrors.CodeExecution, "cannot compare %q: %v", field.Name, err)
		}
		if (max && c > 0) || (!max && c < 0) {
			best = v
		}
	}
	return field.Type, best, nil
}

// sampleMoment computes the sample standard deviation or variance,
// null below two observations like stddev_samp.
func sampleMoment(stddev bool, field rowset.Field, values []any) (rowset.Type, any, error) {
	if len(values) < 2 {
		return rowset.Float64, nil, nil
	}
	mean, err := floatSum(field, values)
	if err != nil {
		return rowset.Float64, nil, err
	}
	mean /= float64(len(values))
	var sq float64
	for _, v := range values {
		f, err := cellFloat(field, v)
		if err != nil {
			return rowset.Float64, nil, err
		}
		d := f - mean
		sq += d * d
	}
	variance := sq / float64(len(values)-1)
	if stddev {
		return rowset.Float64, math.Sqrt(variance), nil
	}
	return rowset.Float64, variance, nil
}

func stringAgg(sep string, field rowset.Field, values []any) (rowset.Type, any, error) {
	if len(values) == 0 {
		return rowset.String, nil, nil
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return rowset.String, nil, lterrors.Errorf(lterrors.CodeExecution, "cannot string_agg %q", field.Name)
		}
		parts = append(parts, s)
	}
	return rowset.String, strings.Join(parts, sep), nil
}

func boolAgg(and bool, field rowset.Field, values []any) (rowset.Type, any, error) {
	if len(values) == 0 {
		return rowset.Boolean, nil, nil
	}
	for _, v := range values {
		b, ok := v.(bool)
		if !ok {
			return rowset.Boolean, nil, lterrors.Errorf(lterrors.CodeExecution, "cannot aggregate %q", field.Name)
		}
		if and && !b {
			return rowset.Boolean, false, nil
		}
		if !and && b {
			return rowset.Boolean, true, nil
		}
	}
	return rowset.Boolean, and, nil
}

func floatSum(field rowset.Field, values []any) (float64, error) {
	var total float64
	for _, v := range values {
		f, err := cellFloat(field, v)
		if err != nil {
			return 0, err
		}
		total += f
	}
	return total, nil
}

func cellFloat(field rowset.Field, v any) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, lterrors.Errorf(lterrors.CodeExecution, "column %q is not numeric", field.Name)
}
