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
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

const defaultCallConcurrency = 8

// CallJoin resolves a function-backed field for every input row. Rows
// sharing the same argument tuple share one call: the distinct tuples
// are collected first, invoked with bounded concurrency, and the
// results fanned back out to the rows that produced them.
type CallJoin struct {
	Input  Primitive
	Source string

	// Template carries the function call. Constant arguments are
	// already in Template.Call.Args; Bindings maps the remaining
	// argument names to input columns filled per row.
	Template adapters.NativeQuery
	Bindings map[string]string

	// As names the added column. Scalar stores the call's single
	// result column directly instead of wrapping rows in documents;
	// ToOne stores one value instead of a list.
	As     string
	Scalar bool
	ToOne  bool

	// MatchColumns and MatchFields narrow table-function joins: a
	// result row attaches to an input row only when the input's
	// MatchColumns equal the result's MatchFields, on top of sharing
	// the argument tuple.
	MatchColumns []string
	MatchFields  []string

	// Concurrency bounds in-flight calls. Zero means the default.
	Concurrency int

	Path     []string
	Optional bool
}

var _ Primitive = (*CallJoin)(nil)

// Execute implements Primitive.
func (c *CallJoin) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	input, err := c.Input.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}
	adapter, err := ec.Adapters.Get(c.Source)
	if err != nil {
		return nil, err
	}
	if c.Template.Call == nil {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "call join has no function descriptor")
	}

	names := make([]string, 0, len(c.Bindings))
	for name := range c.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	cols := make([]string, len(names))
	for i, name := range names {
		cols[i] = c.Bindings[name]
	}
	idx, err := columnIndexes(input.Fields, cols)
	if err != nil {
		return nil, err
	}

	baseArgs := resolveArgMap(ec, c.Template.Call.Args)

	// Distinct argument tuples, in first-seen order.
	type batch struct {
		args map[string]any
		cell any
		res  *rowset.Result
		err  error
	}
	batches := make([]*batch, 0, len(input.Rows))
	byKey := make(map[string]*batch)
	rowBatch := make([]*batch, len(input.Rows))
	for r, row := range input.Rows {
		key, ok := keyFor(row, idx)
		if !ok {
			continue
		}
		b := byKey[key]
		if b == nil {
			args := make(map[string]any, len(baseArgs)+len(names))
			for k, v := range baseArgs {
				args[k] = v
			}
			for i, name := range names {
				args[name] = row[idx[i]]
			}
			b = &batch{args: args}
			byKey[key] = b
			batches = append(batches, b)
		}
		rowBatch[r] = b
	}

	limit := c.Concurrency
	if limit <= 0 {
		limit = defaultCallConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	var partialOnce sync.Once
	for _, b := range batches {
		b := b
		g.Go(func() error {
			q := c.Template
			call := *c.Template.Call
			call.Args = b.args
			q.Call = &call
			res, err := adapter.Execute(gctx, &q)
			if err != nil {
				if c.Optional {
					partialOnce.Do(func() { ec.AddPartial(c.Path, err) })
					b.err = err
					return nil
				}
				return err
			}
			if len(c.MatchColumns) > 0 {
				b.res = res
			} else {
				b.cell = c.shapeCell(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &rowset.Result{
		Fields: appendField(input.Fields, rowset.Field{Name: c.As, Type: c.cellType(), List: !c.ToOne}),
	}
	var matchIdx []int
	if len(c.MatchColumns) > 0 {
		matchIdx, err = columnIndexes(input.Fields, c.MatchColumns)
		if err != nil {
			return nil, err
		}
	}
	for r, row := range input.Rows {
		b := rowBatch[r]
		if b == nil || b.err != nil {
			out.AppendRow(appendCell(row, nil))
			continue
		}
		cell := b.cell
		if matchIdx != nil {
			cell, err = c.matchCell(b.res, row, matchIdx)
			if err != nil {
				return nil, err
			}
		}
		out.AppendRow(appendCell(row, cell))
	}
	return out, nil
}

// matchCell keeps only the result rows matching the input row on the
// join fields.
func (c *CallJoin) matchCell(res *rowset.Result, row rowset.Row, matchIdx []int) (any, error) {
	fieldIdx, err := columnIndexes(res.Fields, c.MatchFields)
	if err != nil {
		return nil, err
	}
	key, ok := keyFor(row, matchIdx)
	if !ok {
		if c.ToOne {
			return nil, nil
		}
		return []any{}, nil
	}
	narrowed := &rowset.Result{Fields: res.Fields}
	for _, rrow := range res.Rows {
		if rkey, ok := keyFor(rrow, fieldIdx); ok && rkey == key {
			narrowed.AppendRow(rrow)
		}
	}
	return c.shapeCell(narrowed), nil
}

func (c *CallJoin) cellType() rowset.Type {
	if c.Scalar && len(c.Template.Fields) == 1 {
		return c.Template.Fields[0].Type
	}
	return rowset.JSON
}

func (c *CallJoin) shapeCell(res *rowset.Result) any {
	if c.Scalar {
		if c.ToOne {
			if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
				return nil
			}
			return res.Rows[0][0]
		}
		vals := make([]any, 0, len(res.Rows))
		for _, row := range res.Rows {
			if len(row) > 0 {
				vals = append(vals, row[0])
			}
		}
		return vals
	}
	if c.ToOne {
		if len(res.Rows) == 0 {
			return nil
		}
		return rowDoc(res.Fields, res.Rows[0], nil)
	}
	docs := make([]any, len(res.Rows))
	for i, row := range res.Rows {
		docs[i] = rowDoc(res.Fields, row, nil)
	}
	return docs
}

// Description implements Primitive.
func (c *CallJoin) Description() PrimitiveDescription {
	other := map[string]any{
		"As":     c.As,
		"Source": c.Source,
	}
	if c.Template.Call != nil {
		other["Function"] = c.Template.Call.Name
	}
	if len(c.Bindings) > 0 {
		other["Bindings"] = c.Bindings
	}
	if len(c.MatchColumns) > 0 {
		other["MatchColumns"] = c.MatchColumns
	}
	return PrimitiveDescription{
		OperatorType: "CallJoin",
		Variant:      "",
		Other:        other,
		Inputs:       []PrimitiveDescription{c.Input.Description()},
	}
}
