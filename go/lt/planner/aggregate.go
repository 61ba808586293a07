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

package planner

import (
	"errors"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/accessctl"
	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/compiler"
	"github.com/latticeio/lattice/go/lt/engine"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sqlgen"
	"github.com/latticeio/lattice/go/rowset"
)

// aggSel is a parsed aggregation result selection. Aggregate values
// compute into flat columns named "<field alias>.<func alias>", and
// shape reassembles the response nesting from those columns.
type aggSel struct {
	cols   []sqlgen.AggColumn
	shape  []engine.ProjCol
	fields []string
}

// bindingOf resolves the binding of a non-root field through the type
// the validator resolved it against.
func (p *planner) bindingOf(f *ast.Field) (compiler.Binding, bool) {
	if f.ObjectDefinition == nil {
		return compiler.Binding{}, false
	}
	return p.snap.Binding(f.ObjectDefinition.Name, f.Name)
}

// aggSelection parses the selection over an object's aggregation result
// type.
func (p *planner) aggSelection(objID catalog.ObjectID, sel ast.SelectionSet) (*aggSel, error) {
	obj := p.cat.Object(objID)
	out := &aggSel{}
	seen := map[string]bool{}
	for _, f := range flattenSelections(sel) {
		alias := fieldAlias(f)
		if f.Name == "__typename" {
			out.shape = append(out.shape, engine.ProjCol{As: alias, Literal: typeNameOf(f, obj.Name+"_aggregation_result"), Type: rowset.String})
			continue
		}
		b, ok := p.bindingOf(f)
		if ok && b.Kind == compiler.BindRowsCount {
			out.cols = append(out.cols, sqlgen.AggColumn{Alias: alias, Func: "count"})
			out.shape = append(out.shape, engine.ProjCol{From: alias, As: alias, Type: rowset.BigInt})
			continue
		}
		name := f.Name
		if ok && b.Kind == compiler.BindScalar && b.Field != "" {
			name = b.Field
		}
		fld := obj.Field(name)
		if fld == nil || !fld.IsScalar() {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot aggregate %s on %s", f.Name, obj.Name)
		}
		if p.grant.HiddenField(objID, fld.Name) {
			out.shape = append(out.shape, engine.ProjCol{As: alias, Null: true})
			continue
		}
		if !seen[fld.Name] {
			seen[fld.Name] = true
			out.fields = append(out.fields, fld.Name)
		}
		group := make([]engine.ProjCol, 0, len(f.SelectionSet))
		for _, fn := range flattenSelections(f.SelectionSet) {
			fnAlias := fieldAlias(fn)
			if fn.Name == "__typename" {
				group = append(group, engine.ProjCol{As: fnAlias, Literal: typeNameOf(fn, ""), Type: rowset.String})
				continue
			}
			sep := ""
			if fn.Name == "string_agg" {
				v, ok, err := p.argValue(fn, "separator")
				if err != nil {
					return nil, err
				}
				if ok {
					sep, err = toString(v, "separator")
					if err != nil {
						return nil, err
					}
				}
			}
			flat := alias + "." + fnAlias
			out.cols = append(out.cols, sqlgen.AggColumn{Alias: flat, Field: fld.Name, Func: fn.Name, Separator: sep})
			typ, list := aggResultType(fn.Name, fld.Scalar)
			group = append(group, engine.ProjCol{From: flat, As: fnAlias, Type: typ, List: list})
		}
		if len(group) == 0 {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "aggregation of %s selects no functions", f.Name)
		}
		out.shape = append(out.shape, engine.ProjCol{As: alias, Type: rowset.JSON, Group: group})
	}
	if len(out.cols) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "aggregation over %s selects nothing to compute", obj.Name)
	}
	return out, nil
}

// bucketSel is a parsed bucket aggregation selection: grouping keys plus
// the per-bucket aggregation terms.
type bucketSel struct {
	agg   *aggSel
	cols  []sqlgen.AggColumn
	keys  []sqlgen.BucketKey
	shape []engine.ProjCol
	// fields are the source fields the local path must read: key fields
	// plus aggregated fields.
	fields []string
	// orderable is the order_by vocabulary: key aliases and flat
	// aggregate aliases.
	orderable map[string]bool
}

func (b *bucketSel) checkOrder(order []sqlgen.OrderBy) error {
	for _, o := range order {
		if !b.orderable[o.Field] {
			return lterrors.Errorf(lterrors.CodeQueryValidation, "order_by field %q is not a selected bucket key or aggregate", o.Field)
		}
	}
	return nil
}

func (b *bucketSel) engineKeys(rename func(string) string) []engine.BucketColumn {
	out := make([]engine.BucketColumn, len(b.keys))
	for i, k := range b.keys {
		out[i] = engine.BucketColumn{Alias: k.Alias, Field: rename(k.Field), Bucket: k.Bucket, Part: k.Part}
	}
	return out
}

// bucketSelection parses the selection over an object's bucket type,
// with its key and aggregations branches.
func (p *planner) bucketSelection(objID catalog.ObjectID, sel ast.SelectionSet) (*bucketSel, error) {
	obj := p.cat.Object(objID)
	out := &bucketSel{orderable: map[string]bool{}}
	for _, f := range flattenSelections(sel) {
		alias := fieldAlias(f)
		if f.Name == "__typename" {
			out.shape = append(out.shape, engine.ProjCol{As: alias, Literal: typeNameOf(f, obj.Name+"_bucket"), Type: rowset.String})
			continue
		}
		b, ok := p.bindingOf(f)
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot select %s on buckets of %s", f.Name, obj.Name)
		}
		switch b.Kind {
		case compiler.BindBucketKey:
			if len(out.keys) > 0 {
				return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "bucket key selected twice on %s", obj.Name)
			}
			group, err := p.bucketKeys(objID, f.SelectionSet, out)
			if err != nil {
				return nil, err
			}
			out.shape = append(out.shape, engine.ProjCol{As: alias, Type: rowset.JSON, Group: group})

		case compiler.BindBucketAggs:
			if out.agg != nil {
				return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "bucket aggregations selected twice on %s", obj.Name)
			}
			agg, err := p.aggSelection(objID, f.SelectionSet)
			if err != nil {
				return nil, err
			}
			out.agg = agg
			out.cols = append(out.cols, agg.cols...)
			for _, c := range agg.cols {
				out.orderable[c.Alias] = true
			}
			out.fields = mergeNames(out.fields, agg.fields)
			out.shape = append(out.shape, engine.ProjCol{As: alias, Type: rowset.JSON, Group: agg.shape})

		default:
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot select %s on buckets of %s", f.Name, obj.Name)
		}
	}
	if len(out.keys) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "bucket aggregation over %s selects no keys", obj.Name)
	}
	if len(out.cols) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "bucket aggregation over %s selects no aggregations", obj.Name)
	}
	return out, nil
}

// bucketKeys parses one key branch, appending keys and vocabulary to
// out and returning the key group's shape.
func (p *planner) bucketKeys(objID catalog.ObjectID, sel ast.SelectionSet, out *bucketSel) ([]engine.ProjCol, error) {
	obj := p.cat.Object(objID)
	var group []engine.ProjCol
	for _, f := range flattenSelections(sel) {
		alias := fieldAlias(f)
		if f.Name == "__typename" {
			group = append(group, engine.ProjCol{As: alias, Literal: typeNameOf(f, obj.Name+"_bucket_key"), Type: rowset.String})
			continue
		}
		b, ok := p.bindingOf(f)
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot group by %s on %s", f.Name, obj.Name)
		}
		name := f.Name
		if b.Field != "" {
			name = b.Field
		}
		fld := obj.Field(name)
		if fld == nil || !fld.IsScalar() {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot group by %s on %s", f.Name, obj.Name)
		}
		if p.grant.HiddenField(objID, fld.Name) {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot group by %s on %s", f.Name, obj.Name)
		}
		switch b.Kind {
		case compiler.BindScalar:
			bucket := ""
			if v, present, err := p.argValue(f, "bucket"); err != nil {
				return nil, err
			} else if present {
				bucket, err = toString(v, "bucket")
				if err != nil {
					return nil, err
				}
			}
			out.keys = append(out.keys, sqlgen.BucketKey{Alias: alias, Field: fld.Name, Bucket: bucket})
			group = append(group, engine.ProjCol{From: alias, As: alias, Type: fld.Scalar})

		case compiler.BindPart:
			part, err := p.partArg(f)
			if err != nil {
				return nil, err
			}
			out.keys = append(out.keys, sqlgen.BucketKey{Alias: alias, Field: fld.Name, Part: part})
			group = append(group, engine.ProjCol{From: alias, As: alias, Type: rowset.BigInt})

		default:
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot group by %s on %s", f.Name, obj.Name)
		}
		out.orderable[alias] = true
		out.fields = mergeNames(out.fields, []string{fld.Name})
	}
	return group, nil
}

func mergeNames(into, names []string) []string {
	for _, n := range names {
		found := false
		for _, have := range into {
			if have == n {
				found = true
				break
			}
		}
		if !found {
			into = append(into, n)
		}
	}
	return into
}

// aggColType is the wire type of one flat aggregate column.
func aggColType(obj *catalog.DataObject, c sqlgen.AggColumn) (rowset.Type, bool) {
	if c.Field == "" {
		return rowset.BigInt, false
	}
	fld := obj.Field(c.Field)
	if fld == nil {
		return rowset.JSON, false
	}
	return aggResultType(c.Func, fld.Scalar)
}

// planAggregateRoot plans an object aggregation root field.
func (p *planner) planAggregateRoot(objID catalog.ObjectID, f *ast.Field, path []string) (*PlanField, error) {
	if err := p.grant.CheckObject(objID, accessctl.OpSelect); err != nil {
		return nil, err
	}
	obj := p.cat.Object(objID)
	ra, err := p.readArgsOf(f)
	if err != nil {
		return nil, err
	}
	if err := p.checkReadable(objID, ra); err != nil {
		return nil, err
	}
	agg, err := p.aggSelection(objID, f.SelectionSet)
	if err != nil {
		return nil, err
	}

	var prim engine.Primitive
	if p.pushAllowed(f) && p.cat.SupportsAggregationPushdown(objID) {
		prim, err = p.pushAggregate(objID, agg, ra)
		if err != nil && !isNoPush(err) {
			return nil, err
		}
	}
	if prim == nil {
		if obj.Cube {
			return nil, lterrors.Errorf(lterrors.CodePlanning, "cube %s requires native aggregation and cannot execute locally", obj.Name)
		}
		input, rename, err := p.fieldRows(objID, f, ra, agg.fields, path)
		if err != nil {
			return nil, err
		}
		prim = &engine.LocalAggregate{Input: input, Columns: engineAggColumns(agg.cols, rename)}
	}

	prim = &engine.Projection{Input: prim, Cols: agg.shape}
	prim, err = p.wrapCache(prim, f, obj, path)
	if err != nil {
		return nil, err
	}
	return &PlanField{Alias: fieldAlias(f), Path: path, Kind: RenderSingle, Prim: prim}, nil
}

func (p *planner) pushAggregate(objID catalog.ObjectID, agg *aggSel, ra readArgs) (engine.Primitive, error) {
	obj := p.cat.Object(objID)
	builder, ok := p.builderFor(obj.Source)
	if !ok {
		return nil, errNoPush
	}
	q, err := builder.Aggregate(&sqlgen.AggregateDef{
		Object:      objID,
		Columns:     agg.cols,
		Filter:      ra.filter,
		Args:        ra.viewArgs,
		WithDeleted: ra.withDeleted,
	})
	if err != nil {
		if errors.Is(err, sqlgen.ErrUnsupported) {
			return nil, errNoPush
		}
		return nil, err
	}
	fields := make([]rowset.Field, len(agg.cols))
	for i, c := range agg.cols {
		typ, list := aggColType(obj, c)
		fields[i] = rowset.Field{Name: c.Alias, Type: typ, List: list}
	}
	src := p.sourceInfo(obj.Source)
	return &engine.Route{
		Source: src.Name,
		Query:  adapters.NativeQuery{SQL: q.SQL, Args: q.Args, Fields: fields},
	}, nil
}

// planBucketRoot plans a bucket aggregation root field.
func (p *planner) planBucketRoot(objID catalog.ObjectID, f *ast.Field, path []string) (*PlanField, error) {
	if err := p.grant.CheckObject(objID, accessctl.OpSelect); err != nil {
		return nil, err
	}
	obj := p.cat.Object(objID)
	ra, err := p.readArgsOf(f)
	if err != nil {
		return nil, err
	}
	if err := p.checkReadable(objID, ra); err != nil {
		return nil, err
	}
	bs, err := p.bucketSelection(objID, f.SelectionSet)
	if err != nil {
		return nil, err
	}
	if err := bs.checkOrder(ra.orderBy); err != nil {
		return nil, err
	}

	var prim engine.Primitive
	if p.pushAllowed(f) && p.cat.SupportsAggregationPushdown(objID) {
		prim, err = p.pushBuckets(objID, bs, ra)
		if err != nil && !isNoPush(err) {
			return nil, err
		}
	}
	if prim == nil {
		if obj.Cube {
			return nil, lterrors.Errorf(lterrors.CodePlanning, "cube %s requires native aggregation and cannot execute locally", obj.Name)
		}
		input, rename, err := p.fieldRows(objID, f, ra, bs.fields, path)
		if err != nil {
			return nil, err
		}
		prim = &engine.LocalBucketAggregate{
			Input:   input,
			Keys:    bs.engineKeys(rename),
			Columns: engineAggColumns(bs.cols, rename),
		}
		if len(ra.orderBy) > 0 {
			prim = &engine.MemorySort{Input: prim, OrderBy: memoryOrder(ra.orderBy)}
		}
		if ra.limit > 0 || ra.offset > 0 {
			count := int(ra.limit)
			if count == 0 {
				count = -1
			}
			prim = &engine.Limit{Input: prim, Count: count, Offset: int(ra.offset)}
		}
	}

	prim = &engine.Projection{Input: prim, Cols: bs.shape}
	prim, err = p.wrapCache(prim, f, obj, path)
	if err != nil {
		return nil, err
	}
	return &PlanField{Alias: fieldAlias(f), Path: path, Kind: RenderList, Prim: prim}, nil
}

func (p *planner) pushBuckets(objID catalog.ObjectID, bs *bucketSel, ra readArgs) (engine.Primitive, error) {
	obj := p.cat.Object(objID)
	builder, ok := p.builderFor(obj.Source)
	if !ok {
		return nil, errNoPush
	}
	q, err := builder.BucketAggregate(&sqlgen.BucketDef{
		AggregateDef: sqlgen.AggregateDef{
			Object:      objID,
			Columns:     bs.cols,
			Filter:      ra.filter,
			Args:        ra.viewArgs,
			WithDeleted: ra.withDeleted,
		},
		Keys:    bs.keys,
		OrderBy: ra.orderBy,
		Limit:   ra.limit,
		Offset:  ra.offset,
	})
	if err != nil {
		if errors.Is(err, sqlgen.ErrUnsupported) {
			return nil, errNoPush
		}
		return nil, err
	}
	fields := make([]rowset.Field, 0, len(bs.keys)+len(bs.cols))
	for _, k := range bs.keys {
		typ := rowset.BigInt
		if k.Part == "" {
			if fld := obj.Field(k.Field); fld != nil {
				typ = fld.Scalar
			}
		}
		fields = append(fields, rowset.Field{Name: k.Alias, Type: typ})
	}
	for _, c := range bs.cols {
		typ, list := aggColType(obj, c)
		fields = append(fields, rowset.Field{Name: c.Alias, Type: typ, List: list})
	}
	src := p.sourceInfo(obj.Source)
	return &engine.Route{
		Source: src.Name,
		Query:  adapters.NativeQuery{SQL: q.SQL, Args: q.Args, Fields: fields},
	}, nil
}

func engineAggColumns(cols []sqlgen.AggColumn, rename func(string) string) []engine.AggregateColumn {
	out := make([]engine.AggregateColumn, len(cols))
	for i, c := range cols {
		field := c.Field
		if field != "" {
			field = rename(field)
		}
		out[i] = engine.AggregateColumn{Alias: c.Alias, Field: field, Func: c.Func, Separator: c.Separator}
	}
	return out
}

func memoryOrder(order []sqlgen.OrderBy) []engine.OrderBy {
	out := make([]engine.OrderBy, len(order))
	for i, o := range order {
		out[i] = engine.OrderBy{Column: o.Field, Desc: strings.EqualFold(o.Direction, "DESC")}
	}
	return out
}
