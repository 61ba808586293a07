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

// returningSel is the parsed returning branch of a mutation result
// selection: SQL columns for a RETURNING clause or a re-select, plus
// the response shape over their aliases.
type returningSel struct {
	f      *ast.Field
	cols   []sqlgen.Column
	shape  []engine.ProjCol
	fields []rowset.Field
}

// planMutationRoot plans one insert, update or delete root field. The
// write always runs as a single native statement; returning rows come
// back through RETURNING where the dialect has it and through a
// re-select keyed on the write's own filter otherwise.
func (p *planner) planMutationRoot(bind compiler.Binding, f *ast.Field, path []string) (*PlanField, error) {
	objID := bind.Object
	obj := p.cat.Object(objID)
	var op accessctl.Op
	switch bind.Kind {
	case compiler.BindInsert:
		op = accessctl.OpInsert
	case compiler.BindUpdate:
		op = accessctl.OpUpdate
	default:
		op = accessctl.OpDelete
	}
	if err := p.grant.CheckObject(objID, op); err != nil {
		return nil, err
	}

	src := p.sourceInfo(obj.Source)
	if !obj.Mutable(src.ReadOnly) {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s cannot be mutated", obj.Name)
	}
	builder, ok := p.builderFor(obj.Source)
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "mutations on %s require a SQL source", obj.Name)
	}

	mcols, ret, err := p.mutationResultCols(objID, f)
	if err != nil {
		return nil, err
	}

	supportsReturning := false
	if d, ok := p.dialectFor(obj.Source); ok {
		supportsReturning = d.SupportsReturning()
	}
	var retCols []sqlgen.Column
	if ret != nil && supportsReturning {
		retCols = ret.cols
	}

	withDeleted := hasDirective(f.Directives, "with_deleted")
	var q *sqlgen.Query
	var reselect engine.Primitive
	switch bind.Kind {
	case compiler.BindInsert:
		rows, err := p.insertRows(objID, f)
		if err != nil {
			return nil, err
		}
		// The re-select key check runs before SQL generation so its
		// error reaches the caller ahead of dialect complaints about
		// the same data.
		var keyFilter map[string]any
		if ret != nil && !supportsReturning {
			if keyFilter = insertKeyFilter(obj, rows); keyFilter == nil {
				return nil, lterrors.Errorf(lterrors.CodePlanning, "returning on %s requires primary key values in the inserted data on source %s", f.Name, src.Name)
			}
		}
		q, err = builder.Insert(&sqlgen.InsertDef{Object: objID, Rows: rows, Returning: retCols})
		if err != nil {
			return nil, err
		}
		if keyFilter != nil {
			reselect, err = p.reselect(builder, obj, ret, keyFilter, false)
			if err != nil {
				return nil, err
			}
		}
	case compiler.BindUpdate:
		set, err := p.writeMap(objID, f, "data")
		if err != nil {
			return nil, err
		}
		filter, err := p.mutationFilter(f)
		if err != nil {
			return nil, err
		}
		q, err = builder.Update(&sqlgen.UpdateDef{Object: objID, Set: set, Filter: filter, WithDeleted: withDeleted, Returning: retCols})
		if err != nil {
			return nil, err
		}
		if ret != nil && !supportsReturning {
			// The re-select reuses the write's filter. A filter over a
			// column the update itself changes will miss the rows; such
			// schemas need a RETURNING-capable source.
			reselect, err = p.reselect(builder, obj, ret, filter, withDeleted)
			if err != nil {
				return nil, err
			}
		}
	default:
		filter, err := p.mutationFilter(f)
		if err != nil {
			return nil, err
		}
		q, err = builder.Delete(&sqlgen.DeleteDef{Object: objID, Filter: filter, WithDeleted: withDeleted, Returning: retCols})
		if err != nil {
			return nil, err
		}
		if ret != nil && !supportsReturning {
			return nil, lterrors.Errorf(lterrors.CodePlanning, "returning on delete_%s requires RETURNING support on source %s", obj.Name, src.Name)
		}
	}

	nq := adapters.NativeQuery{SQL: q.SQL, Args: q.Args}
	if len(retCols) > 0 {
		nq.Fields = ret.fields
	} else {
		nq.Exec = true
	}
	var tags []string
	if obj.Cache != nil {
		tags = append([]string(nil), obj.Cache.Tags...)
	}
	var prim engine.Primitive = &engine.Mutation{
		Source:         src.Name,
		Query:          nq,
		Returning:      reselect,
		InvalidateTags: tags,
	}
	if ret != nil {
		prim = &engine.Projection{Input: prim, Cols: ret.shape}
	}
	return &PlanField{Alias: fieldAlias(f), Path: path, Kind: RenderMutation, Prim: prim, Mutation: mcols}, nil
}

// mutationResultCols parses the mutation result selection. The
// returning branch, when selected, parses into SQL columns so both the
// RETURNING clause and the re-select render the same aliases.
func (p *planner) mutationResultCols(objID catalog.ObjectID, f *ast.Field) ([]MutationCol, *returningSel, error) {
	var mcols []MutationCol
	var ret *returningSel
	for _, sub := range flattenSelections(f.SelectionSet) {
		alias := fieldAlias(sub)
		if sub.Name == "__typename" {
			mcols = append(mcols, MutationCol{Alias: alias, Literal: typeNameOf(sub, "")})
			continue
		}
		b, ok := p.bindingOf(sub)
		if !ok {
			return nil, nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot select %s on a mutation result", sub.Name)
		}
		switch b.Kind {
		case compiler.BindAffectedRows:
			mcols = append(mcols, MutationCol{Alias: alias, Affected: true})
		case compiler.BindReturning:
			if ret != nil {
				return nil, nil, lterrors.Errorf(lterrors.CodeQueryValidation, "returning selected twice on %s", f.Name)
			}
			rs, err := p.returningSelection(objID, sub)
			if err != nil {
				return nil, nil, err
			}
			ret = rs
			mcols = append(mcols, MutationCol{Alias: alias, Returning: true})
		default:
			return nil, nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot select %s on a mutation result", sub.Name)
		}
	}
	return mcols, ret, nil
}

// returningSelection parses the object selection under returning.
// Only stored fields render there; relations would need their own
// reads against rows the statement has not produced yet.
func (p *planner) returningSelection(objID catalog.ObjectID, f *ast.Field) (*returningSel, error) {
	obj := p.cat.Object(objID)
	sels, err := p.classify(objID, f.SelectionSet)
	if err != nil {
		return nil, err
	}
	rs := &returningSel{f: f}
	for i := range sels {
		sf := &sels[i]
		switch sf.kind {
		case selTypename:
			rs.shape = append(rs.shape, engine.ProjCol{As: sf.alias, Literal: typeNameOf(sf.f, obj.Name), Type: rowset.String})
		case selHidden:
			rs.shape = append(rs.shape, engine.ProjCol{As: sf.alias, Null: true})
		case selScalar:
			rs.cols = append(rs.cols, sqlgen.Column{Alias: sf.alias, Field: sf.fld.Name})
			rs.fields = append(rs.fields, rowset.Field{Name: sf.alias, Type: wireType(sf.fld), List: sf.fld.List})
			rs.shape = append(rs.shape, p.scalarProj(sf.fld, sf.alias, sf.alias, sf.f.SelectionSet))
		default:
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "only stored fields may be selected under returning, not %s", sf.f.Name)
		}
	}
	if len(rs.cols) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "returning on %s selects no stored fields", obj.Name)
	}
	return rs, nil
}

// reselect reads back the written rows on sources without RETURNING.
func (p *planner) reselect(builder *sqlgen.Builder, obj *catalog.DataObject, ret *returningSel, filter map[string]any, withDeleted bool) (engine.Primitive, error) {
	q, err := builder.Select(&sqlgen.SelectDef{
		Object:      obj.ID,
		Columns:     ret.cols,
		Filter:      filter,
		WithDeleted: withDeleted,
	})
	if err != nil {
		return nil, err
	}
	return &engine.Route{
		Source: p.sourceInfo(obj.Source).Name,
		Query:  adapters.NativeQuery{SQL: q.SQL, Args: q.Args, Fields: ret.fields},
	}, nil
}

// insertKeyFilter builds the re-select filter of an insert from the
// primary key values present in the inserted rows. Rows relying on a
// database-assigned key return nil; there is nothing to re-select by.
func insertKeyFilter(obj *catalog.DataObject, rows []map[string]any) map[string]any {
	if len(obj.PrimaryKey) == 0 {
		return nil
	}
	if len(obj.PrimaryKey) == 1 {
		pk := obj.PrimaryKey[0]
		vals := make([]any, 0, len(rows))
		for _, row := range rows {
			v, ok := row[pk]
			if !ok || v == nil {
				return nil
			}
			vals = append(vals, v)
		}
		return map[string]any{pk: map[string]any{"in": vals}}
	}
	alts := make([]any, 0, len(rows))
	for _, row := range rows {
		eq := make(map[string]any, len(obj.PrimaryKey))
		for _, pk := range obj.PrimaryKey {
			v, ok := row[pk]
			if !ok || v == nil {
				return nil
			}
			eq[pk] = map[string]any{"eq": v}
		}
		alts = append(alts, eq)
	}
	return map[string]any{"_or": alts}
}

// insertRows reads and checks the data argument of an insert.
func (p *planner) insertRows(objID catalog.ObjectID, f *ast.Field) ([]map[string]any, error) {
	v, ok, err := p.argValue(f, "data")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s requires a data argument", f.Name)
	}
	rows, err := toRowList(v, "data")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s carries no rows", f.Name)
	}
	for _, row := range rows {
		if err := p.checkWriteKeys(objID, row); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// writeMap reads an object-valued write argument and rejects writes to
// fields the grant hides.
func (p *planner) writeMap(objID catalog.ObjectID, f *ast.Field, arg string) (map[string]any, error) {
	v, ok, err := p.argValue(f, arg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s requires a %s argument", f.Name, arg)
	}
	m, err := toFilterMap(v, arg)
	if err != nil {
		return nil, err
	}
	if err := p.checkWriteKeys(objID, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *planner) checkWriteKeys(objID catalog.ObjectID, row map[string]any) error {
	for name := range row {
		if p.grant.HiddenField(objID, name) {
			return lterrors.Errorf(lterrors.CodeQueryValidation, "cannot write field %s of %s", name, p.cat.Object(objID).Name)
		}
	}
	return nil
}

func (p *planner) mutationFilter(f *ast.Field) (map[string]any, error) {
	v, ok, err := p.argValue(f, "filter")
	if err != nil {
		return nil, err
	}
	if !ok || v == nil {
		return nil, nil
	}
	return toFilterMap(v, "filter")
}
