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

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/accessctl"
	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/engine"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sqlgen"
	"github.com/latticeio/lattice/go/rowset"
)

// planFunctionRoot plans a declared function invoked as a root field.
// SQL functions synthesize one statement on their source; HTTP
// functions route to their adapter as a call.
func (p *planner) planFunctionRoot(fnID catalog.FunctionID, f *ast.Field, path []string) (*PlanField, error) {
	fn := p.cat.Function(fnID)
	if err := p.grant.CheckFunction(fnID); err != nil {
		return nil, err
	}
	args, err := p.functionArgs(fn, f)
	if err != nil {
		return nil, err
	}

	var prim engine.Primitive
	var kind RootKind
	if fn.Kind == catalog.HTTPFunction {
		prim, kind, err = p.httpFunctionPlan(fn, f, args)
	} else {
		prim, kind, err = p.sqlFunctionPlan(fn, f, args)
	}
	if err != nil {
		return nil, err
	}
	prim, err = p.wrapCache(prim, f, nil, path)
	if err != nil {
		return nil, err
	}
	return &PlanField{Alias: fieldAlias(f), Path: path, Kind: kind, Prim: prim}, nil
}

// functionArgs materializes the call arguments of a function field.
// Definition defaults apply through argValue; required arguments
// without a value reject.
func (p *planner) functionArgs(fn *catalog.Function, f *ast.Field) (map[string]any, error) {
	args := make(map[string]any, len(fn.Args))
	for i := range fn.Args {
		arg := &fn.Args[i]
		v, ok, err := p.argValue(f, arg.Name)
		if err != nil {
			return nil, err
		}
		if !ok || v == nil {
			if arg.Required && arg.Default == nil {
				return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s requires argument %s", f.Name, arg.Name)
			}
			continue
		}
		args[arg.Name] = v
	}
	return args, nil
}

func (p *planner) sqlFunctionPlan(fn *catalog.Function, f *ast.Field, args map[string]any) (engine.Primitive, RootKind, error) {
	builder, ok := p.builderFor(fn.Source)
	if !ok {
		return nil, 0, lterrors.Errorf(lterrors.CodePlanning, "function %s requires a SQL source", fn.Name)
	}
	src := p.sourceInfo(fn.Source)
	q, err := builder.FunctionCall(&sqlgen.FunctionDef{Function: fn.ID, Args: args})
	if err != nil {
		if errors.Is(err, sqlgen.ErrUnsupported) {
			return nil, 0, lterrors.Wrapf(err, "function %s cannot execute on source %s", fn.Name, src.Name)
		}
		return nil, 0, err
	}

	switch {
	case fn.ReturnObject != catalog.NoObject:
		if err := p.grant.CheckObject(fn.ReturnObject, accessctl.OpSelect); err != nil {
			return nil, 0, err
		}
		fields, cols, err := p.functionObjectShape(fn.ReturnObject, f.SelectionSet)
		if err != nil {
			return nil, 0, err
		}
		prim := &engine.Projection{
			Input: &engine.Route{Source: src.Name, Query: adapters.NativeQuery{SQL: q.SQL, Args: q.Args, Fields: fields}},
			Cols:  cols,
		}
		if fn.ReturnsList {
			return prim, RenderList, nil
		}
		return prim, RenderSingle, nil

	case fn.ReturnRowType != "":
		if fn.IsTable {
			// SELECT * over a composite-returning set function exposes
			// the row type's own fields as columns.
			fields, shape := p.rowTypeFields(fn.ReturnRowType, f.SelectionSet)
			prim := &engine.Projection{
				Input: &engine.Route{Source: src.Name, Query: adapters.NativeQuery{SQL: q.SQL, Args: q.Args, Fields: fields}},
				Cols:  shape,
			}
			if fn.ReturnsList {
				return prim, RenderList, nil
			}
			return prim, RenderSingle, nil
		}
		prim := &engine.Projection{
			Input: &engine.Route{Source: src.Name, Query: adapters.NativeQuery{
				SQL: q.SQL, Args: q.Args,
				Fields: []rowset.Field{{Name: sqlgen.ScalarResultColumn, Type: rowset.JSON}},
			}},
			Cols: []engine.ProjCol{{
				From:  sqlgen.ScalarResultColumn,
				As:    fieldAlias(f),
				Type:  rowset.JSON,
				List:  fn.ReturnsList,
				Shape: p.rowTypeShape(fn.ReturnRowType, f.SelectionSet),
			}},
		}
		return prim, RenderValue, nil

	default:
		if fn.IsTable {
			return nil, 0, lterrors.Errorf(lterrors.CodePlanning, "set-returning scalar function %s is not supported on source %s", fn.Name, src.Name)
		}
		prim := &engine.Projection{
			Input: &engine.Route{Source: src.Name, Query: adapters.NativeQuery{
				SQL: q.SQL, Args: q.Args,
				Fields: []rowset.Field{{Name: sqlgen.ScalarResultColumn, Type: fn.ReturnScalar, List: fn.ReturnsList}},
			}},
			Cols: []engine.ProjCol{{From: sqlgen.ScalarResultColumn, As: fieldAlias(f), Type: fn.ReturnScalar, List: fn.ReturnsList}},
		}
		return prim, RenderValue, nil
	}
}

func (p *planner) httpFunctionPlan(fn *catalog.Function, f *ast.Field, args map[string]any) (engine.Primitive, RootKind, error) {
	src := p.sourceInfo(fn.Source)
	call := &adapters.FunctionCall{
		Name:     fn.Name,
		Method:   fn.HTTPMethod,
		Path:     fn.HTTPPath,
		JSONPath: fn.JSONPath,
		Args:     args,
	}

	switch {
	case fn.ReturnObject != catalog.NoObject:
		if err := p.grant.CheckObject(fn.ReturnObject, accessctl.OpSelect); err != nil {
			return nil, 0, err
		}
		fields, cols, err := p.callObjectFields(fn.ReturnObject, f.SelectionSet)
		if err != nil {
			return nil, 0, err
		}
		prim := &engine.Projection{
			Input: &engine.Route{Source: src.Name, Query: adapters.NativeQuery{Call: call, Fields: fields}},
			Cols:  cols,
		}
		if fn.ReturnsList {
			return prim, RenderList, nil
		}
		return prim, RenderSingle, nil

	case fn.ReturnRowType != "":
		fields, shape := p.rowTypeFields(fn.ReturnRowType, f.SelectionSet)
		prim := &engine.Projection{
			Input: &engine.Route{Source: src.Name, Query: adapters.NativeQuery{Call: call, Fields: fields}},
			Cols:  shape,
		}
		if fn.ReturnsList {
			return prim, RenderList, nil
		}
		return prim, RenderSingle, nil

	default:
		prim := &engine.Projection{
			Input: &engine.Route{Source: src.Name, Query: adapters.NativeQuery{
				Call:   call,
				Fields: []rowset.Field{{Name: "_result", Type: fn.ReturnScalar}},
			}},
			Cols: []engine.ProjCol{{From: "_result", As: fieldAlias(f), Type: fn.ReturnScalar}},
		}
		if fn.ReturnsList {
			return prim, RenderValueList, nil
		}
		return prim, RenderValue, nil
	}
}

// functionObjectShape shapes a selection over the rows a table
// function returns. The statement selects the object's stored columns;
// calculated fields and relations have no value in that result.
func (p *planner) functionObjectShape(objID catalog.ObjectID, sel ast.SelectionSet) ([]rowset.Field, []engine.ProjCol, error) {
	obj := p.cat.Object(objID)
	var fields []rowset.Field
	for i := range obj.Fields {
		fld := &obj.Fields[i]
		if !fld.IsScalar() && fld.RowTypeName == "" {
			continue
		}
		if fld.SQLExpr != "" {
			continue
		}
		fields = append(fields, rowset.Field{Name: fld.Column(), Type: wireType(fld), List: fld.List})
	}

	sels, err := p.classify(objID, sel)
	if err != nil {
		return nil, nil, err
	}
	cols := make([]engine.ProjCol, 0, len(sels))
	for i := range sels {
		sf := &sels[i]
		switch sf.kind {
		case selTypename:
			cols = append(cols, engine.ProjCol{As: sf.alias, Literal: typeNameOf(sf.f, obj.Name), Type: rowset.String})
		case selHidden:
			cols = append(cols, engine.ProjCol{As: sf.alias, Null: true})
		case selScalar:
			if sf.fld.SQLExpr != "" {
				return nil, nil, lterrors.Errorf(lterrors.CodePlanning, "calculated field %s has no value in a function result", sf.f.Name)
			}
			cols = append(cols, p.scalarProj(sf.fld, sf.alias, sf.fld.Column(), sf.f.SelectionSet))
		default:
			return nil, nil, lterrors.Errorf(lterrors.CodePlanning, "relations under function results are not supported: %s.%s", obj.Name, sf.f.Name)
		}
	}
	return fields, cols, nil
}
