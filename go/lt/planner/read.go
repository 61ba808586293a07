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
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/compiler"
	"github.com/latticeio/lattice/go/lt/engine"
	"github.com/latticeio/lattice/go/lt/geo"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// node is one planned subtree producing object rows. cols shape the
// rows into response documents; their From names match the node's own
// column naming. hidden lists plumbing columns present in the output,
// and extraCols names the columns carrying the caller's requested key
// fields, aligned with the extras passed to planRead.
type node struct {
	prim      engine.Primitive
	cols      []engine.ProjCol
	hidden    []string
	extraCols []string
}

// allHidden lists every column of the node that exists only for
// plumbing, for use as OmitRight when the node merges as a join's
// right side.
func (n *node) allHidden() []string {
	out := make([]string, 0, len(n.hidden)+len(n.extraCols))
	out = append(out, n.hidden...)
	out = append(out, n.extraCols...)
	return out
}

// planRead plans the rows of one object read field. extras names
// catalog fields the caller needs as additional output columns for
// joining; their column names come back in node.extraCols.
func (p *planner) planRead(objID catalog.ObjectID, f *ast.Field, ra readArgs, path []string, extras []string) (*node, error) {
	if err := p.grant.CheckObject(objID, accessctl.OpSelect); err != nil {
		return nil, err
	}
	if err := p.checkReadable(objID, ra); err != nil {
		return nil, err
	}
	obj := p.cat.Object(objID)

	if p.pushAllowed(f) {
		n, err := p.tryPush(objID, f, ra, extras)
		if err == nil {
			return n, nil
		}
		if !isNoPush(err) {
			return nil, err
		}
	}
	if obj.Cube {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "cube %s requires native aggregation and cannot execute locally", obj.Name)
	}
	return p.planLocal(objID, f, ra, path, extras)
}

func (p *planner) pushAllowed(f *ast.Field) bool {
	return !p.noPush && !hasDirective(f.Directives, "no_pushdown")
}

// selKind classifies one selected field of an object type.
type selKind int

const (
	selTypename selKind = iota
	selHidden
	selScalar
	selPart
	selMeasure
	selRelation
	selCall
	selRelationAgg
	selRelationBuckets
	selJoin
	selSpatial
)

// selField is one classified selection over an object type.
type selField struct {
	f     *ast.Field
	alias string
	kind  selKind
	// fld is the catalog field of scalar selections, and the source
	// field of part and measurement selections.
	fld *catalog.Field
	// bind carries the relation or function resolution for the bound
	// kinds.
	bind compiler.Binding
}

// classify resolves the selection set of an object read into planner
// terms. Fields the grant hides classify as selHidden and render null.
func (p *planner) classify(objID catalog.ObjectID, sel ast.SelectionSet) ([]selField, error) {
	obj := p.cat.Object(objID)
	fields := flattenSelections(sel)
	out := make([]selField, 0, len(fields))
	for _, f := range fields {
		sf := selField{f: f, alias: fieldAlias(f)}
		if f.Name == "__typename" {
			sf.kind = selTypename
			out = append(out, sf)
			continue
		}
		if p.grant.HiddenField(objID, f.Name) {
			sf.kind = selHidden
			out = append(out, sf)
			continue
		}
		if b, ok := p.snap.Binding(obj.Name, f.Name); ok {
			sf.bind = b
			switch b.Kind {
			case compiler.BindRelation:
				rel := p.cat.Relation(b.Relation)
				if rel.Kind == catalog.FuncCallRelation {
					sf.kind = selCall
				} else {
					sf.kind = selRelation
				}
				out = append(out, sf)
				continue
			case compiler.BindRelationAggregate:
				sf.kind = selRelationAgg
				out = append(out, sf)
				continue
			case compiler.BindRelationBucketAggregate:
				sf.kind = selRelationBuckets
				out = append(out, sf)
				continue
			case compiler.BindJoin:
				sf.kind = selJoin
				out = append(out, sf)
				continue
			case compiler.BindSpatial:
				sf.kind = selSpatial
				out = append(out, sf)
				continue
			case compiler.BindPart:
				sf.kind = selPart
				sf.fld = obj.Field(b.Field)
				if sf.fld == nil {
					return nil, lterrors.Errorf(lterrors.CodePlanning, "part field %s of %s is not in the catalog", b.Field, obj.Name)
				}
				if p.grant.HiddenField(objID, sf.fld.Name) {
					sf.kind = selHidden
				}
				out = append(out, sf)
				continue
			case compiler.BindMeasurement:
				sf.kind = selMeasure
				sf.fld = obj.Field(b.Field)
				if sf.fld == nil {
					return nil, lterrors.Errorf(lterrors.CodePlanning, "measurement field %s of %s is not in the catalog", b.Field, obj.Name)
				}
				if p.grant.HiddenField(objID, sf.fld.Name) {
					sf.kind = selHidden
				}
				out = append(out, sf)
				continue
			}
		}
		fld := obj.Field(f.Name)
		if fld == nil || (fld.Scalar == rowset.Unknown && fld.RowTypeName == "") {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot select %s on %s", f.Name, obj.Name)
		}
		sf.kind = selScalar
		sf.fld = fld
		out = append(out, sf)
	}
	return out, nil
}

// scalarProj builds the response column of one scalar selection over
// the named input column. Row-typed fields with a selection set shape
// their JSON value; without one they pass through raw.
func (p *planner) scalarProj(fld *catalog.Field, alias, from string, sel ast.SelectionSet) engine.ProjCol {
	col := engine.ProjCol{From: from, As: alias, Type: fld.Scalar, List: fld.List}
	if fld.RowTypeName != "" {
		col.Type = rowset.JSON
		if len(sel) > 0 {
			col.Shape = p.rowTypeShape(fld.RowTypeName, sel)
		}
	}
	return col
}

// rowTypeShape shapes a selection over a row-typed JSON value. Field
// names address the stored JSON keys directly.
func (p *planner) rowTypeShape(typeName string, sel ast.SelectionSet) []engine.ProjCol {
	def := p.snap.Schema.Types[typeName]
	fields := flattenSelections(sel)
	out := make([]engine.ProjCol, 0, len(fields))
	for _, f := range fields {
		alias := fieldAlias(f)
		if f.Name == "__typename" {
			out = append(out, engine.ProjCol{As: alias, Literal: typeName, Type: rowset.String})
			continue
		}
		col := engine.ProjCol{From: f.Name, As: alias, Type: rowset.JSON}
		if def != nil {
			if fd := def.Fields.ForName(f.Name); fd != nil {
				typ, list := scalarTypeOf(fd.Type)
				col.Type = typ
				col.List = list
				if typ == rowset.JSON && len(f.SelectionSet) > 0 {
					col.Shape = p.rowTypeShape(fd.Type.Name(), f.SelectionSet)
				}
			}
		}
		out = append(out, col)
	}
	return out
}

// scalarTypeOf maps a schema type reference to its wire type. Types
// that are not built-in scalars read as JSON so nested row structures
// pass through shaping.
func scalarTypeOf(t *ast.Type) (rowset.Type, bool) {
	if t == nil {
		return rowset.JSON, false
	}
	if t.Elem != nil {
		elem, _ := scalarTypeOf(t.Elem)
		return elem, true
	}
	switch t.NamedType {
	case "String", "ID":
		return rowset.String, false
	case "Int":
		return rowset.Int64, false
	case "BigInt":
		return rowset.BigInt, false
	case "Float":
		return rowset.Float64, false
	case "Boolean":
		return rowset.Boolean, false
	case "Timestamp":
		return rowset.Timestamp, false
	case "Date":
		return rowset.Date, false
	case "Geometry":
		return rowset.Geometry, false
	default:
		return rowset.JSON, false
	}
}

// relationToMany reports whether a relation field carries a list.
func (p *planner) relationToMany(rel *catalog.Relation, reverse bool) bool {
	if rel.Kind == catalog.M2MRelation {
		return true
	}
	return rel.CardinalityFor(reverse).ToMany()
}

// aggResultType maps an aggregation function over a field type to its
// result wire type.
func aggResultType(fn string, fieldType rowset.Type) (rowset.Type, bool) {
	switch fn {
	case "count":
		return rowset.BigInt, false
	case "sum":
		if fieldType == rowset.Float64 {
			return rowset.Float64, false
		}
		return rowset.BigInt, false
	case "avg", "stddev", "variance":
		return rowset.Float64, false
	case "string_agg":
		return rowset.String, false
	case "bool_and", "bool_or":
		return rowset.Boolean, false
	case "list":
		return fieldType, true
	default:
		return fieldType, false
	}
}

// geoOpOf maps the spatial predicate enum to its local evaluator.
func geoOpOf(name string) (geo.Op, error) {
	switch name {
	case "INTERSECTS":
		return geo.OpIntersects, nil
	case "CONTAINS":
		return geo.OpContains, nil
	case "WITHIN":
		return geo.OpWithin, nil
	case "DISJOINT":
		return geo.OpDisjoint, nil
	}
	return 0, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown spatial predicate %q", name)
}
