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

// errNoPush aborts a pushdown attempt without failing the request; the
// caller replans the subtree locally.
var errNoPush = errors.New("subtree cannot push down")

func isNoPush(err error) bool { return errors.Is(err, errNoPush) }

// pushed is a select definition under construction together with the
// response shape its columns will carry.
type pushed struct {
	def    sqlgen.SelectDef
	cols   []engine.ProjCol
	fields []rowset.Field
}

// tryPush plans a read as one native statement on the object's source.
func (p *planner) tryPush(objID catalog.ObjectID, f *ast.Field, ra readArgs, extras []string) (*node, error) {
	obj := p.cat.Object(objID)
	builder, ok := p.builderFor(obj.Source)
	if !ok {
		return nil, errNoPush
	}

	ps, err := p.pushSelectDef(obj.Source, objID, f.SelectionSet, ra)
	if err != nil {
		return nil, err
	}

	extraCols := make([]string, len(extras))
	for i, name := range extras {
		fld := obj.Field(name)
		if fld == nil || !fld.IsScalar() {
			return nil, lterrors.Errorf(lterrors.CodePlanning, "join field %s of %s has no column", name, obj.Name)
		}
		col := p.hiddenName()
		extraCols[i] = col
		ps.def.Columns = append(ps.def.Columns, sqlgen.Column{Alias: col, Field: name})
		ps.fields = append(ps.fields, rowset.Field{Name: col, Type: fld.Scalar, List: fld.List})
	}

	q, err := builder.Select(&ps.def)
	if err != nil {
		if errors.Is(err, sqlgen.ErrUnsupported) {
			return nil, errNoPush
		}
		return nil, err
	}

	src := p.sourceInfo(obj.Source)
	return &node{
		prim: &engine.Route{
			Source: src.Name,
			Query:  adapters.NativeQuery{SQL: q.SQL, Args: q.Args, Fields: ps.fields},
		},
		cols:      ps.cols,
		extraCols: extraCols,
	}, nil
}

// pushSelectDef renders one selection level into a select definition.
// Column aliases equal response aliases, so the JSON documents nested
// relation subqueries pack are shaped by the same alias names.
func (p *planner) pushSelectDef(srcIdx int32, objID catalog.ObjectID, sel ast.SelectionSet, ra readArgs) (*pushed, error) {
	obj := p.cat.Object(objID)
	src := p.sourceInfo(srcIdx)
	ps := &pushed{def: sqlgen.SelectDef{
		Object:      objID,
		Filter:      ra.filter,
		OrderBy:     ra.orderBy,
		Limit:       ra.limit,
		Offset:      ra.offset,
		DistinctOn:  ra.distinctOn,
		Args:        ra.viewArgs,
		WithDeleted: ra.withDeleted,
	}}

	sels, err := p.classify(objID, sel)
	if err != nil {
		return nil, err
	}

	var cube sqlgen.CubePre
	for i := range sels {
		sf := &sels[i]
		if hasDirective(sf.f.Directives, "unnest") || hasDirective(sf.f.Directives, "no_pushdown") {
			return nil, errNoPush
		}
		switch sf.kind {
		case selTypename:
			ps.cols = append(ps.cols, engine.ProjCol{As: sf.alias, Literal: typeNameOf(sf.f, obj.Name), Type: rowset.String})

		case selHidden:
			ps.cols = append(ps.cols, engine.ProjCol{As: sf.alias, Null: true})

		case selScalar:
			if obj.Cube {
				if err := p.cubeColumn(&cube, sf); err != nil {
					return nil, err
				}
			}
			ps.def.Columns = append(ps.def.Columns, sqlgen.Column{Alias: sf.alias, Field: sf.fld.Name})
			ps.cols = append(ps.cols, p.scalarProj(sf.fld, sf.alias, sf.alias, sf.f.SelectionSet))
			ps.fields = append(ps.fields, rowset.Field{Name: sf.alias, Type: wireType(sf.fld), List: sf.fld.List})

		case selPart:
			part, err := p.partArg(sf.f)
			if err != nil {
				return nil, err
			}
			ps.def.Columns = append(ps.def.Columns, sqlgen.Column{
				Alias: sf.alias,
				Part:  &sqlgen.PartColumn{Field: sf.fld.Name, Part: part},
			})
			ps.cols = append(ps.cols, engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.BigInt})
			ps.fields = append(ps.fields, rowset.Field{Name: sf.alias, Type: rowset.BigInt})

		case selMeasure:
			measure, err := p.measureArg(sf.f)
			if err != nil {
				return nil, err
			}
			ps.def.Columns = append(ps.def.Columns, sqlgen.Column{
				Alias:   sf.alias,
				Measure: &sqlgen.MeasureColumn{Field: sf.fld.Name, Measure: measure},
			})
			ps.cols = append(ps.cols, engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.Float64})
			ps.fields = append(ps.fields, rowset.Field{Name: sf.alias, Type: rowset.Float64})

		case selCall:
			if err := p.pushCallColumn(ps, sf); err != nil {
				return nil, err
			}

		case selRelation:
			if err := p.pushRelationColumn(ps, srcIdx, src, sf); err != nil {
				return nil, err
			}

		case selRelationAgg:
			if err := p.pushRelationAgg(ps, srcIdx, src, sf); err != nil {
				return nil, err
			}

		case selRelationBuckets:
			if err := p.pushRelationBuckets(ps, srcIdx, src, sf); err != nil {
				return nil, err
			}

		case selJoin, selSpatial:
			return nil, errNoPush
		}
	}
	if obj.Cube {
		ps.def.Cube = &cube
	}
	return ps, nil
}

// cubeColumn registers one selected cube field in the pre-aggregation:
// measurements aggregate, everything else groups.
func (p *planner) cubeColumn(cube *sqlgen.CubePre, sf *selField) error {
	if !sf.fld.IsMeasurement {
		cube.Dimensions = append(cube.Dimensions, sf.fld.Name)
		return nil
	}
	fn, ok, err := p.argValue(sf.f, "measurement_func")
	if err != nil {
		return err
	}
	name := ""
	if ok {
		name, err = toString(fn, "measurement_func")
		if err != nil {
			return err
		}
	} else if len(sf.fld.MeasurementFuncs) > 0 {
		name = sf.fld.MeasurementFuncs[0]
	}
	if name == "" {
		return lterrors.Errorf(lterrors.CodeQueryValidation, "measurement %s needs a measurement_func", sf.fld.Name)
	}
	cube.Measures = append(cube.Measures, sqlgen.CubeMeasure{Field: sf.fld.Name, Func: name})
	return nil
}

func (p *planner) pushCallColumn(ps *pushed, sf *selField) error {
	rel := p.cat.Relation(sf.bind.Relation)
	fn := p.cat.Function(rel.FuncCall.Function)
	if fn.Kind != catalog.SQLFunction || fn.IsTable || fn.ReturnObject != catalog.NoObject {
		return errNoPush
	}
	if err := p.grant.CheckFunction(fn.ID); err != nil {
		return err
	}
	args, err := p.callArgs(fn, sf.f, rel)
	if err != nil {
		return err
	}
	ps.def.Columns = append(ps.def.Columns, sqlgen.Column{
		Alias: sf.alias,
		Call:  &sqlgen.CallColumn{Relation: rel.ID, Args: args},
	})
	typ := fn.ReturnScalar
	if fn.ReturnRowType != "" {
		typ = rowset.JSON
	}
	ps.cols = append(ps.cols, engine.ProjCol{From: sf.alias, As: sf.alias, Type: typ, List: fn.ReturnsList})
	ps.fields = append(ps.fields, rowset.Field{Name: sf.alias, Type: typ, List: fn.ReturnsList})
	return nil
}

func (p *planner) pushRelationColumn(ps *pushed, srcIdx int32, src *catalog.SourceInfo, sf *selField) error {
	rel := p.cat.Relation(sf.bind.Relation)
	target := rel.OtherSide(sf.bind.Reverse)
	if err := p.grant.CheckObject(target, accessctl.OpSelect); err != nil {
		return err
	}
	if rel.IsCrossSource || p.cat.Object(target).Source != srcIdx || !src.Capabilities.JoinPushdown {
		return errNoPush
	}
	if rel.Kind == catalog.M2MRelation && p.cat.Object(rel.Through).Source != srcIdx {
		return errNoPush
	}
	childRA, err := p.readArgsOf(sf.f)
	if err != nil {
		return err
	}
	if err := p.checkReadable(target, childRA); err != nil {
		return err
	}
	child, err := p.pushSelectDef(srcIdx, target, sf.f.SelectionSet, childRA)
	if err != nil {
		return err
	}
	ps.def.Columns = append(ps.def.Columns, sqlgen.Column{
		Alias: sf.alias,
		Relation: &sqlgen.RelationColumn{
			Relation: rel.ID,
			Reverse:  sf.bind.Reverse,
			Inner:    childRA.inner,
			Select:   child.def,
		},
	})
	toMany := p.relationToMany(rel, sf.bind.Reverse)
	ps.cols = append(ps.cols, engine.ProjCol{
		From: sf.alias, As: sf.alias,
		Type: rowset.JSON, List: toMany, Shape: child.cols,
	})
	ps.fields = append(ps.fields, rowset.Field{Name: sf.alias, Type: rowset.JSON})
	return nil
}

func (p *planner) pushRelationAgg(ps *pushed, srcIdx int32, src *catalog.SourceInfo, sf *selField) error {
	rel := p.cat.Relation(sf.bind.Relation)
	target := rel.OtherSide(sf.bind.Reverse)
	if err := p.grant.CheckObject(target, accessctl.OpSelect); err != nil {
		return err
	}
	if rel.Kind == catalog.FuncCallRelation || rel.IsCrossSource ||
		p.cat.Object(target).Source != srcIdx || !src.Capabilities.AggregationPushdown {
		return errNoPush
	}
	childRA, err := p.readArgsOf(sf.f)
	if err != nil {
		return err
	}
	agg, err := p.aggSelection(target, sf.f.SelectionSet)
	if err != nil {
		return err
	}
	ps.def.Columns = append(ps.def.Columns, sqlgen.Column{
		Alias: sf.alias,
		RelationAggregate: &sqlgen.RelationAggregateColumn{
			Relation: rel.ID,
			Reverse:  sf.bind.Reverse,
			Aggregate: sqlgen.AggregateDef{
				Object:      target,
				Columns:     agg.cols,
				Filter:      childRA.filter,
				Args:        childRA.viewArgs,
				WithDeleted: childRA.withDeleted,
			},
		},
	})
	ps.cols = append(ps.cols, engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.JSON, Shape: agg.shape})
	ps.fields = append(ps.fields, rowset.Field{Name: sf.alias, Type: rowset.JSON})
	return nil
}

func (p *planner) pushRelationBuckets(ps *pushed, srcIdx int32, src *catalog.SourceInfo, sf *selField) error {
	rel := p.cat.Relation(sf.bind.Relation)
	target := rel.OtherSide(sf.bind.Reverse)
	if err := p.grant.CheckObject(target, accessctl.OpSelect); err != nil {
		return err
	}
	if rel.Kind == catalog.FuncCallRelation || rel.IsCrossSource ||
		p.cat.Object(target).Source != srcIdx || !src.Capabilities.AggregationPushdown {
		return errNoPush
	}
	childRA, err := p.readArgsOf(sf.f)
	if err != nil {
		return err
	}
	buckets, err := p.bucketSelection(target, sf.f.SelectionSet)
	if err != nil {
		return err
	}
	if err := buckets.checkOrder(childRA.orderBy); err != nil {
		return err
	}
	ps.def.Columns = append(ps.def.Columns, sqlgen.Column{
		Alias: sf.alias,
		RelationBuckets: &sqlgen.RelationBucketsColumn{
			Relation: rel.ID,
			Reverse:  sf.bind.Reverse,
			Buckets: sqlgen.BucketDef{
				AggregateDef: sqlgen.AggregateDef{
					Object:      target,
					Columns:     buckets.cols,
					Filter:      childRA.filter,
					Args:        childRA.viewArgs,
					WithDeleted: childRA.withDeleted,
				},
				Keys:    buckets.keys,
				OrderBy: childRA.orderBy,
				Limit:   childRA.limit,
				Offset:  childRA.offset,
			},
		},
	})
	ps.cols = append(ps.cols, engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.JSON, List: true, Shape: buckets.shape})
	ps.fields = append(ps.fields, rowset.Field{Name: sf.alias, Type: rowset.JSON})
	return nil
}

// partArg reads the part enum of a date-part field.
func (p *planner) partArg(f *ast.Field) (string, error) {
	v, ok, err := p.argValue(f, "part")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", lterrors.Errorf(lterrors.CodeQueryValidation, "%s requires a part argument", f.Name)
	}
	return toString(v, "part")
}

// measureArg reads the measurement enum of a geometry measurement
// field.
func (p *planner) measureArg(f *ast.Field) (string, error) {
	v, ok, err := p.argValue(f, "type")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", lterrors.Errorf(lterrors.CodeQueryValidation, "%s requires a type argument", f.Name)
	}
	return toString(v, "type")
}

// callArgs resolves the free arguments of a function call field, the
// ones the relation does not bind to source columns.
func (p *planner) callArgs(fn *catalog.Function, f *ast.Field, rel *catalog.Relation) (map[string]any, error) {
	args := make(map[string]any)
	for i := range fn.Args {
		arg := &fn.Args[i]
		if rel != nil && rel.FuncCall != nil {
			if _, bound := rel.FuncCall.Args[arg.Name]; bound {
				continue
			}
		}
		v, ok, err := p.argValue(f, arg.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			args[arg.Name] = v
		}
	}
	return args, nil
}

// typeNameOf resolves the __typename value of a field from the
// validated document, falling back to the catalog name.
func typeNameOf(f *ast.Field, fallback string) string {
	if f.ObjectDefinition != nil {
		return f.ObjectDefinition.Name
	}
	return fallback
}

// wireType is the transport type of a scalar field; row-typed values
// travel as JSON.
func wireType(fld *catalog.Field) rowset.Type {
	if fld.RowTypeName != "" {
		return rowset.JSON
	}
	return fld.Scalar
}

// checkReadable enforces per-object read constraints that hold on both
// planning paths.
func (p *planner) checkReadable(objID catalog.ObjectID, ra readArgs) error {
	obj := p.cat.Object(objID)
	if obj.FilterRequired && len(ra.filter) == 0 {
		return lterrors.Errorf(lterrors.CodeQueryValidation, "%s requires a filter", obj.Name)
	}
	if obj.Args != nil && obj.Args.Required && len(ra.viewArgs) == 0 {
		return lterrors.Errorf(lterrors.CodeQueryValidation, "%s requires view arguments", obj.Name)
	}
	return nil
}
