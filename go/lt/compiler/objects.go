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

package compiler

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// emitObject writes the output type for one data object: its columns,
// the relation query fields on both ends, per-relation aggregation
// companions, and the generated special fields.
func (c *run) emitObject(oi *objInfo) error {
	obj := oi.obj
	c.w.open("type %s", obj.Name)

	for i := range obj.Fields {
		f := &obj.Fields[i]
		if isRelationField(f) {
			relID, reverse, ok := obj.QueryFieldRelation(f.Name)
			if !ok {
				return lterrors.Errorf(lterrors.CodeSchemaDefinition,
					"field %s.%s: relation field has no resolved relation", obj.Name, f.Name)
			}
			if err := c.printRelationField(obj, f.Name, c.cat.Relation(relID), reverse); err != nil {
				return err
			}
			continue
		}
		args := ""
		if f.IsMeasurement && obj.Cube && len(f.MeasurementFuncs) > 0 {
			args = fmt.Sprintf("(measurement_func: MeasurementFuncType = %s)", f.MeasurementFuncs[0])
		}
		c.w.fieldf("%s%s: %s", f.Name, args, f.Type.String())
		c.bind(obj.Name, f.Name, Binding{Kind: BindScalar, Object: obj.ID, Field: f.Name})
	}

	for _, qf := range obj.QueryFields() {
		if obj.Field(qf.Name) != nil {
			continue
		}
		if err := c.printRelationField(obj, qf.Name, c.cat.Relation(qf.Relation), qf.Reverse); err != nil {
			return err
		}
	}

	if err := c.printRelationCompanions(obj); err != nil {
		return err
	}
	c.printSpecialFields(obj)

	c.w.close()
	return nil
}

// isRelationField reports whether a declared field is served by a
// relation subquery rather than a column. Foreign key columns keep
// their scalar identity and are excluded.
func isRelationField(f *catalog.Field) bool {
	return f.Relation != catalog.NoRelation && !f.IsScalar() && f.RowTypeName == ""
}

func (c *run) printRelationField(obj *catalog.DataObject, name string, rel *catalog.Relation, reverse bool) error {
	if rel.Kind == catalog.FuncCallRelation {
		return c.printFuncCallField(obj, name, rel)
	}
	target := c.cat.Object(rel.OtherSide(reverse))
	toMany := rel.CardinalityFor(reverse).ToMany()

	var args []string
	if target.Args != nil {
		args = append(args, c.viewArgsArg(target))
	}
	if toMany {
		args = append(args, c.selectArgs(target, true)...)
	}
	args = append(args, "inner: Boolean = false")

	ret := target.Name
	if toMany {
		ret = "[" + target.Name + "!]"
	}
	c.w.fieldf("%s(%s): %s", name, strings.Join(args, ", "), ret)
	c.bind(obj.Name, name, Binding{
		Kind:     BindRelation,
		Object:   target.ID,
		Relation: rel.ID,
		Reverse:  reverse,
	})
	return nil
}

// printFuncCallField renders a function-backed field. Function
// arguments not bound to source columns stay exposed as field
// arguments.
func (c *run) printFuncCallField(obj *catalog.DataObject, name string, rel *catalog.Relation) error {
	fn := c.cat.Function(rel.FuncCall.Function)
	var args []string
	for i := range fn.Args {
		a := &fn.Args[i]
		if _, bound := rel.FuncCall.Args[a.Name]; bound {
			continue
		}
		args = append(args, argDef(a.Name, a.Type, a.Default))
	}
	if rel.To != catalog.NoObject {
		target := c.cat.Object(rel.To)
		if rel.Cardinality.ToMany() {
			args = append(args, c.selectArgs(target, true)...)
		}
		args = append(args, "inner: Boolean = false")
	}

	f := obj.Field(name)
	if f == nil {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"field %s.%s: function call field is not declared", obj.Name, name)
	}
	if len(args) == 0 {
		c.w.fieldf("%s: %s", name, f.Type.String())
	} else {
		c.w.fieldf("%s(%s): %s", name, strings.Join(args, ", "), f.Type.String())
	}
	c.bind(obj.Name, name, Binding{
		Kind:     BindRelation,
		Object:   rel.To,
		Relation: rel.ID,
	})
	return nil
}

// printRelationCompanions adds <field>_aggregation and
// <field>_bucket_aggregation next to every to-many relation field.
func (c *run) printRelationCompanions(obj *catalog.DataObject) error {
	seen := make(map[string]bool)
	for _, qf := range obj.QueryFields() {
		rel := c.cat.Relation(qf.Relation)
		targetID := rel.OtherSide(qf.Reverse)
		if targetID == catalog.NoObject || !rel.CardinalityFor(qf.Reverse).ToMany() {
			continue
		}
		target := c.cat.Object(targetID)
		suffixes := []string{"_aggregation"}
		if c.bucketable(targetID) {
			suffixes = append(suffixes, "_bucket_aggregation")
		}
		for _, suffix := range suffixes {
			cname := qf.Name + suffix
			if obj.Field(cname) != nil || seen[cname] {
				return lterrors.Errorf(lterrors.CodeSchemaDefinition,
					"object %s: generated field %s collides with an existing field", obj.Name, cname)
			}
			if _, _, clash := obj.QueryFieldRelation(cname); clash {
				return lterrors.Errorf(lterrors.CodeSchemaDefinition,
					"object %s: generated field %s collides with a relation query field", obj.Name, cname)
			}
			seen[cname] = true
		}

		baseArgs := []string{}
		if target.Args != nil {
			baseArgs = append(baseArgs, c.viewArgsArg(target))
		}
		aggArgs := append(append([]string{}, baseArgs...), c.filterArg(target))
		c.w.fieldf("%s_aggregation(%s): %s", qf.Name, strings.Join(aggArgs, ", "), aggResultName(target))
		c.bind(obj.Name, qf.Name+"_aggregation", Binding{
			Kind:     BindRelationAggregate,
			Object:   targetID,
			Relation: rel.ID,
			Reverse:  qf.Reverse,
		})

		if !c.bucketable(targetID) {
			continue
		}
		bucketArgs := append(append([]string{}, baseArgs...),
			c.filterArg(target),
			fmt.Sprintf("order_by: [%s!]", orderByName(target)),
			"limit: Int = 2000",
			"offset: Int",
		)
		c.w.fieldf("%s_bucket_aggregation(%s): [%s!]", qf.Name, strings.Join(bucketArgs, ", "), bucketName(target))
		c.bind(obj.Name, qf.Name+"_bucket_aggregation", Binding{
			Kind:     BindRelationBucketAggregate,
			Object:   targetID,
			Relation: rel.ID,
			Reverse:  qf.Reverse,
		})
	}
	return nil
}

// bucketable reports whether an object can serve bucket aggregations,
// which needs at least one groupable column.
func (c *run) bucketable(id catalog.ObjectID) bool {
	return len(c.cat.Object(id).ScalarFields()) > 0
}

func (c *run) printSpecialFields(obj *catalog.DataObject) {
	c.w.fieldf("_join(fields: [String!]!): _join_targets")
	c.bind(obj.Name, "_join", Binding{Kind: BindJoin, Object: obj.ID})

	if len(obj.GeometryFields()) > 0 {
		c.w.fieldf("_spatial(field: String!, type: SpatialOpType! = INTERSECTS, buffer: Float): _spatial_targets")
		c.bind(obj.Name, "_spatial", Binding{Kind: BindSpatial, Object: obj.ID})
	}

	for i := range obj.Fields {
		f := &obj.Fields[i]
		if f.List {
			continue
		}
		switch f.Scalar {
		case rowset.Timestamp, rowset.Date:
			name := "_" + f.Name + "_part"
			c.w.fieldf("%s(part: TimePart!): BigInt", name)
			c.bind(obj.Name, name, Binding{Kind: BindPart, Object: obj.ID, Field: f.Name})
		case rowset.Geometry:
			name := "_" + f.Name + "_measurement"
			c.w.fieldf("%s(type: MeasurementType!): Float", name)
			c.bind(obj.Name, name, Binding{Kind: BindMeasurement, Object: obj.ID, Field: f.Name})
		}
	}
}

// emitFilterInputs writes <obj>_filter, the to-many wrapper and the
// order_by input for one object.
func (c *run) emitFilterInputs(oi *objInfo) {
	obj := oi.obj

	fn := filterName(obj)
	c.w.open("input %s", fn)
	c.w.fieldf("_and: [%s!]", fn)
	c.w.fieldf("_or: [%s!]", fn)
	c.w.fieldf("_not: %s", fn)
	for _, f := range obj.ScalarFields() {
		if ft := filterTypeFor(f.Scalar, f.List); ft != "" {
			c.w.fieldf("%s: %s", f.Name, ft)
		}
	}
	for _, qf := range obj.QueryFields() {
		rel := c.cat.Relation(qf.Relation)
		if rel.Kind == catalog.FuncCallRelation {
			continue
		}
		target := c.cat.Object(rel.OtherSide(qf.Reverse))
		if rel.CardinalityFor(qf.Reverse).ToMany() {
			c.w.fieldf("%s: %s", qf.Name, relFilterName(target))
		} else {
			c.w.fieldf("%s: %s", qf.Name, filterName(target))
		}
	}
	c.w.close()

	c.w.open("input %s", relFilterName(obj))
	c.w.fieldf("any_of: %s", fn)
	c.w.fieldf("all_of: %s", fn)
	c.w.fieldf("none_of: %s", fn)
	c.w.close()

	c.w.open("input %s", orderByName(obj))
	c.w.fieldf("field: String!")
	c.w.fieldf("direction: OrderDirection! = ASC")
	c.w.close()
}

// viewArgsArg renders the leading args argument of a parameterized
// view.
func (c *run) viewArgsArg(obj *catalog.DataObject) string {
	if obj.Args.Required {
		return fmt.Sprintf("args: %s!", obj.Args.InputName)
	}
	return fmt.Sprintf("args: %s", obj.Args.InputName)
}

func (c *run) filterArg(obj *catalog.DataObject) string {
	if obj.FilterRequired {
		return fmt.Sprintf("filter: %s!", filterName(obj))
	}
	return fmt.Sprintf("filter: %s", filterName(obj))
}

// selectArgs renders the list-query argument set shared by selects,
// to-many relation fields and dynamic join targets.
func (c *run) selectArgs(obj *catalog.DataObject, withDistinct bool) []string {
	args := []string{
		c.filterArg(obj),
		fmt.Sprintf("order_by: [%s!]", orderByName(obj)),
		"limit: Int = 2000",
		"offset: Int",
	}
	if withDistinct {
		args = append(args, "distinct_on: [String!]")
	}
	return args
}

// argDef renders one argument definition with its declared default.
func argDef(name string, t *ast.Type, def *ast.Value) string {
	if def != nil {
		return fmt.Sprintf("%s: %s = %s", name, t.String(), def.String())
	}
	return fmt.Sprintf("%s: %s", name, t.String())
}
