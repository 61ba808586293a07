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

import "github.com/latticeio/lattice/go/lt/catalog"

// emitMutationInputs writes the insert/update inputs and the result
// type for one writable table. Computed columns (@sql) never appear in
// mutation inputs; columns with any default stay optional on insert.
func (c *run) emitMutationInputs(oi *objInfo) {
	obj := oi.obj

	c.w.open("input %s", insertInputName(obj))
	for _, f := range mutableFields(obj) {
		required := f.NonNull && f.Default == nil
		c.w.fieldf("%s: %s", f.Name, inputTypeRef(f, required))
	}
	c.w.close()

	c.w.open("input %s", updateInputName(obj))
	for _, f := range mutableFields(obj) {
		c.w.fieldf("%s: %s", f.Name, inputTypeRef(f, false))
	}
	c.w.close()

	res := mutationResName(obj)
	c.w.open("type %s", res)
	c.w.fieldf("affected_rows: BigInt!")
	c.bind(res, "affected_rows", Binding{Kind: BindAffectedRows, Object: obj.ID})
	c.w.fieldf("returning: [%s!]!", obj.Name)
	c.bind(res, "returning", Binding{Kind: BindReturning, Object: obj.ID})
	c.w.close()
}

// mutableFields lists the real columns of an object: stored scalar and
// row-type values, excluding computed expressions.
func mutableFields(obj *catalog.DataObject) []*catalog.Field {
	var out []*catalog.Field
	for i := range obj.Fields {
		f := &obj.Fields[i]
		if isRelationField(f) || f.SQLExpr != "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// inputTypeRef renders the input type for a column. Row-type columns
// take JSON documents; the stored shape is free-form at the wire level.
func inputTypeRef(f *catalog.Field, required bool) string {
	var base string
	switch {
	case f.RowTypeName != "" && f.List:
		base = "[JSON]"
	case f.RowTypeName != "":
		base = "JSON"
	case f.Type.Elem != nil:
		elem := f.Type.Elem.NamedType
		if f.Type.Elem.NonNull {
			elem += "!"
		}
		base = "[" + elem + "]"
	default:
		base = f.Type.NamedType
	}
	if required {
		base += "!"
	}
	return base
}
