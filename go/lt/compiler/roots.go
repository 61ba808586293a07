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
	"sort"
	"strings"

	"github.com/latticeio/lattice/go/lt/catalog"
)

// emitNamespaces walks the module tree and writes the Query root, the
// Mutation root when any table is writable, and one namespace type per
// nested module.
func (c *run) emitNamespaces() {
	c.emitQueryNS(c.cat.Root())
	if c.hasWritable(c.cat.Root()) {
		c.emitMutationNS(c.cat.Root())
	}
	c.emitJoinTargets()
}

func (c *run) emitQueryNS(m *catalog.Module) {
	tn := nsQueryType(m.Path)
	c.w.open("type %s", tn)
	if m.Path == "" {
		c.w.fieldf("_version: String!")
		c.bind(tn, "_version", Binding{Kind: BindVersion, Object: catalog.NoObject})
	}
	for _, child := range m.Children {
		c.w.fieldf("%s: %s", child.Name, nsQueryType(child.Path))
		c.bind(tn, child.Name, Binding{Kind: BindModule, Object: catalog.NoObject, Module: child.Path})
	}
	if len(m.Functions) > 0 {
		c.w.fieldf("function: %s", nsFunctionType(m.Path))
		c.bind(tn, "function", Binding{Kind: BindFunctionNS, Object: catalog.NoObject, Module: m.Path})
	}
	for _, oi := range c.moduleObjects(m) {
		c.printObjectQueries(tn, oi)
	}
	c.w.close()

	if len(m.Functions) > 0 {
		c.emitFunctionNS(m)
	}
	for _, child := range m.Children {
		c.emitQueryNS(child)
	}
}

func (c *run) printObjectQueries(tn string, oi *objInfo) {
	obj := oi.obj

	var selArgs []string
	if obj.Args != nil {
		selArgs = append(selArgs, c.viewArgsArg(obj))
	}
	selArgs = append(selArgs, c.selectArgs(obj, true)...)
	c.w.fieldf("%s(%s): [%s!]", oi.base, strings.Join(selArgs, ", "), obj.Name)
	c.bind(tn, oi.base, Binding{Kind: BindSelect, Object: obj.ID})

	if len(obj.PrimaryKey) > 0 {
		name := oi.base + "_by_pk"
		c.w.fieldf("%s(%s): %s", name, c.keyArgs(obj, obj.PrimaryKey), obj.Name)
		c.bind(tn, name, Binding{Kind: BindSelectByPK, Object: obj.ID})
	}
	for i := range obj.Uniques {
		u := &obj.Uniques[i]
		name := uniqueQueryName(oi.base, u)
		c.w.fieldf("%s(%s): %s", name, c.keyArgs(obj, u.Fields), obj.Name)
		c.bind(tn, name, Binding{Kind: BindSelectUnique, Object: obj.ID, Unique: i})
	}

	var aggArgs []string
	if obj.Args != nil {
		aggArgs = append(aggArgs, c.viewArgsArg(obj))
	}
	aggArgs = append(aggArgs, c.filterArg(obj))
	c.w.fieldf("%s_aggregation(%s): %s", oi.base, strings.Join(aggArgs, ", "), aggResultName(obj))
	c.bind(tn, oi.base+"_aggregation", Binding{Kind: BindAggregate, Object: obj.ID})

	if oi.hasBucketKey {
		bucketArgs := append(append([]string{}, aggArgs...),
			fmt.Sprintf("order_by: [%s!]", orderByName(obj)),
			"limit: Int = 2000",
			"offset: Int",
		)
		c.w.fieldf("%s_bucket_aggregation(%s): [%s!]", oi.base, strings.Join(bucketArgs, ", "), bucketName(obj))
		c.bind(tn, oi.base+"_bucket_aggregation", Binding{Kind: BindBucketAggregate, Object: obj.ID})
	}
}

// keyArgs renders one non-null argument per key column.
func (c *run) keyArgs(obj *catalog.DataObject, fields []string) string {
	args := make([]string, 0, len(fields)+1)
	if obj.Args != nil {
		args = append(args, c.viewArgsArg(obj))
	}
	for _, name := range fields {
		f := obj.Field(name)
		t := f.Type.NamedType
		if f.RowTypeName != "" {
			t = "JSON"
		}
		args = append(args, fmt.Sprintf("%s: %s!", name, t))
	}
	return strings.Join(args, ", ")
}

func (c *run) emitMutationNS(m *catalog.Module) {
	tn := nsMutationType(m.Path)
	c.w.open("type %s", tn)
	for _, child := range m.Children {
		if !c.hasWritable(child) {
			continue
		}
		c.w.fieldf("%s: %s", child.Name, nsMutationType(child.Path))
		c.bind(tn, child.Name, Binding{Kind: BindModule, Object: catalog.NoObject, Module: child.Path})
	}
	for _, oi := range c.moduleObjects(m) {
		if !oi.writable {
			continue
		}
		obj := oi.obj
		c.w.fieldf("insert_%s(data: [%s!]!): %s", oi.base, insertInputName(obj), mutationResName(obj))
		c.bind(tn, "insert_"+oi.base, Binding{Kind: BindInsert, Object: obj.ID})
		c.w.fieldf("update_%s(%s, data: %s!): %s", oi.base, c.filterArg(obj), updateInputName(obj), mutationResName(obj))
		c.bind(tn, "update_"+oi.base, Binding{Kind: BindUpdate, Object: obj.ID})
		c.w.fieldf("delete_%s(%s): %s", oi.base, c.filterArg(obj), mutationResName(obj))
		c.bind(tn, "delete_"+oi.base, Binding{Kind: BindDelete, Object: obj.ID})
	}
	c.w.close()

	for _, child := range m.Children {
		if c.hasWritable(child) {
			c.emitMutationNS(child)
		}
	}
}

func (c *run) emitFunctionNS(m *catalog.Module) {
	tn := nsFunctionType(m.Path)
	c.w.open("type %s", tn)
	for _, fi := range c.moduleFunctions(m) {
		fn := fi.fn
		args := make([]string, 0, len(fn.Args))
		for i := range fn.Args {
			a := &fn.Args[i]
			args = append(args, argDef(a.Name, a.Type, a.Default))
		}
		if len(args) == 0 {
			c.w.fieldf("%s: %s", fi.base, fn.ReturnType.String())
		} else {
			c.w.fieldf("%s(%s): %s", fi.base, strings.Join(args, ", "), fn.ReturnType.String())
		}
		c.bind(tn, fi.base, Binding{Kind: BindFunction, Object: catalog.NoObject, Function: fn.ID})
	}
	c.w.close()
}

// emitJoinTargets writes the schema-wide target types consumed by the
// _join and _spatial fields. Each data object is addressable under its
// module-qualified name.
func (c *run) emitJoinTargets() {
	if len(c.objs) == 0 {
		return
	}
	c.w.open("type _join_targets")
	for i := range c.objs {
		oi := &c.objs[i]
		args := []string{"references_fields: [String!]!"}
		if oi.obj.Args != nil {
			args = append(args, c.viewArgsArg(oi.obj))
		}
		args = append(args, c.selectArgs(oi.obj, false)...)
		args = append(args, "inner: Boolean = false")
		c.w.fieldf("%s(%s): [%s!]", oi.qualified, strings.Join(args, ", "), oi.obj.Name)
		c.bind("_join_targets", oi.qualified, Binding{Kind: BindJoinTarget, Object: oi.obj.ID})
	}
	c.w.close()

	var spatial []*objInfo
	for i := range c.objs {
		if len(c.objs[i].obj.GeometryFields()) > 0 {
			spatial = append(spatial, &c.objs[i])
		}
	}
	if len(spatial) == 0 {
		return
	}
	c.w.open("type _spatial_targets")
	for _, oi := range spatial {
		args := []string{"field: String!"}
		if oi.obj.Args != nil {
			args = append(args, c.viewArgsArg(oi.obj))
		}
		args = append(args, c.selectArgs(oi.obj, false)...)
		args = append(args, "inner: Boolean = false")
		c.w.fieldf("%s(%s): [%s!]", oi.qualified, strings.Join(args, ", "), oi.obj.Name)
		c.bind("_spatial_targets", oi.qualified, Binding{Kind: BindSpatialTarget, Object: oi.obj.ID})
	}
	c.w.close()
}

// moduleObjects returns the module's objects ordered by generated base
// name.
func (c *run) moduleObjects(m *catalog.Module) []*objInfo {
	out := make([]*objInfo, 0, len(m.Objects))
	for _, id := range m.Objects {
		out = append(out, c.objByID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].base < out[j].base })
	return out
}

func (c *run) moduleFunctions(m *catalog.Module) []*fnInfo {
	out := make([]*fnInfo, 0, len(m.Functions))
	for _, id := range m.Functions {
		out = append(out, c.fnByID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].base < out[j].base })
	return out
}

// hasWritable reports whether the module subtree contains any table on
// a writable source.
func (c *run) hasWritable(m *catalog.Module) bool {
	for _, id := range m.Objects {
		if c.objByID[id].writable {
			return true
		}
	}
	for _, child := range m.Children {
		if c.hasWritable(child) {
			return true
		}
	}
	return false
}
