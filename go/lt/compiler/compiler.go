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

// Package compiler turns a resolved catalog into the executable GraphQL
// schema: select, lookup, aggregation and mutation fields per data
// object, module namespaces, filter and order inputs with the fixed
// operator vocabulary, and the dynamic join surfaces. The output is an
// immutable snapshot the gate swaps atomically on reload.
package compiler

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
)

// Snapshot is one compiled schema generation. It is immutable after
// Compile returns; requests resolve against the snapshot they started
// with even when a newer one has been published.
type Snapshot struct {
	Schema  *ast.Schema
	Catalog *catalog.Catalog
	// SDL is the generated schema text Schema was loaded from.
	SDL         string
	Version     int64
	Fingerprint uint64

	bindings map[string]Binding
}

// Binding resolves what a schema field means. The planner treats a
// missing binding on a reachable generated field as a planning bug.
func (s *Snapshot) Binding(typeName, field string) (Binding, bool) {
	b, ok := s.bindings[bindingKey(typeName, field)]
	return b, ok
}

type objInfo struct {
	obj *catalog.DataObject
	// base is the query field stem, source prefix included.
	base string
	// qualified prepends the flattened module path; it names the object
	// inside the schema-wide join target types.
	qualified    string
	writable     bool
	hasBucketKey bool
}

type fnInfo struct {
	fn   *catalog.Function
	base string
}

// run carries one compilation pass.
type run struct {
	cat      *catalog.Catalog
	w        sdlWriter
	names    *nameRegistry
	types    map[string]string
	bindings map[string]Binding

	objs    []objInfo
	objByID map[catalog.ObjectID]*objInfo
	fns     []fnInfo
	fnByID  map[catalog.FunctionID]*fnInfo

	auxEnums    []string
	auxInputs   []string
	auxRowTypes []string
}

// Compile builds the executable schema for a catalog. Version is the
// caller's generation counter; the fingerprint hashes the generated
// text so identical schemas compare equal across processes.
func Compile(cat *catalog.Catalog, version int64) (*Snapshot, error) {
	c := &run{
		cat:      cat,
		names:    newNameRegistry(),
		types:    make(map[string]string),
		bindings: make(map[string]Binding),
		objByID:  make(map[catalog.ObjectID]*objInfo),
		fnByID:   make(map[catalog.FunctionID]*fnInfo),
	}
	if err := c.prepare(); err != nil {
		return nil, err
	}

	c.w.raw(prelude)
	c.emitAux()
	for i := range c.objs {
		oi := &c.objs[i]
		if err := c.emitObject(oi); err != nil {
			return nil, err
		}
		c.emitFilterInputs(oi)
		c.emitAggregates(oi)
		if oi.writable {
			c.emitMutationInputs(oi)
		}
	}
	c.emitNamespaces()

	sdlText := c.w.String()
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "lattice.generated", Input: sdlText})
	if err != nil {
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"generated schema does not validate: %v", err)
	}
	return &Snapshot{
		Schema:      schema,
		Catalog:     cat,
		SDL:         sdlText,
		Version:     version,
		Fingerprint: xxhash.Sum64String(sdlText),
		bindings:    c.bindings,
	}, nil
}

func (c *run) bind(typeName, field string, b Binding) {
	c.bindings[bindingKey(typeName, field)] = b
}

// prepare derives the generated names and claims every namespace field
// and generated type up front, so collisions surface as one coherent
// error before any SDL is written.
func (c *run) prepare() error {
	ids := c.cat.Objects()
	c.objs = make([]objInfo, len(ids))
	for i, id := range ids {
		obj := c.cat.Object(id)
		src := c.cat.Source(id)
		base := obj.Name
		if src.Prefix != "" {
			base = src.Prefix + "_" + obj.Name
		}
		qualified := base
		if obj.Module != "" {
			qualified = flatPath(obj.Module) + "_" + base
		}
		c.objs[i] = objInfo{
			obj:          obj,
			base:         base,
			qualified:    qualified,
			writable:     obj.Mutable(src.ReadOnly),
			hasBucketKey: len(obj.ScalarFields()) > 0,
		}
		c.objByID[id] = &c.objs[i]
	}

	srcs := c.cat.Sources()
	fids := c.cat.Functions()
	c.fns = make([]fnInfo, len(fids))
	for i, id := range fids {
		fn := c.cat.Function(id)
		base := fn.Name
		if p := srcs[fn.Source].Prefix; p != "" {
			base = p + "_" + fn.Name
		}
		c.fns[i] = fnInfo{fn: fn, base: base}
		c.fnByID[id] = &c.fns[i]
	}

	if err := c.names.claim(nsQueryType(""), "_version", "the schema version field"); err != nil {
		return err
	}
	for _, path := range c.cat.ModulePaths() {
		if path == "" {
			continue
		}
		m := c.cat.ModuleByPath(path)
		owner := "module " + path
		if err := c.names.claim(nsQueryType(parentPath(path)), m.Name, owner); err != nil {
			return err
		}
		if err := c.claimType(nsQueryType(path), owner); err != nil {
			return err
		}
		if c.hasWritable(m) {
			if err := c.names.claim(nsMutationType(parentPath(path)), m.Name, owner); err != nil {
				return err
			}
			if err := c.claimType(nsMutationType(path), owner); err != nil {
				return err
			}
		}
	}
	for _, path := range c.cat.ModulePaths() {
		m := c.cat.ModuleByPath(path)
		if len(m.Functions) == 0 {
			continue
		}
		if err := c.names.claim(nsQueryType(path), "function", "the function namespace"); err != nil {
			return err
		}
		if err := c.claimType(nsFunctionType(path), "the function namespace of module "+path); err != nil {
			return err
		}
	}

	if len(c.objs) > 0 {
		if err := c.claimType("_join_targets", "the dynamic join surface"); err != nil {
			return err
		}
	}
	for i := range c.objs {
		if len(c.objs[i].obj.GeometryFields()) > 0 {
			if err := c.claimType("_spatial_targets", "the spatial join surface"); err != nil {
				return err
			}
			break
		}
	}
	for i := range c.objs {
		if err := c.claimObjectNames(&c.objs[i]); err != nil {
			return err
		}
	}
	for i := range c.fns {
		fi := &c.fns[i]
		owner := "function " + fi.fn.Name
		if err := c.names.claim(nsFunctionType(fi.fn.Module), fi.base, owner); err != nil {
			return err
		}
	}
	return nil
}

func (c *run) claimObjectNames(oi *objInfo) error {
	obj := oi.obj
	owner := "object " + obj.Name
	qns := nsQueryType(obj.Module)

	queryFields := []string{oi.base, oi.base + "_aggregation"}
	if oi.hasBucketKey {
		queryFields = append(queryFields, oi.base+"_bucket_aggregation")
	}
	if len(obj.PrimaryKey) > 0 {
		queryFields = append(queryFields, oi.base+"_by_pk")
	}
	for i := range obj.Uniques {
		queryFields = append(queryFields, uniqueQueryName(oi.base, &obj.Uniques[i]))
	}
	for _, f := range queryFields {
		if err := c.names.claim(qns, f, owner); err != nil {
			return err
		}
	}
	if oi.writable {
		mns := nsMutationType(obj.Module)
		for _, f := range []string{"insert_" + oi.base, "update_" + oi.base, "delete_" + oi.base} {
			if err := c.names.claim(mns, f, owner); err != nil {
				return err
			}
		}
	}
	if err := c.names.claim("_join_targets", oi.qualified, owner); err != nil {
		return err
	}
	if len(obj.GeometryFields()) > 0 {
		if err := c.names.claim("_spatial_targets", oi.qualified, owner); err != nil {
			return err
		}
	}

	genTypes := []string{
		filterName(obj), relFilterName(obj), orderByName(obj), aggResultName(obj),
	}
	if oi.hasBucketKey {
		genTypes = append(genTypes, bucketName(obj), bucketKeyName(obj))
	}
	if oi.writable {
		genTypes = append(genTypes, insertInputName(obj), updateInputName(obj), mutationResName(obj))
	}
	for _, t := range genTypes {
		if err := c.claimType(t, owner); err != nil {
			return err
		}
	}
	return nil
}

// claimType rejects generated type names that shadow a declared type or
// another generated one.
func (c *run) claimType(name, owner string) error {
	if def, ok := c.cat.Schema().Types[name]; ok && !def.BuiltIn {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"generated type %s for %s collides with a declared type", name, owner)
	}
	if prev, ok := c.types[name]; ok {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"generated type %s for %s collides with %s", name, owner, prev)
	}
	c.types[name] = owner
	return nil
}

// collectAux gathers the declared enums, view-args inputs and row types
// referenced by surviving objects and functions, transitively through
// nested fields. Types reachable only from excluded sources are never
// emitted.
func (c *run) collectAux() {
	enums := make(map[string]bool)
	inputs := make(map[string]bool)
	rowTypes := make(map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		def, ok := c.cat.Schema().Types[name]
		if !ok || def.BuiltIn {
			return
		}
		switch def.Kind {
		case ast.Enum:
			enums[name] = true
		case ast.Object:
			if _, isDataObject := c.cat.ObjectByName(name); isDataObject {
				return
			}
			if rowTypes[name] {
				return
			}
			rowTypes[name] = true
			for _, f := range def.Fields {
				visit(baseTypeName(f.Type))
			}
		case ast.InputObject:
			if inputs[name] {
				return
			}
			inputs[name] = true
			for _, f := range def.Fields {
				visit(baseTypeName(f.Type))
			}
		}
	}

	for i := range c.objs {
		obj := c.objs[i].obj
		for j := range obj.Fields {
			f := &obj.Fields[j]
			switch {
			case f.RowTypeName != "":
				visit(f.RowTypeName)
			case f.IsScalar():
				// Enum columns keep their declared enum type.
				visit(baseTypeName(f.Type))
			}
		}
		if obj.Args != nil {
			visit(obj.Args.InputName)
		}
	}
	for i := range c.fns {
		fn := c.fns[i].fn
		for j := range fn.Args {
			visit(baseTypeName(fn.Args[j].Type))
		}
		switch {
		case fn.ReturnRowType != "":
			visit(fn.ReturnRowType)
		case fn.ReturnObject == catalog.NoObject:
			visit(baseTypeName(fn.ReturnType))
		}
	}

	c.auxEnums = sortedKeys(enums)
	c.auxInputs = sortedKeys(inputs)
	c.auxRowTypes = sortedKeys(rowTypes)
}

// emitAux re-emits the collected declared types without their catalog
// directives; the generated document only declares the request-side
// directives of the prelude.
func (c *run) emitAux() {
	c.collectAux()
	for _, name := range c.auxEnums {
		def := c.cat.Schema().Types[name]
		c.w.open("enum %s", name)
		for _, v := range def.EnumValues {
			c.w.fieldf("%s", v.Name)
		}
		c.w.close()
	}
	for _, name := range c.auxInputs {
		def := c.cat.Schema().Types[name]
		c.w.open("input %s", name)
		for _, f := range def.Fields {
			c.w.fieldf("%s", argDef(f.Name, f.Type, f.DefaultValue))
		}
		c.w.close()
	}
	for _, name := range c.auxRowTypes {
		def := c.cat.Schema().Types[name]
		c.w.open("type %s", name)
		for _, f := range def.Fields {
			c.w.fieldf("%s: %s", f.Name, f.Type.String())
			c.bind(name, f.Name, Binding{Kind: BindScalar, Object: catalog.NoObject, Field: f.Name})
		}
		c.w.close()
	}
}

func baseTypeName(t *ast.Type) string {
	for t.Elem != nil {
		t = t.Elem
	}
	return t.NamedType
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
