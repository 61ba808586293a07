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

// Package catalog holds the resolved data-object model: every table,
// view, relation, function and module of every loaded data source,
// stored in arenas and addressed by integer ids. A Catalog is immutable
// once built; reloads build a new Catalog and swap it in above this
// package.
package catalog

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

// ObjectID addresses a DataObject inside a Catalog's arena.
type ObjectID int32

// RelationID addresses a Relation inside a Catalog's arena.
type RelationID int32

// FunctionID addresses a Function inside a Catalog's arena.
type FunctionID int32

const (
	NoObject   ObjectID   = -1
	NoRelation RelationID = -1
	NoFunction FunctionID = -1
)

// Capabilities describes what a data source's adapter can execute
// natively. The planner consults these through the capability queries on
// Catalog.
type Capabilities struct {
	JoinPushdown        bool
	AggregationPushdown bool
	SupportsSpatial     bool
}

// SourceInfo is the per-data-source record the catalog was built from.
type SourceInfo struct {
	Name         string
	Type         string
	Prefix       string
	ReadOnly     bool
	AsModule     bool
	Capabilities Capabilities
}

// Catalog is the immutable resolved model shared by all requests
// against one schema snapshot.
type Catalog struct {
	sources   []SourceInfo
	objects   []DataObject
	relations []Relation
	functions []Function

	byName     map[string]ObjectID
	funcByName map[string]FunctionID
	root       *Module
	modules    map[string]*Module

	schema *ast.Schema
}

// Schema is the merged input schema the catalog was resolved from. The
// compiler produces the served schema separately.
func (c *Catalog) Schema() *ast.Schema { return c.schema }

// Sources lists the data sources that survived the build.
func (c *Catalog) Sources() []SourceInfo { return c.sources }

// Source returns the source record backing an object.
func (c *Catalog) Source(id ObjectID) *SourceInfo {
	return &c.sources[c.objects[id].Source]
}

// SourceByName returns the named source record, or nil.
func (c *Catalog) SourceByName(name string) *SourceInfo {
	for i := range c.sources {
		if c.sources[i].Name == name {
			return &c.sources[i]
		}
	}
	return nil
}

// Object returns the arena entry for id. The pointer stays valid for
// the catalog's lifetime and must be treated as read-only.
func (c *Catalog) Object(id ObjectID) *DataObject {
	return &c.objects[id]
}

// ObjectByName resolves a GraphQL type name to its object.
func (c *Catalog) ObjectByName(name string) (ObjectID, bool) {
	id, ok := c.byName[name]
	return id, ok
}

// Objects returns all object ids in arena order.
func (c *Catalog) Objects() []ObjectID {
	out := make([]ObjectID, len(c.objects))
	for i := range c.objects {
		out[i] = ObjectID(i)
	}
	return out
}

// Relation returns the arena entry for id.
func (c *Catalog) Relation(id RelationID) *Relation {
	return &c.relations[id]
}

// Function returns the arena entry for id.
func (c *Catalog) Function(id FunctionID) *Function {
	return &c.functions[id]
}

// FunctionByName resolves a function's GraphQL name.
func (c *Catalog) FunctionByName(name string) (FunctionID, bool) {
	id, ok := c.funcByName[name]
	return id, ok
}

// Functions returns all function ids in arena order.
func (c *Catalog) Functions() []FunctionID {
	out := make([]FunctionID, len(c.functions))
	for i := range c.functions {
		out[i] = FunctionID(i)
	}
	return out
}

// ResolveObject looks an object up by module path and name.
func (c *Catalog) ResolveObject(module, name string) (ObjectID, bool) {
	id, ok := c.byName[name]
	if !ok || c.objects[id].Module != module {
		return NoObject, false
	}
	return id, true
}

// ResolveRelation resolves the relation behind a query field of an
// object. Reverse reports that the object sits on the target side of
// the relation.
func (c *Catalog) ResolveRelation(from ObjectID, queryField string) (RelationID, bool, bool) {
	ref, ok := c.objects[from].relFields[queryField]
	if !ok {
		return NoRelation, false, false
	}
	return ref.id, ref.reverse, true
}

// FieldsOf returns the object's fields in declaration order.
func (c *Catalog) FieldsOf(id ObjectID) []Field {
	return c.objects[id].Fields
}

// SupportsJoinPushdown reports whether the object's source can fold
// relation joins into one native query.
func (c *Catalog) SupportsJoinPushdown(id ObjectID) bool {
	return c.Source(id).Capabilities.JoinPushdown
}

// SupportsAggregationPushdown reports whether the object's source can
// evaluate aggregations natively.
func (c *Catalog) SupportsAggregationPushdown(id ObjectID) bool {
	return c.Source(id).Capabilities.AggregationPushdown
}

// SupportsSpatial reports whether the object's source evaluates spatial
// predicates natively.
func (c *Catalog) SupportsSpatial(id ObjectID) bool {
	return c.Source(id).Capabilities.SupportsSpatial
}

// IsCube reports whether the object carries cube semantics and needs
// the pre-aggregation planning stage.
func (c *Catalog) IsCube(id ObjectID) bool {
	return c.objects[id].Cube
}

// Root returns the module tree root (path "").
func (c *Catalog) Root() *Module { return c.root }

// ModuleByPath returns a module by its dotted path, or nil.
func (c *Catalog) ModuleByPath(path string) *Module {
	return c.modules[path]
}

// ModulePaths returns all module paths in sorted order, root included
// as the empty string.
func (c *Catalog) ModulePaths() []string {
	out := make([]string, 0, len(c.modules))
	for p := range c.modules {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
