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

// Package planner turns validated operations into executable primitive
// trees. Each root field plans independently: reads push down into a
// single native statement when their whole subtree lives on one capable
// source, and otherwise decompose into per-source reads merged locally
// by the engine primitives. Argument values are materialized at plan
// time, with one exception: a variable compared under an operator whose
// value passes opaquely into native query arguments becomes a deferred
// placeholder resolved per request, so the common by-key and scalar
// comparison shapes share one plan across variable values. A variable
// anywhere else pins the plan to the request that built it.
package planner

import (
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/accessctl"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/compiler"
	"github.com/latticeio/lattice/go/lt/engine"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sqlgen"
)

// RootKind tells the executor how to render one planned root field.
type RootKind int

const (
	// RenderList renders every result row as a document.
	RenderList RootKind = iota
	// RenderSingle renders the first result row, null when empty.
	RenderSingle
	// RenderValue renders the single column of the first result row.
	RenderValue
	// RenderValueList renders the single column across all rows.
	RenderValueList
	// RenderMutation renders a mutation result object from the
	// statement's affected count and returning rows.
	RenderMutation
	// RenderNamespace renders a nested object from child plan fields.
	RenderNamespace
	// RenderConstant renders Value without executing anything.
	RenderConstant
)

// MutationCol is one field of a rendered mutation result.
type MutationCol struct {
	Alias string
	// Affected renders the statement's affected row count.
	Affected bool
	// Returning renders the returning rows as a document list built
	// from the primitive's output columns.
	Returning bool
	// Literal renders a fixed value, for __typename.
	Literal any
}

// PlanField is one planned root field.
type PlanField struct {
	Alias string
	Path  []string
	Kind  RootKind

	// Prim executes the field. Nil for constants and namespaces.
	Prim engine.Primitive
	// Value is the rendered value of a RenderConstant field.
	Value any
	// Mutation describes the result object of a RenderMutation field.
	Mutation []MutationCol
	// Children are the fields of a RenderNamespace field.
	Children []PlanField
}

// Plan is one executable operation.
type Plan struct {
	Operation ast.Operation
	Fields    []PlanField
	// Cacheable reports whether the plan may be reused for other
	// requests with the same query text and role. Plans that
	// materialized variable values are single-use, and mutations
	// never reuse.
	Cacheable bool
}

type planner struct {
	snap      *compiler.Snapshot
	cat       *catalog.Catalog
	grant     *accessctl.Grant
	vars      map[string]any
	queryText string

	usesVars bool
	noPush   bool
	opCache  cacheDirectives

	hiddenSeq int
	builders  map[int32]*sqlgen.Builder
}

// Build plans one validated operation against a compiled snapshot. The
// grant scopes every object and function the plan touches; queryText is
// the normalized request text used for derived cache keys.
func Build(snap *compiler.Snapshot, op *ast.OperationDefinition, queryText string, vars map[string]any, grant *accessctl.Grant) (*Plan, error) {
	if op.Operation == ast.Subscription {
		return nil, lterrors.New(lterrors.CodeQueryValidation, "subscriptions are not supported")
	}
	p := &planner{
		snap:      snap,
		cat:       snap.Catalog,
		grant:     grant,
		vars:      vars,
		queryText: queryText,
		builders:  make(map[int32]*sqlgen.Builder),
	}
	var err error
	p.noPush = hasDirective(op.Directives, "no_pushdown")
	p.opCache, err = p.cacheDirectivesOf(op.Directives)
	if err != nil {
		return nil, err
	}

	rootType := "Query"
	if op.Operation == ast.Mutation {
		rootType = "Mutation"
	}
	fields, err := p.planSelection(rootType, op.SelectionSet, nil, op.Operation == ast.Mutation)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Operation: op.Operation,
		Fields:    fields,
		Cacheable: op.Operation != ast.Mutation && !p.usesVars,
	}, nil
}

// planSelection plans the fields of one root or namespace selection.
func (p *planner) planSelection(typeName string, sel ast.SelectionSet, path []string, mutation bool) ([]PlanField, error) {
	fields := flattenSelections(sel)
	out := make([]PlanField, 0, len(fields))
	for _, f := range fields {
		pf, err := p.planRootField(typeName, f, path, mutation)
		if err != nil {
			return nil, err
		}
		out = append(out, *pf)
	}
	return out, nil
}

func (p *planner) planRootField(typeName string, f *ast.Field, parentPath []string, mutation bool) (*PlanField, error) {
	alias := fieldAlias(f)
	path := appendPath(parentPath, alias)

	if f.Name == "__typename" {
		return &PlanField{Alias: alias, Path: path, Kind: RenderConstant, Value: typeName}, nil
	}
	if f.Name == "__schema" || f.Name == "__type" {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "introspection field %s is served by the transport, not the engine", f.Name)
	}

	bind, ok := p.snap.Binding(typeName, f.Name)
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "no binding for %s.%s", typeName, f.Name)
	}

	switch bind.Kind {
	case compiler.BindVersion:
		return &PlanField{
			Alias: alias, Path: path, Kind: RenderConstant,
			Value: strconv.FormatInt(p.snap.Version, 10),
		}, nil

	case compiler.BindModule, compiler.BindFunctionNS:
		children, err := p.planSelection(f.Definition.Type.Name(), f.SelectionSet, path, mutation)
		if err != nil {
			return nil, err
		}
		return &PlanField{Alias: alias, Path: path, Kind: RenderNamespace, Children: children}, nil

	case compiler.BindSelect:
		return p.planSelectRoot(bind.Object, f, path, false)

	case compiler.BindSelectByPK:
		return p.planKeyedRoot(bind.Object, f, path, pkArgFields(p.cat.Object(bind.Object)))

	case compiler.BindSelectUnique:
		obj := p.cat.Object(bind.Object)
		if bind.Unique < 0 || bind.Unique >= len(obj.Uniques) {
			return nil, lterrors.Errorf(lterrors.CodePlanning, "unique constraint %d out of range on %s", bind.Unique, obj.Name)
		}
		return p.planKeyedRoot(bind.Object, f, path, obj.Uniques[bind.Unique].Fields)

	case compiler.BindAggregate:
		return p.planAggregateRoot(bind.Object, f, path)

	case compiler.BindBucketAggregate:
		return p.planBucketRoot(bind.Object, f, path)

	case compiler.BindInsert, compiler.BindUpdate, compiler.BindDelete:
		if !mutation {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s is a mutation field", f.Name)
		}
		return p.planMutationRoot(bind, f, path)

	case compiler.BindFunction:
		return p.planFunctionRoot(bind.Function, f, path)
	}
	return nil, lterrors.Errorf(lterrors.CodePlanning, "field %s.%s has no executable binding", typeName, f.Name)
}

// planSelectRoot plans a list read root field.
func (p *planner) planSelectRoot(obj catalog.ObjectID, f *ast.Field, path []string, single bool) (*PlanField, error) {
	ra, err := p.readArgsOf(f)
	if err != nil {
		return nil, err
	}
	node, err := p.planRead(obj, f, ra, path, nil)
	if err != nil {
		return nil, err
	}
	prim := engine.Primitive(&engine.Projection{Input: node.prim, Cols: node.cols})
	prim, err = p.wrapCache(prim, f, p.cat.Object(obj), path)
	if err != nil {
		return nil, err
	}
	kind := RenderList
	if single {
		kind = RenderSingle
	}
	return &PlanField{Alias: fieldAlias(f), Path: path, Kind: kind, Prim: prim}, nil
}

// planKeyedRoot plans a by_pk or unique-suffix read: the key arguments
// become an equality filter and the first row renders.
func (p *planner) planKeyedRoot(obj catalog.ObjectID, f *ast.Field, path []string, keyFields []string) (*PlanField, error) {
	filter := make(map[string]any, len(keyFields))
	for _, name := range keyFields {
		v, ok, err := p.bindableArg(f, name)
		if err != nil {
			return nil, err
		}
		if !ok || v == nil {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s requires argument %s", f.Name, name)
		}
		filter[name] = map[string]any{"eq": v}
	}
	ra, err := p.readArgsOf(f)
	if err != nil {
		return nil, err
	}
	ra.filter = mergeFilters(ra.filter, filter)
	ra.limit = 1
	node, err := p.planRead(obj, f, ra, path, nil)
	if err != nil {
		return nil, err
	}
	prim := engine.Primitive(&engine.Projection{Input: node.prim, Cols: node.cols})
	prim, err = p.wrapCache(prim, f, p.cat.Object(obj), path)
	if err != nil {
		return nil, err
	}
	return &PlanField{Alias: fieldAlias(f), Path: path, Kind: RenderSingle, Prim: prim}, nil
}

// pkArgFields lists the argument names of a by_pk field, the primary
// key fields of the object.
func pkArgFields(obj *catalog.DataObject) []string {
	return append([]string(nil), obj.PrimaryKey...)
}

// mergeFilters conjoins two filter maps. Either side may be nil.
func mergeFilters(a, b map[string]any) map[string]any {
	switch {
	case len(a) == 0:
		return b
	case len(b) == 0:
		return a
	}
	return map[string]any{"_and": []any{a, b}}
}

// fieldAlias returns the response key of a field.
func fieldAlias(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func appendPath(path []string, elem string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, elem)
}

// flattenSelections resolves fragment spreads and inline fragments into
// the flat field list. The schema has no abstract types, so every
// fragment's type condition matches trivially.
func flattenSelections(sel ast.SelectionSet) []*ast.Field {
	var out []*ast.Field
	for _, s := range sel {
		switch v := s.(type) {
		case *ast.Field:
			out = append(out, v)
		case *ast.InlineFragment:
			out = append(out, flattenSelections(v.SelectionSet)...)
		case *ast.FragmentSpread:
			if v.Definition != nil {
				out = append(out, flattenSelections(v.Definition.SelectionSet)...)
			}
		}
	}
	return out
}

// hiddenName mints a column name reserved for plumbing: join keys,
// call-join argument columns, dynamic join surfaces. The names never
// collide with response aliases, which cannot start with two
// underscores followed by a digit-bearing suffix of this shape.
func (p *planner) hiddenName() string {
	p.hiddenSeq++
	return "__h" + strconv.Itoa(p.hiddenSeq)
}

// sourceInfo returns the source record at an index of the catalog's
// source table, where object and function records point.
func (p *planner) sourceInfo(idx int32) *catalog.SourceInfo {
	sources := p.cat.Sources()
	if idx < 0 || int(idx) >= len(sources) {
		return nil
	}
	return &sources[idx]
}

// builderFor returns the SQL builder of a source, lazily constructed
// with the grant's row filters. The second result is false for sources
// without a SQL dialect.
func (p *planner) builderFor(idx int32) (*sqlgen.Builder, bool) {
	if b, ok := p.builders[idx]; ok {
		return b, b != nil
	}
	src := p.sourceInfo(idx)
	if src == nil {
		p.builders[idx] = nil
		return nil, false
	}
	d, ok := sqlgen.For(src.Type)
	if !ok {
		p.builders[idx] = nil
		return nil, false
	}
	b := sqlgen.New(d, p.cat, sqlgen.Options{RowFilters: p.grant.RowFilters()})
	p.builders[idx] = b
	return b, true
}

// dialectFor exposes the dialect of a source for capability checks.
func (p *planner) dialectFor(idx int32) (sqlgen.Dialect, bool) {
	src := p.sourceInfo(idx)
	if src == nil {
		return nil, false
	}
	return sqlgen.For(src.Type)
}
