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

// Package sdl parses directive-annotated GraphQL schema definitions into
// catalog definitions. It owns the directive grammar: every directive is
// decoded into a closed set of spec variants so later stages never touch
// raw ast.Directive values.
//
// Parsing is a set operation. All data sources' documents are merged into
// one schema so extensions may reference types owned by other sources,
// but every definition keeps its owning source and an error in one
// source's documents fails that source alone.
package sdl

import (
	"errors"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/latticeio/lattice/go/lt/lterrors"
)

// Source is one SDL document belonging to a data source's catalog.
type Source struct {
	Name  string
	Input string
}

// CatalogSource is the SDL document set of one data source.
type CatalogSource struct {
	DataSource string
	Sources    []Source
}

// SourceError reports why one data source's catalog failed to load.
type SourceError struct {
	DataSource string
	Err        error
}

// SetResult is the outcome of parsing a catalog set. Catalogs holds one
// entry per surviving data source, Failed one entry per excluded source.
type SetResult struct {
	Schema   *ast.Schema
	Catalogs []*CatalogDef
	Failed   []*SourceError
}

// Catalog returns the surviving catalog for a data source, or nil.
func (r *SetResult) Catalog(dataSource string) *CatalogDef {
	for _, c := range r.Catalogs {
		if c.DataSource == dataSource {
			return c
		}
	}
	return nil
}

// FieldDef is one field of a data object, row type or function type,
// with its directives decoded.
type FieldDef struct {
	Def           *ast.FieldDefinition
	Name          string
	FromExtension bool
	// Owner is the data source whose document declared the field. Empty
	// means the field belongs to the object's own source.
	Owner string

	PK           bool
	SQL          *SQLSpec
	Default      *DefaultSpec
	FieldSource  *FieldSourceSpec
	Geometry     *GeometryInfoSpec
	Dim          *DimSpec
	Embeddings   *EmbeddingsSpec
	TimescaleKey bool
	Measurement  *MeasurementSpec

	FieldReferences *FieldReferencesSpec
	Join            *JoinSpec
	FunctionCall    *FunctionCallSpec
	TableFuncJoin   *TableFuncJoinSpec

	Function *FunctionSpec
}

// RelationDirective reports the single relation directive on the field,
// or nil.
func (f *FieldDef) RelationDirective() DirectiveSpec {
	switch {
	case f.FieldReferences != nil:
		return f.FieldReferences
	case f.Join != nil:
		return f.Join
	case f.FunctionCall != nil:
		return f.FunctionCall
	case f.TableFuncJoin != nil:
		return f.TableFuncJoin
	}
	return nil
}

// ObjectDef is one @table or @view object of a catalog.
type ObjectDef struct {
	Def  *ast.Definition
	Name string

	Table *TableSpec
	View  *ViewSpec

	Args            *ArgsSpec
	Uniques         []*UniqueSpec
	References      []*ReferencesSpec
	Module          *ModuleSpec
	Cube            bool
	Hypertable      bool
	FilterRequired  bool
	Cache           *CacheSpec
	NoCache         bool
	InvalidateCache bool

	Fields []*FieldDef
}

// IsTable reports whether the object maps to a physical table.
func (o *ObjectDef) IsTable() bool { return o.Table != nil }

// SourceName is the physical table or view name.
func (o *ObjectDef) SourceName() string {
	if o.Table != nil {
		return o.Table.Name
	}
	return o.View.Name
}

// Field returns the named field or nil.
func (o *ObjectDef) Field(name string) *FieldDef {
	for _, f := range o.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FunctionDef is one @function field on the Function type.
type FunctionDef struct {
	Def      *ast.FieldDefinition
	Name     string
	Function *FunctionSpec
	// ArgNames maps GraphQL argument names to physical parameter names
	// from @named, identity when unannotated.
	ArgNames map[string]string
}

// RowType is a plain object type used as a nested row structure. Row
// types are not queryable on their own.
type RowType struct {
	Def    *ast.Definition
	Name   string
	Fields []*FieldDef
}

// CatalogDef is the parsed form of one data source's catalog.
type CatalogDef struct {
	DataSource string
	Schema     *ast.Schema
	Objects    []*ObjectDef
	Functions  []*FunctionDef
	RowTypes   []*RowType
	Inputs     []*ast.Definition
	Enums      []*ast.Definition
}

// Object returns the named data object or nil.
func (c *CatalogDef) Object(name string) *ObjectDef {
	for _, o := range c.Objects {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// builtinDirectives are GraphQL-standard directives carried through to
// the compiled schema untouched.
var builtinDirectives = map[string]bool{
	"deprecated":  true,
	"specifiedBy": true,
	"skip":        true,
	"include":     true,
}

var baseScalars = map[string]bool{
	"BigInt":    true,
	"Timestamp": true,
	"Date":      true,
	"JSON":      true,
	"Geometry":  true,
}

var builtinScalars = map[string]bool{
	"Int":     true,
	"Float":   true,
	"String":  true,
	"Boolean": true,
	"ID":      true,
}

// IsScalar reports whether name is a known scalar type.
func IsScalar(name string) bool {
	return baseScalars[name] || builtinScalars[name]
}

// Parse loads a single data source's catalog with no cross-source
// extensions in play. Convenience wrapper around ParseSet.
func Parse(dataSource string, sources []Source) (*CatalogDef, error) {
	res := ParseSet([]CatalogSource{{DataSource: dataSource, Sources: sources}})
	if len(res.Failed) > 0 {
		return nil, res.Failed[0].Err
	}
	if len(res.Catalogs) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition, "catalog %s: no schema sources", dataSource)
	}
	return res.Catalogs[0], nil
}

// parseState tracks one data source through the parse stages.
type parseState struct {
	name       string
	astSources []*ast.Source
	err        error
}

// ParseSet parses and merges the catalogs of all data sources. Sources
// with syntax, validation or directive errors are excluded and reported
// in Failed; the remaining sources produce a merged schema and one
// CatalogDef each.
func ParseSet(inputs []CatalogSource) *SetResult {
	res := &SetResult{}
	states := make([]*parseState, 0, len(inputs))
	fileOwner := make(map[string]string)
	extOwner := make(map[string]map[string]string)

	for _, in := range inputs {
		st := &parseState{name: in.DataSource}
		states = append(states, st)
		if len(in.Sources) == 0 {
			st.err = lterrors.Errorf(lterrors.CodeSchemaDefinition, "catalog %s: no schema sources", in.DataSource)
			continue
		}
		for _, f := range in.Sources {
			srcName := in.DataSource + "/" + f.Name
			src := &ast.Source{Name: srcName, Input: f.Input}
			doc, perr := parser.ParseSchema(src)
			if perr != nil {
				st.err = lterrors.Wrapf(perr, "catalog %s: parse %s", in.DataSource, f.Name)
				break
			}
			fileOwner[srcName] = in.DataSource
			for _, ext := range doc.Extensions {
				m := extOwner[ext.Name]
				if m == nil {
					m = make(map[string]string)
					extOwner[ext.Name] = m
				}
				for _, fd := range ext.Fields {
					m[fd.Name] = in.DataSource
				}
			}
			st.astSources = append(st.astSources, src)
		}
	}

	schema := loadMerged(states, fileOwner)
	if schema != nil {
		classifySet(res, schema, states, fileOwner, extOwner)
	}
	for _, st := range states {
		if st.err != nil {
			res.Failed = append(res.Failed, &SourceError{DataSource: st.name, Err: st.err})
		}
	}
	res.Schema = schema
	return res
}

// loadMerged validates all live sources as one schema. A validation
// error is attributed to the owning data source through the error's file
// position and that source is retried out of the set, so one broken
// catalog cannot take down its peers.
func loadMerged(states []*parseState, fileOwner map[string]string) *ast.Schema {
	for {
		all := []*ast.Source{BaseSource()}
		live := 0
		for _, st := range states {
			if st.err != nil {
				continue
			}
			live++
			all = append(all, st.astSources...)
		}
		if live == 0 {
			return nil
		}
		schema, gerr := gqlparser.LoadSchema(all...)
		if gerr == nil {
			return schema
		}
		blamed := blameSource(gerr, fileOwner)
		if blamed == "" {
			for _, st := range states {
				if st.err == nil {
					st.err = lterrors.Wrapf(gerr, "catalog %s: invalid schema", st.name)
				}
			}
			return nil
		}
		for _, st := range states {
			if st.name == blamed && st.err == nil {
				st.err = lterrors.Wrapf(gerr, "catalog %s: invalid schema", blamed)
			}
		}
	}
}

func blameSource(err error, fileOwner map[string]string) string {
	var list gqlerror.List
	if errors.As(err, &list) {
		for _, e := range list {
			if ds := blameOne(e, fileOwner); ds != "" {
				return ds
			}
		}
		return ""
	}
	var one *gqlerror.Error
	if errors.As(err, &one) {
		return blameOne(one, fileOwner)
	}
	return ""
}

func blameOne(e *gqlerror.Error, fileOwner map[string]string) string {
	file, _ := e.Extensions["file"].(string)
	return fileOwner[file]
}

// classifySet walks the merged schema and assigns every definition to
// its owning data source. Directive errors are blamed on the owner of
// the offending definition or field, and a final purge drops everything
// owned by a failed source, including extension fields it contributed to
// other sources' objects.
func classifySet(res *SetResult, schema *ast.Schema, states []*parseState, fileOwner map[string]string, extOwner map[string]map[string]string) {
	byDS := make(map[string]*CatalogDef, len(states))
	for _, st := range states {
		if st.err == nil {
			cd := &CatalogDef{DataSource: st.name, Schema: schema}
			byDS[st.name] = cd
			res.Catalogs = append(res.Catalogs, cd)
		}
	}
	fail := func(ds string, err error) {
		for _, st := range states {
			if st.name == ds && st.err == nil {
				st.err = err
			}
		}
	}

	names := make([]string, 0, len(schema.Types))
	for name := range schema.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := schema.Types[name]
		if name == FunctionTypeName {
			// The Function host type ships with the base grammar and is
			// marked builtin, but its extensions carry user functions.
			classifyFunctions(def, byDS, extOwner[name], fail)
			continue
		}
		if def.BuiltIn || strings.HasPrefix(name, "__") {
			continue
		}
		owner := definitionOwner(def, fileOwner)
		cd := byDS[owner]
		if cd == nil {
			continue
		}
		var err error
		switch def.Kind {
		case ast.Object:
			if name == "Query" || name == "Mutation" || name == "Subscription" {
				err = errAt(def.Position, "catalogs must not define %s, roots are generated", name)
			} else {
				err = classifyObject(cd, def, extOwner[name], fail)
			}
		case ast.InputObject:
			cd.Inputs = append(cd.Inputs, def)
		case ast.Enum:
			cd.Enums = append(cd.Enums, def)
		case ast.Scalar:
			if !IsScalar(name) {
				err = errAt(def.Position, "custom scalar %s is not supported", name)
			}
		case ast.Interface, ast.Union:
			err = errAt(def.Position, "%s types are not supported in catalog schemas", strings.ToLower(string(def.Kind)))
		}
		if err != nil {
			fail(owner, err)
		}
	}

	purgeFailed(res, states)
}

// definitionOwner resolves which data source defined a type, through the
// qualified name of the ast source that carries the base definition.
func definitionOwner(def *ast.Definition, fileOwner map[string]string) string {
	if def.Position == nil || def.Position.Src == nil {
		return ""
	}
	return fileOwner[def.Position.Src.Name]
}

func purgeFailed(res *SetResult, states []*parseState) {
	failed := make(map[string]bool)
	for _, st := range states {
		if st.err != nil {
			failed[st.name] = true
		}
	}
	kept := res.Catalogs[:0]
	for _, cd := range res.Catalogs {
		if failed[cd.DataSource] {
			continue
		}
		for _, obj := range cd.Objects {
			fields := obj.Fields[:0]
			for _, f := range obj.Fields {
				if f.Owner != "" && failed[f.Owner] {
					continue
				}
				fields = append(fields, f)
			}
			obj.Fields = fields
		}
		kept = append(kept, cd)
	}
	res.Catalogs = kept
}

func classifyObject(cat *CatalogDef, def *ast.Definition, fieldOwners map[string]string, fail func(string, error)) error {
	obj := &ObjectDef{Def: def, Name: def.Name}
	for _, d := range def.Directives {
		if builtinDirectives[d.Name] {
			continue
		}
		ds, err := DecodeDirective(d)
		if err != nil {
			return err
		}
		switch s := ds.(type) {
		case *TableSpec:
			if obj.Table != nil {
				return errAt(d.Position, "object %s declares @table twice", def.Name)
			}
			obj.Table = s
		case *ViewSpec:
			if obj.View != nil {
				return errAt(d.Position, "object %s declares @view twice", def.Name)
			}
			obj.View = s
		case *ArgsSpec:
			obj.Args = s
		case *UniqueSpec:
			obj.Uniques = append(obj.Uniques, s)
		case *ReferencesSpec:
			obj.References = append(obj.References, s)
		case *ModuleSpec:
			obj.Module = s
		case *CubeSpec:
			obj.Cube = true
		case *HypertableSpec:
			obj.Hypertable = true
		case *FilterRequiredSpec:
			obj.FilterRequired = true
		case *CacheSpec:
			obj.Cache = s
		case *NoCacheSpec:
			obj.NoCache = true
		case *InvalidateCacheSpec:
			obj.InvalidateCache = true
		default:
			return errAt(ds.Position(), "directive not allowed on object %s", def.Name)
		}
	}

	if obj.Table != nil && obj.View != nil {
		return errAt(def.Position, "object %s cannot be both @table and @view", def.Name)
	}
	if obj.Table == nil && obj.View == nil {
		return classifyRowType(cat, def, obj)
	}
	if obj.Args != nil && obj.View == nil {
		return errAt(obj.Args.Position(), "object %s: @args requires @view", def.Name)
	}
	if obj.Hypertable && obj.View != nil {
		return errAt(def.Position, "object %s: @hypertable requires @table", def.Name)
	}
	if obj.Cache != nil && obj.NoCache {
		return errAt(def.Position, "object %s declares both @cache and @no_cache", def.Name)
	}

	for _, fd := range def.Fields {
		owner := fieldOwners[fd.Name]
		if strings.HasPrefix(fd.Name, "_") {
			return errAt(fd.Position, "object %s: field names starting with _ are reserved", def.Name)
		}
		f, err := parseField(fd, owner != "")
		if err != nil {
			if owner != "" && owner != cat.DataSource {
				fail(owner, err)
				continue
			}
			return err
		}
		if f.Function != nil {
			return errAt(fd.Position, "object %s.%s: @function belongs on the Function type", def.Name, fd.Name)
		}
		if owner != cat.DataSource {
			f.Owner = owner
		}
		obj.Fields = append(obj.Fields, f)
	}

	if err := checkObjectFields(obj); err != nil {
		return err
	}

	cat.Objects = append(cat.Objects, obj)
	return nil
}

// classifyRowType records a plain object type as a nested row structure.
// Row type fields carry no storage or relation directives.
func classifyRowType(cat *CatalogDef, def *ast.Definition, obj *ObjectDef) error {
	if len(obj.Uniques) > 0 || len(obj.References) > 0 || obj.Cube || obj.Hypertable ||
		obj.FilterRequired || obj.Cache != nil || obj.NoCache || obj.InvalidateCache ||
		obj.Module != nil || obj.Args != nil {
		return errAt(def.Position, "object %s has data directives but no @table or @view", def.Name)
	}
	row := &RowType{Def: def, Name: def.Name}
	for _, fd := range def.Fields {
		if strings.HasPrefix(fd.Name, "_") {
			continue
		}
		f, err := parseField(fd, false)
		if err != nil {
			return err
		}
		if f.RelationDirective() != nil || f.PK || f.SQL != nil || f.Default != nil ||
			f.FieldSource != nil || f.TimescaleKey || f.Measurement != nil {
			return errAt(fd.Position, "row type %s.%s: only @geometry_info, @dim and @embeddings are allowed here", def.Name, fd.Name)
		}
		row.Fields = append(row.Fields, f)
	}
	cat.RowTypes = append(cat.RowTypes, row)
	return nil
}

func parseField(fd *ast.FieldDefinition, fromExtension bool) (*FieldDef, error) {
	f := &FieldDef{Def: fd, Name: fd.Name, FromExtension: fromExtension}
	for _, d := range fd.Directives {
		if builtinDirectives[d.Name] {
			continue
		}
		ds, err := DecodeDirective(d)
		if err != nil {
			return nil, err
		}
		switch s := ds.(type) {
		case *PKSpec:
			f.PK = true
		case *SQLSpec:
			f.SQL = s
		case *DefaultSpec:
			f.Default = s
		case *FieldSourceSpec:
			f.FieldSource = s
		case *GeometryInfoSpec:
			f.Geometry = s
		case *DimSpec:
			f.Dim = s
		case *EmbeddingsSpec:
			f.Embeddings = s
		case *TimescaleKeySpec:
			f.TimescaleKey = true
		case *MeasurementSpec:
			f.Measurement = s
		case *FieldReferencesSpec:
			f.FieldReferences = s
		case *JoinSpec:
			f.Join = s
		case *FunctionCallSpec:
			f.FunctionCall = s
		case *TableFuncJoinSpec:
			f.TableFuncJoin = s
		case *FunctionSpec:
			f.Function = s
		default:
			return nil, errAt(ds.Position(), "directive not allowed on field %s", fd.Name)
		}
	}
	return f, nil
}

func checkObjectFields(obj *ObjectDef) error {
	def := obj.Def
	relCount := 0
	for _, f := range obj.Fields {
		if f.SQL != nil && f.FieldSource != nil {
			return errAt(f.Def.Position, "field %s.%s: @sql and @field_source are mutually exclusive", def.Name, f.Name)
		}
		if rel := f.RelationDirective(); rel != nil {
			n := 0
			for _, set := range []bool{f.FieldReferences != nil, f.Join != nil, f.FunctionCall != nil, f.TableFuncJoin != nil} {
				if set {
					n++
				}
			}
			if n > 1 {
				return errAt(f.Def.Position, "field %s.%s declares more than one relation directive", def.Name, f.Name)
			}
			// A @field_references field is a real column and may carry
			// @pk or @default; join and call fields are synthesized.
			if f.FieldReferences == nil {
				relCount++
				if f.PK || f.SQL != nil || f.Default != nil || f.FieldSource != nil {
					return errAt(f.Def.Position, "field %s.%s: join and call fields carry no storage directives", def.Name, f.Name)
				}
			}
		}
		if f.Geometry != nil && baseTypeName(f.Def.Type) != "Geometry" {
			return errAt(f.Geometry.Position(), "field %s.%s: @geometry_info requires a Geometry field", def.Name, f.Name)
		}
		if (f.Dim != nil || f.Embeddings != nil) && !isFloatList(f.Def.Type) {
			return errAt(f.Def.Position, "field %s.%s: @dim and @embeddings require a [Float!] field", def.Name, f.Name)
		}
		if f.Measurement != nil && !obj.Cube {
			return errAt(f.Measurement.Position(), "field %s.%s: @measurement requires @cube on the object", def.Name, f.Name)
		}
		if f.TimescaleKey && !obj.Hypertable {
			return errAt(f.Def.Position, "field %s.%s: @timescale_key requires @hypertable on the object", def.Name, f.Name)
		}
	}

	for _, u := range obj.Uniques {
		for _, name := range u.Fields {
			f := obj.Field(name)
			if f == nil {
				return errAt(u.Position(), "object %s: @unique names unknown field %s", def.Name, name)
			}
			if f.RelationDirective() != nil {
				return errAt(u.Position(), "object %s: @unique cannot use relation field %s", def.Name, name)
			}
		}
	}
	for _, r := range obj.References {
		for _, name := range r.SourceFields {
			if obj.Field(name) == nil {
				return errAt(r.Position(), "object %s: @references names unknown source field %s", def.Name, name)
			}
		}
	}
	if obj.Table != nil && !obj.Table.IsM2M && relCount == len(obj.Fields) && len(obj.Fields) > 0 {
		return errAt(def.Position, "object %s has no data fields", def.Name)
	}
	return nil
}

func classifyFunctions(def *ast.Definition, byDS map[string]*CatalogDef, fieldOwners map[string]string, fail func(string, error)) {
	for _, fd := range def.Fields {
		if fd.Name == "_noop" {
			continue
		}
		owner := fieldOwners[fd.Name]
		cd := byDS[owner]
		if cd == nil {
			continue
		}
		fn, err := parseFunction(fd)
		if err != nil {
			fail(owner, err)
			continue
		}
		cd.Functions = append(cd.Functions, fn)
	}
}

func parseFunction(fd *ast.FieldDefinition) (*FunctionDef, error) {
	f, err := parseField(fd, true)
	if err != nil {
		return nil, err
	}
	if f.Function == nil {
		return nil, errAt(fd.Position, "Function.%s requires @function", fd.Name)
	}
	if f.RelationDirective() != nil || f.PK || f.SQL != nil {
		return nil, errAt(fd.Position, "Function.%s: only @function is allowed here", fd.Name)
	}
	fn := &FunctionDef{
		Def:      fd,
		Name:     fd.Name,
		Function: f.Function,
		ArgNames: make(map[string]string, len(fd.Arguments)),
	}
	for _, arg := range fd.Arguments {
		fn.ArgNames[arg.Name] = arg.Name
		if d := arg.Directives.ForName("named"); d != nil {
			ds, err := DecodeDirective(d)
			if err != nil {
				return nil, err
			}
			fn.ArgNames[arg.Name] = ds.(*NamedSpec).Name
		}
	}
	return fn, nil
}

func baseTypeName(t *ast.Type) string {
	for t.Elem != nil {
		t = t.Elem
	}
	return t.NamedType
}

func isFloatList(t *ast.Type) bool {
	return t.Elem != nil && t.Elem.NamedType == "Float"
}
