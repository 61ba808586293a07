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

package catalog

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sdl"
	"github.com/latticeio/lattice/go/rowset"
)

// SourceConfig describes one data source to load: its adapter identity
// and the SDL documents of its catalogs.
type SourceConfig struct {
	Name         string
	Type         string
	Prefix       string
	ReadOnly     bool
	AsModule     bool
	Capabilities Capabilities
	Catalogs     []sdl.Source
}

// BuildResult carries the catalog of all surviving sources plus one
// error per excluded source.
type BuildResult struct {
	Catalog *Catalog
	Failed  []*sdl.SourceError
}

// Build parses every source's SDL set and resolves the full data-object
// model. A source whose documents fail parsing, or whose directives
// fail resolution, is excluded and reported; the remaining sources
// still produce a complete catalog.
func Build(cfgs []SourceConfig) *BuildResult {
	inputs := make([]sdl.CatalogSource, 0, len(cfgs))
	for _, cfg := range cfgs {
		inputs = append(inputs, sdl.CatalogSource{DataSource: cfg.Name, Sources: cfg.Catalogs})
	}
	pres := sdl.ParseSet(inputs)

	res := &BuildResult{Failed: append([]*sdl.SourceError{}, pres.Failed...)}
	live := pres.Catalogs
	for {
		cat, serr := assemble(cfgs, pres.Schema, live)
		if serr == nil {
			res.Catalog = cat
			return res
		}
		res.Failed = append(res.Failed, serr)
		kept := live[:0]
		for _, cd := range live {
			if cd.DataSource != serr.DataSource {
				kept = append(kept, cd)
			}
		}
		live = kept
	}
}

// builder carries the in-progress arenas through the two passes.
type builder struct {
	cat      *Catalog
	liveSet  map[string]bool
	rowTypes map[string]bool
	objNames map[string]bool

	work []objWork
}

type objWork struct {
	def *sdl.ObjectDef
	id  ObjectID
	src int32
	cfg *SourceConfig
	// relFields maps field index in the arena object to the sdl field
	// carrying a relation directive.
	relFields map[int]*sdl.FieldDef
}

func assemble(cfgs []SourceConfig, schema *ast.Schema, cats []*sdl.CatalogDef) (*Catalog, *sdl.SourceError) {
	b := &builder{
		cat: &Catalog{
			byName:     make(map[string]ObjectID),
			funcByName: make(map[string]FunctionID),
			modules:    make(map[string]*Module),
			schema:     schema,
		},
		liveSet:  make(map[string]bool, len(cats)),
		rowTypes: make(map[string]bool),
		objNames: make(map[string]bool),
	}
	for _, cd := range cats {
		b.liveSet[cd.DataSource] = true
		for _, rt := range cd.RowTypes {
			b.rowTypes[rt.Name] = true
		}
		for _, obj := range cd.Objects {
			b.objNames[obj.Name] = true
		}
	}

	cfgByName := make(map[string]*SourceConfig, len(cfgs))
	for i := range cfgs {
		cfgByName[cfgs[i].Name] = &cfgs[i]
	}

	for _, cd := range cats {
		cfg := cfgByName[cd.DataSource]
		srcIdx := int32(len(b.cat.sources))
		b.cat.sources = append(b.cat.sources, SourceInfo{
			Name:         cfg.Name,
			Type:         cfg.Type,
			Prefix:       cfg.Prefix,
			ReadOnly:     cfg.ReadOnly,
			AsModule:     cfg.AsModule,
			Capabilities: cfg.Capabilities,
		})
		if serr := b.addObjects(cd, cfg, srcIdx); serr != nil {
			return nil, serr
		}
	}

	for _, cd := range cats {
		cfg := cfgByName[cd.DataSource]
		if err := b.addFunctions(cd, cfg); err != nil {
			return nil, &sdl.SourceError{DataSource: cd.DataSource, Err: err}
		}
	}

	for i := range b.work {
		if serr := b.resolveRelations(&b.work[i]); serr != nil {
			return nil, serr
		}
	}
	if serr := b.synthesizeM2M(); serr != nil {
		return nil, serr
	}

	b.buildModules()
	return b.cat, nil
}

func (b *builder) addObjects(cd *sdl.CatalogDef, cfg *SourceConfig, srcIdx int32) *sdl.SourceError {
	fail := func(err error) *sdl.SourceError {
		return &sdl.SourceError{DataSource: cd.DataSource, Err: err}
	}
	for _, def := range cd.Objects {
		id := ObjectID(len(b.cat.objects))
		kind := Table
		if def.View != nil {
			kind = View
			if def.Args != nil {
				kind = ParameterizedView
			}
		}
		obj := DataObject{
			ID:              id,
			Name:            def.Name,
			SourceName:      def.SourceName(),
			Kind:            kind,
			Source:          srcIdx,
			fieldIndex:      make(map[string]int, len(def.Fields)),
			relFields:       make(map[string]relRef),
			Cube:            def.Cube,
			Hypertable:      def.Hypertable,
			FilterRequired:  def.FilterRequired,
			NoCache:         def.NoCache,
			InvalidateCache: def.InvalidateCache,
		}
		srcModule := ""
		if cfg.AsModule {
			srcModule = cfg.Name
		}
		objModule := ""
		if def.Module != nil {
			objModule = def.Module.Name
		}
		obj.Module = modulePath(srcModule, objModule)

		if def.Table != nil {
			obj.IsM2M = def.Table.IsM2M
			if def.Table.SoftDelete {
				obj.SoftDelete = &SoftDelete{
					Condition: def.Table.SoftDeleteCondition,
					Set:       def.Table.SoftDeleteSet,
				}
			}
		}
		if def.View != nil {
			obj.ViewSQL = def.View.SQL
		}
		if def.Cache != nil {
			obj.Cache = &CachePolicy{
				TTLSeconds: int64(def.Cache.TTL.Seconds()),
				Key:        def.Cache.Key,
				Tags:       def.Cache.Tags,
			}
		}
		for _, u := range def.Uniques {
			obj.Uniques = append(obj.Uniques, UniqueConstraint{
				Fields:      append([]string{}, u.Fields...),
				QuerySuffix: u.QuerySuffix,
			})
		}

		work := objWork{def: def, id: id, src: srcIdx, cfg: cfg, relFields: make(map[int]*sdl.FieldDef)}
		for _, fd := range def.Fields {
			if fd.Owner != "" && !b.liveSet[fd.Owner] {
				continue
			}
			f, err := b.buildField(def, fd)
			if err != nil {
				if fd.Owner != "" && fd.Owner != cd.DataSource {
					return &sdl.SourceError{DataSource: fd.Owner, Err: err}
				}
				return fail(err)
			}
			idx := len(obj.Fields)
			obj.fieldIndex[f.Name] = idx
			obj.Fields = append(obj.Fields, f)
			if fd.RelationDirective() != nil {
				work.relFields[idx] = fd
			}
			if f.IsPrimaryKey {
				obj.PrimaryKey = append(obj.PrimaryKey, f.Name)
			}
			if f.TimescaleKey {
				obj.TimescaleKey = f.Name
			}
		}

		if obj.Hypertable && obj.TimescaleKey == "" {
			return fail(lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"object %s: @hypertable requires a @timescale_key field", def.Name))
		}
		if kind == ParameterizedView {
			args, err := b.buildViewArgs(def)
			if err != nil {
				return fail(err)
			}
			obj.Args = args
		}

		b.cat.objects = append(b.cat.objects, obj)
		b.cat.byName[obj.Name] = id
		b.work = append(b.work, work)
	}
	return nil
}

func (b *builder) buildField(def *sdl.ObjectDef, fd *sdl.FieldDef) (Field, error) {
	f := Field{
		Name:         fd.Name,
		Type:         fd.Def.Type,
		NonNull:      fd.Def.Type.NonNull,
		Relation:     NoRelation,
		IsPrimaryKey: fd.PK,
		TimescaleKey: fd.TimescaleKey,
	}
	if fd.FieldSource != nil {
		f.SourceField = fd.FieldSource.Field
	}
	if fd.SQL != nil {
		f.SQLExpr = fd.SQL.Exp
	}
	if fd.Geometry != nil {
		f.GeometryInfo = &GeometryInfo{Type: fd.Geometry.Type, SRID: fd.Geometry.SRID}
	}
	if fd.Measurement != nil {
		f.IsMeasurement = true
		f.MeasurementFuncs = fd.Measurement.Funcs
	}
	if fd.Default != nil {
		f.Default = &Default{
			Value:      fd.Default.Value,
			HasValue:   fd.Default.HasValue,
			Sequence:   fd.Default.Sequence,
			InsertExpr: fd.Default.InsertValue,
			UpdateExpr: fd.Default.UpdateValue,
		}
	}
	if fd.Dim != nil {
		f.DimSize = fd.Dim.Size
	}
	if fd.Embeddings != nil {
		f.EmbeddingsModel = fd.Embeddings.Model
	}

	if fd.Join != nil || fd.FunctionCall != nil || fd.TableFuncJoin != nil {
		// Synthesized fields: target checks happen when the relation is
		// resolved in pass two. A @field_references field stays a real
		// column and maps below.
		return f, nil
	}

	scalar, list, rowType, err := b.mapType(fd.Def.Type)
	if err != nil {
		return f, lterrors.Errorf(lterrors.CodeSchemaDefinition, "field %s.%s: %v", def.Name, fd.Name, err)
	}
	f.Scalar = scalar
	f.List = list
	f.RowTypeName = rowType
	return f, nil
}

// mapType resolves a GraphQL type reference to the engine value model.
func (b *builder) mapType(t *ast.Type) (rowset.Type, bool, string, error) {
	list := false
	if t.Elem != nil {
		list = true
		t = t.Elem
		if t.Elem != nil {
			return rowset.Unknown, false, "", fmt.Errorf("nested list types are not supported")
		}
	}
	name := t.NamedType
	switch name {
	case "Int":
		return rowset.Int64, list, "", nil
	case "BigInt":
		return rowset.BigInt, list, "", nil
	case "Float":
		return rowset.Float64, list, "", nil
	case "String", "ID":
		return rowset.String, list, "", nil
	case "Boolean":
		return rowset.Boolean, list, "", nil
	case "Timestamp":
		return rowset.Timestamp, list, "", nil
	case "Date":
		return rowset.Date, list, "", nil
	case "JSON":
		return rowset.JSON, list, "", nil
	case "Geometry":
		return rowset.Geometry, list, "", nil
	}
	if b.rowTypes[name] {
		return rowset.JSON, list, name, nil
	}
	if b.objNames[name] {
		return rowset.Unknown, list, "", fmt.Errorf("type %s is a data object, a relation directive is required", name)
	}
	if def, ok := b.cat.schema.Types[name]; ok && def.Kind == ast.Enum {
		return rowset.String, list, "", nil
	}
	return rowset.Unknown, list, "", fmt.Errorf("unsupported type %s", name)
}

func (b *builder) buildViewArgs(def *sdl.ObjectDef) (*ViewArgs, error) {
	in, ok := b.cat.schema.Types[def.Args.InputName]
	if !ok || in.Kind != ast.InputObject {
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"object %s: @args names unknown input type %s", def.Name, def.Args.InputName)
	}
	args := &ViewArgs{
		InputName: def.Args.InputName,
		Required:  def.Args.Required,
		Args:      make(map[string]string, len(in.Fields)),
	}
	for _, f := range in.Fields {
		physical := f.Name
		if d := f.Directives.ForName("named"); d != nil {
			ds, err := sdl.DecodeDirective(d)
			if err != nil {
				return nil, err
			}
			physical = ds.(*sdl.NamedSpec).Name
		}
		args.Args[f.Name] = physical
	}
	return args, nil
}
