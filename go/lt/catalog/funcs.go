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
	"net/http"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sdl"
	"github.com/latticeio/lattice/go/rowset"
)

func (b *builder) addFunctions(cd *sdl.CatalogDef, cfg *SourceConfig) error {
	srcIdx := int32(-1)
	for i := range b.cat.sources {
		if b.cat.sources[i].Name == cfg.Name {
			srcIdx = int32(i)
			break
		}
	}
	for _, fn := range cd.Functions {
		if _, dup := b.cat.funcByName[fn.Name]; dup {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition, "duplicate function %s", fn.Name)
		}
		spec := fn.Function
		f := Function{
			ID:           FunctionID(len(b.cat.functions)),
			Name:         fn.Name,
			PhysicalName: spec.Name,
			Source:       srcIdx,
			IsTable:      spec.IsTable,
			ReturnType:   fn.Def.Type,
			ReturnObject: NoObject,
		}
		if cfg.AsModule {
			f.Module = cfg.Name
		}
		if spec.SQL != "" {
			f.Kind = SQLFunction
			f.SQL = spec.SQL
		} else {
			f.Kind = HTTPFunction
			f.HTTPMethod = strings.ToUpper(spec.HTTPMethod)
			if f.HTTPMethod == "" {
				f.HTTPMethod = http.MethodGet
			}
			f.HTTPPath = spec.HTTPPath
			f.JSONPath = spec.JSONPath
		}

		for _, arg := range fn.Def.Arguments {
			scalar, list, rowType, err := b.mapType(arg.Type)
			if err != nil || rowType != "" {
				return lterrors.Errorf(lterrors.CodeSchemaDefinition,
					"function %s: unsupported argument type for %s", fn.Name, arg.Name)
			}
			f.Args = append(f.Args, FunctionArg{
				Name:     arg.Name,
				Physical: fn.ArgNames[arg.Name],
				Type:     arg.Type,
				Scalar:   scalar,
				List:     list,
				Required: arg.Type.NonNull && arg.DefaultValue == nil,
				Default:  arg.DefaultValue,
			})
		}

		rt := fn.Def.Type
		f.ReturnsList = rt.Elem != nil
		base := rt
		for base.Elem != nil {
			base = base.Elem
		}
		name := base.NamedType
		switch {
		case sdl.IsScalar(name):
			scalar, _, _, err := b.mapType(rt)
			if err != nil {
				return lterrors.Errorf(lterrors.CodeSchemaDefinition,
					"function %s: unsupported return type %s", fn.Name, name)
			}
			f.ReturnScalar = scalar
		case b.objNames[name]:
			f.ReturnObject = b.cat.byName[name]
		case b.rowTypes[name]:
			f.ReturnRowType = name
		default:
			if def, ok := b.cat.schema.Types[name]; ok && def.Kind == ast.Enum {
				f.ReturnScalar = rowset.String
			} else {
				return lterrors.Errorf(lterrors.CodeSchemaDefinition,
					"function %s: unsupported return type %s", fn.Name, name)
			}
		}
		if f.IsTable && !f.ReturnsList {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"function %s: table functions must return a list", fn.Name)
		}
		if !f.IsTable && f.ReturnsList && f.ReturnObject != NoObject {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"function %s: returning object rows requires is_table", fn.Name)
		}

		b.cat.functions = append(b.cat.functions, f)
		b.cat.funcByName[f.Name] = f.ID
	}
	return nil
}

func (b *builder) buildModules() {
	ms := newModuleSet()
	for i := range b.cat.objects {
		obj := &b.cat.objects[i]
		m := ms.ensure(obj.Module)
		m.Objects = append(m.Objects, obj.ID)
	}
	for i := range b.cat.functions {
		f := &b.cat.functions[i]
		m := ms.ensure(f.Module)
		m.Functions = append(m.Functions, f.ID)
	}
	ms.sortTree()
	b.cat.root = ms.root
	b.cat.modules = ms.byPath
}
