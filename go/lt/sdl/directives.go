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

package sdl

import (
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/lterrors"
)

// DirectiveSpec is the closed sum of all schema-side directives. Every
// directive is decoded into exactly one variant at parse time; later
// stages switch over variants instead of inspecting directive names.
type DirectiveSpec interface {
	directiveSpec()
	// Position reports where the directive was written.
	Position() *ast.Position
}

type spec struct {
	Pos *ast.Position
}

func (s spec) directiveSpec()          {}
func (s spec) Position() *ast.Position { return s.Pos }

// TableSpec is @table.
type TableSpec struct {
	spec
	Name                string
	IsM2M               bool
	SoftDelete          bool
	SoftDeleteCondition string
	SoftDeleteSet       string
}

// ViewSpec is @view. SQL is set for SQL-defined views.
type ViewSpec struct {
	spec
	Name string
	SQL  string
}

// ArgsSpec is @args, attaching an input type as view arguments.
type ArgsSpec struct {
	spec
	InputName string
	Required  bool
}

// NamedSpec is @named, binding a physical parameter name to an argument
// or input field.
type NamedSpec struct {
	spec
	Name string
}

// PKSpec is @pk.
type PKSpec struct {
	spec
}

// UniqueSpec is @unique.
type UniqueSpec struct {
	spec
	Fields      []string
	QuerySuffix string
}

// SQLSpec is @sql, a calculated field expression with [field] references.
type SQLSpec struct {
	spec
	Exp string
}

// DefaultSpec is @default.
type DefaultSpec struct {
	spec
	Value       string
	HasValue    bool
	Sequence    string
	InsertValue string
	UpdateValue string
}

// FieldSourceSpec is @field_source.
type FieldSourceSpec struct {
	spec
	Field string
}

// GeometryInfoSpec is @geometry_info.
type GeometryInfoSpec struct {
	spec
	Type string
	SRID int64
}

// FilterRequiredSpec is @filter_required.
type FilterRequiredSpec struct {
	spec
}

// DimSpec is @dim.
type DimSpec struct {
	spec
	Size int64
}

// EmbeddingsSpec is @embeddings.
type EmbeddingsSpec struct {
	spec
	Model       string
	SourceField string
}

// HypertableSpec is @hypertable.
type HypertableSpec struct {
	spec
}

// TimescaleKeySpec is @timescale_key.
type TimescaleKeySpec struct {
	spec
}

// CubeSpec is @cube.
type CubeSpec struct {
	spec
}

// MeasurementSpec is @measurement. Funcs lists the aggregation functions
// allowed for the measurement; empty means the default set.
type MeasurementSpec struct {
	spec
	Funcs []string
}

// ReferencesSpec is @references, a composite-capable foreign key.
type ReferencesSpec struct {
	spec
	Name             string
	ReferencesName   string
	SourceFields     []string
	ReferencesFields []string
	Query            string
	ReferencesQuery  string
	IsUnique         bool
}

// FieldReferencesSpec is @field_references, a single-column foreign key.
type FieldReferencesSpec struct {
	spec
	ReferencesName  string
	Field           string
	Query           string
	ReferencesQuery string
	Name            string
}

// JoinSpec is @join, a raw SQL join template with [source.x] and [ref.y]
// placeholders. The target may live in another data source; key fields
// are then required so the join can be evaluated locally.
type JoinSpec struct {
	spec
	ReferencesName   string
	SQL              string
	SourceFields     []string
	ReferencesFields []string
}

// FunctionSpec is @function. Exactly one of SQL and HTTPPath is set.
type FunctionSpec struct {
	spec
	Name       string
	SQL        string
	HTTPMethod string
	HTTPPath   string
	JSONPath   string
	IsTable    bool
}

// FunctionCallSpec is @function_call: a per-row call into a function,
// with Args mapping function argument names to source field names.
type FunctionCallSpec struct {
	spec
	ReferencesName string
	Args           map[string]string
}

// TableFuncJoinSpec is @table_function_call_join.
type TableFuncJoinSpec struct {
	spec
	ReferencesName   string
	Args             map[string]string
	SourceFields     []string
	ReferencesFields []string
}

// ModuleSpec is @module.
type ModuleSpec struct {
	spec
	Name string
}

// CacheSpec is @cache.
type CacheSpec struct {
	spec
	TTL  time.Duration
	Key  string
	Tags []string
}

// NoCacheSpec is @no_cache.
type NoCacheSpec struct {
	spec
}

// InvalidateCacheSpec is @invalidate_cache.
type InvalidateCacheSpec struct {
	spec
}

// MeasurementDefaultFuncs is the aggregation set measurements allow when
// @measurement(func:) is not given.
var MeasurementDefaultFuncs = []string{"SUM", "AVG", "MIN", "MAX", "COUNT"}

// DecodeDirective turns one parsed directive into its spec variant.
func DecodeDirective(d *ast.Directive) (DirectiveSpec, error) {
	base := spec{Pos: d.Position}
	switch d.Name {
	case "table":
		s := &TableSpec{spec: base}
		s.Name = strArg(d, "name")
		s.IsM2M = boolArg(d, "is_m2m", false)
		s.SoftDelete = boolArg(d, "soft_delete", false)
		s.SoftDeleteCondition = strArg(d, "soft_delete_condition")
		s.SoftDeleteSet = strArg(d, "soft_delete_set")
		if s.Name == "" {
			return nil, errAt(d.Position, "@table requires name")
		}
		if s.SoftDelete && (s.SoftDeleteCondition == "" || s.SoftDeleteSet == "") {
			return nil, errAt(d.Position, "@table soft_delete requires soft_delete_condition and soft_delete_set")
		}
		return s, nil
	case "view":
		s := &ViewSpec{spec: base, Name: strArg(d, "name"), SQL: strArg(d, "sql")}
		if s.Name == "" {
			return nil, errAt(d.Position, "@view requires name")
		}
		return s, nil
	case "args":
		s := &ArgsSpec{spec: base, InputName: strArg(d, "name"), Required: boolArg(d, "required", false)}
		if s.InputName == "" {
			return nil, errAt(d.Position, "@args requires name")
		}
		return s, nil
	case "named":
		s := &NamedSpec{spec: base, Name: strArg(d, "name")}
		if s.Name == "" {
			return nil, errAt(d.Position, "@named requires name")
		}
		return s, nil
	case "pk":
		return &PKSpec{spec: base}, nil
	case "unique":
		s := &UniqueSpec{spec: base, Fields: strListArg(d, "fields"), QuerySuffix: strArg(d, "query_suffix")}
		if len(s.Fields) == 0 {
			return nil, errAt(d.Position, "@unique requires fields")
		}
		return s, nil
	case "sql":
		s := &SQLSpec{spec: base, Exp: strArg(d, "exp")}
		if s.Exp == "" {
			return nil, errAt(d.Position, "@sql requires exp")
		}
		return s, nil
	case "default":
		s := &DefaultSpec{spec: base}
		s.Value, s.HasValue = strArgOK(d, "value")
		s.Sequence = strArg(d, "sequence")
		s.InsertValue = strArg(d, "insert_value")
		s.UpdateValue = strArg(d, "update_value")
		if s.HasValue && s.Sequence != "" {
			return nil, errAt(d.Position, "@default accepts value or sequence, not both")
		}
		if !s.HasValue && s.Sequence == "" && s.InsertValue == "" && s.UpdateValue == "" {
			return nil, errAt(d.Position, "@default requires one of value, sequence, insert_value, update_value")
		}
		return s, nil
	case "field_source":
		s := &FieldSourceSpec{spec: base, Field: strArg(d, "field")}
		if s.Field == "" {
			return nil, errAt(d.Position, "@field_source requires field")
		}
		return s, nil
	case "geometry_info":
		s := &GeometryInfoSpec{spec: base, Type: strArg(d, "type"), SRID: intArg(d, "srid", 4326)}
		return s, nil
	case "filter_required":
		return &FilterRequiredSpec{spec: base}, nil
	case "dim":
		s := &DimSpec{spec: base, Size: intArg(d, "size", 0)}
		if s.Size <= 0 {
			return nil, errAt(d.Position, "@dim requires a positive size")
		}
		return s, nil
	case "embeddings":
		return &EmbeddingsSpec{spec: base, Model: strArg(d, "model"), SourceField: strArg(d, "source_field")}, nil
	case "hypertable":
		return &HypertableSpec{spec: base}, nil
	case "timescale_key":
		return &TimescaleKeySpec{spec: base}, nil
	case "cube":
		return &CubeSpec{spec: base}, nil
	case "measurement":
		s := &MeasurementSpec{spec: base, Funcs: strListArg(d, "func")}
		if len(s.Funcs) == 0 {
			s.Funcs = MeasurementDefaultFuncs
		}
		for _, fn := range s.Funcs {
			if !measurementFuncAllowed(fn) {
				return nil, errAt(d.Position, "@measurement func %q is not one of SUM, AVG, MIN, MAX, COUNT", fn)
			}
		}
		return s, nil
	case "references":
		s := &ReferencesSpec{
			spec:             base,
			Name:             strArg(d, "name"),
			ReferencesName:   strArg(d, "references_name"),
			SourceFields:     strListArg(d, "source_fields"),
			ReferencesFields: strListArg(d, "references_fields"),
			Query:            strArg(d, "query"),
			ReferencesQuery:  strArg(d, "references_query"),
			IsUnique:         boolArg(d, "is_unique", false),
		}
		if s.ReferencesName == "" {
			return nil, errAt(d.Position, "@references requires references_name")
		}
		if len(s.SourceFields) == 0 || len(s.SourceFields) != len(s.ReferencesFields) {
			return nil, errAt(d.Position, "@references requires matching source_fields and references_fields")
		}
		return s, nil
	case "field_references":
		s := &FieldReferencesSpec{
			spec:            base,
			ReferencesName:  strArg(d, "references_name"),
			Field:           strArg(d, "field"),
			Query:           strArg(d, "query"),
			ReferencesQuery: strArg(d, "references_query"),
			Name:            strArg(d, "name"),
		}
		if s.ReferencesName == "" {
			return nil, errAt(d.Position, "@field_references requires references_name")
		}
		return s, nil
	case "join":
		s := &JoinSpec{
			spec:             base,
			ReferencesName:   strArg(d, "references_name"),
			SQL:              strArg(d, "sql"),
			SourceFields:     strListArg(d, "source_fields"),
			ReferencesFields: strListArg(d, "references_fields"),
		}
		if s.ReferencesName == "" || s.SQL == "" {
			return nil, errAt(d.Position, "@join requires references_name and sql")
		}
		return s, nil
	case "function":
		s := &FunctionSpec{
			spec:       base,
			Name:       strArg(d, "name"),
			SQL:        strArg(d, "sql"),
			HTTPMethod: strArg(d, "http_method"),
			HTTPPath:   strArg(d, "http_path"),
			JSONPath:   strArg(d, "json_path"),
			IsTable:    boolArg(d, "is_table", false),
		}
		if s.Name == "" {
			return nil, errAt(d.Position, "@function requires name")
		}
		if (s.SQL == "") == (s.HTTPPath == "") {
			return nil, errAt(d.Position, "@function requires exactly one of sql and http_path")
		}
		return s, nil
	case "function_call":
		args, err := strMapArg(d, "args")
		if err != nil {
			return nil, err
		}
		s := &FunctionCallSpec{spec: base, ReferencesName: strArg(d, "references_name"), Args: args}
		if s.ReferencesName == "" {
			return nil, errAt(d.Position, "@function_call requires references_name")
		}
		return s, nil
	case "table_function_call_join":
		args, err := strMapArg(d, "args")
		if err != nil {
			return nil, err
		}
		s := &TableFuncJoinSpec{
			spec:             base,
			ReferencesName:   strArg(d, "references_name"),
			Args:             args,
			SourceFields:     strListArg(d, "source_fields"),
			ReferencesFields: strListArg(d, "references_fields"),
		}
		if s.ReferencesName == "" {
			return nil, errAt(d.Position, "@table_function_call_join requires references_name")
		}
		return s, nil
	case "module":
		s := &ModuleSpec{spec: base, Name: strArg(d, "name")}
		if s.Name == "" {
			return nil, errAt(d.Position, "@module requires name")
		}
		return s, nil
	case "cache":
		ttl := intArg(d, "ttl", 0)
		if ttl <= 0 {
			return nil, errAt(d.Position, "@cache requires a positive ttl in seconds")
		}
		return &CacheSpec{
			spec: base,
			TTL:  time.Duration(ttl) * time.Second,
			Key:  strArg(d, "key"),
			Tags: strListArg(d, "tags"),
		}, nil
	case "no_cache":
		return &NoCacheSpec{spec: base}, nil
	case "invalidate_cache":
		return &InvalidateCacheSpec{spec: base}, nil
	default:
		return nil, errAt(d.Position, "unknown directive @%s", d.Name)
	}
}

func measurementFuncAllowed(fn string) bool {
	for _, allowed := range MeasurementDefaultFuncs {
		if fn == allowed {
			return true
		}
	}
	return false
}

func errAt(pos *ast.Position, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if pos != nil && pos.Src != nil {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition, "%s:%d: %s", pos.Src.Name, pos.Line, msg)
	}
	return lterrors.New(lterrors.CodeSchemaDefinition, msg)
}

func argValue(d *ast.Directive, name string) (any, bool) {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return nil, false
	}
	v, err := arg.Value.Value(nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

func strArg(d *ast.Directive, name string) string {
	s, _ := strArgOK(d, name)
	return s
}

func strArgOK(d *ast.Directive, name string) (string, bool) {
	v, ok := argValue(d, name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolArg(d *ast.Directive, name string, def bool) bool {
	v, ok := argValue(d, name)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func intArg(d *ast.Directive, name string, def int64) int64 {
	v, ok := argValue(d, name)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return def
	}
}

func strListArg(d *ast.Directive, name string) []string {
	v, ok := argValue(d, name)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func strMapArg(d *ast.Directive, name string) (map[string]string, error) {
	v, ok := argValue(d, name)
	if !ok {
		return nil, errAt(d.Position, "@%s requires %s", d.Name, name)
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, errAt(d.Position, "@%s %s must be an object of field names", d.Name, name)
	}
	out := make(map[string]string, len(raw))
	for k, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, errAt(d.Position, "@%s %s.%s must be a string", d.Name, name, k)
		}
		out[k] = s
	}
	return out, nil
}
