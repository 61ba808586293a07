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

package planner

import (
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/engine"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sqlgen"
)

// value materializes one literal. Variable references resolve against
// the request's coerced variable values and mark the plan single-use.
func (p *planner) value(v *ast.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.Kind {
	case ast.Variable:
		p.usesVars = true
		return p.vars[v.Raw], nil
	case ast.IntValue:
		n, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "bad integer literal %q", v.Raw)
		}
		return n, nil
	case ast.FloatValue:
		f, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "bad float literal %q", v.Raw)
		}
		return f, nil
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw, nil
	case ast.BooleanValue:
		return v.Raw == "true", nil
	case ast.NullValue:
		return nil, nil
	case ast.ListValue:
		out := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			cv, err := p.value(c.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	case ast.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			cv, err := p.value(c.Value)
			if err != nil {
				return nil, err
			}
			out[c.Name] = cv
		}
		return out, nil
	}
	return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unsupported literal kind %d", v.Kind)
}

// bindableOps lists the filter operators whose comparison value passes
// opaquely into native query arguments. A variable under one of these
// stays a request-time placeholder instead of pinning the plan.
// Operators whose values the generators must inspect at plan time — in
// list arity, is_null, regex validation, geometry shapes — always
// materialize.
var bindableOps = map[string]bool{
	"eq":    true,
	"gt":    true,
	"gte":   true,
	"lt":    true,
	"lte":   true,
	"like":  true,
	"ilike": true,
}

// filterValue materializes a filter argument like value does, but a
// non-null variable sitting directly under a bindable operator becomes
// a deferred placeholder. op names the operator key the value sits
// under; the empty string means none.
func (p *planner) filterValue(v *ast.Value, op string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.Kind {
	case ast.Variable:
		if bindableOps[op] {
			// A null variable falls through to materialization: null
			// comparisons compile to IS NULL at plan time, which a
			// placeholder cannot express.
			if val, ok := p.vars[v.Raw]; ok && val != nil {
				return engine.BindVar{Name: v.Raw}, nil
			}
		}
		return p.value(v)
	case ast.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			cv, err := p.filterValue(c.Value, c.Name)
			if err != nil {
				return nil, err
			}
			out[c.Name] = cv
		}
		return out, nil
	case ast.ListValue:
		out := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			cv, err := p.filterValue(c.Value, "")
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	}
	return p.value(v)
}

// filterArg resolves the filter-shaped argument of a field with
// deferrable variable leaves. Defaults apply like argValue.
func (p *planner) filterArg(f *ast.Field, name string) (any, bool, error) {
	for _, a := range f.Arguments {
		if a.Name == name {
			v, err := p.filterValue(a.Value, "")
			if err != nil {
				return nil, false, err
			}
			if v == nil {
				return nil, false, nil
			}
			return v, true, nil
		}
	}
	return p.argValue(f, name)
}

// bindableArg resolves a key argument of a by_pk or unique lookup. The
// value compiles into an equality, which passes opaquely, so a non-null
// variable defers the same way filterValue defers one under eq.
func (p *planner) bindableArg(f *ast.Field, name string) (any, bool, error) {
	for _, a := range f.Arguments {
		if a.Name == name && a.Value != nil && a.Value.Kind == ast.Variable {
			if val, ok := p.vars[a.Value.Raw]; ok && val != nil {
				return engine.BindVar{Name: a.Value.Raw}, true, nil
			}
		}
	}
	return p.argValue(f, name)
}

// argValue resolves a field argument: the provided value, or the
// declared default. The second result reports presence.
func (p *planner) argValue(f *ast.Field, name string) (any, bool, error) {
	for _, a := range f.Arguments {
		if a.Name == name {
			v, err := p.value(a.Value)
			if err != nil {
				return nil, false, err
			}
			// An explicit null and an unset variable both read as
			// absent, so defaults still apply.
			if v == nil {
				return nil, false, nil
			}
			return v, true, nil
		}
	}
	if f.Definition != nil {
		if def := f.Definition.Arguments.ForName(name); def != nil && def.DefaultValue != nil {
			v, err := p.value(def.DefaultValue)
			if err != nil {
				return nil, false, err
			}
			return v, v != nil, nil
		}
	}
	return nil, false, nil
}

// readArgs carries the select-shaped arguments of a read field.
type readArgs struct {
	filter      map[string]any
	orderBy     []sqlgen.OrderBy
	limit       int64
	offset      int64
	distinctOn  []string
	viewArgs    map[string]any
	inner       bool
	withDeleted bool
}

// readArgsOf extracts the select argument set of a field. Absent limit
// and offset read as zero, which downstream stages treat as unset.
func (p *planner) readArgsOf(f *ast.Field) (readArgs, error) {
	var ra readArgs
	var err error

	if v, ok, e := p.filterArg(f, "filter"); e != nil {
		return ra, e
	} else if ok {
		ra.filter, err = toFilterMap(v, f.Name)
		if err != nil {
			return ra, err
		}
	}
	if v, ok, e := p.argValue(f, "order_by"); e != nil {
		return ra, e
	} else if ok {
		ra.orderBy, err = toOrderBy(v, f.Name)
		if err != nil {
			return ra, err
		}
	}
	if v, ok, e := p.argValue(f, "limit"); e != nil {
		return ra, e
	} else if ok {
		ra.limit, err = toInt64(v, "limit")
		if err != nil {
			return ra, err
		}
	}
	if v, ok, e := p.argValue(f, "offset"); e != nil {
		return ra, e
	} else if ok {
		ra.offset, err = toInt64(v, "offset")
		if err != nil {
			return ra, err
		}
	}
	if v, ok, e := p.argValue(f, "distinct_on"); e != nil {
		return ra, e
	} else if ok {
		ra.distinctOn, err = toStringList(v, "distinct_on")
		if err != nil {
			return ra, err
		}
	}
	if v, ok, e := p.argValue(f, "args"); e != nil {
		return ra, e
	} else if ok {
		ra.viewArgs, err = toFilterMap(v, "args")
		if err != nil {
			return ra, err
		}
	}
	if v, ok, e := p.argValue(f, "inner"); e != nil {
		return ra, e
	} else if ok {
		ra.inner, err = toBool(v, "inner")
		if err != nil {
			return ra, err
		}
	}
	ra.withDeleted = hasDirective(f.Directives, "with_deleted")
	return ra, nil
}

func toFilterMap(v any, arg string) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "argument %s expects an object value", arg)
	}
	return m, nil
}

func toOrderBy(v any, field string) ([]sqlgen.OrderBy, error) {
	items, ok := v.([]any)
	if !ok {
		if m, one := v.(map[string]any); one {
			items = []any{m}
		} else {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "order_by on %s expects a list", field)
		}
	}
	out := make([]sqlgen.OrderBy, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "order_by on %s expects {field, direction} terms", field)
		}
		name, err := toString(m["field"], "order_by.field")
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if d, present := m["direction"]; present && d != nil {
			dir, err = toString(d, "order_by.direction")
			if err != nil {
				return nil, err
			}
		}
		out = append(out, sqlgen.OrderBy{Field: name, Direction: dir})
	}
	return out, nil
}

func toInt64(v any, arg string) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err == nil {
			return parsed, nil
		}
	}
	return 0, lterrors.Errorf(lterrors.CodeQueryValidation, "argument %s expects an integer", arg)
}

func toFloat64(v any, arg string) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	}
	return 0, lterrors.Errorf(lterrors.CodeQueryValidation, "argument %s expects a number", arg)
}

func toBool(v any, arg string) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, lterrors.Errorf(lterrors.CodeQueryValidation, "argument %s expects a boolean", arg)
	}
	return b, nil
}

func toString(v any, arg string) (string, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", lterrors.Errorf(lterrors.CodeQueryValidation, "argument %s expects a non-empty string", arg)
	}
	return s, nil
}

func toStringList(v any, arg string) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		if s, one := v.(string); one {
			return []string{s}, nil
		}
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "argument %s expects a list of strings", arg)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := toString(item, arg)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// toRowList coerces a data argument into mutation rows.
func toRowList(v any, arg string) ([]map[string]any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "argument %s expects a list of objects", arg)
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "argument %s expects a list of objects", arg)
		}
		out = append(out, m)
	}
	return out, nil
}
