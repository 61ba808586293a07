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

package engine

import (
	"context"
	"regexp"
	"strings"

	"github.com/latticeio/lattice/go/lt/geo"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// Filter evaluates a filter map against every input row and keeps the
// matches. It carries the same vocabulary the SQL generator pushes
// down and the same three-valued logic: a comparison against null is
// unknown, unknown never matches, and _not of unknown stays unknown.
// A plan that falls back to local evaluation filters identically to
// its pushed-down form.
type Filter struct {
	Input     Primitive
	Predicate map[string]any
}

var _ Primitive = (*Filter)(nil)

// Execute implements Primitive.
func (f *Filter) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	input, err := f.Input.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}
	pred, _ := resolveDeep(ec, f.Predicate).(map[string]any)
	ev := newFilterEval(input.Fields)
	out := &rowset.Result{Fields: input.Fields}
	for _, row := range input.Rows {
		t, err := ev.matches(pred, row)
		if err != nil {
			return nil, err
		}
		if t == truthTrue {
			out.AppendRow(row)
		}
	}
	return out, nil
}

// Description implements Primitive.
func (f *Filter) Description() PrimitiveDescription {
	return PrimitiveDescription{
		OperatorType: "Filter",
		Other:        map[string]any{"Predicate": f.Predicate},
		Inputs:       []PrimitiveDescription{f.Input.Description()},
	}
}

// resolveDeep substitutes BindVar placeholders anywhere inside a
// nested filter or argument value.
func resolveDeep(ec *ExecContext, v any) any {
	switch t := v.(type) {
	case BindVar:
		return ec.Variables[t.Name]
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = resolveDeep(ec, val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = resolveDeep(ec, val)
		}
		return out
	default:
		return v
	}
}

// truth is a SQL boolean: true, false, or unknown.
type truth int8

const (
	truthFalse truth = iota
	truthTrue
	truthUnknown
)

func truthOf(b bool) truth {
	if b {
		return truthTrue
	}
	return truthFalse
}

func (t truth) not() truth {
	switch t {
	case truthTrue:
		return truthFalse
	case truthFalse:
		return truthTrue
	}
	return truthUnknown
}

func and3(a, b truth) truth {
	if a == truthFalse || b == truthFalse {
		return truthFalse
	}
	if a == truthUnknown || b == truthUnknown {
		return truthUnknown
	}
	return truthTrue
}

func or3(a, b truth) truth {
	if a == truthTrue || b == truthTrue {
		return truthTrue
	}
	if a == truthUnknown || b == truthUnknown {
		return truthUnknown
	}
	return truthFalse
}

type filterEval struct {
	fields []rowset.Field
	index  map[string]int
	// Compiled like and regex patterns, reused across rows.
	regexps map[string]*regexp.Regexp
}

func newFilterEval(fields []rowset.Field) *filterEval {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Name] = i
	}
	return &filterEval{fields: fields, index: index, regexps: make(map[string]*regexp.Regexp)}
}

// matches evaluates one filter level. Sibling keys combine with AND.
func (e *filterEval) matches(pred map[string]any, row rowset.Row) (truth, error) {
	result := truthTrue
	for key, val := range pred {
		var t truth
		var err error
		switch key {
		case "_and":
			t, err = e.combine(key, val, row, and3, truthTrue)
		case "_or":
			t, err = e.combine(key, val, row, or3, truthFalse)
		case "_not":
			m, ok := val.(map[string]any)
			if !ok {
				return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "_not expects a filter")
			}
			t, err = e.matches(m, row)
			t = t.not()
		default:
			ops, ok := val.(map[string]any)
			if !ok {
				return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "filter on %q expects an operator map", key)
			}
			col, found := e.index[key]
			if !found {
				return truthFalse, lterrors.Errorf(lterrors.CodeExecution, "filter column %q missing from input", key)
			}
			t, err = e.columnMatches(e.fields[col], row[col], ops)
		}
		if err != nil {
			return truthFalse, err
		}
		result = and3(result, t)
		if result == truthFalse {
			return truthFalse, nil
		}
	}
	return result, nil
}

func (e *filterEval) combine(name string, val any, row rowset.Row, merge func(truth, truth) truth, identity truth) (truth, error) {
	subs, ok := val.([]any)
	if !ok {
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "%s expects a list of filters", name)
	}
	result := identity
	for _, sub := range subs {
		m, ok := sub.(map[string]any)
		if !ok {
			return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "%s expects a list of filters", name)
		}
		t, err := e.matches(m, row)
		if err != nil {
			return truthFalse, err
		}
		result = merge(result, t)
	}
	return result, nil
}

func (e *filterEval) columnMatches(field rowset.Field, cell any, ops map[string]any) (truth, error) {
	result := truthTrue
	for op, operand := range ops {
		t, err := e.applyOp(field, cell, op, operand)
		if err != nil {
			return truthFalse, err
		}
		result = and3(result, t)
		if result == truthFalse {
			return truthFalse, nil
		}
	}
	return result, nil
}

func (e *filterEval) applyOp(field rowset.Field, cell any, op string, operand any) (truth, error) {
	if field.Type == rowset.Geometry && op != "is_null" {
		return e.geoOp(field, cell, op, operand)
	}
	if field.List && op != "is_null" {
		return e.listOp(field, cell, op, operand)
	}
	switch op {
	case "is_null":
		want, ok := operand.(bool)
		if !ok {
			return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "is_null on %q expects a boolean", field.Name)
		}
		return truthOf((cell == nil) == want), nil
	case "eq":
		return e.compare(field, cell, operand, func(c int) bool { return c == 0 })
	case "gt":
		return e.compare(field, cell, operand, func(c int) bool { return c > 0 })
	case "gte":
		return e.compare(field, cell, operand, func(c int) bool { return c >= 0 })
	case "lt":
		return e.compare(field, cell, operand, func(c int) bool { return c < 0 })
	case "lte":
		return e.compare(field, cell, operand, func(c int) bool { return c <= 0 })
	case "in":
		elems, ok := operand.([]any)
		if !ok {
			return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "in on %q expects a list", field.Name)
		}
		// IN is a chained OR: a match wins, a null anywhere else
		// leaves the result unknown.
		result := truthFalse
		for _, elem := range elems {
			t, err := e.compare(field, cell, elem, func(c int) bool { return c == 0 })
			if err != nil {
				return truthFalse, err
			}
			result = or3(result, t)
			if result == truthTrue {
				return truthTrue, nil
			}
		}
		return result, nil
	case "like":
		return e.patternMatch(field, cell, operand, false)
	case "ilike":
		return e.patternMatch(field, cell, operand, true)
	case "regex":
		pattern, ok := operand.(string)
		if !ok {
			return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "regex on %q expects a string", field.Name)
		}
		if cell == nil {
			return truthUnknown, nil
		}
		s, ok := cell.(string)
		if !ok {
			return truthFalse, nil
		}
		re, err := e.compile(pattern)
		if err != nil {
			return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "invalid regex on %q: %v", field.Name, err)
		}
		return truthOf(re.MatchString(s)), nil
	default:
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "operator %q not supported on %q", op, field.Name)
	}
}

// compare coerces the operand to the column type and compares. Null on
// either side is unknown, never a match.
func (e *filterEval) compare(field rowset.Field, cell, operand any, test func(int) bool) (truth, error) {
	if cell == nil || operand == nil {
		return truthUnknown, nil
	}
	coerced, err := rowset.CoerceValue(field.Type, false, operand)
	if err != nil {
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot compare %q: %v", field.Name, err)
	}
	c, err := rowset.NullsafeCompare(cell, coerced)
	if err != nil {
		return truthFalse, lterrors.Errorf(lterrors.CodeExecution, "cannot compare %q: %v", field.Name, err)
	}
	return truthOf(test(c)), nil
}

func (e *filterEval) patternMatch(field rowset.Field, cell, operand any, caseInsensitive bool) (truth, error) {
	pattern, ok := operand.(string)
	if !ok {
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "pattern on %q expects a string", field.Name)
	}
	if cell == nil {
		return truthUnknown, nil
	}
	s, ok := cell.(string)
	if !ok {
		return truthFalse, nil
	}
	re, err := e.compile(likeToRegexp(pattern, caseInsensitive))
	if err != nil {
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "invalid pattern on %q: %v", field.Name, err)
	}
	return truthOf(re.MatchString(s)), nil
}

func (e *filterEval) listOp(field rowset.Field, cell any, op string, operand any) (truth, error) {
	if cell == nil {
		if op == "eq" || op == "contains" || op == "intersects" {
			return truthUnknown, nil
		}
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "operator %q not supported on array %q", op, field.Name)
	}
	list, _ := cell.([]any)
	want, ok := operand.([]any)
	if !ok {
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "%s on %q expects a list", op, field.Name)
	}
	switch op {
	case "eq":
		if len(list) != len(want) {
			return truthFalse, nil
		}
		for i, elem := range want {
			matched, err := e.elemEqual(field, list[i], elem)
			if err != nil {
				return truthFalse, err
			}
			if !matched {
				return truthFalse, nil
			}
		}
		return truthTrue, nil
	case "contains":
		for _, elem := range want {
			found, err := e.listHas(field, list, elem)
			if err != nil {
				return truthFalse, err
			}
			if !found {
				return truthFalse, nil
			}
		}
		return truthTrue, nil
	case "intersects":
		for _, elem := range want {
			found, err := e.listHas(field, list, elem)
			if err != nil {
				return truthFalse, err
			}
			if found {
				return truthTrue, nil
			}
		}
		return truthFalse, nil
	default:
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "operator %q not supported on array %q", op, field.Name)
	}
}

func (e *filterEval) listHas(field rowset.Field, list []any, elem any) (bool, error) {
	for _, have := range list {
		matched, err := e.elemEqual(field, have, elem)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// elemEqual compares array elements. Null elements compare equal, the
// distinct-style comparison array operators use.
func (e *filterEval) elemEqual(field rowset.Field, have, want any) (bool, error) {
	if have == nil || want == nil {
		return have == nil && want == nil, nil
	}
	coerced, err := rowset.CoerceValue(field.Type, false, want)
	if err != nil {
		return false, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot compare %q: %v", field.Name, err)
	}
	c, err := rowset.NullsafeCompare(have, coerced)
	if err != nil {
		return false, lterrors.Errorf(lterrors.CodeExecution, "cannot compare %q: %v", field.Name, err)
	}
	return c == 0, nil
}

func (e *filterEval) geoOp(field rowset.Field, cell any, op string, operand any) (truth, error) {
	var gop geo.Op
	switch op {
	case "intersects":
		gop = geo.OpIntersects
	case "contains":
		gop = geo.OpContains
	case "within":
		gop = geo.OpWithin
	default:
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "operator %q not supported on geometry %q", op, field.Name)
	}
	operandMap, ok := operand.(map[string]any)
	if !ok {
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "geometry filter on %q expects a GeoJSON object", field.Name)
	}
	arg, err := geo.Parse(operandMap)
	if err != nil {
		return truthFalse, lterrors.Errorf(lterrors.CodeQueryValidation, "geometry filter on %q: %v", field.Name, err)
	}
	if cell == nil {
		return truthUnknown, nil
	}
	g := parseGeometryCell(cell)
	if g == nil {
		return truthUnknown, nil
	}
	return truthOf(geo.Eval(gop, g, arg, 0)), nil
}

func (e *filterEval) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := e.regexps[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.regexps[pattern] = re
	return re, nil
}

// likeToRegexp translates a SQL LIKE pattern: % matches any run, _
// matches one character, everything else is literal.
func likeToRegexp(pattern string, caseInsensitive bool) string {
	var b strings.Builder
	if caseInsensitive {
		b.WriteString("(?i)")
	}
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}
