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

package sqlgen

import (
	"strings"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// FunctionDef invokes a declared function with user arguments.
type FunctionDef struct {
	Function catalog.FunctionID
	Args     map[string]any
}

// ScalarResultColumn names the single column a scalar function call
// returns its value under.
const ScalarResultColumn = "_result"

// FunctionCall synthesizes a statement invoking a SQL function. HTTP
// functions never reach SQL; the planner routes them to their adapter.
func (b *Builder) FunctionCall(def *FunctionDef) (*Query, error) {
	b.aliases = 0
	fn := b.cat.Function(def.Function)
	if fn.Kind != catalog.SQLFunction {
		return nil, lterrors.Wrapf(ErrUnsupported, "function %s is not SQL backed", fn.Name)
	}

	expr, args, err := b.functionExpr(fn, func(arg *catalog.FunctionArg) (string, []any, error) {
		if v, ok := def.Args[arg.Name]; ok {
			return b.argValue(arg, v)
		}
		return b.argDefault(fn, arg)
	})
	if err != nil {
		return nil, err
	}

	var s stmt
	switch {
	case isStatement(expr):
		s.frag(expr, args...)
	case fn.IsTable:
		s.raw("SELECT * FROM ")
		s.frag(expr, args...)
		s.raw(" AS " + b.d.QuoteIdentifier("_f"))
	default:
		s.raw("SELECT ")
		s.frag(expr, args...)
		s.raw(" AS " + b.d.QuoteIdentifier(ScalarResultColumn))
	}
	return s.finish(b.d)
}

// callExpr inlines a scalar function call relation as an expression
// over the outer row. Source-bound arguments resolve to column
// expressions, the rest bind.
func (b *Builder) callExpr(sc *scope, cc *CallColumn) (string, []any, error) {
	r := b.cat.Relation(cc.Relation)
	if r.Kind != catalog.FuncCallRelation || r.FuncCall == nil {
		return "", nil, lterrors.Errorf(lterrors.CodePlanning, "relation %s is not a function call", r.Name)
	}
	fn := b.cat.Function(r.FuncCall.Function)
	if fn.Kind != catalog.SQLFunction {
		return "", nil, lterrors.Wrapf(ErrUnsupported, "function %s is not SQL backed", fn.Name)
	}
	if fn.IsTable || fn.ReturnObject != catalog.NoObject {
		return "", nil, lterrors.Wrapf(ErrUnsupported, "function %s returns rows and cannot inline", fn.Name)
	}

	expr, args, err := b.functionExpr(fn, func(arg *catalog.FunctionArg) (string, []any, error) {
		if srcName, ok := r.FuncCall.Args[arg.Name]; ok {
			f := sc.obj.Field(srcName)
			if f == nil || !f.IsScalar() {
				return "", nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
					"function %s binds argument %s to unknown field %s.%s", fn.Name, arg.Name, sc.obj.Name, srcName)
			}
			return b.fieldExpr(sc, f)
		}
		if v, ok := cc.Args[arg.Name]; ok {
			return b.argValue(arg, v)
		}
		return b.argDefault(fn, arg)
	})
	if err != nil {
		return "", nil, err
	}
	return "(" + expr + ")", args, nil
}

// functionExpr expands the argument placeholders of a call template
// through the given binder. $phys matches the physical parameter name,
// [$args.x] the declared argument name; unmatched tokens pass through.
func (b *Builder) functionExpr(fn *catalog.Function, bind func(*catalog.FunctionArg) (string, []any, error)) (string, []any, error) {
	tmpl := fn.SQL
	var out strings.Builder
	var args []any
	emit := func(arg *catalog.FunctionArg) error {
		expr, eargs, err := bind(arg)
		if err != nil {
			return err
		}
		out.WriteString(expr)
		args = append(args, eargs...)
		return nil
	}
	for i := 0; i < len(tmpl); {
		switch tmpl[i] {
		case '$':
			j := i + 1
			for j < len(tmpl) && identByte(tmpl[j]) {
				j++
			}
			arg := argByPhysical(fn, tmpl[i+1:j])
			if arg == nil {
				out.WriteByte('$')
				i++
				continue
			}
			if err := emit(arg); err != nil {
				return "", nil, err
			}
			i = j
		case '[':
			end := strings.IndexByte(tmpl[i:], ']')
			ref := ""
			if end >= 0 {
				ref = tmpl[i+1 : i+end]
			}
			name, isArg := strings.CutPrefix(ref, "$args.")
			arg := fn.Arg(name)
			if !isArg || arg == nil {
				out.WriteByte('[')
				i++
				continue
			}
			if err := emit(arg); err != nil {
				return "", nil, err
			}
			i += end + 1
		default:
			out.WriteByte(tmpl[i])
			i++
		}
	}
	return out.String(), args, nil
}

func argByPhysical(fn *catalog.Function, token string) *catalog.FunctionArg {
	if token == "" {
		return nil
	}
	for i := range fn.Args {
		a := &fn.Args[i]
		phys := a.Physical
		if phys == "" {
			phys = a.Name
		}
		if phys == token {
			return a
		}
	}
	return nil
}

func (b *Builder) argValue(arg *catalog.FunctionArg, v any) (string, []any, error) {
	if v == nil {
		return "?", []any{nil}, nil
	}
	if arg.Scalar == rowset.Geometry && !arg.List {
		text, err := geoJSONText(v)
		if err != nil {
			return "", nil, err
		}
		expr, eargs := b.d.GeometryValue(text, 0)
		return expr, eargs, nil
	}
	if arg.List {
		items, ok := v.([]any)
		if !ok {
			return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation, "argument %s expects a list value", arg.Name)
		}
		bound, err := b.d.BindList(items)
		if err != nil {
			return "", nil, err
		}
		return "?", []any{bound}, nil
	}
	return "?", []any{v}, nil
}

func (b *Builder) argDefault(fn *catalog.Function, arg *catalog.FunctionArg) (string, []any, error) {
	if arg.Default != nil {
		v, err := arg.Default.Value(nil)
		if err != nil {
			return "", nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"default of argument %s on function %s does not resolve: %v", arg.Name, fn.Name, err)
		}
		return b.argValue(arg, v)
	}
	if arg.Required {
		return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation,
			"function %s requires argument %s", fn.Name, arg.Name)
	}
	return "?", []any{nil}, nil
}

func identByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isStatement(expr string) bool {
	head := strings.ToUpper(strings.TrimSpace(expr))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}
