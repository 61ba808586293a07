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

// Package sqlgen synthesizes native SQL for pushdown subtrees.
//
// The planner hands it declarative statement definitions: selects with
// nested relation columns, aggregations, bucket groupings, mutations and
// function calls. Filters compile to squirrel predicates. The pieces
// squirrel cannot express, correlated JSON subqueries and FROM clauses
// with bound view arguments, are assembled directly and rebound to the
// dialect's placeholder format at the end, the same way batched queries
// fall back to manual assembly elsewhere in the engine.
//
// All generated text is deterministic for a given definition: map-shaped
// inputs are walked in sorted key order and table aliases are numbered in
// visit order. Plan caching relies on that.
package sqlgen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
)

// maxRefDepth bounds nested [field] expansion through calculated fields.
const maxRefDepth = 10

// ErrUnsupported marks constructs the dialect cannot push down. The
// planner treats it as a signal to fall back to local execution rather
// than fail the request.
var ErrUnsupported = lterrors.New(lterrors.CodePlanning, "construct is not supported by the dialect")

// Query is one synthesized native statement with bound arguments.
type Query struct {
	SQL  string
	Args []any
}

// Options carries per-request inputs that cut across statements.
type Options struct {
	// RowFilters maps objects to role row filters in the query filter
	// vocabulary. A filter is ANDed into every read of its object,
	// joins, mutations and filter subqueries included.
	RowFilters map[catalog.ObjectID]map[string]any
}

// Builder synthesizes statements against one catalog and one dialect.
// Builders are cheap; the planner creates one per request.
type Builder struct {
	d    Dialect
	cat  *catalog.Catalog
	opts Options

	aliases int
	inGuard map[catalog.ObjectID]bool
}

// New returns a Builder for the given dialect and catalog.
func New(d Dialect, cat *catalog.Catalog, opts Options) *Builder {
	return &Builder{d: d, cat: cat, opts: opts}
}

func (b *Builder) nextAlias() string {
	a := fmt.Sprintf("t%d", b.aliases)
	b.aliases++
	return a
}

// scope resolves field references while one table's expressions are
// assembled.
type scope struct {
	obj   *catalog.DataObject
	alias string
	// args binds [$args.x] references of parameterized views.
	args map[string]any
	// preagg marks cube pre-aggregation output: columns carry field
	// names instead of source column names.
	preagg bool
}

// colName is the physical identifier a field reads from in this scope.
func (sc *scope) colName(f *catalog.Field) string {
	if sc.preagg {
		return f.Name
	}
	return f.Column()
}

// col renders an alias-qualified, quoted column reference.
func (b *Builder) col(sc *scope, name string) string {
	if sc.alias == "" {
		return b.d.QuoteIdentifier(name)
	}
	return sc.alias + "." + b.d.QuoteIdentifier(name)
}

// fieldExpr renders the value expression of a scalar or calculated
// field. Calculated fields expand recursively up to maxRefDepth.
func (b *Builder) fieldExpr(sc *scope, f *catalog.Field) (string, []any, error) {
	return b.fieldExprDepth(sc, f, 0)
}

func (b *Builder) fieldExprDepth(sc *scope, f *catalog.Field, depth int) (string, []any, error) {
	// Pre-aggregation output already materialized calculated fields
	// under their own names.
	if f.SQLExpr != "" && !sc.preagg {
		if depth >= maxRefDepth {
			return "", nil, lterrors.Errorf(lterrors.CodePlanning,
				"calculated field %s.%s: reference cycle or nesting past %d levels",
				sc.obj.Name, f.Name, maxRefDepth)
		}
		expr, args, err := b.expandTemplate(sc, f.SQLExpr, depth+1)
		if err != nil {
			return "", nil, err
		}
		return "(" + expr + ")", args, nil
	}
	return b.col(sc, sc.colName(f)), nil, nil
}

// expandTemplate substitutes [field] and [$args.x] references in a raw
// SQL fragment. [field] resolves against the scope's object; bracketed
// text that names no scalar field passes through verbatim, so array
// subscripts survive. [$args.x] binds the named view argument, NULL when
// unset.
func (b *Builder) expandTemplate(sc *scope, tmpl string, depth int) (string, []any, error) {
	var out strings.Builder
	var args []any
	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		if c != '[' {
			out.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i:], ']')
		if end < 0 {
			out.WriteString(tmpl[i:])
			break
		}
		ref := tmpl[i+1 : i+end]
		i += end + 1
		if name, ok := strings.CutPrefix(ref, "$args."); ok {
			out.WriteByte('?')
			args = append(args, sc.args[name])
			continue
		}
		f := sc.obj.Field(ref)
		if f == nil || !f.IsScalar() || b.isCallField(f) {
			out.WriteString("[" + ref + "]")
			continue
		}
		expr, fargs, err := b.fieldExprDepth(sc, f, depth)
		if err != nil {
			return "", nil, err
		}
		out.WriteString(expr)
		args = append(args, fargs...)
	}
	return out.String(), args, nil
}

// expandViewSQL substitutes view-argument placeholders in a view body.
// Both spellings bind: $phys by physical parameter name and [$args.x]
// by argument name. Bare [field] names describe output columns, nothing
// resolvable inside the body, and pass through.
func expandViewSQL(tmpl string, spec *catalog.ViewArgs, bound map[string]any) (string, []any) {
	byPhys := map[string]string{}
	if spec != nil {
		for name, phys := range spec.Args {
			if phys == "" {
				phys = name
			}
			byPhys[phys] = name
		}
	}
	var out strings.Builder
	var args []any
	for i := 0; i < len(tmpl); {
		switch tmpl[i] {
		case '[':
			end := strings.IndexByte(tmpl[i:], ']')
			if end < 0 {
				out.WriteString(tmpl[i:])
				return out.String(), args
			}
			ref := tmpl[i+1 : i+end]
			i += end + 1
			if name, ok := strings.CutPrefix(ref, "$args."); ok {
				out.WriteByte('?')
				args = append(args, bound[name])
				continue
			}
			out.WriteString("[" + ref + "]")
		case '$':
			j := i + 1
			for j < len(tmpl) && identByte(tmpl[j]) {
				j++
			}
			name, ok := byPhys[tmpl[i+1:j]]
			if !ok {
				out.WriteByte('$')
				i++
				continue
			}
			out.WriteByte('?')
			args = append(args, bound[name])
			i = j
		default:
			out.WriteByte(tmpl[i])
			i++
		}
	}
	return out.String(), args
}

// expandJoinTemplate substitutes [source.x] and [ref.x] references of a
// raw join condition against the declaring and referenced sides.
func (b *Builder) expandJoinTemplate(tmpl string, src, ref *scope) (string, []any, error) {
	var out strings.Builder
	var args []any
	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		if c != '[' {
			out.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i:], ']')
		if end < 0 {
			out.WriteString(tmpl[i:])
			break
		}
		token := tmpl[i+1 : i+end]
		i += end + 1

		var sc *scope
		var name string
		switch {
		case strings.HasPrefix(token, "source."):
			sc, name = src, strings.TrimPrefix(token, "source.")
		case strings.HasPrefix(token, "ref."):
			sc, name = ref, strings.TrimPrefix(token, "ref.")
		default:
			out.WriteString("[" + token + "]")
			continue
		}
		f := sc.obj.Field(name)
		if f == nil || !f.IsScalar() {
			return "", nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"join condition references unknown field %s on %s", name, sc.obj.Name)
		}
		expr, fargs, err := b.fieldExpr(sc, f)
		if err != nil {
			return "", nil, err
		}
		out.WriteString(expr)
		args = append(args, fargs...)
	}
	return out.String(), args, nil
}

// guardConds collects the conditions every read of the scope's object
// carries: the soft-delete liveness condition and the role row filter.
func (b *Builder) guardConds(sc *scope, withDeleted bool) ([]sq.Sqlizer, error) {
	var conds []sq.Sqlizer
	if sd := sc.obj.SoftDelete; sd != nil && !withDeleted {
		expr, args, err := b.expandTemplate(sc, sd.Condition, 0)
		if err != nil {
			return nil, err
		}
		conds = append(conds, sq.Expr("("+expr+")", args...))
	}
	if rf := b.opts.RowFilters[sc.obj.ID]; len(rf) > 0 && !b.inGuard[sc.obj.ID] {
		// A row filter reaching its own object through a relation
		// subquery applies once, not recursively.
		if b.inGuard == nil {
			b.inGuard = make(map[catalog.ObjectID]bool)
		}
		b.inGuard[sc.obj.ID] = true
		cond, err := b.filterFor(sc, rf)
		delete(b.inGuard, sc.obj.ID)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			conds = append(conds, cond)
		}
	}
	return conds, nil
}

// joinCond renders the ON condition between the two sides of a ref,
// join or m2m relation leg. For m2m relations it renders one leg at a
// time: caller passes the junction scope as one side.
func (b *Builder) joinCond(ownFields, otherFields []string, own, other *scope) (string, []any, error) {
	if len(ownFields) == 0 || len(ownFields) != len(otherFields) {
		return "", nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"relation between %s and %s has mismatched join fields", own.obj.Name, other.obj.Name)
	}
	parts := make([]string, 0, len(ownFields))
	var args []any
	for i := range ownFields {
		of := own.obj.Field(ownFields[i])
		tf := other.obj.Field(otherFields[i])
		if of == nil || tf == nil {
			return "", nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"relation between %s and %s references a missing join field", own.obj.Name, other.obj.Name)
		}
		oe, oargs, err := b.fieldExpr(own, of)
		if err != nil {
			return "", nil, err
		}
		te, targs, err := b.fieldExpr(other, tf)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, te+" = "+oe)
		args = append(args, targs...)
		args = append(args, oargs...)
	}
	return strings.Join(parts, " AND "), args, nil
}

// quoteQualified quotes a possibly schema-qualified source identifier
// segment by segment.
func quoteQualified(d Dialect, name string) string {
	segs := strings.Split(name, ".")
	for i, s := range segs {
		segs[i] = d.QuoteIdentifier(s)
	}
	return strings.Join(segs, ".")
}

// stmt accumulates SQL text and arguments for statements squirrel
// cannot assemble whole.
type stmt struct {
	sql  strings.Builder
	args []any
}

func (s *stmt) raw(text string) {
	s.sql.WriteString(text)
}

func (s *stmt) frag(text string, args ...any) {
	s.sql.WriteString(text)
	s.args = append(s.args, args...)
}

func (s *stmt) sqlizer(z sq.Sqlizer) error {
	text, args, err := z.ToSql()
	if err != nil {
		return lterrors.Wrap(err, "rendering predicate")
	}
	s.frag(text, args...)
	return nil
}

// finish rebinds accumulated ? placeholders to the dialect's format.
func (s *stmt) finish(d Dialect) (*Query, error) {
	text, err := d.PlaceholderFormat().ReplacePlaceholders(s.sql.String())
	if err != nil {
		return nil, lterrors.Wrap(err, "rebinding placeholders")
	}
	return &Query{SQL: text, Args: s.args}, nil
}

// geoJSONText marshals a coerced GeoJSON value for binding.
func geoJSONText(v any) (string, error) {
	switch g := v.(type) {
	case string:
		return g, nil
	case []byte:
		return string(g), nil
	default:
		text, err := json.Marshal(v)
		if err != nil {
			return "", lterrors.Errorf(lterrors.CodeQueryValidation, "invalid geometry value: %v", err)
		}
		return string(text), nil
	}
}

// andAll folds conditions into one predicate, nil when empty.
func andAll(conds []sq.Sqlizer) sq.Sqlizer {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return sq.And(conds)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
