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
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// scalarOps is the operator vocabulary per scalar type. It mirrors the
// filter inputs of the generated schema exactly; anything else is a
// validation error even if a caller constructs filters by hand.
var scalarOps = map[rowset.Type]map[string]bool{
	rowset.String:    {"eq": true, "in": true, "like": true, "ilike": true, "regex": true, "is_null": true},
	rowset.Int64:     {"eq": true, "in": true, "gt": true, "gte": true, "lt": true, "lte": true, "is_null": true},
	rowset.BigInt:    {"eq": true, "in": true, "gt": true, "gte": true, "lt": true, "lte": true, "is_null": true},
	rowset.Float64:   {"eq": true, "in": true, "gt": true, "gte": true, "lt": true, "lte": true, "is_null": true},
	rowset.Boolean:   {"eq": true, "is_null": true},
	rowset.Timestamp: {"eq": true, "gt": true, "gte": true, "lt": true, "lte": true, "is_null": true},
	rowset.Date:      {"eq": true, "gt": true, "gte": true, "lt": true, "lte": true, "is_null": true},
	rowset.Geometry:  {"intersects": true, "contains": true, "within": true, "is_null": true},
}

var listOps = map[string]bool{"eq": true, "contains": true, "intersects": true, "is_null": true}

// filterFor compiles one coerced filter input into a predicate over the
// scope's object. Keys walk in sorted order so the generated text is
// stable.
func (b *Builder) filterFor(sc *scope, filter map[string]any) (sq.Sqlizer, error) {
	var conds []sq.Sqlizer
	for _, key := range sortedKeys(filter) {
		value := filter[key]
		switch key {
		case "_and", "_or":
			items, ok := value.([]any)
			if !ok {
				return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s must be a list of filters", key)
			}
			var children []sq.Sqlizer
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s entries must be filters", key)
				}
				child, err := b.filterFor(sc, m)
				if err != nil {
					return nil, err
				}
				if child != nil {
					children = append(children, child)
				}
			}
			if len(children) == 0 {
				continue
			}
			if key == "_and" {
				conds = append(conds, sq.And(children))
			} else {
				conds = append(conds, sq.Or(children))
			}

		case "_not":
			m, ok := value.(map[string]any)
			if !ok {
				return nil, lterrors.New(lterrors.CodeQueryValidation, "_not must be a filter")
			}
			child, err := b.filterFor(sc, m)
			if err != nil {
				return nil, err
			}
			if child == nil {
				continue
			}
			text, args, err := child.ToSql()
			if err != nil {
				return nil, lterrors.Wrap(err, "rendering _not")
			}
			conds = append(conds, sq.Expr("NOT ("+text+")", args...))

		default:
			cond, err := b.fieldFilter(sc, key, value)
			if err != nil {
				return nil, err
			}
			if cond != nil {
				conds = append(conds, cond)
			}
		}
	}
	return andAll(conds), nil
}

// fieldFilter dispatches one filter key to a scalar column condition or
// a relation subquery.
func (b *Builder) fieldFilter(sc *scope, key string, value any) (sq.Sqlizer, error) {
	if rel, reverse, ok := sc.obj.QueryFieldRelation(key); ok {
		return b.relationFilter(sc, rel, reverse, value)
	}
	f := sc.obj.Field(key)
	if f == nil || !f.IsScalar() {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown filter field %q on %s", key, sc.obj.Name)
	}
	ops, ok := value.(map[string]any)
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "filter for %s.%s must be an object", sc.obj.Name, key)
	}
	var conds []sq.Sqlizer
	for _, op := range sortedKeys(ops) {
		cond, err := b.scalarCond(sc, f, op, ops[op])
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return andAll(conds), nil
}

// scalarCond builds one operator condition over a scalar or calculated
// field. Dialect-rendered operators embed the column expression before
// their own placeholders, so expression arguments prepend in order.
func (b *Builder) scalarCond(sc *scope, f *catalog.Field, op string, v any) (sq.Sqlizer, error) {
	if f.List {
		if !listOps[op] {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation,
				"operator %q is not valid for %s.%s", op, sc.obj.Name, f.Name)
		}
	} else if allowed := scalarOps[f.Scalar]; !allowed[op] {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation,
			"operator %q is not valid for %s.%s", op, sc.obj.Name, f.Name)
	}

	expr, eargs, err := b.fieldExpr(sc, f)
	if err != nil {
		return nil, err
	}

	if op == "is_null" {
		want, ok := v.(bool)
		if !ok {
			return nil, lterrors.New(lterrors.CodeQueryValidation, "is_null takes a boolean")
		}
		if want {
			return sq.Expr(expr+" IS NULL", eargs...), nil
		}
		return sq.Expr(expr+" IS NOT NULL", eargs...), nil
	}

	if f.List {
		items, ok := v.([]any)
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "list operator %q takes a list", op)
		}
		cond, err := b.d.ArrayFilter(op, expr, items)
		if err != nil {
			return nil, err
		}
		return prependArgs(cond, eargs)
	}

	if f.Scalar == rowset.Geometry {
		return b.geometryCond(f, op, expr, eargs, v)
	}

	switch op {
	case "eq":
		if v == nil {
			return sq.Expr(expr+" IS NULL", eargs...), nil
		}
		return sq.Expr(expr+" = ?", append(eargs, v)...), nil
	case "in":
		items, ok := v.([]any)
		if !ok {
			return nil, lterrors.New(lterrors.CodeQueryValidation, "in takes a list")
		}
		if len(items) == 0 {
			return sq.Expr("(1=0)"), nil
		}
		return sq.Expr(expr+" IN ("+sq.Placeholders(len(items))+")", append(eargs, items...)...), nil
	case "gt":
		return sq.Expr(expr+" > ?", append(eargs, v)...), nil
	case "gte":
		return sq.Expr(expr+" >= ?", append(eargs, v)...), nil
	case "lt":
		return sq.Expr(expr+" < ?", append(eargs, v)...), nil
	case "lte":
		return sq.Expr(expr+" <= ?", append(eargs, v)...), nil
	case "like":
		return prependArgs(sq.Like{expr: v}, eargs)
	case "ilike":
		return prependArgs(b.d.ILike(expr, v), eargs)
	case "regex":
		pattern, ok := v.(string)
		if !ok {
			return nil, lterrors.New(lterrors.CodeQueryValidation, "regex takes a string")
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "invalid regex: %v", err)
		}
		return prependArgs(b.d.Regexp(expr, pattern), eargs)
	}
	return nil, lterrors.Errorf(lterrors.CodeQueryValidation,
		"operator %q is not valid for %s.%s", op, sc.obj.Name, f.Name)
}

func (b *Builder) geometryCond(f *catalog.Field, op, expr string, eargs []any, v any) (sq.Sqlizer, error) {
	text, err := geoJSONText(v)
	if err != nil {
		return nil, err
	}
	var srid int64
	if f.GeometryInfo != nil {
		srid = f.GeometryInfo.SRID
	}
	geomExpr, gargs := b.d.GeometryValue(text, srid)
	var fn string
	switch op {
	case "intersects":
		fn = "ST_Intersects"
	case "contains":
		fn = "ST_Contains"
	case "within":
		fn = "ST_Within"
	}
	args := append(append([]any{}, eargs...), gargs...)
	return sq.Expr(fn+"("+expr+", "+geomExpr+")", args...), nil
}

// relationFilter builds an EXISTS subquery over the relation target.
// To-one relations take a plain filter; to-many relations take an
// any_of/all_of/none_of wrapper.
func (b *Builder) relationFilter(sc *scope, id catalog.RelationID, reverse bool, value any) (sq.Sqlizer, error) {
	r := b.cat.Relation(id)
	if r.Kind == catalog.FuncCallRelation {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot filter through function call field on %s", sc.obj.Name)
	}
	if r.IsCrossSource {
		return nil, lterrors.Wrapf(ErrUnsupported, "filter through cross-source relation %s", r.Name)
	}

	if !r.CardinalityFor(reverse).ToMany() {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "relation filter on %s must be an object", r.Name)
		}
		return b.existsFilter(sc, r, reverse, m, false)
	}

	wrapper, ok := value.(map[string]any)
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "relation filter on %s must be an object", r.Name)
	}
	var conds []sq.Sqlizer
	for _, mode := range sortedKeys(wrapper) {
		m, ok := wrapper[mode].(map[string]any)
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s on %s must be a filter", mode, r.Name)
		}
		switch mode {
		case "any_of":
			cond, err := b.existsFilter(sc, r, reverse, m, false)
			if err != nil {
				return nil, err
			}
			conds = append(conds, cond)
		case "none_of":
			cond, err := b.existsFilter(sc, r, reverse, m, false)
			if err != nil {
				return nil, err
			}
			conds = append(conds, notCond(cond))
		case "all_of":
			cond, err := b.existsFilter(sc, r, reverse, m, true)
			if err != nil {
				return nil, err
			}
			conds = append(conds, notCond(cond))
		default:
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown relation filter mode %q on %s", mode, r.Name)
		}
	}
	return andAll(conds), nil
}

func notCond(z sq.Sqlizer) sq.Sqlizer {
	return wrapCond("NOT ", z)
}

func wrapCond(prefix string, z sq.Sqlizer) sq.Sqlizer {
	text, args, err := z.ToSql()
	if err != nil {
		return z
	}
	return sq.Expr(prefix+"("+text+")", args...)
}

// existsFilter renders EXISTS over the relation target with the given
// subfilter. With negate the subfilter is inverted inside, which turns
// NOT EXISTS into an all-rows-match test.
func (b *Builder) existsFilter(sc *scope, r *catalog.Relation, reverse bool, sub map[string]any, negate bool) (sq.Sqlizer, error) {
	target := b.cat.Object(r.OtherSide(reverse))
	tsc := &scope{obj: target, alias: b.nextAlias()}

	from, fromArgs, err := b.fromClause(tsc)
	if err != nil {
		return nil, err
	}

	var joins string
	var conds []sq.Sqlizer

	if r.Kind == catalog.M2MRelation {
		junction := b.cat.Object(r.Through)
		jsc := &scope{obj: junction, alias: b.nextAlias()}
		outerOwn, junctionOuter, junctionTarget, targetOwn := m2mLegs(r, reverse)

		leg, legArgs, err := b.joinCond(targetOwn, junctionTarget, tsc, jsc)
		if err != nil {
			return nil, err
		}
		jfrom, jfromArgs, err := b.fromClause(jsc)
		if err != nil {
			return nil, err
		}
		joins = " INNER JOIN " + jfrom + " ON " + leg
		fromArgs = append(fromArgs, jfromArgs...)
		fromArgs = append(fromArgs, legArgs...)

		corr, corrArgs, err := b.joinCond(outerOwn, junctionOuter, sc, jsc)
		if err != nil {
			return nil, err
		}
		conds = append(conds, sq.Expr(corr, corrArgs...))
		jguards, err := b.guardConds(jsc, false)
		if err != nil {
			return nil, err
		}
		conds = append(conds, jguards...)
	} else {
		cond, args, err := b.relationOn(r, reverse, sc, tsc)
		if err != nil {
			return nil, err
		}
		conds = append(conds, sq.Expr(cond, args...))
	}

	guards, err := b.guardConds(tsc, false)
	if err != nil {
		return nil, err
	}
	conds = append(conds, guards...)

	subCond, err := b.filterFor(tsc, sub)
	if err != nil {
		return nil, err
	}
	if subCond != nil {
		if negate {
			subCond = notCond(subCond)
		}
		conds = append(conds, subCond)
	}

	where, whereArgs, err := andAll(conds).ToSql()
	if err != nil {
		return nil, lterrors.Wrap(err, "rendering relation filter")
	}
	args := append(fromArgs, whereArgs...)
	return sq.Expr("EXISTS (SELECT 1 FROM "+from+joins+" WHERE "+where+")", args...), nil
}

// relationOn renders the join condition of a ref or sql-template
// relation between the caller's scope and the target scope.
func (b *Builder) relationOn(r *catalog.Relation, reverse bool, own, other *scope) (string, []any, error) {
	if r.Kind == catalog.JoinRelation {
		src, ref := own, other
		if reverse {
			src, ref = other, own
		}
		return b.expandJoinTemplate(r.JoinCondition, src, ref)
	}
	return b.joinCond(r.OwnFields(reverse), r.OtherFields(reverse), own, other)
}

// m2mLegs orients the junction field pairs for a traversal direction.
func m2mLegs(r *catalog.Relation, reverse bool) (outerOwn, junctionOuter, junctionTarget, targetOwn []string) {
	if reverse {
		return r.TargetFields, r.ThroughTargetFields, r.ThroughSourceFields, r.SourceFields
	}
	return r.SourceFields, r.ThroughSourceFields, r.ThroughTargetFields, r.TargetFields
}

// prependArgs moves expression arguments ahead of a rendered
// condition's own. Valid only when the condition embeds the expression
// text before its placeholders.
func prependArgs(z sq.Sqlizer, eargs []any) (sq.Sqlizer, error) {
	if len(eargs) == 0 {
		return z, nil
	}
	text, args, err := z.ToSql()
	if err != nil {
		return nil, lterrors.Wrap(err, "rendering condition")
	}
	return sq.Expr(text, append(append([]any{}, eargs...), args...)...), nil
}

// fromClause renders the FROM item of a scope's object: a quoted source
// name or an inlined view body with bound arguments.
func (b *Builder) fromClause(sc *scope) (string, []any, error) {
	obj := sc.obj
	if obj.ViewSQL != "" {
		body, args := expandViewSQL(obj.ViewSQL, obj.Args, sc.args)
		return "(" + strings.TrimSpace(body) + ") AS " + sc.alias, args, nil
	}
	name := obj.SourceName
	if name == "" {
		name = obj.Name
	}
	return quoteQualified(b.d, name) + " AS " + sc.alias, nil, nil
}
