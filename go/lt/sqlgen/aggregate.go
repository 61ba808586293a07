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
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// AggregateDef collapses a filtered object set into one row of
// aggregate values.
type AggregateDef struct {
	Object      catalog.ObjectID
	Columns     []AggColumn
	Filter      map[string]any
	Args        map[string]any
	WithDeleted bool
}

// AggColumn is one aggregate output. An empty Field with the count
// function renders COUNT(*), the row count of the set.
type AggColumn struct {
	Alias string
	Field string
	Func  string
	// Separator applies to string_agg only.
	Separator string
}

// BucketDef groups an object set by key expressions and aggregates
// within each group. OrderBy terms reference selected key or aggregate
// aliases.
type BucketDef struct {
	AggregateDef
	Keys    []BucketKey
	OrderBy []OrderBy
	Limit   int64
	Offset  int64
}

// BucketKey is one grouping expression: a plain field, a temporal
// bucket, or a date part. Bucket and Part are mutually exclusive.
type BucketKey struct {
	Alias  string
	Field  string
	Bucket string
	Part   string
}

// aggOps lists the aggregate functions valid per scalar type.
var aggOps = map[rowset.Type]map[string]bool{
	rowset.Int64: {
		"count": true, "sum": true, "avg": true, "min": true, "max": true,
		"stddev": true, "variance": true, "list": true, "any": true, "last": true,
	},
	rowset.BigInt: {
		"count": true, "sum": true, "avg": true, "min": true, "max": true,
		"stddev": true, "variance": true, "list": true, "any": true, "last": true,
	},
	rowset.Float64: {
		"count": true, "sum": true, "avg": true, "min": true, "max": true,
		"stddev": true, "variance": true, "list": true, "any": true, "last": true,
	},
	rowset.String: {
		"count": true, "string_agg": true, "list": true, "any": true, "last": true,
	},
	rowset.Boolean: {
		"count": true, "bool_and": true, "bool_or": true,
	},
	rowset.Timestamp: {
		"count": true, "min": true, "max": true,
	},
	rowset.Date: {
		"count": true, "min": true, "max": true,
	},
}

// Aggregate synthesizes a single-row aggregation statement.
func (b *Builder) Aggregate(def *AggregateDef) (*Query, error) {
	b.aliases = 0
	sc := &scope{obj: b.cat.Object(def.Object), alias: b.nextAlias(), args: def.Args}
	text, args, err := b.buildAggregate(def, sc, nil, nil)
	if err != nil {
		return nil, err
	}
	var s stmt
	s.frag(text, args...)
	return s.finish(b.d)
}

// BucketAggregate synthesizes a grouped aggregation statement.
func (b *Builder) BucketAggregate(def *BucketDef) (*Query, error) {
	b.aliases = 0
	sc := &scope{obj: b.cat.Object(def.Object), alias: b.nextAlias(), args: def.Args}
	text, args, err := b.buildBuckets(def, sc, nil, nil)
	if err != nil {
		return nil, err
	}
	var s stmt
	s.frag(text, args...)
	return s.finish(b.d)
}

func (b *Builder) buildAggregate(def *AggregateDef, sc *scope, extraJoins []joinItem, extraWhere []sq.Sqlizer) (string, []any, error) {
	p := &selectParts{}
	if err := b.aggregateBase(p, sc, def, extraJoins, extraWhere); err != nil {
		return "", nil, err
	}
	if err := b.aggregateCols(p, sc, def.Columns); err != nil {
		return "", nil, err
	}
	if len(p.cols) == 0 {
		return "", nil, lterrors.Errorf(lterrors.CodePlanning, "empty aggregation over %s", sc.obj.Name)
	}
	return p.render()
}

func (b *Builder) buildBuckets(def *BucketDef, sc *scope, extraJoins []joinItem, extraWhere []sq.Sqlizer) (string, []any, error) {
	p := &selectParts{limit: def.Limit, offset: def.Offset}
	if err := b.aggregateBase(p, sc, &def.AggregateDef, extraJoins, extraWhere); err != nil {
		return "", nil, err
	}

	selected := map[string]bool{}
	for _, k := range def.Keys {
		expr, eargs, err := b.bucketKeyExpr(sc, &k)
		if err != nil {
			return "", nil, err
		}
		p.cols = append(p.cols, expr+" AS "+b.d.QuoteIdentifier(k.Alias))
		p.colArgs = append(p.colArgs, eargs...)
		p.group = append(p.group, strconv.Itoa(len(p.cols)))
		selected[k.Alias] = true
	}
	if len(p.group) == 0 {
		return "", nil, lterrors.Errorf(lterrors.CodePlanning, "bucket aggregation over %s selects no keys", sc.obj.Name)
	}
	if err := b.aggregateCols(p, sc, def.Columns); err != nil {
		return "", nil, err
	}
	for _, c := range def.Columns {
		selected[c.Alias] = true
	}

	for _, o := range def.OrderBy {
		if o.Direction != "ASC" && o.Direction != "DESC" {
			return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation, "sort direction must be ASC or DESC, got %q", o.Direction)
		}
		if !selected[o.Field] {
			return "", nil, lterrors.Errorf(lterrors.CodePlanning,
				"order_by target %q is not a selected aggregation of %s", o.Field, sc.obj.Name)
		}
		p.order = append(p.order, b.d.QuoteIdentifier(o.Field)+" "+o.Direction)
	}
	return p.render()
}

func (b *Builder) aggregateBase(p *selectParts, sc *scope, def *AggregateDef, extraJoins []joinItem, extraWhere []sq.Sqlizer) error {
	from, fromArgs, err := b.fromClause(sc)
	if err != nil {
		return err
	}
	p.from = from
	p.fromArgs = fromArgs
	p.joins = append(p.joins, extraJoins...)

	cond, err := b.filterFor(sc, def.Filter)
	if err != nil {
		return err
	}
	if cond != nil {
		p.where = append(p.where, cond)
	}
	guards, err := b.guardConds(sc, def.WithDeleted)
	if err != nil {
		return err
	}
	p.where = append(p.where, guards...)
	p.where = append(p.where, extraWhere...)
	return nil
}

func (b *Builder) aggregateCols(p *selectParts, sc *scope, cols []AggColumn) error {
	for i := range cols {
		expr, eargs, err := b.aggregateExpr(sc, &cols[i])
		if err != nil {
			return err
		}
		p.cols = append(p.cols, expr+" AS "+b.d.QuoteIdentifier(cols[i].Alias))
		p.colArgs = append(p.colArgs, eargs...)
	}
	return nil
}

func (b *Builder) aggregateExpr(sc *scope, c *AggColumn) (string, []any, error) {
	if c.Field == "" {
		if c.Func != "count" {
			return "", nil, lterrors.Errorf(lterrors.CodePlanning, "aggregate %q requires a field", c.Func)
		}
		return "COUNT(*)", nil, nil
	}
	f, err := b.selectableField(sc, c.Field)
	if err != nil {
		return "", nil, err
	}
	ops := aggOps[f.Scalar]
	if f.List || ops == nil || !ops[c.Func] {
		return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation,
			"aggregate %q is not valid for %s.%s", c.Func, sc.obj.Name, f.Name)
	}
	expr, eargs, err := b.fieldExpr(sc, f)
	if err != nil {
		return "", nil, err
	}
	agg, aggArgs, err := b.d.AggregateExpr(c.Func, expr, c.Separator)
	if err != nil {
		return "", nil, err
	}
	return agg, append(eargs, aggArgs...), nil
}

func (b *Builder) bucketKeyExpr(sc *scope, k *BucketKey) (string, []any, error) {
	f, err := b.selectableField(sc, k.Field)
	if err != nil {
		return "", nil, err
	}
	expr, eargs, err := b.fieldExpr(sc, f)
	if err != nil {
		return "", nil, err
	}
	switch {
	case k.Part != "":
		if f.List || !f.Scalar.IsTemporal() {
			return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation,
				"%s.%s is not a temporal field", sc.obj.Name, f.Name)
		}
		out, err := b.d.TimePart(k.Part, expr)
		return out, eargs, err
	case k.Bucket != "":
		if f.List || !f.Scalar.IsTemporal() {
			return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation,
				"%s.%s is not a temporal field", sc.obj.Name, f.Name)
		}
		hyper := sc.obj.Hypertable && f.TimescaleKey
		out, bargs, err := b.d.TimeBucket(expr, k.Bucket, hyper)
		if err != nil {
			return "", nil, err
		}
		return out, append(bargs, eargs...), nil
	default:
		if f.Scalar == rowset.Geometry && !f.List {
			expr = b.d.GeometryWire(expr)
		}
		return expr, eargs, nil
	}
}

// aggSubquery renders a relation aggregation companion as a correlated
// JSON object subquery.
func (b *Builder) aggSubquery(sc *scope, ac *RelationAggregateColumn) (string, []any, error) {
	r := b.cat.Relation(ac.Relation)
	tsc := &scope{obj: b.cat.Object(r.OtherSide(ac.Reverse)), alias: b.nextAlias(), args: ac.Aggregate.Args}

	extraJoins, extraWhere, err := b.correlate(sc, tsc, r, ac.Reverse)
	if err != nil {
		return "", nil, err
	}
	inner, innerArgs, err := b.buildAggregate(&ac.Aggregate, tsc, extraJoins, extraWhere)
	if err != nil {
		return "", nil, err
	}
	sub := b.nextAlias()
	names, refs := aliasRefs(b.d, sub, aggAliases(ac.Aggregate.Columns))
	return "(SELECT " + b.d.JSONObject(names, refs) + " FROM (" + inner + ") AS " + sub + ")", innerArgs, nil
}

// bucketSubquery renders a relation bucket aggregation companion as a
// correlated JSON array subquery.
func (b *Builder) bucketSubquery(sc *scope, bc *RelationBucketsColumn) (string, []any, error) {
	r := b.cat.Relation(bc.Relation)
	tsc := &scope{obj: b.cat.Object(r.OtherSide(bc.Reverse)), alias: b.nextAlias(), args: bc.Buckets.Args}

	extraJoins, extraWhere, err := b.correlate(sc, tsc, r, bc.Reverse)
	if err != nil {
		return "", nil, err
	}
	inner, innerArgs, err := b.buildBuckets(&bc.Buckets, tsc, extraJoins, extraWhere)
	if err != nil {
		return "", nil, err
	}

	aliases := make([]string, 0, len(bc.Buckets.Keys)+len(bc.Buckets.Columns))
	for _, k := range bc.Buckets.Keys {
		aliases = append(aliases, k.Alias)
	}
	aliases = append(aliases, aggAliases(bc.Buckets.Columns)...)

	sub := b.nextAlias()
	names, refs := aliasRefs(b.d, sub, aliases)
	agg := b.d.JSONArrayAgg(b.d.JSONObject(names, refs))
	return "(SELECT " + agg + " FROM (" + inner + ") AS " + sub + ")", innerArgs, nil
}

// correlate builds the join or where pieces tying a relation target
// subquery to the outer row.
func (b *Builder) correlate(sc, tsc *scope, r *catalog.Relation, reverse bool) ([]joinItem, []sq.Sqlizer, error) {
	if r.Kind == catalog.FuncCallRelation {
		return nil, nil, lterrors.Errorf(lterrors.CodePlanning, "relation %s is a function call", r.Name)
	}
	if r.Kind == catalog.M2MRelation {
		junction := b.cat.Object(r.Through)
		jsc := &scope{obj: junction, alias: b.nextAlias()}
		outerOwn, junctionOuter, junctionTarget, targetOwn := m2mLegs(r, reverse)

		leg, legArgs, err := b.joinCond(targetOwn, junctionTarget, tsc, jsc)
		if err != nil {
			return nil, nil, err
		}
		jfrom, jfromArgs, err := b.fromClause(jsc)
		if err != nil {
			return nil, nil, err
		}
		joins := []joinItem{{
			text: " INNER JOIN " + jfrom + " ON " + leg,
			args: append(jfromArgs, legArgs...),
		}}

		corr, corrArgs, err := b.joinCond(outerOwn, junctionOuter, sc, jsc)
		if err != nil {
			return nil, nil, err
		}
		where := []sq.Sqlizer{sq.Expr(corr, corrArgs...)}
		jguards, err := b.guardConds(jsc, false)
		if err != nil {
			return nil, nil, err
		}
		return joins, append(where, jguards...), nil
	}
	on, onArgs, err := b.relationOn(r, reverse, sc, tsc)
	if err != nil {
		return nil, nil, err
	}
	return nil, []sq.Sqlizer{sq.Expr(on, onArgs...)}, nil
}

func aggAliases(cols []AggColumn) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.Alias)
	}
	return out
}

func aliasRefs(d Dialect, sub string, aliases []string) (names, refs []string) {
	for _, alias := range aliases {
		names = append(names, alias)
		refs = append(refs, sub+"."+d.QuoteIdentifier(alias))
	}
	return names, refs
}
