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
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// SelectDef describes one relational select. Relation columns nest
// further SelectDefs; the whole tree renders as a single statement.
type SelectDef struct {
	Object  catalog.ObjectID
	Columns []Column
	Filter  map[string]any
	OrderBy []OrderBy
	// Limit and Offset are omitted when non-positive.
	Limit      int64
	Offset     int64
	DistinctOn []string
	// Args binds parameterized view arguments.
	Args        map[string]any
	WithDeleted bool
	// Cube, set for cube objects, makes the select read from a
	// pre-aggregation subquery instead of the raw table.
	Cube *CubePre
}

// CubePre is the pre-aggregation stage of a cube read: dimensions
// group, measurements aggregate. It always runs before joins.
type CubePre struct {
	Dimensions []string
	Measures   []CubeMeasure
}

// CubeMeasure aggregates one measurement field.
type CubeMeasure struct {
	Field string
	Func  string
}

// OrderBy is one ordering term. Direction must be spelled ASC or DESC.
type OrderBy struct {
	Field     string
	Direction string
}

// Column is one output column. Exactly one member besides Alias is set.
type Column struct {
	Alias string

	// Field selects a scalar, calculated or row-typed field.
	Field string

	Part    *PartColumn
	Measure *MeasureColumn
	Call    *CallColumn

	Relation          *RelationColumn
	RelationAggregate *RelationAggregateColumn
	RelationBuckets   *RelationBucketsColumn
}

// PartColumn extracts a date part of a temporal field.
type PartColumn struct {
	Field string
	Part  string
}

// MeasureColumn measures a geometry field.
type MeasureColumn struct {
	Field   string
	Measure string
}

// CallColumn inlines a scalar SQL function call relation.
type CallColumn struct {
	Relation catalog.RelationID
	Args     map[string]any
}

// RelationColumn embeds a related object: to-one sides join, to-many
// sides become correlated JSON array subqueries.
type RelationColumn struct {
	Relation catalog.RelationID
	Reverse  bool
	Inner    bool
	Select   SelectDef
}

// RelationAggregateColumn embeds a relation aggregation companion as a
// correlated JSON object subquery.
type RelationAggregateColumn struct {
	Relation  catalog.RelationID
	Reverse   bool
	Aggregate AggregateDef
}

// RelationBucketsColumn embeds a relation bucket aggregation companion
// as a correlated JSON array subquery.
type RelationBucketsColumn struct {
	Relation catalog.RelationID
	Reverse  bool
	Buckets  BucketDef
}

// Select synthesizes one select statement for the definition tree.
func (b *Builder) Select(def *SelectDef) (*Query, error) {
	b.aliases = 0
	sc := b.defScope(def)
	text, args, err := b.buildSelect(def, sc, nil, nil)
	if err != nil {
		return nil, err
	}
	var s stmt
	s.frag(text, args...)
	return s.finish(b.d)
}

func (b *Builder) defScope(def *SelectDef) *scope {
	return &scope{
		obj:    b.cat.Object(def.Object),
		alias:  b.nextAlias(),
		args:   def.Args,
		preagg: def.Cube != nil,
	}
}

// joinItem is one rendered JOIN clause.
type joinItem struct {
	text string
	args []any
}

// selectParts accumulates the sections of one select in emission order.
type selectParts struct {
	distinct     []string
	distinctArgs []any
	cols         []string
	colArgs      []any
	from         string
	fromArgs     []any
	joins        []joinItem
	where        []sq.Sqlizer
	group        []string
	order        []string
	orderArgs    []any
	limit        int64
	offset       int64
}

func (p *selectParts) render() (string, []any, error) {
	var s stmt
	s.raw("SELECT ")
	if len(p.distinct) > 0 {
		s.raw("DISTINCT ON (")
		s.frag(strings.Join(p.distinct, ", "), p.distinctArgs...)
		s.raw(") ")
	}
	s.frag(strings.Join(p.cols, ", "), p.colArgs...)
	s.raw(" FROM ")
	s.frag(p.from, p.fromArgs...)
	for _, j := range p.joins {
		s.frag(j.text, j.args...)
	}
	if cond := andAll(p.where); cond != nil {
		s.raw(" WHERE ")
		if err := s.sqlizer(cond); err != nil {
			return "", nil, err
		}
	}
	if len(p.group) > 0 {
		s.raw(" GROUP BY " + strings.Join(p.group, ", "))
	}
	if len(p.order) > 0 {
		s.raw(" ORDER BY ")
		s.frag(strings.Join(p.order, ", "), p.orderArgs...)
	}
	if p.limit > 0 {
		s.raw(" LIMIT " + strconv.FormatInt(p.limit, 10))
	}
	if p.offset > 0 {
		s.raw(" OFFSET " + strconv.FormatInt(p.offset, 10))
	}
	return s.sql.String(), s.args, nil
}

// buildSelect renders one select. extraJoins and extraWhere carry
// correlation pieces owned by the caller; extraWhere conditions apply
// outside the cube pre-aggregation when one is present.
func (b *Builder) buildSelect(def *SelectDef, sc *scope, extraJoins []joinItem, extraWhere []sq.Sqlizer) (string, []any, error) {
	p := &selectParts{limit: def.Limit, offset: def.Offset}

	if def.Cube != nil {
		inner, innerArgs, err := b.buildCubePre(def, sc.obj)
		if err != nil {
			return "", nil, err
		}
		p.from = "(" + inner + ") AS " + sc.alias
		p.fromArgs = innerArgs
	} else {
		from, fromArgs, err := b.fromClause(sc)
		if err != nil {
			return "", nil, err
		}
		p.from = from
		p.fromArgs = fromArgs

		cond, err := b.filterFor(sc, def.Filter)
		if err != nil {
			return "", nil, err
		}
		if cond != nil {
			p.where = append(p.where, cond)
		}
		guards, err := b.guardConds(sc, def.WithDeleted)
		if err != nil {
			return "", nil, err
		}
		p.where = append(p.where, guards...)
	}

	p.joins = append(p.joins, extraJoins...)
	p.where = append(p.where, extraWhere...)

	names, exprs, colArgs, err := b.renderColumns(p, sc, def.Columns)
	if err != nil {
		return "", nil, err
	}
	for i := range names {
		p.cols = append(p.cols, exprs[i]+" AS "+b.d.QuoteIdentifier(names[i]))
	}
	p.colArgs = colArgs

	if err := b.applyOrdering(p, sc, def); err != nil {
		return "", nil, err
	}
	return p.render()
}

// renderColumns renders column expressions in selection order,
// registering any joins they need. Argument order follows expression
// order.
func (b *Builder) renderColumns(p *selectParts, sc *scope, cols []Column) (names, exprs []string, args []any, err error) {
	for i := range cols {
		col := &cols[i]
		expr, cargs, err := b.columnExpr(p, sc, col)
		if err != nil {
			return nil, nil, nil, err
		}
		names = append(names, col.Alias)
		exprs = append(exprs, expr)
		args = append(args, cargs...)
	}
	return names, exprs, args, nil
}

func (b *Builder) columnExpr(p *selectParts, sc *scope, col *Column) (string, []any, error) {
	switch {
	case col.Part != nil:
		f, err := b.selectableField(sc, col.Part.Field)
		if err != nil {
			return "", nil, err
		}
		if f.List || !f.Scalar.IsTemporal() {
			return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation,
				"%s.%s is not a temporal field", sc.obj.Name, f.Name)
		}
		expr, eargs, err := b.fieldExpr(sc, f)
		if err != nil {
			return "", nil, err
		}
		out, err := b.d.TimePart(col.Part.Part, expr)
		return out, eargs, err

	case col.Measure != nil:
		f, err := b.selectableField(sc, col.Measure.Field)
		if err != nil {
			return "", nil, err
		}
		if f.Scalar != rowset.Geometry || f.List {
			return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation,
				"%s.%s is not a geometry field", sc.obj.Name, f.Name)
		}
		expr, eargs, err := b.fieldExpr(sc, f)
		if err != nil {
			return "", nil, err
		}
		out, err := b.d.GeometryMeasure(col.Measure.Measure, expr)
		return out, eargs, err

	case col.Call != nil:
		return b.callExpr(sc, col.Call)

	case col.Relation != nil:
		r := b.cat.Relation(col.Relation.Relation)
		if r.Kind == catalog.M2MRelation || r.CardinalityFor(col.Relation.Reverse).ToMany() {
			return b.listSubquery(sc, col.Relation)
		}
		return b.toOneJoin(p, sc, col.Relation)

	case col.RelationAggregate != nil:
		return b.aggSubquery(sc, col.RelationAggregate)

	case col.RelationBuckets != nil:
		return b.bucketSubquery(sc, col.RelationBuckets)

	default:
		f, err := b.selectableField(sc, col.Field)
		if err != nil {
			return "", nil, err
		}
		expr, eargs, err := b.fieldExpr(sc, f)
		if err != nil {
			return "", nil, err
		}
		if f.Scalar == rowset.Geometry && !f.List {
			expr = b.d.GeometryWire(expr)
		}
		return expr, eargs, nil
	}
}

func (b *Builder) selectableField(sc *scope, name string) (*catalog.Field, error) {
	f := sc.obj.Field(name)
	if f == nil || f.Scalar == rowset.Unknown {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown field %q on %s", name, sc.obj.Name)
	}
	if b.isCallField(f) {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation,
			"field %s.%s is a function call and has no column", sc.obj.Name, name)
	}
	return f, nil
}

// isCallField reports whether the field's value comes from a function
// call instead of a column.
func (b *Builder) isCallField(f *catalog.Field) bool {
	return f.Relation != catalog.NoRelation && b.cat.Relation(f.Relation).Kind == catalog.FuncCallRelation
}

// toOneJoin renders a to-one relation as a join plus a packed JSON
// object column. The join misses produce NULL, probed through the
// target's join key.
func (b *Builder) toOneJoin(p *selectParts, sc *scope, rc *RelationColumn) (string, []any, error) {
	r := b.cat.Relation(rc.Relation)
	child := &rc.Select
	tsc := b.defScope(child)

	var fromText string
	var fromArgs []any
	var onConds []sq.Sqlizer

	if child.Cube != nil {
		inner, innerArgs, err := b.buildCubePre(child, tsc.obj)
		if err != nil {
			return "", nil, err
		}
		fromText = "(" + inner + ") AS " + tsc.alias
		fromArgs = innerArgs
	} else {
		from, args, err := b.fromClause(tsc)
		if err != nil {
			return "", nil, err
		}
		fromText = from
		fromArgs = args

		guards, err := b.guardConds(tsc, child.WithDeleted)
		if err != nil {
			return "", nil, err
		}
		onConds = append(onConds, guards...)
		if len(child.Filter) > 0 {
			cond, err := b.filterFor(tsc, child.Filter)
			if err != nil {
				return "", nil, err
			}
			if cond != nil {
				onConds = append(onConds, cond)
			}
		}
	}

	on, onArgs, err := b.relationOn(r, rc.Reverse, sc, tsc)
	if err != nil {
		return "", nil, err
	}
	onConds = append([]sq.Sqlizer{sq.Expr(on, onArgs...)}, onConds...)

	kind := " LEFT JOIN "
	if rc.Inner {
		kind = " INNER JOIN "
	}
	onText, condArgs, err := andAll(onConds).ToSql()
	if err != nil {
		return "", nil, lterrors.Wrap(err, "rendering join condition")
	}
	args := append(fromArgs, condArgs...)
	p.joins = append(p.joins, joinItem{text: kind + fromText + " ON " + onText, args: args})

	names, exprs, packArgs, err := b.renderColumns(p, tsc, child.Columns)
	if err != nil {
		return "", nil, err
	}
	packed := b.d.JSONObject(names, exprs)

	if probe := b.joinProbe(tsc, r, rc.Reverse); probe != "" {
		packed = "CASE WHEN " + probe + " IS NULL THEN NULL ELSE " + packed + " END"
	}
	return packed, packArgs, nil
}

// joinProbe picks a target column whose NULL means the join missed.
func (b *Builder) joinProbe(tsc *scope, r *catalog.Relation, reverse bool) string {
	if other := r.OtherFields(reverse); len(other) > 0 {
		if f := tsc.obj.Field(other[0]); f != nil {
			return b.col(tsc, tsc.colName(f))
		}
	}
	if pk := tsc.obj.PKFields(); len(pk) > 0 && pk[0] != nil {
		return b.col(tsc, tsc.colName(pk[0]))
	}
	return ""
}

// listSubquery renders a to-many or m2m relation as a correlated
// subquery aggregating packed rows into a JSON array.
func (b *Builder) listSubquery(sc *scope, rc *RelationColumn) (string, []any, error) {
	r := b.cat.Relation(rc.Relation)
	child := &rc.Select
	tsc := b.defScope(child)

	extraJoins, extraWhere, err := b.correlate(sc, tsc, r, rc.Reverse)
	if err != nil {
		return "", nil, err
	}
	inner, innerArgs, err := b.buildSelect(child, tsc, extraJoins, extraWhere)
	if err != nil {
		return "", nil, err
	}

	sub := b.nextAlias()
	names := make([]string, 0, len(child.Columns))
	refs := make([]string, 0, len(child.Columns))
	for i := range child.Columns {
		alias := child.Columns[i].Alias
		names = append(names, alias)
		refs = append(refs, sub+"."+b.d.QuoteIdentifier(alias))
	}
	agg := b.d.JSONArrayAgg(b.d.JSONObject(names, refs))
	return "(SELECT " + agg + " FROM (" + inner + ") AS " + sub + ")", innerArgs, nil
}

// buildCubePre renders the pre-aggregation subquery of a cube select.
// The outer filter applies here, before any join sees the rows.
func (b *Builder) buildCubePre(def *SelectDef, obj *catalog.DataObject) (string, []any, error) {
	raw := &scope{obj: obj, alias: b.nextAlias(), args: def.Args}
	p := &selectParts{}

	from, fromArgs, err := b.fromClause(raw)
	if err != nil {
		return "", nil, err
	}
	p.from = from
	p.fromArgs = fromArgs

	for _, name := range def.Cube.Dimensions {
		f, err := b.selectableField(raw, name)
		if err != nil {
			return "", nil, err
		}
		expr, eargs, err := b.fieldExpr(raw, f)
		if err != nil {
			return "", nil, err
		}
		p.cols = append(p.cols, expr+" AS "+b.d.QuoteIdentifier(f.Name))
		p.colArgs = append(p.colArgs, eargs...)
		p.group = append(p.group, strconv.Itoa(len(p.cols)))
	}
	for _, m := range def.Cube.Measures {
		f, err := b.selectableField(raw, m.Field)
		if err != nil {
			return "", nil, err
		}
		if !f.IsMeasurement {
			return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation,
				"%s.%s is not a measurement", obj.Name, f.Name)
		}
		if len(f.MeasurementFuncs) > 0 && !containsString(f.MeasurementFuncs, m.Func) {
			return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation,
				"measurement function %s is not allowed for %s.%s", m.Func, obj.Name, f.Name)
		}
		expr, eargs, err := b.fieldExpr(raw, f)
		if err != nil {
			return "", nil, err
		}
		agg, aggArgs, err := b.d.AggregateExpr(strings.ToLower(m.Func), expr, "")
		if err != nil {
			return "", nil, err
		}
		p.cols = append(p.cols, agg+" AS "+b.d.QuoteIdentifier(f.Name))
		p.colArgs = append(p.colArgs, eargs...)
		p.colArgs = append(p.colArgs, aggArgs...)
	}
	if len(p.cols) == 0 {
		return "", nil, lterrors.Errorf(lterrors.CodePlanning, "empty cube pre-aggregation for %s", obj.Name)
	}

	cond, err := b.filterFor(raw, def.Filter)
	if err != nil {
		return "", nil, err
	}
	if cond != nil {
		p.where = append(p.where, cond)
	}
	guards, err := b.guardConds(raw, def.WithDeleted)
	if err != nil {
		return "", nil, err
	}
	p.where = append(p.where, guards...)

	return p.render()
}

// applyOrdering renders distinct_on and order_by. distinct_on leads the
// ordering so the retained row per group is well defined.
func (b *Builder) applyOrdering(p *selectParts, sc *scope, def *SelectDef) error {
	if len(def.DistinctOn) > 0 && !b.d.SupportsDistinctOn() {
		return lterrors.Wrapf(ErrUnsupported, "distinct_on on %s", b.d.Name())
	}

	dirByField := map[string]string{}
	for _, o := range def.OrderBy {
		if o.Direction != "ASC" && o.Direction != "DESC" {
			return lterrors.Errorf(lterrors.CodeQueryValidation, "sort direction must be ASC or DESC, got %q", o.Direction)
		}
		if _, ok := dirByField[o.Field]; !ok {
			dirByField[o.Field] = o.Direction
		}
	}

	leading := map[string]bool{}
	for _, name := range def.DistinctOn {
		f, err := b.selectableField(sc, name)
		if err != nil {
			return err
		}
		expr, eargs, err := b.fieldExpr(sc, f)
		if err != nil {
			return err
		}
		p.distinct = append(p.distinct, expr)
		p.distinctArgs = append(p.distinctArgs, eargs...)
		dir := dirByField[name]
		if dir == "" {
			dir = "ASC"
		}
		p.order = append(p.order, expr+" "+dir)
		p.orderArgs = append(p.orderArgs, eargs...)
		leading[name] = true
	}

	for _, o := range def.OrderBy {
		if leading[o.Field] {
			continue
		}
		f, err := b.selectableField(sc, o.Field)
		if err != nil {
			return err
		}
		expr, eargs, err := b.fieldExpr(sc, f)
		if err != nil {
			return err
		}
		p.order = append(p.order, expr+" "+o.Direction)
		p.orderArgs = append(p.orderArgs, eargs...)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
