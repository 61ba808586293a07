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
	"errors"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/accessctl"
	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/compiler"
	"github.com/latticeio/lattice/go/lt/engine"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sqlgen"
	"github.com/latticeio/lattice/go/rowset"
)

// planLocal plans a read that cannot execute as one native statement:
// a leaf fetch of this object's rows plus local merge primitives for
// every nested branch. Each branch plans through planRead again, so
// subtrees that can push down still do.
func (p *planner) planLocal(objID catalog.ObjectID, f *ast.Field, ra readArgs, path []string, extras []string) (*node, error) {
	obj := p.cat.Object(objID)
	builder, sqlMode := p.builderFor(obj.Source)

	sels, err := p.classify(objID, f.SelectionSet)
	if err != nil {
		return nil, err
	}

	// plumb assigns a leaf column to every catalog field this node
	// needs beyond its visible selections: join keys, call arguments,
	// dynamic join surfaces.
	plumb := map[string]string{}
	var plumbOrder []string
	need := func(name string) (string, error) {
		if col, ok := plumb[name]; ok {
			return col, nil
		}
		fld := obj.Field(name)
		if fld == nil || !fld.IsScalar() {
			return "", lterrors.Errorf(lterrors.CodePlanning, "join field %s of %s has no column", name, obj.Name)
		}
		if !sqlMode && fld.SQLExpr != "" {
			return "", lterrors.Errorf(lterrors.CodePlanning, "calculated field %s of %s cannot be read from source %s", name, obj.Name, p.sourceInfo(obj.Source).Name)
		}
		col := fld.Column()
		if sqlMode {
			col = p.hiddenName()
		}
		plumb[name] = col
		plumbOrder = append(plumbOrder, name)
		return col, nil
	}

	if err := p.collectPlumbing(obj, sels, need); err != nil {
		return nil, err
	}
	for _, name := range extras {
		if _, err := need(name); err != nil {
			return nil, err
		}
	}

	colAt := make([]engine.ProjCol, len(sels))
	colSet := make([]bool, len(sels))

	var prim engine.Primitive
	if sqlMode {
		prim, err = p.sqlLeaf(obj, builder, sels, ra, plumb, plumbOrder, need, colAt, colSet)
	} else {
		prim, err = p.scanLeafNode(obj, sels, ra, plumb, colAt, colSet)
	}
	if err != nil {
		return nil, err
	}

	// Explode @unnest list fields into one row per element before any
	// merge sees the rows.
	unnested := map[string]bool{}
	for i := range sels {
		sf := &sels[i]
		if sf.kind != selScalar || !hasDirective(sf.f.Directives, "unnest") {
			continue
		}
		if !sf.fld.List {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "@unnest applies to list fields, %s is not one", sf.f.Name)
		}
		col := colAt[i].From
		if !unnested[col] {
			unnested[col] = true
			prim = &engine.Unnest{Input: prim, Column: col, ElemType: sf.fld.Scalar}
		}
		colAt[i].List = false
	}

	var hidden []string
	for i := range sels {
		sf := &sels[i]
		var err error
		switch sf.kind {
		case selRelation:
			prim, err = p.localRelation(prim, obj, sf, path, plumb, colAt, colSet, i)
		case selRelationAgg:
			prim, err = p.localRelationAgg(prim, obj, sf, path, plumb, colAt, colSet, i)
		case selRelationBuckets:
			prim, err = p.localRelationBuckets(prim, obj, sf, path, plumb, colAt, colSet, i)
		case selCall:
			prim, err = p.localCall(prim, obj, sf, path, plumb, colAt, colSet, i)
		case selJoin:
			prim, err = p.localDynamicJoin(prim, obj, sf, path, plumb, colAt, colSet, i, &hidden)
		case selSpatial:
			prim, err = p.localSpatial(prim, obj, sf, path, plumb, colAt, colSet, i, &hidden)
		}
		if err != nil {
			return nil, err
		}
	}

	visibleCols := map[string]bool{}
	cols := make([]engine.ProjCol, 0, len(sels))
	for i := range sels {
		if colSet[i] {
			cols = append(cols, colAt[i])
			if colAt[i].From != "" {
				visibleCols[colAt[i].From] = true
			}
		}
	}
	for _, name := range plumbOrder {
		if !visibleCols[plumb[name]] {
			hidden = append(hidden, plumb[name])
		}
	}

	extraCols := make([]string, len(extras))
	for i, name := range extras {
		extraCols[i] = plumb[name]
	}
	return &node{prim: prim, cols: cols, hidden: hidden, extraCols: extraCols}, nil
}

// collectPlumbing walks the classified selections once and reserves the
// leaf columns their merges will key on.
func (p *planner) collectPlumbing(obj *catalog.DataObject, sels []selField, need func(string) (string, error)) error {
	needAll := func(names []string) error {
		for _, n := range names {
			if _, err := need(n); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range sels {
		sf := &sels[i]
		switch sf.kind {
		case selRelation:
			rel := p.cat.Relation(sf.bind.Relation)
			if rel.Kind == catalog.M2MRelation {
				own, _, _, _ := m2mLegs(rel, sf.bind.Reverse)
				if err := needAll(own); err != nil {
					return err
				}
			} else if err := needAll(rel.OwnFields(sf.bind.Reverse)); err != nil {
				return err
			}
		case selRelationAgg, selRelationBuckets:
			rel := p.cat.Relation(sf.bind.Relation)
			if err := needAll(rel.OwnFields(sf.bind.Reverse)); err != nil {
				return err
			}
		case selCall:
			fc := p.cat.Relation(sf.bind.Relation).FuncCall
			for _, fieldName := range fc.Args {
				if _, err := need(fieldName); err != nil {
					return err
				}
			}
			if err := needAll(fc.JoinSourceFields); err != nil {
				return err
			}
		case selJoin:
			names, err := p.joinFieldsArg(sf.f)
			if err != nil {
				return err
			}
			if err := needAll(names); err != nil {
				return err
			}
		case selSpatial:
			name, err := p.spatialFieldArg(obj, sf.f)
			if err != nil {
				return err
			}
			if _, err := need(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// sqlLeaf builds the native leaf statement of a SQL-backed local plan.
// Visible scalars alias to their response names, plumbing columns get
// reserved names, and the role's row filters render inside the builder.
func (p *planner) sqlLeaf(obj *catalog.DataObject, builder *sqlgen.Builder, sels []selField, ra readArgs, plumb map[string]string, plumbOrder []string, need func(string) (string, error), colAt []engine.ProjCol, colSet []bool) (engine.Primitive, error) {
	// DISTINCT ON falls back to a local pass when the dialect cannot
	// render it; limit and offset then move local too, or they would
	// count pre-distinct rows.
	localDistinct := false
	if len(ra.distinctOn) > 0 {
		if d, ok := p.dialectFor(obj.Source); ok && !d.SupportsDistinctOn() {
			localDistinct = true
			for _, name := range ra.distinctOn {
				if _, err := need(name); err != nil {
					return nil, err
				}
			}
		}
	}

	def := sqlgen.SelectDef{
		Object:      obj.ID,
		Filter:      ra.filter,
		OrderBy:     ra.orderBy,
		Args:        ra.viewArgs,
		WithDeleted: ra.withDeleted,
	}
	if localDistinct {
		// plumbOrder may have grown above.
		plumbOrder = plumbOrderOf(plumb, plumbOrder)
	} else {
		def.DistinctOn = ra.distinctOn
		def.Limit = ra.limit
		def.Offset = ra.offset
	}

	var fields []rowset.Field
	for i := range sels {
		sf := &sels[i]
		switch sf.kind {
		case selTypename:
			colAt[i] = engine.ProjCol{As: sf.alias, Literal: typeNameOf(sf.f, obj.Name), Type: rowset.String}
			colSet[i] = true
		case selHidden:
			colAt[i] = engine.ProjCol{As: sf.alias, Null: true}
			colSet[i] = true
		case selScalar:
			def.Columns = append(def.Columns, sqlgen.Column{Alias: sf.alias, Field: sf.fld.Name})
			fields = append(fields, rowset.Field{Name: sf.alias, Type: wireType(sf.fld), List: sf.fld.List})
			colAt[i] = p.scalarProj(sf.fld, sf.alias, sf.alias, sf.f.SelectionSet)
			colSet[i] = true
		case selPart:
			part, err := p.partArg(sf.f)
			if err != nil {
				return nil, err
			}
			def.Columns = append(def.Columns, sqlgen.Column{Alias: sf.alias, Part: &sqlgen.PartColumn{Field: sf.fld.Name, Part: part}})
			fields = append(fields, rowset.Field{Name: sf.alias, Type: rowset.BigInt})
			colAt[i] = engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.BigInt}
			colSet[i] = true
		case selMeasure:
			measure, err := p.measureArg(sf.f)
			if err != nil {
				return nil, err
			}
			def.Columns = append(def.Columns, sqlgen.Column{Alias: sf.alias, Measure: &sqlgen.MeasureColumn{Field: sf.fld.Name, Measure: measure}})
			fields = append(fields, rowset.Field{Name: sf.alias, Type: rowset.Float64})
			colAt[i] = engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.Float64}
			colSet[i] = true
		}
	}
	for _, name := range plumbOrder {
		fld := obj.Field(name)
		def.Columns = append(def.Columns, sqlgen.Column{Alias: plumb[name], Field: name})
		fields = append(fields, rowset.Field{Name: plumb[name], Type: fld.Scalar, List: fld.List})
	}

	q, err := builder.Select(&def)
	if err != nil {
		if errors.Is(err, sqlgen.ErrUnsupported) {
			return nil, lterrors.Wrapf(err, "read of %s cannot execute on source %s", obj.Name, p.sourceInfo(obj.Source).Name)
		}
		return nil, err
	}
	var prim engine.Primitive = &engine.Route{
		Source: p.sourceInfo(obj.Source).Name,
		Query:  adapters.NativeQuery{SQL: q.SQL, Args: q.Args, Fields: fields},
	}
	if localDistinct {
		distinctCols := make([]string, len(ra.distinctOn))
		for i, name := range ra.distinctOn {
			distinctCols[i] = plumb[name]
		}
		prim = &engine.Distinct{Input: prim, Columns: distinctCols}
		prim = applyWindow(prim, ra)
	}
	return prim, nil
}

// plumbOrderOf rebuilds a deterministic plumbing order after late
// additions, keeping the existing prefix.
func plumbOrderOf(plumb map[string]string, order []string) []string {
	if len(order) == len(plumb) {
		return order
	}
	have := map[string]bool{}
	for _, n := range order {
		have[n] = true
	}
	var added []string
	for n := range plumb {
		if !have[n] {
			added = append(added, n)
		}
	}
	sort.Strings(added)
	return append(order, added...)
}

// scanLeafNode builds the leaf of a local plan over a source without a
// SQL dialect: a full object scan shaped locally. Column names are the
// source's own keys.
func (p *planner) scanLeafNode(obj *catalog.DataObject, sels []selField, ra readArgs, plumb map[string]string, colAt []engine.ProjCol, colSet []bool) (engine.Primitive, error) {
	var scan []*catalog.Field
	seen := map[string]bool{}
	add := func(fld *catalog.Field) {
		if !seen[fld.Column()] {
			seen[fld.Column()] = true
			scan = append(scan, fld)
		}
	}

	for i := range sels {
		sf := &sels[i]
		switch sf.kind {
		case selTypename:
			colAt[i] = engine.ProjCol{As: sf.alias, Literal: typeNameOf(sf.f, obj.Name), Type: rowset.String}
			colSet[i] = true
		case selHidden:
			colAt[i] = engine.ProjCol{As: sf.alias, Null: true}
			colSet[i] = true
		case selScalar:
			if sf.fld.SQLExpr != "" {
				return nil, lterrors.Errorf(lterrors.CodePlanning, "calculated field %s of %s cannot be read from source %s", sf.f.Name, obj.Name, p.sourceInfo(obj.Source).Name)
			}
			add(sf.fld)
			colAt[i] = p.scalarProj(sf.fld, sf.alias, sf.fld.Column(), sf.f.SelectionSet)
			colSet[i] = true
		case selPart, selMeasure:
			return nil, lterrors.Errorf(lterrors.CodePlanning, "field %s of %s requires a SQL source", sf.f.Name, obj.Name)
		}
	}
	for name := range plumb {
		add(obj.Field(name))
	}
	return p.scanRoute(obj, ra, scan)
}

// scanRoute reads the given fields of a non-SQL object and applies the
// read arguments locally: filters, ordering, distinct and windowing all
// run in the engine.
func (p *planner) scanRoute(obj *catalog.DataObject, ra readArgs, flds []*catalog.Field) (engine.Primitive, error) {
	src := p.sourceInfo(obj.Source)
	if obj.Kind != catalog.Table || obj.ViewSQL != "" {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "view %s requires a SQL source", obj.Name)
	}
	if obj.SoftDelete != nil && !ra.withDeleted {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "soft delete on %s cannot be evaluated on source %s", obj.Name, src.Name)
	}
	if len(ra.viewArgs) > 0 {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "view arguments on %s require a SQL source", obj.Name)
	}

	fields := make([]rowset.Field, 0, len(flds))
	seen := map[string]bool{}
	for _, fld := range flds {
		if seen[fld.Column()] {
			continue
		}
		seen[fld.Column()] = true
		fields = append(fields, rowset.Field{Name: fld.Column(), Type: wireType(fld), List: fld.List})
	}
	if len(fields) == 0 {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "scan of %s selects no columns", obj.Name)
	}

	name := obj.SourceName
	if name == "" {
		name = obj.Name
	}
	var prim engine.Primitive = &engine.Route{
		Source: src.Name,
		Query:  adapters.NativeQuery{Object: name, Fields: fields},
	}

	predicate := mergeFilters(ra.filter, p.grant.RowFilter(obj.ID))
	if len(predicate) > 0 {
		rewritten, err := rewriteScanFilter(obj, predicate)
		if err != nil {
			return nil, err
		}
		prim = &engine.Filter{Input: prim, Predicate: rewritten}
	}
	if len(ra.orderBy) > 0 {
		order := make([]engine.OrderBy, len(ra.orderBy))
		for i, o := range ra.orderBy {
			col, err := scanColumn(obj, o.Field)
			if err != nil {
				return nil, err
			}
			order[i] = engine.OrderBy{Column: col, Desc: o.Direction == "DESC"}
		}
		prim = &engine.MemorySort{Input: prim, OrderBy: order}
	}
	if len(ra.distinctOn) > 0 {
		cols := make([]string, len(ra.distinctOn))
		for i, n := range ra.distinctOn {
			col, err := scanColumn(obj, n)
			if err != nil {
				return nil, err
			}
			cols[i] = col
		}
		prim = &engine.Distinct{Input: prim, Columns: cols}
	}
	return applyWindow(prim, ra), nil
}

func applyWindow(prim engine.Primitive, ra readArgs) engine.Primitive {
	if ra.limit <= 0 && ra.offset <= 0 {
		return prim
	}
	count := int(ra.limit)
	if count == 0 {
		count = -1
	}
	return &engine.Limit{Input: prim, Count: count, Offset: int(ra.offset)}
}

// scanColumn resolves a field reference of the filter and order
// vocabulary to a scanned column name.
func scanColumn(obj *catalog.DataObject, name string) (string, error) {
	fld := obj.Field(name)
	if fld == nil || !fld.IsScalar() || fld.SQLExpr != "" {
		return "", lterrors.Errorf(lterrors.CodePlanning, "filter or order on %s.%s cannot be evaluated locally", obj.Name, name)
	}
	return fld.Column(), nil
}

// rewriteScanFilter maps a filter's field names to source column names
// for local evaluation. Relation subfilters have no rows to correlate
// against and reject.
func rewriteScanFilter(obj *catalog.DataObject, filter map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(filter))
	for key, v := range filter {
		switch key {
		case "_and", "_or":
			items, ok := v.([]any)
			if !ok {
				return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s expects a list of filters", key)
			}
			rewritten := make([]any, len(items))
			for i, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s expects filter objects", key)
				}
				rm, err := rewriteScanFilter(obj, m)
				if err != nil {
					return nil, err
				}
				rewritten[i] = rm
			}
			out[key] = rewritten
		case "_not":
			m, ok := v.(map[string]any)
			if !ok {
				return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "_not expects a filter object")
			}
			rm, err := rewriteScanFilter(obj, m)
			if err != nil {
				return nil, err
			}
			out[key] = rm
		default:
			col, err := scanColumn(obj, key)
			if err != nil {
				return nil, lterrors.Errorf(lterrors.CodePlanning, "filter on %s.%s cannot be evaluated locally", obj.Name, key)
			}
			out[col] = v
		}
	}
	return out, nil
}

// childReadArgs strips the windowing of a to-many relation field off
// the child read: a limit inside the child statement would be global,
// so the merge join applies it per parent key instead. Distinct keys
// get the join fields prepended for the same reason.
func childReadArgs(ra readArgs, keyFields []string) (readArgs, int, int) {
	perKeyLimit, perKeyOffset := int(ra.limit), int(ra.offset)
	ra.limit, ra.offset = 0, 0
	if len(ra.distinctOn) > 0 {
		ra.distinctOn = append(append([]string(nil), keyFields...), ra.distinctOn...)
	}
	return ra, perKeyLimit, perKeyOffset
}

func (p *planner) crossSource(obj *catalog.DataObject, target catalog.ObjectID) bool {
	return p.cat.Object(target).Source != obj.Source
}

// m2mLegs returns the join field chain of a junction traversal seen
// from one side: the outer object's fields, the junction fields facing
// the outer side, the junction fields facing the target, and the
// target's fields.
func m2mLegs(rel *catalog.Relation, reverse bool) (outerOwn, junctionOuter, junctionTarget, targetOwn []string) {
	if reverse {
		return rel.TargetFields, rel.ThroughTargetFields, rel.ThroughSourceFields, rel.SourceFields
	}
	return rel.SourceFields, rel.ThroughSourceFields, rel.ThroughTargetFields, rel.TargetFields
}

func plumbCols(plumb map[string]string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = plumb[n]
	}
	return out
}

// localRelation merges one relation field through an engine join. M2M
// relations route through their junction first: junction rows join the
// target to-one, then attach to parents grouped by the outer leg, and
// the projection unwraps the junction layer away.
func (p *planner) localRelation(prim engine.Primitive, obj *catalog.DataObject, sf *selField, path []string, plumb map[string]string, colAt []engine.ProjCol, colSet []bool, i int) (engine.Primitive, error) {
	rel := p.cat.Relation(sf.bind.Relation)
	reverse := sf.bind.Reverse
	target := rel.OtherSide(reverse)
	toMany := p.relationToMany(rel, reverse)
	childPath := appendPath(path, sf.alias)

	ra, err := p.readArgsOf(sf.f)
	if err != nil {
		return nil, err
	}

	if rel.Kind == catalog.M2MRelation {
		return p.localM2M(prim, obj, sf, rel, reverse, ra, path, plumb, colAt, colSet, i)
	}

	keyFields := rel.OtherFields(reverse)
	childRA, perKeyLimit, perKeyOffset := childReadArgs(ra, keyFields)
	child, err := p.planRead(target, sf.f, childRA, childPath, keyFields)
	if err != nil {
		return nil, err
	}
	join := &engine.Join{
		Left:         prim,
		Right:        child.prim,
		LeftKeys:     plumbCols(plumb, rel.OwnFields(reverse)),
		RightKeys:    child.extraCols,
		As:           sf.alias,
		ToOne:        !toMany,
		Inner:        ra.inner,
		OmitRight:    child.allHidden(),
		PerKeyLimit:  perKeyLimit,
		PerKeyOffset: perKeyOffset,
		Path:         childPath,
		Optional:     p.crossSource(obj, target),
	}
	colAt[i] = engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.JSON, List: toMany, Shape: child.cols}
	colSet[i] = true
	return join, nil
}

// m2mDocCol is the junction-side column the target document travels in
// before the projection unwraps it.
const m2mDocCol = "__m2m"

func (p *planner) localM2M(prim engine.Primitive, obj *catalog.DataObject, sf *selField, rel *catalog.Relation, reverse bool, ra readArgs, path []string, plumb map[string]string, colAt []engine.ProjCol, colSet []bool, i int) (engine.Primitive, error) {
	own, jOuter, jTarget, targetOwn := m2mLegs(rel, reverse)
	target := rel.OtherSide(reverse)
	childPath := appendPath(path, sf.alias)

	childRA, perKeyLimit, perKeyOffset := childReadArgs(ra, targetOwn)
	child, err := p.planRead(target, sf.f, childRA, childPath, targetOwn)
	if err != nil {
		return nil, err
	}

	junctionFields := mergeNames(append([]string(nil), jOuter...), jTarget)
	junction, jcol, err := p.fieldRows(rel.Through, nil, readArgs{}, junctionFields, childPath)
	if err != nil {
		return nil, err
	}
	jOuterCols := renameAll(jcol, jOuter)
	jTargetCols := renameAll(jcol, jTarget)

	inner := &engine.Join{
		Left:      junction,
		Right:     child.prim,
		LeftKeys:  jTargetCols,
		RightKeys: child.extraCols,
		As:        m2mDocCol,
		ToOne:     true,
		Inner:     true,
		OmitRight: child.allHidden(),
		Path:      childPath,
	}
	outer := &engine.Join{
		Left:         prim,
		Right:        inner,
		LeftKeys:     plumbCols(plumb, own),
		RightKeys:    jOuterCols,
		As:           sf.alias,
		Inner:        ra.inner,
		OmitRight:    mergeNames(append([]string(nil), jOuterCols...), jTargetCols),
		PerKeyLimit:  perKeyLimit,
		PerKeyOffset: perKeyOffset,
		Path:         childPath,
		Optional:     p.crossSource(obj, target) || p.crossSource(obj, rel.Through),
	}
	colAt[i] = engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.JSON, List: true, Shape: child.cols, Unwrap: m2mDocCol}
	colSet[i] = true
	return outer, nil
}

func renameAll(rename func(string) string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = rename(n)
	}
	return out
}

// localRelationAgg merges an aggregation companion by grouping the
// target rows on the join key locally and attaching one document per
// parent. A parent without target rows renders null.
func (p *planner) localRelationAgg(prim engine.Primitive, obj *catalog.DataObject, sf *selField, path []string, plumb map[string]string, colAt []engine.ProjCol, colSet []bool, i int) (engine.Primitive, error) {
	rel := p.cat.Relation(sf.bind.Relation)
	if rel.Kind == catalog.FuncCallRelation {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "aggregation over function relation %s is not supported", rel.Name)
	}
	reverse := sf.bind.Reverse
	target := rel.OtherSide(reverse)
	if err := p.grant.CheckObject(target, accessctl.OpSelect); err != nil {
		return nil, err
	}
	childPath := appendPath(path, sf.alias)

	ra, err := p.readArgsOf(sf.f)
	if err != nil {
		return nil, err
	}
	agg, err := p.aggSelection(target, sf.f.SelectionSet)
	if err != nil {
		return nil, err
	}

	keyFields := rel.OtherFields(reverse)
	readFields := mergeNames(append([]string(nil), agg.fields...), keyFields)
	input, rename, err := p.fieldRows(target, sf.f, readArgs{
		filter:      ra.filter,
		viewArgs:    ra.viewArgs,
		withDeleted: ra.withDeleted,
	}, readFields, childPath)
	if err != nil {
		return nil, err
	}

	keys := make([]engine.BucketColumn, len(keyFields))
	keyAliases := make([]string, len(keyFields))
	for k, name := range keyFields {
		alias := p.hiddenName()
		keyAliases[k] = alias
		keys[k] = engine.BucketColumn{Alias: alias, Field: rename(name)}
	}
	grouped := &engine.LocalBucketAggregate{
		Input:   input,
		Keys:    keys,
		Columns: engineAggColumns(agg.cols, rename),
	}
	join := &engine.Join{
		Left:      prim,
		Right:     grouped,
		LeftKeys:  plumbCols(plumb, rel.OwnFields(reverse)),
		RightKeys: keyAliases,
		As:        sf.alias,
		ToOne:     true,
		OmitRight: keyAliases,
		Path:      childPath,
		Optional:  p.crossSource(obj, target),
	}
	colAt[i] = engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.JSON, Shape: agg.shape}
	colSet[i] = true
	return join, nil
}

// localRelationBuckets merges a bucket aggregation companion: the
// target rows group on join key plus bucket keys, order and window
// apply per parent through the join.
func (p *planner) localRelationBuckets(prim engine.Primitive, obj *catalog.DataObject, sf *selField, path []string, plumb map[string]string, colAt []engine.ProjCol, colSet []bool, i int) (engine.Primitive, error) {
	rel := p.cat.Relation(sf.bind.Relation)
	if rel.Kind == catalog.FuncCallRelation {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "aggregation over function relation %s is not supported", rel.Name)
	}
	reverse := sf.bind.Reverse
	target := rel.OtherSide(reverse)
	if err := p.grant.CheckObject(target, accessctl.OpSelect); err != nil {
		return nil, err
	}
	childPath := appendPath(path, sf.alias)

	ra, err := p.readArgsOf(sf.f)
	if err != nil {
		return nil, err
	}
	bs, err := p.bucketSelection(target, sf.f.SelectionSet)
	if err != nil {
		return nil, err
	}
	if err := bs.checkOrder(ra.orderBy); err != nil {
		return nil, err
	}

	keyFields := rel.OtherFields(reverse)
	readFields := mergeNames(append([]string(nil), bs.fields...), keyFields)
	input, rename, err := p.fieldRows(target, sf.f, readArgs{
		filter:      ra.filter,
		viewArgs:    ra.viewArgs,
		withDeleted: ra.withDeleted,
	}, readFields, childPath)
	if err != nil {
		return nil, err
	}

	keyAliases := make([]string, len(keyFields))
	keys := make([]engine.BucketColumn, 0, len(keyFields)+len(bs.keys))
	for k, name := range keyFields {
		alias := p.hiddenName()
		keyAliases[k] = alias
		keys = append(keys, engine.BucketColumn{Alias: alias, Field: rename(name)})
	}
	keys = append(keys, bs.engineKeys(rename)...)

	var right engine.Primitive = &engine.LocalBucketAggregate{
		Input:   input,
		Keys:    keys,
		Columns: engineAggColumns(bs.cols, rename),
	}
	if len(ra.orderBy) > 0 {
		right = &engine.MemorySort{Input: right, OrderBy: memoryOrder(ra.orderBy)}
	}
	join := &engine.Join{
		Left:         prim,
		Right:        right,
		LeftKeys:     plumbCols(plumb, rel.OwnFields(reverse)),
		RightKeys:    keyAliases,
		As:           sf.alias,
		OmitRight:    keyAliases,
		PerKeyLimit:  int(ra.limit),
		PerKeyOffset: int(ra.offset),
		Path:         childPath,
		Optional:     p.crossSource(obj, target),
	}
	colAt[i] = engine.ProjCol{From: sf.alias, As: sf.alias, Type: rowset.JSON, List: true, Shape: bs.shape}
	colSet[i] = true
	return join, nil
}

// localCall merges an HTTP function relation through a batched call
// join. SQL function relations exist only inside their source's own
// statement and cannot execute here.
func (p *planner) localCall(prim engine.Primitive, obj *catalog.DataObject, sf *selField, path []string, plumb map[string]string, colAt []engine.ProjCol, colSet []bool, i int) (engine.Primitive, error) {
	rel := p.cat.Relation(sf.bind.Relation)
	fc := rel.FuncCall
	fn := p.cat.Function(fc.Function)
	if err := p.grant.CheckFunction(fn.ID); err != nil {
		return nil, err
	}
	if fn.Kind != catalog.HTTPFunction {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "function relation %s cannot execute outside a single %s statement", rel.Name, p.sourceInfo(fn.Source).Name)
	}
	childPath := appendPath(path, sf.alias)

	constArgs, err := p.callArgs(fn, sf.f, rel)
	if err != nil {
		return nil, err
	}
	bindings := make(map[string]string, len(fc.Args))
	for argName, fieldName := range fc.Args {
		bindings[argName] = plumb[fieldName]
	}

	var tmplFields []rowset.Field
	var matchFields []string
	scalar := fn.ReturnObject == catalog.NoObject
	col := engine.ProjCol{From: sf.alias, As: sf.alias, List: fn.ReturnsList}

	switch {
	case fn.ReturnObject != catalog.NoObject:
		tmplFields, col.Shape, err = p.callObjectFields(fn.ReturnObject, sf.f.SelectionSet)
		if err != nil {
			return nil, err
		}
		tObj := p.cat.Object(fn.ReturnObject)
		matchFields = make([]string, len(fc.JoinTargetFields))
		for k, name := range fc.JoinTargetFields {
			fld := tObj.Field(name)
			if fld == nil || !fld.IsScalar() {
				return nil, lterrors.Errorf(lterrors.CodePlanning, "join field %s of %s has no column", name, tObj.Name)
			}
			matchFields[k] = fld.Column()
			found := false
			for _, tf := range tmplFields {
				if tf.Name == fld.Column() {
					found = true
					break
				}
			}
			if !found {
				tmplFields = append(tmplFields, rowset.Field{Name: fld.Column(), Type: fld.Scalar, List: fld.List})
			}
		}
		col.Type = rowset.JSON
	case fn.ReturnRowType != "":
		scalar = false
		tmplFields, col.Shape = p.rowTypeFields(fn.ReturnRowType, sf.f.SelectionSet)
		col.Type = rowset.JSON
	default:
		tmplFields = []rowset.Field{{Name: "_result", Type: fn.ReturnScalar}}
		col.Type = fn.ReturnScalar
	}

	cj := &engine.CallJoin{
		Input:  prim,
		Source: p.sourceInfo(fn.Source).Name,
		Template: adapters.NativeQuery{
			Call: &adapters.FunctionCall{
				Name:     fn.Name,
				Method:   fn.HTTPMethod,
				Path:     fn.HTTPPath,
				JSONPath: fn.JSONPath,
				Args:     constArgs,
			},
			Fields: tmplFields,
		},
		Bindings:     bindings,
		As:           sf.alias,
		Scalar:       scalar,
		ToOne:        !fn.ReturnsList,
		MatchColumns: plumbCols(plumb, fc.JoinSourceFields),
		MatchFields:  matchFields,
		Path:         childPath,
		Optional:     fn.Source != obj.Source,
	}
	colAt[i] = col
	colSet[i] = true
	return cj, nil
}

// callObjectFields shapes a scalar-only selection over the object rows
// an HTTP function returns. The call's documents key by source column
// names.
func (p *planner) callObjectFields(objID catalog.ObjectID, sel ast.SelectionSet) ([]rowset.Field, []engine.ProjCol, error) {
	obj := p.cat.Object(objID)
	var fields []rowset.Field
	var cols []engine.ProjCol
	seen := map[string]bool{}
	for _, f := range flattenSelections(sel) {
		alias := fieldAlias(f)
		if f.Name == "__typename" {
			cols = append(cols, engine.ProjCol{As: alias, Literal: typeNameOf(f, obj.Name), Type: rowset.String})
			continue
		}
		if p.grant.HiddenField(objID, f.Name) {
			cols = append(cols, engine.ProjCol{As: alias, Null: true})
			continue
		}
		fld := obj.Field(f.Name)
		if fld == nil || (fld.Scalar == rowset.Unknown && fld.RowTypeName == "") {
			return nil, nil, lterrors.Errorf(lterrors.CodeQueryValidation, "cannot select %s on %s", f.Name, obj.Name)
		}
		if fld.IsRelation() && fld.Scalar == rowset.Unknown {
			return nil, nil, lterrors.Errorf(lterrors.CodePlanning, "relations under function results are not supported: %s.%s", obj.Name, f.Name)
		}
		if !seen[fld.Column()] {
			seen[fld.Column()] = true
			fields = append(fields, rowset.Field{Name: fld.Column(), Type: wireType(fld), List: fld.List})
		}
		cols = append(cols, p.scalarProj(fld, alias, fld.Column(), f.SelectionSet))
	}
	return fields, cols, nil
}

// rowTypeFields shapes a selection over a row-typed function result.
// The response documents key by the type's own field names.
func (p *planner) rowTypeFields(typeName string, sel ast.SelectionSet) ([]rowset.Field, []engine.ProjCol) {
	def := p.snap.Schema.Types[typeName]
	var fields []rowset.Field
	seen := map[string]bool{}
	for _, f := range flattenSelections(sel) {
		if f.Name == "__typename" || seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		typ, list := rowset.JSON, false
		if def != nil {
			if fd := def.Fields.ForName(f.Name); fd != nil {
				typ, list = scalarTypeOf(fd.Type)
			}
		}
		fields = append(fields, rowset.Field{Name: f.Name, Type: typ, List: list})
	}
	return fields, p.rowTypeShape(typeName, sel)
}

// joinFieldsArg reads the parent field list of a _join field.
func (p *planner) joinFieldsArg(f *ast.Field) ([]string, error) {
	v, ok, err := p.argValue(f, "fields")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "_join requires a fields argument")
	}
	names, err := toStringList(v, "fields")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "_join requires at least one field")
	}
	return names, nil
}

// spatialFieldArg reads and validates the geometry field argument of a
// _spatial field against the carrying object.
func (p *planner) spatialFieldArg(obj *catalog.DataObject, f *ast.Field) (string, error) {
	v, ok, err := p.argValue(f, "field")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", lterrors.Errorf(lterrors.CodeQueryValidation, "_spatial requires a field argument")
	}
	name, err := toString(v, "field")
	if err != nil {
		return "", err
	}
	fld := obj.Field(name)
	if fld == nil || fld.Scalar != rowset.Geometry || fld.List {
		return "", lterrors.Errorf(lterrors.CodeQueryValidation, "%s.%s is not a geometry field", obj.Name, name)
	}
	return name, nil
}

// localDynamicJoin merges a _join field: every selected target plans as
// its own branch keyed on the caller-chosen field tuples, and the
// results group under one response object.
func (p *planner) localDynamicJoin(prim engine.Primitive, obj *catalog.DataObject, sf *selField, path []string, plumb map[string]string, colAt []engine.ProjCol, colSet []bool, i int, hidden *[]string) (engine.Primitive, error) {
	parentNames, err := p.joinFieldsArg(sf.f)
	if err != nil {
		return nil, err
	}
	leftKeys := plumbCols(plumb, parentNames)
	childPath := appendPath(path, sf.alias)

	var group []engine.ProjCol
	for _, tf := range flattenSelections(sf.f.SelectionSet) {
		tfAlias := fieldAlias(tf)
		if tf.Name == "__typename" {
			group = append(group, engine.ProjCol{As: tfAlias, Literal: typeNameOf(tf, "_join_targets"), Type: rowset.String})
			continue
		}
		b, ok := p.bindingOf(tf)
		if !ok || b.Kind != compiler.BindJoinTarget {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s is not a join target", tf.Name)
		}
		refsVal, ok, err := p.argValue(tf, "references_fields")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "join target %s requires references_fields", tf.Name)
		}
		refs, err := toStringList(refsVal, "references_fields")
		if err != nil {
			return nil, err
		}
		if len(refs) != len(parentNames) {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "join target %s references %d fields, _join names %d", tf.Name, len(refs), len(parentNames))
		}

		ra, err := p.readArgsOf(tf)
		if err != nil {
			return nil, err
		}
		targetPath := appendPath(childPath, tfAlias)
		childRA, perKeyLimit, perKeyOffset := childReadArgs(ra, refs)
		child, err := p.planRead(b.Object, tf, childRA, targetPath, refs)
		if err != nil {
			return nil, err
		}
		as := p.hiddenName()
		prim = &engine.Join{
			Left:         prim,
			Right:        child.prim,
			LeftKeys:     leftKeys,
			RightKeys:    child.extraCols,
			As:           as,
			Inner:        ra.inner,
			OmitRight:    child.allHidden(),
			PerKeyLimit:  perKeyLimit,
			PerKeyOffset: perKeyOffset,
			Path:         targetPath,
			Optional:     p.crossSource(obj, b.Object),
		}
		*hidden = append(*hidden, as)
		group = append(group, engine.ProjCol{From: as, As: tfAlias, Type: rowset.JSON, List: true, Shape: child.cols})
	}
	colAt[i] = engine.ProjCol{As: sf.alias, Type: rowset.JSON, Group: group}
	colSet[i] = true
	return prim, nil
}

// localSpatial merges a _spatial field: each selected target attaches
// the rows whose geometry satisfies the predicate against the parent's
// geometry, evaluated locally so the two sides may live anywhere.
func (p *planner) localSpatial(prim engine.Primitive, obj *catalog.DataObject, sf *selField, path []string, plumb map[string]string, colAt []engine.ProjCol, colSet []bool, i int, hidden *[]string) (engine.Primitive, error) {
	geomField, err := p.spatialFieldArg(obj, sf.f)
	if err != nil {
		return nil, err
	}
	opName := "INTERSECTS"
	if v, ok, err := p.argValue(sf.f, "type"); err != nil {
		return nil, err
	} else if ok {
		opName, err = toString(v, "type")
		if err != nil {
			return nil, err
		}
	}
	op, err := geoOpOf(opName)
	if err != nil {
		return nil, err
	}
	var buffer float64
	if v, ok, err := p.argValue(sf.f, "buffer"); err != nil {
		return nil, err
	} else if ok {
		buffer, err = toFloat64(v, "buffer")
		if err != nil {
			return nil, err
		}
	}
	childPath := appendPath(path, sf.alias)

	var group []engine.ProjCol
	for _, tf := range flattenSelections(sf.f.SelectionSet) {
		tfAlias := fieldAlias(tf)
		if tf.Name == "__typename" {
			group = append(group, engine.ProjCol{As: tfAlias, Literal: typeNameOf(tf, "_spatial_targets"), Type: rowset.String})
			continue
		}
		b, ok := p.bindingOf(tf)
		if !ok || b.Kind != compiler.BindSpatialTarget {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "%s is not a spatial target", tf.Name)
		}
		tObj := p.cat.Object(b.Object)
		targetField, err := p.spatialFieldArg(tObj, tf)
		if err != nil {
			return nil, err
		}

		ra, err := p.readArgsOf(tf)
		if err != nil {
			return nil, err
		}
		targetPath := appendPath(childPath, tfAlias)
		childRA, perKeyLimit, perKeyOffset := childReadArgs(ra, nil)
		child, err := p.planRead(b.Object, tf, childRA, targetPath, []string{targetField})
		if err != nil {
			return nil, err
		}
		as := p.hiddenName()
		prim = &engine.SpatialJoin{
			Left:         prim,
			Right:        child.prim,
			LeftColumn:   plumb[geomField],
			RightColumn:  child.extraCols[0],
			Op:           op,
			Buffer:       buffer,
			As:           as,
			Inner:        ra.inner,
			OmitRight:    child.allHidden(),
			PerKeyLimit:  perKeyLimit,
			PerKeyOffset: perKeyOffset,
			Path:         targetPath,
			Optional:     p.crossSource(obj, b.Object),
		}
		*hidden = append(*hidden, as)
		group = append(group, engine.ProjCol{From: as, As: tfAlias, Type: rowset.JSON, List: true, Shape: child.cols})
	}
	colAt[i] = engine.ProjCol{As: sf.alias, Type: rowset.JSON, Group: group}
	colSet[i] = true
	return prim, nil
}

// fieldRows reads the named fields of one object as plainly-named
// columns, for local aggregation and junction traversals. The returned
// rename maps a field name to its column in the produced rows.
func (p *planner) fieldRows(objID catalog.ObjectID, f *ast.Field, ra readArgs, names []string, path []string) (engine.Primitive, func(string) string, error) {
	obj := p.cat.Object(objID)
	if len(names) == 0 {
		// A bare row count still needs rows to count.
		names = append([]string(nil), obj.PrimaryKey...)
		if len(names) == 0 {
			for i := range obj.Fields {
				if obj.Fields[i].IsScalar() && obj.Fields[i].SQLExpr == "" {
					names = []string{obj.Fields[i].Name}
					break
				}
			}
		}
		if len(names) == 0 {
			return nil, nil, lterrors.Errorf(lterrors.CodePlanning, "%s has no readable columns", obj.Name)
		}
	}
	flds := make([]*catalog.Field, len(names))
	for i, name := range names {
		fld := obj.Field(name)
		if fld == nil || !fld.IsScalar() {
			return nil, nil, lterrors.Errorf(lterrors.CodePlanning, "field %s of %s has no column", name, obj.Name)
		}
		flds[i] = fld
	}

	if builder, ok := p.builderFor(obj.Source); ok {
		def := sqlgen.SelectDef{
			Object:      objID,
			Filter:      ra.filter,
			Args:        ra.viewArgs,
			WithDeleted: ra.withDeleted,
		}
		fields := make([]rowset.Field, len(flds))
		for i, fld := range flds {
			def.Columns = append(def.Columns, sqlgen.Column{Alias: fld.Name, Field: fld.Name})
			fields[i] = rowset.Field{Name: fld.Name, Type: fld.Scalar, List: fld.List}
		}
		q, err := builder.Select(&def)
		if err != nil {
			if errors.Is(err, sqlgen.ErrUnsupported) {
				return nil, nil, lterrors.Wrapf(err, "read of %s cannot execute on source %s", obj.Name, p.sourceInfo(obj.Source).Name)
			}
			return nil, nil, err
		}
		prim := &engine.Route{
			Source: p.sourceInfo(obj.Source).Name,
			Query:  adapters.NativeQuery{SQL: q.SQL, Args: q.Args, Fields: fields},
		}
		return prim, func(n string) string { return n }, nil
	}

	prim, err := p.scanRoute(obj, ra, flds)
	if err != nil {
		return nil, nil, err
	}
	return prim, func(n string) string {
		if fld := obj.Field(n); fld != nil {
			return fld.Column()
		}
		return n
	}, nil
}
