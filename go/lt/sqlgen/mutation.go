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
	"encoding/json"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// InsertDef inserts one or more rows. Returning columns render through
// RETURNING where the dialect supports it; callers re-select otherwise.
type InsertDef struct {
	Object    catalog.ObjectID
	Rows      []map[string]any
	Returning []Column
}

// UpdateDef updates the rows matching Filter.
type UpdateDef struct {
	Object      catalog.ObjectID
	Set         map[string]any
	Filter      map[string]any
	WithDeleted bool
	Returning   []Column
}

// DeleteDef deletes the rows matching Filter. Objects with a
// soft-delete policy rewrite to an update of the policy's SET clause.
type DeleteDef struct {
	Object      catalog.ObjectID
	Filter      map[string]any
	WithDeleted bool
	Returning   []Column
}

// Insert synthesizes an INSERT statement.
func (b *Builder) Insert(def *InsertDef) (*Query, error) {
	b.aliases = 0
	obj, err := b.mutableObject(def.Object)
	if err != nil {
		return nil, err
	}
	if len(def.Rows) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "insert into %s carries no rows", obj.Name)
	}
	for _, row := range def.Rows {
		if err := b.checkWritable(obj, row); err != nil {
			return nil, err
		}
	}

	fields := b.insertFields(obj, def.Rows)
	if len(fields) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "insert into %s sets no columns", obj.Name)
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, b.d.QuoteIdentifier(f.Column()))
	}

	ib := sq.Insert(b.mutationTable(obj)).Columns(cols...)
	for _, row := range def.Rows {
		vals := make([]any, 0, len(fields))
		for _, f := range fields {
			cell, err := b.insertCell(f, row)
			if err != nil {
				return nil, err
			}
			vals = append(vals, cell)
		}
		ib = ib.Values(vals...)
	}

	if len(def.Returning) > 0 && b.d.SupportsReturning() {
		ret, retArgs, err := b.returningClause(&scope{obj: obj}, def.Returning)
		if err != nil {
			return nil, err
		}
		ib = ib.Suffix("RETURNING "+ret, retArgs...)
	}

	text, args, err := ib.PlaceholderFormat(b.d.PlaceholderFormat()).ToSql()
	if err != nil {
		return nil, lterrors.Wrap(err, "rendering insert")
	}
	return &Query{SQL: text, Args: args}, nil
}

// Update synthesizes an UPDATE statement. Fields with an on-update
// default are touched automatically unless the definition sets them.
func (b *Builder) Update(def *UpdateDef) (*Query, error) {
	b.aliases = 0
	obj, err := b.mutableObject(def.Object)
	if err != nil {
		return nil, err
	}
	if len(def.Set) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "update of %s sets no columns", obj.Name)
	}
	if err := b.checkWritable(obj, def.Set); err != nil {
		return nil, err
	}

	sc := &scope{obj: obj, alias: b.nextAlias()}
	ub := sq.Update(b.mutationTable(obj) + " AS " + sc.alias)

	assigned := 0
	for i := range obj.Fields {
		f := &obj.Fields[i]
		if !b.physical(f) {
			continue
		}
		if v, ok := def.Set[f.Name]; ok {
			cell, err := b.encodeValue(f, v)
			if err != nil {
				return nil, err
			}
			ub = ub.Set(b.d.QuoteIdentifier(f.Column()), cell)
			assigned++
			continue
		}
		if f.Default != nil && f.Default.UpdateExpr != "" {
			ub = ub.Set(b.d.QuoteIdentifier(f.Column()), sq.Expr(f.Default.UpdateExpr))
			assigned++
		}
	}
	if assigned == 0 {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "update of %s sets no columns", obj.Name)
	}

	where, err := b.mutationWhere(sc, def.Filter, def.WithDeleted)
	if err != nil {
		return nil, err
	}
	if where != nil {
		ub = ub.Where(where)
	}

	if len(def.Returning) > 0 && b.d.SupportsReturning() {
		ret, retArgs, err := b.returningClause(sc, def.Returning)
		if err != nil {
			return nil, err
		}
		ub = ub.Suffix("RETURNING "+ret, retArgs...)
	}

	text, args, err := ub.PlaceholderFormat(b.d.PlaceholderFormat()).ToSql()
	if err != nil {
		return nil, lterrors.Wrap(err, "rendering update")
	}
	return &Query{SQL: text, Args: args}, nil
}

// Delete synthesizes a DELETE, or the soft-delete UPDATE rewrite when
// the object carries a policy.
func (b *Builder) Delete(def *DeleteDef) (*Query, error) {
	b.aliases = 0
	obj, err := b.mutableObject(def.Object)
	if err != nil {
		return nil, err
	}
	sc := &scope{obj: obj, alias: b.nextAlias()}

	if obj.SoftDelete != nil {
		return b.softDelete(sc, def)
	}

	db := sq.Delete(b.mutationTable(obj) + " AS " + sc.alias)
	where, err := b.mutationWhere(sc, def.Filter, def.WithDeleted)
	if err != nil {
		return nil, err
	}
	if where != nil {
		db = db.Where(where)
	}
	if len(def.Returning) > 0 && b.d.SupportsReturning() {
		ret, retArgs, err := b.returningClause(sc, def.Returning)
		if err != nil {
			return nil, err
		}
		db = db.Suffix("RETURNING "+ret, retArgs...)
	}
	text, args, err := db.PlaceholderFormat(b.d.PlaceholderFormat()).ToSql()
	if err != nil {
		return nil, lterrors.Wrap(err, "rendering delete")
	}
	return &Query{SQL: text, Args: args}, nil
}

// softDelete renders the policy's SET clause instead of removing rows.
// SET targets stay unqualified; only the WHERE side sees the alias.
func (b *Builder) softDelete(sc *scope, def *DeleteDef) (*Query, error) {
	bare := &scope{obj: sc.obj}
	setSQL, setArgs, err := b.expandTemplate(bare, sc.obj.SoftDelete.Set, 0)
	if err != nil {
		return nil, err
	}

	var s stmt
	s.raw("UPDATE " + b.mutationTable(sc.obj) + " AS " + sc.alias + " SET ")
	s.frag(setSQL, setArgs...)

	where, err := b.mutationWhere(sc, def.Filter, def.WithDeleted)
	if err != nil {
		return nil, err
	}
	if where != nil {
		s.raw(" WHERE ")
		if err := s.sqlizer(where); err != nil {
			return nil, err
		}
	}
	if len(def.Returning) > 0 && b.d.SupportsReturning() {
		ret, retArgs, err := b.returningClause(sc, def.Returning)
		if err != nil {
			return nil, err
		}
		s.raw(" RETURNING ")
		s.frag(ret, retArgs...)
	}
	return s.finish(b.d)
}

func (b *Builder) mutableObject(id catalog.ObjectID) (*catalog.DataObject, error) {
	obj := b.cat.Object(id)
	if src := b.cat.Source(id); src != nil && src.ReadOnly {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "source %s is read only", src.Name)
	}
	if obj.Kind != catalog.Table {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "%s is a %s and cannot be mutated", obj.Name, obj.Kind)
	}
	return obj, nil
}

func (b *Builder) mutationTable(obj *catalog.DataObject) string {
	name := obj.SourceName
	if name == "" {
		name = obj.Name
	}
	return quoteQualified(b.d, name)
}

func (b *Builder) mutationWhere(sc *scope, filter map[string]any, withDeleted bool) (sq.Sqlizer, error) {
	var conds []sq.Sqlizer
	cond, err := b.filterFor(sc, filter)
	if err != nil {
		return nil, err
	}
	if cond != nil {
		conds = append(conds, cond)
	}
	guards, err := b.guardConds(sc, withDeleted)
	if err != nil {
		return nil, err
	}
	return andAll(append(conds, guards...)), nil
}

// checkWritable rejects values aimed at fields no INSERT or UPDATE can
// set: relations, calculated fields, unknown names.
func (b *Builder) checkWritable(obj *catalog.DataObject, values map[string]any) error {
	for _, name := range sortedKeys(values) {
		f := obj.Field(name)
		if f == nil {
			return lterrors.Errorf(lterrors.CodeQueryValidation, "unknown field %q on %s", name, obj.Name)
		}
		if !b.physical(f) {
			return lterrors.Errorf(lterrors.CodeQueryValidation, "field %s.%s cannot be written", obj.Name, f.Name)
		}
	}
	return nil
}

// physical reports whether the field maps to a writable column.
func (b *Builder) physical(f *catalog.Field) bool {
	return f.Scalar != rowset.Unknown && f.SQLExpr == "" && !b.isCallField(f)
}

// insertFields is the column union over all rows plus every field with
// an insert-time default, in declaration order.
func (b *Builder) insertFields(obj *catalog.DataObject, rows []map[string]any) []*catalog.Field {
	var out []*catalog.Field
	for i := range obj.Fields {
		f := &obj.Fields[i]
		if !b.physical(f) {
			continue
		}
		present := false
		for _, row := range rows {
			if _, ok := row[f.Name]; ok {
				present = true
				break
			}
		}
		if !present && f.Default == nil {
			continue
		}
		if !present && f.Default != nil && !f.Default.HasValue &&
			f.Default.Sequence == "" && f.Default.InsertExpr == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// insertCell renders one VALUES cell: the provided value, the field's
// default, or the DEFAULT keyword when the row omits the column.
func (b *Builder) insertCell(f *catalog.Field, row map[string]any) (any, error) {
	if v, ok := row[f.Name]; ok {
		return b.encodeValue(f, v)
	}
	d := f.Default
	switch {
	case d == nil:
		return sq.Expr("DEFAULT"), nil
	case d.Sequence != "":
		expr, err := b.d.SequenceNext(d.Sequence)
		if err != nil {
			return nil, err
		}
		return sq.Expr(expr), nil
	case d.InsertExpr != "":
		return sq.Expr(d.InsertExpr), nil
	case d.HasValue:
		v, err := rowset.CoerceValue(f.Scalar, f.List, d.Value)
		if err != nil {
			return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"default value of %s does not coerce: %v", f.Name, err)
		}
		return b.encodeValue(f, v)
	default:
		return sq.Expr("DEFAULT"), nil
	}
}

// encodeValue prepares one bound value for its column type.
func (b *Builder) encodeValue(f *catalog.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.Scalar == rowset.Geometry && !f.List {
		text, err := geoJSONText(v)
		if err != nil {
			return nil, err
		}
		var srid int64
		if f.GeometryInfo != nil {
			srid = f.GeometryInfo.SRID
		}
		expr, args := b.d.GeometryValue(text, srid)
		return sq.Expr(expr, args...), nil
	}
	if f.List {
		items, ok := v.([]any)
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "field %s expects a list value", f.Name)
		}
		return b.d.BindList(items)
	}
	if f.Scalar == rowset.JSON || f.RowTypeName != "" {
		text, err := json.Marshal(v)
		if err != nil {
			return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "field %s holds an unencodable value: %v", f.Name, err)
		}
		return string(text), nil
	}
	return v, nil
}

// returningClause renders the RETURNING column list. Relation columns
// cannot appear there; callers re-select for those.
func (b *Builder) returningClause(sc *scope, cols []Column) (string, []any, error) {
	p := &selectParts{}
	parts := make([]string, 0, len(cols))
	var args []any
	for i := range cols {
		col := &cols[i]
		if col.Relation != nil || col.RelationAggregate != nil || col.RelationBuckets != nil {
			return "", nil, lterrors.Wrapf(ErrUnsupported, "relation %s in a returning clause", col.Alias)
		}
		expr, cargs, err := b.columnExpr(p, sc, col)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, expr+" AS "+b.d.QuoteIdentifier(col.Alias))
		args = append(args, cargs...)
	}
	return strings.Join(parts, ", "), args, nil
}
