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

package catalog

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/rowset"
)

// ObjectKind separates tables from plain and parameterized views.
type ObjectKind int32

const (
	Table ObjectKind = iota
	View
	ParameterizedView
)

func (k ObjectKind) String() string {
	switch k {
	case Table:
		return "table"
	case View:
		return "view"
	case ParameterizedView:
		return "parameterized view"
	}
	return "unknown"
}

// GeometryInfo is the @geometry_info annotation.
type GeometryInfo struct {
	Type string
	SRID int64
}

// SoftDelete holds the filter condition applied to reads and the SET
// clause applied instead of DELETE.
type SoftDelete struct {
	Condition string
	Set       string
}

// UniqueConstraint is one @unique group.
type UniqueConstraint struct {
	Fields      []string
	QuerySuffix string
}

// CachePolicy is the object-level @cache annotation.
type CachePolicy struct {
	TTLSeconds int64
	Key        string
	Tags       []string
}

// Default describes how a column value is produced when the mutation
// does not provide one.
type Default struct {
	Value      string
	HasValue   bool
	Sequence   string
	InsertExpr string
	UpdateExpr string
}

// ViewArgs binds a parameterized view to its argument input type.
type ViewArgs struct {
	InputName string
	Required  bool
	// Args maps GraphQL argument names to physical parameter names.
	Args map[string]string
}

// Field is one resolved column, calculated expression or relation slot.
// Exactly one of direct binding (SourceField empty, physical name equals
// Name), SourceField, SQLExpr or Relation produces the value.
type Field struct {
	Name    string
	Type    *ast.Type
	Scalar  rowset.Type
	List    bool
	NonNull bool
	// RowTypeName is set when the field's type is a nested row
	// structure; the value travels as JSON.
	RowTypeName string

	SourceField string
	SQLExpr     string
	Relation    RelationID

	IsPrimaryKey  bool
	GeometryInfo  *GeometryInfo
	IsMeasurement bool
	// MeasurementFuncs is the allowed aggregation set when IsMeasurement.
	MeasurementFuncs []string
	Default          *Default
	TimescaleKey     bool
	DimSize          int64
	EmbeddingsModel  string
}

// Column is the physical identifier the field reads from, meaningless
// for relation and @sql fields.
func (f *Field) Column() string {
	if f.SourceField != "" {
		return f.SourceField
	}
	return f.Name
}

// IsRelation reports whether a relation hangs off the field. True also
// for foreign-key columns, which stay selectable scalars.
func (f *Field) IsRelation() bool { return f.Relation != NoRelation }

// IsScalar reports whether the field holds a plain value the source can
// select directly, including calculated and foreign-key fields.
func (f *Field) IsScalar() bool {
	return f.Scalar != rowset.Unknown && f.RowTypeName == ""
}

// relRef links a query field name on an object to a relation and the
// side the object is on.
type relRef struct {
	id      RelationID
	reverse bool
}

// DataObject is one table, view or parameterized view.
type DataObject struct {
	ID         ObjectID
	Name       string
	SourceName string
	Kind       ObjectKind
	Source     int32
	Module     string

	Fields     []Field
	fieldIndex map[string]int

	PrimaryKey []string
	Uniques    []UniqueConstraint

	SoftDelete     *SoftDelete
	IsM2M          bool
	Cube           bool
	Hypertable     bool
	TimescaleKey   string
	FilterRequired bool

	Cache           *CachePolicy
	NoCache         bool
	InvalidateCache bool

	ViewSQL string
	Args    *ViewArgs

	// Relations lists every relation this object participates in, both
	// sides included.
	Relations []RelationID
	relFields map[string]relRef
}

// Field returns the named field or nil.
func (o *DataObject) Field(name string) *Field {
	i, ok := o.fieldIndex[name]
	if !ok {
		return nil
	}
	return &o.Fields[i]
}

// PKFields returns the primary key fields in key order.
func (o *DataObject) PKFields() []*Field {
	out := make([]*Field, 0, len(o.PrimaryKey))
	for _, name := range o.PrimaryKey {
		out = append(out, o.Field(name))
	}
	return out
}

// ScalarFields returns the fields a plain select can produce, in
// declaration order.
func (o *DataObject) ScalarFields() []*Field {
	var out []*Field
	for i := range o.Fields {
		if o.Fields[i].IsScalar() {
			out = append(out, &o.Fields[i])
		}
	}
	return out
}

// GeometryFields returns fields carrying geometry values.
func (o *DataObject) GeometryFields() []*Field {
	var out []*Field
	for i := range o.Fields {
		if o.Fields[i].Scalar == rowset.Geometry {
			out = append(out, &o.Fields[i])
		}
	}
	return out
}

// QueryFieldRelation reports the relation behind a query field name.
func (o *DataObject) QueryFieldRelation(name string) (RelationID, bool, bool) {
	ref, ok := o.relFields[name]
	if !ok {
		return NoRelation, false, false
	}
	return ref.id, ref.reverse, true
}

// QueryFieldRef names one relation-backed query field on an object.
type QueryFieldRef struct {
	Name     string
	Relation RelationID
	Reverse  bool
}

// QueryFields lists the object's relation query fields sorted by name.
func (o *DataObject) QueryFields() []QueryFieldRef {
	out := make([]QueryFieldRef, 0, len(o.relFields))
	for name, ref := range o.relFields {
		out = append(out, QueryFieldRef{Name: name, Relation: ref.id, Reverse: ref.reverse})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Mutable reports whether mutations are generated for the object.
func (o *DataObject) Mutable(readOnly bool) bool {
	return o.Kind == Table && !readOnly
}
