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

// Package rowset holds the row transport types shared by adapters, the
// execution engine, and the coordinator.
//
// Rows are positional. Cell values are normalized Go values: nil, string,
// int64, float64, bool, time.Time, and for JSON, geometry and nested
// sub-results the generic map[string]any / []any shapes. Adapters are
// responsible for coercing driver values into these via CoerceValue.
package rowset

// Type is the engine-level type of a column.
type Type int32

const (
	Unknown Type = iota
	String
	Int64
	Float64
	BigInt
	Boolean
	Timestamp
	Date
	JSON
	Geometry
)

func (t Type) String() string {
	switch t {
	case String:
		return "String"
	case Int64:
		return "Int"
	case Float64:
		return "Float"
	case BigInt:
		return "BigInt"
	case Boolean:
		return "Boolean"
	case Timestamp:
		return "Timestamp"
	case Date:
		return "Date"
	case JSON:
		return "JSON"
	case Geometry:
		return "Geometry"
	default:
		return "Unknown"
	}
}

// IsNumeric reports whether values of the type order and aggregate as
// numbers.
func (t Type) IsNumeric() bool {
	return t == Int64 || t == Float64 || t == BigInt
}

// IsTemporal reports whether values of the type are instants.
func (t Type) IsTemporal() bool {
	return t == Timestamp || t == Date
}

// Field describes one column of a Result.
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
	// List marks array columns. Cells hold []any.
	List bool `json:"list,omitempty"`
}

// Row is one positional row.
type Row = []any

// Result is a rectangular set of rows plus column metadata. Mutation
// results may carry RowsAffected with no rows.
type Result struct {
	Fields       []Field
	Rows         []Row
	RowsAffected uint64
}

// ColumnIndex returns the index of the named column, or -1.
func (r *Result) ColumnIndex(name string) int {
	for i, f := range r.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// AppendRow adds a row. The caller keeps ownership alignment with Fields.
func (r *Result) AppendRow(row Row) {
	r.Rows = append(r.Rows, row)
}

// Truncate drops all rows beyond limit. Negative limits are ignored.
func (r *Result) Truncate(limit int) {
	if limit >= 0 && len(r.Rows) > limit {
		r.Rows = r.Rows[:limit]
	}
}

// ShallowClone returns a Result sharing rows with r. The engine uses it
// when a primitive needs to reorder or truncate without touching its
// input.
func (r *Result) ShallowClone() *Result {
	out := &Result{
		Fields:       r.Fields,
		RowsAffected: r.RowsAffected,
	}
	out.Rows = make([]Row, len(r.Rows))
	copy(out.Rows, r.Rows)
	return out
}
