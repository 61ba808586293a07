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

	"github.com/latticeio/lattice/go/rowset"
)

// Unnest explodes a list column into one output row per element,
// duplicating the other columns. Rows whose list is null or empty
// produce no output, matching SQL unnest in a lateral join.
type Unnest struct {
	Input Primitive

	// Column names the list column to explode. As renames the element
	// column; empty keeps the original name.
	Column string
	As     string
	// ElemType is the element type of the exploded column.
	ElemType rowset.Type
}

var _ Primitive = (*Unnest)(nil)

// Execute implements Primitive.
func (u *Unnest) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	input, err := u.Input.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}
	idx, err := columnIndexes(input.Fields, []string{u.Column})
	if err != nil {
		return nil, err
	}
	col := idx[0]

	name := u.As
	if name == "" {
		name = u.Column
	}
	fields := make([]rowset.Field, len(input.Fields))
	copy(fields, input.Fields)
	fields[col] = rowset.Field{Name: name, Type: u.ElemType}

	out := &rowset.Result{Fields: fields}
	for _, row := range input.Rows {
		elems, ok := row[col].([]any)
		if !ok || len(elems) == 0 {
			continue
		}
		for _, elem := range elems {
			exploded := make(rowset.Row, len(row))
			copy(exploded, row)
			exploded[col] = elem
			out.AppendRow(exploded)
		}
	}
	return out, nil
}

// Description implements Primitive.
func (u *Unnest) Description() PrimitiveDescription {
	return PrimitiveDescription{
		OperatorType: "Unnest",
		Other:        map[string]any{"Column": u.Column},
		Inputs:       []PrimitiveDescription{u.Input.Description()},
	}
}
