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

// Distinct keeps the first row seen for each key, like DISTINCT ON
// over sorted input. Nulls compare equal to each other, matching SQL
// DISTINCT.
type Distinct struct {
	Input Primitive
	// Columns form the key. Empty means the whole row.
	Columns []string
}

var _ Primitive = (*Distinct)(nil)

// Execute implements Primitive.
func (d *Distinct) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	input, err := d.Input.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}
	var idx []int
	if len(d.Columns) > 0 {
		idx, err = columnIndexes(input.Fields, d.Columns)
		if err != nil {
			return nil, err
		}
	} else {
		idx = make([]int, len(input.Fields))
		for i := range input.Fields {
			idx[i] = i
		}
	}

	seen := make(map[string]struct{}, len(input.Rows))
	out := &rowset.Result{Fields: input.Fields}
	for _, row := range input.Rows {
		key := rowset.RowKey(row, idx)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.AppendRow(row)
	}
	return out, nil
}

// Description implements Primitive.
func (d *Distinct) Description() PrimitiveDescription {
	other := map[string]any{}
	if len(d.Columns) > 0 {
		other["Columns"] = d.Columns
	}
	return PrimitiveDescription{
		OperatorType: "Distinct",
		Other:        other,
		Inputs:       []PrimitiveDescription{d.Input.Description()},
	}
}
