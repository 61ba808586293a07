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
	"sort"
	"strings"

	"github.com/latticeio/lattice/go/rowset"
)

// OrderBy is one sort term.
type OrderBy struct {
	Column string
	Desc   bool
}

// MemorySort orders rows in memory. Nulls sort first ascending, last
// descending. The sort is stable, so pre-sorted input keeps its order
// within equal keys.
type MemorySort struct {
	Input   Primitive
	OrderBy []OrderBy
}

var _ Primitive = (*MemorySort)(nil)

// Execute implements Primitive.
func (m *MemorySort) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	input, err := m.Input.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(m.OrderBy))
	for i, ob := range m.OrderBy {
		cols[i] = ob.Column
	}
	idx, err := columnIndexes(input.Fields, cols)
	if err != nil {
		return nil, err
	}

	out := input.ShallowClone()
	var sortErr error
	sort.SliceStable(out.Rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		a, b := out.Rows[i], out.Rows[j]
		for t, col := range idx {
			c, err := rowset.NullsafeCompare(a[col], b[col])
			if err != nil {
				sortErr = err
				return false
			}
			if c == 0 {
				continue
			}
			if m.OrderBy[t].Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return out, nil
}

// Description implements Primitive.
func (m *MemorySort) Description() PrimitiveDescription {
	terms := make([]string, len(m.OrderBy))
	for i, ob := range m.OrderBy {
		dir := "ASC"
		if ob.Desc {
			dir = "DESC"
		}
		terms[i] = ob.Column + " " + dir
	}
	return PrimitiveDescription{
		OperatorType: "Sort",
		Variant:      "Memory",
		Other:        map[string]any{"OrderBy": strings.Join(terms, ", ")},
		Inputs:       []PrimitiveDescription{m.Input.Description()},
	}
}
