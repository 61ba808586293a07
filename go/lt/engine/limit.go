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

// Limit drops Offset rows and keeps at most Count. The planner
// resolves both to constants; a plan whose limit comes from a request
// variable is built per request instead of cached.
type Limit struct {
	Input Primitive

	// Count caps the output row count. Negative means unlimited.
	Count  int
	Offset int
}

var _ Primitive = (*Limit)(nil)

// Execute implements Primitive.
func (l *Limit) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	input, err := l.Input.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}
	out := input.ShallowClone()
	if l.Offset > 0 {
		if l.Offset >= len(out.Rows) {
			out.Rows = nil
		} else {
			out.Rows = out.Rows[l.Offset:]
		}
	}
	out.Truncate(l.Count)
	return out, nil
}

// Description implements Primitive.
func (l *Limit) Description() PrimitiveDescription {
	other := map[string]any{}
	if l.Count >= 0 {
		other["Count"] = l.Count
	}
	if l.Offset > 0 {
		other["Offset"] = l.Offset
	}
	return PrimitiveDescription{
		OperatorType: "Limit",
		Other:        other,
		Inputs:       []PrimitiveDescription{l.Input.Description()},
	}
}
