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

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/rowset"
)

// Mutation runs a write statement. Engines with RETURNING hand back
// the written rows directly; otherwise a Returning primitive re-reads
// them after the statement commits. Cache tags invalidate only after
// the write succeeded.
type Mutation struct {
	Source string
	Query  adapters.NativeQuery

	// Returning re-selects the affected rows when the dialect cannot
	// return them from the statement itself.
	Returning Primitive

	// InvalidateTags are purged from both cache tiers after success.
	InvalidateTags []string
}

var _ Primitive = (*Mutation)(nil)

// Execute implements Primitive.
func (m *Mutation) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	adapter, err := ec.Adapters.Get(m.Source)
	if err != nil {
		return nil, err
	}
	q := m.Query
	if len(q.Args) > 0 {
		q.Args = resolveArgs(ec, q.Args)
	}
	res, err := adapter.Execute(ctx, &q)
	if err != nil {
		return nil, err
	}
	if m.Returning != nil {
		returned, err := m.Returning.Execute(ctx, ec)
		if err != nil {
			return nil, err
		}
		returned.RowsAffected = res.RowsAffected
		res = returned
	}
	if len(m.InvalidateTags) > 0 && ec.Cache != nil {
		ec.Cache.Invalidate(ctx, m.InvalidateTags...)
	}
	return res, nil
}

// Description implements Primitive.
func (m *Mutation) Description() PrimitiveDescription {
	other := map[string]any{
		"Source": m.Source,
		"Query":  m.Query.SQL,
	}
	if len(m.InvalidateTags) > 0 {
		other["InvalidateTags"] = m.InvalidateTags
	}
	desc := PrimitiveDescription{
		OperatorType: "Mutation",
		Other:        other,
	}
	if m.Returning != nil {
		desc.Inputs = []PrimitiveDescription{m.Returning.Description()}
	}
	return desc
}
