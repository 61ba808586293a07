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
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/rowset"
)

// fakePrimitive replays a fixed result or error and counts calls.
type fakePrimitive struct {
	res *rowset.Result
	err error

	mu    sync.Mutex
	calls int
}

func (f *fakePrimitive) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.res.ShallowClone(), nil
}

func (f *fakePrimitive) Description() PrimitiveDescription {
	return PrimitiveDescription{OperatorType: "Fake"}
}

func (f *fakePrimitive) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAdapter records every native query it receives and answers from
// a fixed result or a callback.
type fakeAdapter struct {
	caps catalog.Capabilities
	res  *rowset.Result
	err  error
	fn   func(q *adapters.NativeQuery) (*rowset.Result, error)

	mu      sync.Mutex
	queries []adapters.NativeQuery
}

func (f *fakeAdapter) Capabilities() catalog.Capabilities { return f.caps }

func (f *fakeAdapter) Execute(ctx context.Context, q *adapters.NativeQuery) (*rowset.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, *q)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(q)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.res.ShallowClone(), nil
}

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) recorded() []adapters.NativeQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]adapters.NativeQuery, len(f.queries))
	copy(out, f.queries)
	return out
}

func testContext(t *testing.T, sources map[string]adapters.Adapter) *ExecContext {
	t.Helper()
	reg := adapters.NewRegistry()
	for name, a := range sources {
		require.NoError(t, reg.Add(name, a))
	}
	return &ExecContext{
		Adapters:  reg,
		Variables: map[string]any{},
		Role:      "user",
	}
}

func makeResult(fields []rowset.Field, rows ...rowset.Row) *rowset.Result {
	res := &rowset.Result{Fields: fields}
	for _, row := range rows {
		res.AppendRow(row)
	}
	return res
}

func fieldList(defs ...rowset.Field) []rowset.Field { return defs }

func f(name string, t rowset.Type) rowset.Field { return rowset.Field{Name: name, Type: t} }

func lf(name string, t rowset.Type) rowset.Field { return rowset.Field{Name: name, Type: t, List: true} }
