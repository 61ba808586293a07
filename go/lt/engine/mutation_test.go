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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/qcache"
	"github.com/latticeio/lattice/go/rowset"
)

func TestMutationResolvesBindVars(t *testing.T) {
	adapter := &fakeAdapter{res: &rowset.Result{RowsAffected: 2}}
	m := &Mutation{
		Source: "db",
		Query: adapters.NativeQuery{
			SQL:  "UPDATE products SET price = $1 WHERE id = $2",
			Args: []any{BindVar{Name: "price"}, int64(7)},
			Exec: true,
		},
	}
	ec := testContext(t, map[string]adapters.Adapter{"db": adapter})
	ec.Variables["price"] = 19.5

	res, err := m.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.RowsAffected)

	calls := adapter.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, []any{19.5, int64(7)}, calls[0].Args)
	assert.Equal(t, []any{BindVar{Name: "price"}, int64(7)}, m.Query.Args, "the plan keeps its placeholders")
}

func TestMutationReturning(t *testing.T) {
	adapter := &fakeAdapter{res: &rowset.Result{RowsAffected: 1}}
	returning := &fakePrimitive{res: makeResult(
		fieldList(f("id", rowset.Int64), f("name", rowset.String)),
		rowset.Row{int64(5), "widget"},
	)}
	m := &Mutation{
		Source:    "db",
		Query:     adapters.NativeQuery{SQL: "INSERT INTO products ...", Exec: true},
		Returning: returning,
	}
	res, err := m.Execute(context.Background(), testContext(t, map[string]adapters.Adapter{"db": adapter}))
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "widget", res.Rows[0][1])
	assert.Equal(t, uint64(1), res.RowsAffected, "affected count comes from the write, not the re-select")
}

func TestMutationInvalidatesTagsAfterSuccess(t *testing.T) {
	cache := qcache.New(qcache.Config{DefaultTTL: time.Minute})
	seed := func() qcache.Outcome {
		_, outcome, err := cache.Fetch(context.Background(),
			&qcache.Spec{Key: "products-list", Tags: []string{"products"}},
			func(context.Context) ([]byte, error) { return []byte("rows"), nil })
		require.NoError(t, err)
		return outcome
	}
	require.Equal(t, qcache.Computed, seed())
	require.Equal(t, qcache.LocalHit, seed())

	adapter := &fakeAdapter{res: &rowset.Result{RowsAffected: 1}}
	m := &Mutation{
		Source:         "db",
		Query:          adapters.NativeQuery{SQL: "UPDATE ...", Exec: true},
		InvalidateTags: []string{"products"},
	}
	ec := testContext(t, map[string]adapters.Adapter{"db": adapter})
	ec.Cache = cache
	_, err := m.Execute(context.Background(), ec)
	require.NoError(t, err)

	assert.Equal(t, qcache.Computed, seed(), "tagged entries purge after the write")
}

func TestMutationFailureSkipsInvalidation(t *testing.T) {
	cache := qcache.New(qcache.Config{DefaultTTL: time.Minute})
	_, _, err := cache.Fetch(context.Background(),
		&qcache.Spec{Key: "products-list", Tags: []string{"products"}},
		func(context.Context) ([]byte, error) { return []byte("rows"), nil })
	require.NoError(t, err)

	adapter := &fakeAdapter{err: lterrors.NewState(lterrors.CodeExecution, lterrors.UniqueViolation, "duplicate key")}
	m := &Mutation{
		Source:         "db",
		Query:          adapters.NativeQuery{SQL: "INSERT ...", Exec: true},
		InvalidateTags: []string{"products"},
	}
	ec := testContext(t, map[string]adapters.Adapter{"db": adapter})
	ec.Cache = cache

	_, err = m.Execute(context.Background(), ec)
	require.Error(t, err)
	assert.Equal(t, lterrors.UniqueViolation, lterrors.ErrState(err))

	_, outcome, err := cache.Fetch(context.Background(),
		&qcache.Spec{Key: "products-list", Tags: []string{"products"}},
		func(context.Context) ([]byte, error) { return []byte("fresh"), nil })
	require.NoError(t, err)
	assert.Equal(t, qcache.LocalHit, outcome, "a failed write must not purge the cache")
}

func TestMutationReturningFailure(t *testing.T) {
	adapter := &fakeAdapter{res: &rowset.Result{RowsAffected: 1}}
	m := &Mutation{
		Source:    "db",
		Query:     adapters.NativeQuery{SQL: "INSERT ...", Exec: true},
		Returning: &fakePrimitive{err: lterrors.New(lterrors.CodeExecution, "re-select failed")},
	}
	_, err := m.Execute(context.Background(), testContext(t, map[string]adapters.Adapter{"db": adapter}))
	require.Error(t, err)
}
