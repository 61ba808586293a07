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

package filesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

func newAdapter(t *testing.T, files map[string]string) (*Adapter, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	a, err := New(adapters.Config{Name: "files", Type: "file", Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, dir
}

func TestNewRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(file, []byte("[]"), 0o644))
	_, err := New(adapters.Config{Name: "files", Path: file})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeSchemaDefinition, lterrors.ErrCode(err))
}

func TestScanJSON(t *testing.T) {
	a, _ := newAdapter(t, map[string]string{
		"products.json": `[
			{"id": 1, "name": "anvil", "price": 12.5, "tags": ["heavy", "iron"], "in_stock": true},
			{"id": 2, "name": "rope", "price": 3, "tags": [], "in_stock": false}
		]`,
	})

	res, err := a.Execute(context.Background(), &adapters.NativeQuery{
		Object: "products",
		Fields: []rowset.Field{
			{Name: "id", Type: rowset.Int64},
			{Name: "name", Type: rowset.String},
			{Name: "price", Type: rowset.Float64},
			{Name: "tags", Type: rowset.String, List: true},
			{Name: "in_stock", Type: rowset.Boolean},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, rowset.Row{int64(1), "anvil", 12.5, []any{"heavy", "iron"}, true}, res.Rows[0])
	assert.Equal(t, rowset.Row{int64(2), "rope", 3.0, []any{}, false}, res.Rows[1])
}

func TestScanCSV(t *testing.T) {
	a, _ := newAdapter(t, map[string]string{
		"warehouses.csv": "id,name,area\n1,North,120.5\n2,,\n",
	})

	res, err := a.Execute(context.Background(), &adapters.NativeQuery{
		Object: "warehouses",
		Fields: []rowset.Field{
			{Name: "id", Type: rowset.Int64},
			{Name: "name", Type: rowset.String},
			{Name: "area", Type: rowset.Float64},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, rowset.Row{int64(1), "North", 120.5}, res.Rows[0])
	// Empty CSV cells read as nulls, not zero values.
	assert.Equal(t, rowset.Row{int64(2), nil, nil}, res.Rows[1])
}

func TestScanErrors(t *testing.T) {
	a, _ := newAdapter(t, map[string]string{
		"broken.json": `{"not": "an array"}`,
	})
	fields := []rowset.Field{{Name: "id", Type: rowset.Int64}}

	_, err := a.Execute(context.Background(), &adapters.NativeQuery{Object: "missing", Fields: fields})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeExecution, lterrors.ErrCode(err))

	_, err = a.Execute(context.Background(), &adapters.NativeQuery{Object: "broken", Fields: fields})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeExecution, lterrors.ErrCode(err))

	_, err = a.Execute(context.Background(), &adapters.NativeQuery{Object: "broken"})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodePlanning, lterrors.ErrCode(err))

	_, err = a.Execute(context.Background(), &adapters.NativeQuery{Object: "broken", Fields: fields, Exec: true})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodePlanning, lterrors.ErrCode(err))
}

func TestInvalidateReloads(t *testing.T) {
	a, dir := newAdapter(t, map[string]string{
		"stock.json": `[{"id": 1}]`,
	})
	fields := []rowset.Field{{Name: "id", Type: rowset.Int64}}
	q := &adapters.NativeQuery{Object: "stock", Fields: fields}

	res, err := a.Execute(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	path := filepath.Join(dir, "stock.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 1}, {"id": 2}]`), 0o644))
	a.invalidate(path)

	res, err = a.Execute(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestWatcherReloads(t *testing.T) {
	a, dir := newAdapter(t, map[string]string{
		"stock.json": `[{"id": 1}]`,
	})
	fields := []rowset.Field{{Name: "id", Type: rowset.Int64}}
	q := &adapters.NativeQuery{Object: "stock", Fields: fields}

	res, err := a.Execute(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "stock.json"), []byte(`[{"id": 1}, {"id": 2}]`), 0o644))
	assert.Eventually(t, func() bool {
		res, err := a.Execute(context.Background(), q)
		return err == nil && len(res.Rows) == 2
	}, 5*time.Second, 10*time.Millisecond)
}
