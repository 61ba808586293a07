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

package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/rowset"
)

func TestLoadCatalogDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.graphql"), []byte("type B @table(name: \"b\") { id: BigInt! @pk }"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.graphql"), []byte("type A @table(name: \"a\") { id: BigInt! @pk }"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	sources, err := LoadCatalogDir(dir)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "a.graphql", sources[0].Name)
	assert.Equal(t, "b.graphql", sources[1].Name)

	_, err = LoadCatalogDir(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

type fakeCoordinator struct {
	sources    []DataSource
	invalidate func()
}

func (c *fakeCoordinator) CurrentSourceSnapshot(ctx context.Context) ([]DataSource, error) {
	return c.sources, nil
}

func (c *fakeCoordinator) OnSchemaInvalidated(fn func()) {
	c.invalidate = fn
}

func TestRunRecompilesOnInvalidation(t *testing.T) {
	newFake("shop", func(q *adapters.NativeQuery) (*rowset.Result, error) {
		return rowsFor(q), nil
	})
	e := New(Config{})
	t.Cleanup(e.Close)

	coord := &fakeCoordinator{sources: []DataSource{shopSource()}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, coord) }()

	require.Eventually(t, func() bool { return e.SchemaVersion() == 1 },
		5*time.Second, 10*time.Millisecond)
	require.NotNil(t, coord.invalidate)

	coord.invalidate()
	require.Eventually(t, func() bool { return e.SchemaVersion() == 2 },
		5*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
