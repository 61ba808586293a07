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

package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

type stubAdapter struct {
	name   string
	caps   catalog.Capabilities
	closed bool
}

func (s *stubAdapter) Capabilities() catalog.Capabilities { return s.caps }

func (s *stubAdapter) Execute(ctx context.Context, q *NativeQuery) (*rowset.Result, error) {
	return &rowset.Result{}, nil
}

func (s *stubAdapter) Close() error {
	s.closed = true
	return nil
}

func init() {
	Register("stub", func(ctx context.Context, cfg Config) (Adapter, error) {
		return &stubAdapter{name: cfg.Name}, nil
	})
}

func TestBuild(t *testing.T) {
	a, err := Build(context.Background(), Config{Name: "s1", Type: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "s1", a.(*stubAdapter).name)

	_, err = Build(context.Background(), Config{Name: "s2", Type: "oracle"})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeSchemaDefinition, lterrors.ErrCode(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	first := &stubAdapter{name: "alpha"}
	second := &stubAdapter{name: "beta"}
	require.NoError(t, r.Add("alpha", first))
	require.NoError(t, r.Add("beta", second))

	err := r.Add("alpha", &stubAdapter{})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeSchemaDefinition, lterrors.ErrCode(err))

	got, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = r.Get("gamma")
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeExecution, lterrors.ErrCode(err))
	assert.Equal(t, lterrors.SourceUnreachable, lterrors.ErrState(err))

	assert.Equal(t, []string{"alpha", "beta"}, r.Names())

	r.Close()
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}
