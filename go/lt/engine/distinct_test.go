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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/rowset"
)

func TestDistinctOnColumns(t *testing.T) {
	input := &fakePrimitive{res: makeResult(
		fieldList(f("status", rowset.String), f("id", rowset.Int64)),
		rowset.Row{"open", int64(1)},
		rowset.Row{"open", int64(2)},
		rowset.Row{"closed", int64(3)},
		rowset.Row{"open", int64(4)},
	)}
	d := &Distinct{Input: input, Columns: []string{"status"}}
	res, err := d.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, rowset.Row{"open", int64(1)}, res.Rows[0], "first row per key wins")
	assert.Equal(t, rowset.Row{"closed", int64(3)}, res.Rows[1])
}

func TestDistinctWholeRow(t *testing.T) {
	input := &fakePrimitive{res: makeResult(
		fieldList(f("a", rowset.Int64), f("b", rowset.String)),
		rowset.Row{int64(1), "x"},
		rowset.Row{int64(1), "x"},
		rowset.Row{int64(1), "y"},
	)}
	d := &Distinct{Input: input}
	res, err := d.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestDistinctNullsCompareEqual(t *testing.T) {
	input := &fakePrimitive{res: makeResult(
		fieldList(f("status", rowset.String)),
		rowset.Row{nil},
		rowset.Row{nil},
		rowset.Row{"open"},
	)}
	d := &Distinct{Input: input, Columns: []string{"status"}}
	res, err := d.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}
