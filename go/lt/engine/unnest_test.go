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

func TestUnnestExplodesLists(t *testing.T) {
	input := &fakePrimitive{res: makeResult(
		fieldList(f("id", rowset.Int64), lf("tags", rowset.String)),
		rowset.Row{int64(1), []any{"red", "blue"}},
		rowset.Row{int64(2), []any{"red"}},
		rowset.Row{int64(3), []any{}},
		rowset.Row{int64(4), nil},
	)}
	u := &Unnest{Input: input, Column: "tags", As: "tag", ElemType: rowset.String}
	res, err := u.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)

	assert.Equal(t, rowset.Field{Name: "tag", Type: rowset.String}, res.Fields[1])
	require.Len(t, res.Rows, 3, "null and empty lists produce no rows")
	assert.Equal(t, rowset.Row{int64(1), "red"}, res.Rows[0])
	assert.Equal(t, rowset.Row{int64(1), "blue"}, res.Rows[1])
	assert.Equal(t, rowset.Row{int64(2), "red"}, res.Rows[2])
}

func TestUnnestKeepsColumnName(t *testing.T) {
	input := &fakePrimitive{res: makeResult(
		fieldList(lf("tags", rowset.String)),
		rowset.Row{[]any{"a"}},
	)}
	u := &Unnest{Input: input, Column: "tags", ElemType: rowset.String}
	res, err := u.Execute(context.Background(), testContext(t, nil))
	require.NoError(t, err)
	assert.Equal(t, "tags", res.Fields[0].Name)
	assert.False(t, res.Fields[0].List)
}

func TestUnnestMissingColumn(t *testing.T) {
	input := &fakePrimitive{res: makeResult(fieldList(f("id", rowset.Int64)), rowset.Row{int64(1)})}
	u := &Unnest{Input: input, Column: "tags", ElemType: rowset.String}
	_, err := u.Execute(context.Background(), testContext(t, nil))
	require.Error(t, err)
}
