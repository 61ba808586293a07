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

func numbered(n int) *fakePrimitive {
	res := &rowset.Result{Fields: fieldList(f("n", rowset.Int64))}
	for i := 1; i <= n; i++ {
		res.AppendRow(rowset.Row{int64(i)})
	}
	return &fakePrimitive{res: res}
}

func TestLimit(t *testing.T) {
	tests := []struct {
		name   string
		count  int
		offset int
		want   []int64
	}{
		{name: "count only", count: 2, want: []int64{1, 2}},
		{name: "offset only", count: -1, offset: 3, want: []int64{4, 5}},
		{name: "count and offset", count: 2, offset: 1, want: []int64{2, 3}},
		{name: "offset past end", count: 2, offset: 9, want: nil},
		{name: "zero count", count: 0, want: nil},
		{name: "unlimited", count: -1, want: []int64{1, 2, 3, 4, 5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := &Limit{Input: numbered(5), Count: tc.count, Offset: tc.offset}
			res, err := l.Execute(context.Background(), testContext(t, nil))
			require.NoError(t, err)
			var got []int64
			for _, row := range res.Rows {
				got = append(got, row[0].(int64))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
