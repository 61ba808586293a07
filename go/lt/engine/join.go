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

	"golang.org/x/sync/errgroup"

	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// Join merges two branches on a key tuple with an in-memory hash
// table. Matched right rows attach to each left row as a nested
// document column, the same shape pushed-down relation subqueries
// arrive in, so Projection treats both paths identically.
//
// Left row order is preserved; matched right rows keep their source
// order within each key.
type Join struct {
	Left  Primitive
	Right Primitive

	// LeftKeys and RightKeys name the join tuple columns side by side.
	LeftKeys  []string
	RightKeys []string

	// As names the nested column added to left rows.
	As string
	// ToOne attaches a single document instead of a list.
	ToOne bool
	// Inner drops left rows without a match.
	Inner bool
	// OmitRight lists right columns fetched only for joining; they are
	// left out of the attached documents.
	OmitRight []string

	// PerKeyLimit and PerKeyOffset window the matches attached to each
	// left row, the local equivalent of limit and offset on a relation
	// field. Zero PerKeyLimit means unlimited.
	PerKeyLimit  int
	PerKeyOffset int

	// Path is the response path of the joined field, for partial
	// failure reporting. Optional tolerates a failing right branch by
	// nulling the column instead of failing the request.
	Path     []string
	Optional bool
}

var _ Primitive = (*Join)(nil)

// Execute implements Primitive.
func (j *Join) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	left, right, rightFailed, err := j.executeBranches(ctx, ec)
	if err != nil {
		return nil, err
	}

	out := &rowset.Result{
		Fields: appendField(left.Fields, rowset.Field{Name: j.As, Type: rowset.JSON, List: !j.ToOne}),
	}
	if rightFailed {
		if j.Inner {
			return out, nil
		}
		for _, lrow := range left.Rows {
			out.AppendRow(appendCell(lrow, nil))
		}
		return out, nil
	}

	leftIdx, err := columnIndexes(left.Fields, j.LeftKeys)
	if err != nil {
		return nil, err
	}
	rightIdx, err := columnIndexes(right.Fields, j.RightKeys)
	if err != nil {
		return nil, err
	}

	table := make(map[string][]*rowset.Document)
	for _, rrow := range right.Rows {
		key, ok := keyFor(rrow, rightIdx)
		if !ok {
			continue
		}
		table[key] = append(table[key], rowDoc(right.Fields, rrow, j.OmitRight))
	}

	for _, lrow := range left.Rows {
		var matches []*rowset.Document
		if key, ok := keyFor(lrow, leftIdx); ok {
			matches = windowMatches(table[key], j.PerKeyLimit, j.PerKeyOffset)
		}
		if j.ToOne {
			if len(matches) == 0 {
				if j.Inner {
					continue
				}
				out.AppendRow(appendCell(lrow, nil))
				continue
			}
			out.AppendRow(appendCell(lrow, matches[0]))
			continue
		}
		if j.Inner && len(matches) == 0 {
			continue
		}
		docs := make([]any, len(matches))
		for i, d := range matches {
			docs[i] = d
		}
		out.AppendRow(appendCell(lrow, docs))
	}
	return out, nil
}

func (j *Join) executeBranches(ctx context.Context, ec *ExecContext) (left, right *rowset.Result, rightFailed bool, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		left, err = j.Left.Execute(gctx, ec)
		return err
	})
	g.Go(func() error {
		res, err := j.Right.Execute(gctx, ec)
		if err != nil {
			if j.Optional {
				ec.AddPartial(j.Path, err)
				rightFailed = true
				return nil
			}
			return err
		}
		right = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, false, err
	}
	return left, right, rightFailed, nil
}

// Description implements Primitive.
func (j *Join) Description() PrimitiveDescription {
	variant := "Left"
	if j.Inner {
		variant = "Inner"
	}
	return PrimitiveDescription{
		OperatorType: "Join",
		Variant:      variant,
		Other: map[string]any{
			"As":        j.As,
			"LeftKeys":  j.LeftKeys,
			"RightKeys": j.RightKeys,
		},
		Inputs: []PrimitiveDescription{j.Left.Description(), j.Right.Description()},
	}
}

// windowMatches applies the per-key offset and limit to one key's
// match list.
func windowMatches(matches []*rowset.Document, limit, offset int) []*rowset.Document {
	if offset > 0 {
		if offset >= len(matches) {
			return nil
		}
		matches = matches[offset:]
	}
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches
}

func columnIndexes(fields []rowset.Field, names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		found := -1
		for c, f := range fields {
			if f.Name == name {
				found = c
				break
			}
		}
		if found < 0 {
			return nil, lterrors.Errorf(lterrors.CodeExecution, "join column %q missing from input", name)
		}
		idx[i] = found
	}
	return idx, nil
}

// keyFor renders a join key. SQL comparison semantics: a null anywhere
// in the tuple matches nothing.
func keyFor(row rowset.Row, idx []int) (string, bool) {
	for _, c := range idx {
		if row[c] == nil {
			return "", false
		}
	}
	return rowset.RowKey(row, idx), true
}

func rowDoc(fields []rowset.Field, row rowset.Row, omit []string) *rowset.Document {
	doc := rowset.NewDocument()
	for i, f := range fields {
		if contains(omit, f.Name) {
			continue
		}
		doc.Set(f.Name, row[i])
	}
	return doc
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func appendField(fields []rowset.Field, f rowset.Field) []rowset.Field {
	out := make([]rowset.Field, 0, len(fields)+1)
	out = append(out, fields...)
	return append(out, f)
}

func appendCell(row rowset.Row, cell any) rowset.Row {
	out := make(rowset.Row, 0, len(row)+1)
	out = append(out, row...)
	return append(out, cell)
}
