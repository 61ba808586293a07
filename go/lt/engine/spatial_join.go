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

	"github.com/latticeio/lattice/go/lt/geo"
	"github.com/latticeio/lattice/go/rowset"
)

// SpatialJoin relates two branches through a geometric predicate
// instead of key equality. Spatial predicates do not hash, so this is
// a nested loop: every left geometry is tested against every right
// geometry. Right geometries are parsed once up front.
//
// A null or unparseable geometry on either side matches nothing.
type SpatialJoin struct {
	Left  Primitive
	Right Primitive

	// LeftColumn and RightColumn name the GeoJSON columns compared.
	LeftColumn  string
	RightColumn string

	Op geo.Op
	// Buffer widens the predicate by a distance in the geometry's
	// coordinate units. Zero compares exactly.
	Buffer float64

	// As names the nested column added to left rows.
	As string
	// ToOne attaches the first match instead of a list.
	ToOne bool
	// Inner drops left rows without a match.
	Inner bool
	// OmitRight lists right columns left out of the attached documents.
	OmitRight []string

	// PerKeyLimit and PerKeyOffset window the matches attached to each
	// left row. Zero PerKeyLimit means unlimited.
	PerKeyLimit  int
	PerKeyOffset int

	Path     []string
	Optional bool
}

var _ Primitive = (*SpatialJoin)(nil)

// Execute implements Primitive.
func (j *SpatialJoin) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	var left, right *rowset.Result
	var rightFailed bool
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

	leftIdx, err := columnIndexes(left.Fields, []string{j.LeftColumn})
	if err != nil {
		return nil, err
	}
	rightIdx, err := columnIndexes(right.Fields, []string{j.RightColumn})
	if err != nil {
		return nil, err
	}

	type rightEntry struct {
		geom *geo.Geometry
		doc  *rowset.Document
	}
	entries := make([]rightEntry, 0, len(right.Rows))
	for _, rrow := range right.Rows {
		g := parseGeometryCell(rrow[rightIdx[0]])
		if g == nil {
			continue
		}
		entries = append(entries, rightEntry{geom: g, doc: rowDoc(right.Fields, rrow, j.OmitRight)})
	}

	for _, lrow := range left.Rows {
		var matches []*rowset.Document
		if lg := parseGeometryCell(lrow[leftIdx[0]]); lg != nil {
			for _, e := range entries {
				if geo.Eval(j.Op, lg, e.geom, j.Buffer) {
					matches = append(matches, e.doc)
					if j.ToOne {
						break
					}
				}
			}
		}
		matches = windowMatches(matches, j.PerKeyLimit, j.PerKeyOffset)
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

// Description implements Primitive.
func (j *SpatialJoin) Description() PrimitiveDescription {
	variant := "Left"
	if j.Inner {
		variant = "Inner"
	}
	other := map[string]any{
		"As":          j.As,
		"Predicate":   j.Op.String(),
		"LeftColumn":  j.LeftColumn,
		"RightColumn": j.RightColumn,
	}
	if j.Buffer != 0 {
		other["Buffer"] = j.Buffer
	}
	return PrimitiveDescription{
		OperatorType: "SpatialJoin",
		Variant:      variant,
		Other:        other,
		Inputs:       []PrimitiveDescription{j.Left.Description(), j.Right.Description()},
	}
}

func parseGeometryCell(cell any) *geo.Geometry {
	m, ok := cell.(map[string]any)
	if !ok {
		return nil
	}
	g, err := geo.Parse(m)
	if err != nil {
		return nil
	}
	return g
}
