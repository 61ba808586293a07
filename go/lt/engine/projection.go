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

	"github.com/buger/jsonparser"

	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// ProjCol is one column of the response shape. A leaf renders a typed
// scalar; a column with Shape descends into a nested document, which
// may arrive as a local join document, a decoded JSON object, or a
// raw JSON blob from a source that returns text.
type ProjCol struct {
	// From names the input column, or the document field when the
	// column sits inside a Shape.
	From string
	// As is the output name, the field alias in the response.
	As string

	// Type and List describe the leaf value for rendering. Ignored
	// when Shape is set.
	Type rowset.Type
	List bool

	// Shape projects a nested document column. List then means a list
	// of documents.
	Shape []ProjCol

	// Unwrap descends into the named field of each document before
	// Shape applies, for merges that arrive wrapped in a carrier
	// document (m2m junction rows).
	Unwrap string

	// Group assembles a nested document from sibling input columns of
	// the same row instead of descending into one cell. Aggregation
	// results and dynamic join surfaces project this way.
	Group []ProjCol

	// FromRowsAffected sources the value from the statement's affected
	// row count instead of a column.
	FromRowsAffected bool

	// Literal renders a fixed value instead of reading the row, for
	// __typename and other constant fields.
	Literal any

	// Null renders a literal null, for fields redacted by access
	// control.
	Null bool
}

// Projection assembles the response shape. Field order follows the
// query selection, not the order the source returned columns or JSON
// keys in, and every leaf is rendered to its JSON form.
type Projection struct {
	Input Primitive
	Cols  []ProjCol
}

var _ Primitive = (*Projection)(nil)

// Execute implements Primitive.
func (p *Projection) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	input, err := p.Input.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(input.Fields))
	for i, f := range input.Fields {
		index[f.Name] = i
	}
	fields := make([]rowset.Field, len(p.Cols))
	for i, c := range p.Cols {
		typ := c.Type
		if c.Shape != nil || c.Group != nil {
			typ = rowset.JSON
		}
		if c.FromRowsAffected {
			typ = rowset.BigInt
		}
		fields[i] = rowset.Field{Name: c.As, Type: typ, List: c.List}
	}

	out := &rowset.Result{Fields: fields, RowsAffected: input.RowsAffected}
	for _, row := range input.Rows {
		shaped := make(rowset.Row, len(p.Cols))
		for i := range p.Cols {
			v, err := colValue(&p.Cols[i], row, index, input.RowsAffected)
			if err != nil {
				return nil, err
			}
			shaped[i] = v
		}
		out.AppendRow(shaped)
	}
	return out, nil
}

// colValue computes one output cell from the input row.
func colValue(c *ProjCol, row rowset.Row, index map[string]int, rowsAffected uint64) (any, error) {
	switch {
	case c.Null:
		return nil, nil
	case c.Literal != nil:
		return c.Literal, nil
	case c.FromRowsAffected:
		return int64(rowsAffected), nil
	case c.Group != nil:
		doc := rowset.NewDocument()
		for i := range c.Group {
			gc := &c.Group[i]
			v, err := colValue(gc, row, index, rowsAffected)
			if err != nil {
				return nil, err
			}
			doc.Set(gc.As, v)
		}
		return doc, nil
	}
	ci, ok := index[c.From]
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeExecution, "projection column %q missing from input", c.From)
	}
	return shapeValue(c, row[ci])
}

// Description implements Primitive.
func (p *Projection) Description() PrimitiveDescription {
	names := make([]string, len(p.Cols))
	for i, c := range p.Cols {
		names[i] = c.As
	}
	return PrimitiveDescription{
		OperatorType: "Projection",
		Other:        map[string]any{"Columns": names},
		Inputs:       []PrimitiveDescription{p.Input.Description()},
	}
}

func shapeValue(c *ProjCol, raw any) (any, error) {
	if c.Literal != nil {
		return c.Literal, nil
	}
	if c.Null {
		return nil, nil
	}
	if c.Shape == nil {
		coerced, err := rowset.CoerceValue(c.Type, c.List, raw)
		if err != nil {
			return nil, lterrors.Errorf(lterrors.CodeExecution, "column %q: %v", c.As, err)
		}
		return rowset.RenderValue(c.Type, c.List, coerced), nil
	}
	if raw == nil {
		return nil, nil
	}
	if c.List {
		elems, err := documentElements(raw)
		if err != nil {
			return nil, lterrors.Errorf(lterrors.CodeExecution, "column %q: %v", c.As, err)
		}
		out := make([]any, 0, len(elems))
		for _, elem := range elems {
			if c.Unwrap != "" && elem != nil {
				elem = documentField(elem, c.Unwrap)
			}
			if elem == nil {
				out = append(out, nil)
				continue
			}
			doc, err := shapeDocument(c.Shape, elem)
			if err != nil {
				return nil, err
			}
			out = append(out, doc)
		}
		return out, nil
	}
	if c.Unwrap != "" {
		if raw = documentField(raw, c.Unwrap); raw == nil {
			return nil, nil
		}
	}
	return shapeDocument(c.Shape, raw)
}

func shapeDocument(shape []ProjCol, elem any) (*rowset.Document, error) {
	doc := rowset.NewDocument()
	for i := range shape {
		c := &shape[i]
		if c.Group != nil {
			nested, err := shapeDocument(c.Group, elem)
			if err != nil {
				return nil, err
			}
			doc.Set(c.As, nested)
			continue
		}
		v, err := shapeValue(c, documentField(elem, c.From))
		if err != nil {
			return nil, err
		}
		doc.Set(c.As, v)
	}
	return doc, nil
}

// documentField reads one field out of a nested document cell,
// whichever of its three shapes it arrived in.
func documentField(elem any, name string) any {
	switch d := elem.(type) {
	case *rowset.Document:
		v, _ := d.Get(name)
		return v
	case map[string]any:
		return d[name]
	case []byte:
		raw, t, _, err := jsonparser.Get(d, name)
		if err != nil {
			return nil
		}
		return decodeJSONValue(raw, t)
	}
	return nil
}

func documentElements(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case []byte:
		var elems []any
		_, err := jsonparser.ArrayEach(v, func(value []byte, t jsonparser.ValueType, _ int, _ error) {
			elems = append(elems, decodeJSONValue(value, t))
		})
		if err != nil {
			return nil, err
		}
		return elems, nil
	}
	return nil, lterrors.Errorf(lterrors.CodeExecution, "%T is not a document list", raw)
}

// decodeJSONValue turns a jsonparser value into a cell. Objects and
// arrays stay raw so nested shaping can descend without a full decode.
func decodeJSONValue(raw []byte, t jsonparser.ValueType) any {
	switch t {
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil
		}
		return s
	case jsonparser.Number:
		if n, err := jsonparser.ParseInt(raw); err == nil {
			return n
		}
		f, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return nil
		}
		return f
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return nil
		}
		return b
	case jsonparser.Null:
		return nil
	case jsonparser.Object, jsonparser.Array:
		return raw
	}
	return nil
}
