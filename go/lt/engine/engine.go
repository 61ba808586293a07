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

// Package engine runs compiled query plans. A plan is a tree of
// Primitives: Route leaves execute native queries through adapters,
// merge primitives join, filter, sort and aggregate rows locally, and
// Projection assembles the nested response shape.
//
// Plans are immutable and shared across requests; everything
// per-request travels in the ExecContext.
package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/qcache"
	"github.com/latticeio/lattice/go/rowset"
)

// Primitive is one node of a compiled plan.
type Primitive interface {
	// Execute runs the node and returns its rows. Implementations must
	// not mutate results returned by their inputs beyond what
	// ShallowClone permits.
	Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error)

	// Description describes the node for plan introspection.
	Description() PrimitiveDescription
}

// PrimitiveDescription is the introspectable form of a plan node.
type PrimitiveDescription struct {
	OperatorType string                 `json:"OperatorType"`
	Variant      string                 `json:"Variant,omitempty"`
	Other        map[string]any         `json:"Other,omitempty"`
	Inputs       []PrimitiveDescription `json:"Inputs,omitempty"`
}

// ExecContext carries the per-request state shared by every primitive
// of a plan. It is safe for use from concurrent branches.
type ExecContext struct {
	Adapters  *adapters.Registry
	Cache     *qcache.Cache
	Variables map[string]any
	Role      string
	// QueryText is the raw operation text; derived cache keys hash it
	// together with the variables and the role.
	QueryText string

	mu      sync.Mutex
	partial []PartialError
}

// PartialError records a tolerated branch failure and the response
// path it nulled out.
type PartialError struct {
	Path []string
	Err  error
}

// AddPartial records a branch failure that degraded to null instead of
// failing the request.
func (ec *ExecContext) AddPartial(path []string, err error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.partial = append(ec.partial, PartialError{Path: path, Err: err})
}

// PartialErrors returns the tolerated failures recorded so far.
func (ec *ExecContext) PartialErrors() []PartialError {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]PartialError, len(ec.partial))
	copy(out, ec.partial)
	return out
}

// BindVar defers a native query argument to the request variables, so
// one cached plan serves every variable set.
type BindVar struct {
	Name string
}

// MarshalJSON renders the placeholder as ":name" in plan descriptions.
func (bv BindVar) MarshalJSON() ([]byte, error) {
	return json.Marshal(":" + bv.Name)
}

// resolveArgs replaces BindVar placeholders with request variable
// values. The validator has already established that every referenced
// variable exists.
func resolveArgs(ec *ExecContext, args []any) []any {
	resolved := make([]any, len(args))
	for i, a := range args {
		if bv, ok := a.(BindVar); ok {
			resolved[i] = ec.Variables[bv.Name]
			continue
		}
		resolved[i] = a
	}
	return resolved
}

func resolveArgMap(ec *ExecContext, args map[string]any) map[string]any {
	resolved := make(map[string]any, len(args))
	for name, a := range args {
		if bv, ok := a.(BindVar); ok {
			resolved[name] = ec.Variables[bv.Name]
			continue
		}
		resolved[name] = a
	}
	return resolved
}

// encodedResult is the wire form cached subtree results take.
type encodedResult struct {
	Fields       []rowset.Field `json:"fields"`
	Rows         []rowset.Row   `json:"rows"`
	RowsAffected uint64         `json:"rows_affected,omitempty"`
}

func encodeResult(r *rowset.Result) ([]byte, error) {
	return json.Marshal(encodedResult{Fields: r.Fields, Rows: r.Rows, RowsAffected: r.RowsAffected})
}

// decodeResult restores a cached result. JSON round-trips widen every
// number to float64 and flatten times to strings, so cells are coerced
// back against the declared column types.
func decodeResult(data []byte) (*rowset.Result, error) {
	var enc encodedResult
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, lterrors.Errorf(lterrors.CodeCache, "corrupt cached result: %v", err)
	}
	result := &rowset.Result{Fields: enc.Fields, RowsAffected: enc.RowsAffected}
	for _, row := range enc.Rows {
		out := make(rowset.Row, len(row))
		for i, v := range row {
			if i >= len(enc.Fields) {
				out[i] = v
				continue
			}
			cv, err := rowset.CoerceValue(enc.Fields[i].Type, enc.Fields[i].List, v)
			if err != nil {
				return nil, lterrors.Errorf(lterrors.CodeCache, "corrupt cached result: column %q: %v", enc.Fields[i].Name, err)
			}
			out[i] = cv
		}
		result.AppendRow(out)
	}
	return result, nil
}
