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
	"time"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"golang.org/x/sync/errgroup"

	"github.com/latticeio/lattice/go/cache"
	"github.com/latticeio/lattice/go/lt/engine"
	"github.com/latticeio/lattice/go/lt/log"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/planner"
	"github.com/latticeio/lattice/go/lt/trace"
	"github.com/latticeio/lattice/go/rowset"
	"github.com/latticeio/lattice/go/stats"
)

var (
	requests = stats.NewCountersWithSingleLabel(
		"GateRequests",
		"Requests by operation type",
		"Operation")
	requestErrors = stats.NewCountersWithSingleLabel(
		"GateRequestErrors",
		"Request errors by code",
		"Code")
	latency = stats.NewTimings(
		"GateRequestLatency",
		"End to end request latency",
		"Operation")
)

// Request is one GraphQL request.
type Request struct {
	Query     string
	Variables map[string]any
	// OperationName selects the operation when the document defines
	// several.
	OperationName string
	// Role scopes the request's access. Empty runs unrestricted.
	Role string
}

// Response is the GraphQL response envelope.
type Response struct {
	Data   *rowset.Document `json:"data"`
	Errors gqlerror.List    `json:"errors,omitempty"`
}

// Execute runs one request against the current snapshot. It always
// returns a response: request-level failures arrive as errors with a
// null data document, branch-level failures as errors next to the data
// the rest of the request produced.
func (e *Executor) Execute(ctx context.Context, req *Request) *Response {
	start := time.Now()
	reqID := uuid.NewString()
	span, ctx := trace.NewSpan(ctx, "gate.Execute")
	defer span.Finish()
	span.Annotate("request_id", reqID)
	span.Annotate("role", req.Role)

	st, err := e.acquire()
	if err != nil {
		return errorResponse(err)
	}
	defer st.release()

	planSpan, _ := trace.NewSpan(ctx, "gate.Plan")
	plan, vars, errs := e.plan(st, req)
	planSpan.Finish()
	if len(errs) > 0 {
		for _, gqlErr := range errs {
			requestErrors.Add(errCodeOf(gqlErr), 1)
		}
		return &Response{Errors: errs}
	}

	op := string(plan.Operation)
	requests.Add(op, 1)
	defer latency.Record(op, start)

	ec := &engine.ExecContext{
		Adapters:  st.registry,
		Cache:     e.cache,
		Variables: vars,
		Role:      req.Role,
		QueryText: req.Query,
	}
	// Mutation roots run in document order; query roots scatter.
	serial := plan.Operation == ast.Mutation
	data, fieldErrs := executeFields(ctx, ec, plan.Fields, serial)

	resp := &Response{Data: data, Errors: fieldErrs}
	for _, pe := range ec.PartialErrors() {
		resp.Errors = append(resp.Errors, lterrors.ToGraphQL(pe.Err, lterrors.PathName(pe.Path...)))
	}
	for _, gqlErr := range resp.Errors {
		requestErrors.Add(errCodeOf(gqlErr), 1)
		log.Warningf("request %s: %v", reqID, gqlErr)
	}
	return resp
}

// plan resolves the request to an executable plan and its coerced
// variable values, reusing the plan cache for shareable operations. A
// cache hit skips parsing but still validates the variables against
// the cached operation, since deferred placeholders resolve from them
// at execution time.
func (e *Executor) plan(st *snapshot, req *Request) (*planner.Plan, map[string]any, gqlerror.List) {
	key := planKey{role: req.Role, operation: req.OperationName, query: req.Query}
	if cached, ok := st.plans.Get(key); ok {
		planLookups.Add("hit", 1)
		vars, err := validator.VariableValues(st.snap.Schema, cached.op, req.Variables)
		if err != nil {
			return nil, nil, listOf(err)
		}
		return cached.plan, vars, nil
	}
	planLookups.Add("miss", 1)

	doc, parseErrs := gqlparser.LoadQuery(st.snap.Schema, req.Query)
	if len(parseErrs) > 0 {
		return nil, nil, parseErrs
	}
	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		if req.OperationName == "" {
			return nil, nil, listOf(lterrors.New(lterrors.CodeQueryValidation, "the request must name one of the document's operations"))
		}
		return nil, nil, listOf(lterrors.Errorf(lterrors.CodeQueryValidation, "operation %q is not defined by the document", req.OperationName))
	}

	vars, err := validator.VariableValues(st.snap.Schema, op, req.Variables)
	if err != nil {
		return nil, nil, listOf(err)
	}

	grant, err := st.access.Role(req.Role)
	if err != nil {
		return nil, nil, listOf(err)
	}

	plan, err := planner.Build(st.snap, op, req.Query, vars, grant)
	if err != nil {
		return nil, nil, listOf(err)
	}
	if plan.Cacheable {
		st.plans.Add(key, &planEntry{plan: plan, op: op}, cache.DefaultExpiration)
	}
	return plan, vars, nil
}

// executeFields runs one level of root fields and assembles their
// document. Field order in the document follows the selection; a
// failing field renders null and contributes an error carrying its
// path.
func executeFields(ctx context.Context, ec *engine.ExecContext, fields []planner.PlanField, serial bool) (*rowset.Document, gqlerror.List) {
	values := make([]any, len(fields))
	errs := make([]error, len(fields))

	if serial {
		for i := range fields {
			values[i], errs[i] = executeField(ctx, ec, &fields[i], serial)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i := range fields {
			i := i
			g.Go(func() error {
				values[i], errs[i] = executeField(gctx, ec, &fields[i], serial)
				return nil
			})
		}
		g.Wait()
	}

	doc := rowset.NewDocument()
	var list gqlerror.List
	for i := range fields {
		doc.Set(fields[i].Alias, values[i])
		if errs[i] != nil {
			list = append(list, lterrors.ToGraphQL(errs[i], lterrors.PathName(fields[i].Path...)))
		}
	}
	return doc, list
}

func executeField(ctx context.Context, ec *engine.ExecContext, pf *planner.PlanField, serial bool) (any, error) {
	switch pf.Kind {
	case planner.RenderConstant:
		return pf.Value, nil
	case planner.RenderNamespace:
		doc, errs := executeFields(ctx, ec, pf.Children, serial)
		if len(errs) > 0 {
			// Namespace errors already carry their own paths; surface
			// them without failing the namespace document itself.
			for _, gqlErr := range errs {
				ec.AddPartial(pathStrings(gqlErr.Path), gqlErr)
			}
		}
		return doc, nil
	}

	res, err := pf.Prim.Execute(ctx, ec)
	if err != nil {
		return nil, err
	}
	return renderField(pf, res)
}

// renderField turns a primitive's result rows into the field's response
// value.
func renderField(pf *planner.PlanField, res *rowset.Result) (any, error) {
	switch pf.Kind {
	case planner.RenderList:
		out := make([]any, 0, len(res.Rows))
		for _, row := range res.Rows {
			out = append(out, rowDocument(res.Fields, row))
		}
		return out, nil

	case planner.RenderSingle:
		if len(res.Rows) == 0 {
			return nil, nil
		}
		return rowDocument(res.Fields, res.Rows[0]), nil

	case planner.RenderValue:
		if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
			return nil, nil
		}
		return res.Rows[0][0], nil

	case planner.RenderValueList:
		out := make([]any, 0, len(res.Rows))
		for _, row := range res.Rows {
			if len(row) == 0 {
				out = append(out, nil)
				continue
			}
			out = append(out, row[0])
		}
		return out, nil

	case planner.RenderMutation:
		doc := rowset.NewDocument()
		for _, mc := range pf.Mutation {
			switch {
			case mc.Literal != nil:
				doc.Set(mc.Alias, mc.Literal)
			case mc.Affected:
				doc.Set(mc.Alias, int64(res.RowsAffected))
			case mc.Returning:
				rows := make([]any, 0, len(res.Rows))
				for _, row := range res.Rows {
					rows = append(rows, rowDocument(res.Fields, row))
				}
				doc.Set(mc.Alias, rows)
			}
		}
		return doc, nil
	}
	return nil, lterrors.Errorf(lterrors.CodeExecution, "field %s has no renderable kind", pf.Alias)
}

// rowDocument maps one projected row to its response document. Cells
// are already render-ready; the projection shaped them.
func rowDocument(fields []rowset.Field, row rowset.Row) *rowset.Document {
	doc := rowset.NewDocument()
	for i, f := range fields {
		if i >= len(row) {
			doc.Set(f.Name, nil)
			continue
		}
		doc.Set(f.Name, row[i])
	}
	return doc
}

func errorResponse(err error) *Response {
	requestErrors.Add(lterrors.ErrCode(err).String(), 1)
	return &Response{Errors: listOf(err)}
}

func listOf(err error) gqlerror.List {
	if list, ok := err.(gqlerror.List); ok {
		return list
	}
	return gqlerror.List{lterrors.ToGraphQL(err, nil)}
}

func errCodeOf(gqlErr *gqlerror.Error) string {
	if gqlErr.Extensions != nil {
		if code, ok := gqlErr.Extensions["code"].(string); ok {
			return code
		}
	}
	return lterrors.CodeQueryValidation.String()
}

func pathStrings(path ast.Path) []string {
	out := make([]string, 0, len(path))
	for _, p := range path {
		if name, ok := p.(ast.PathName); ok {
			out = append(out, string(name))
		}
	}
	return out
}
