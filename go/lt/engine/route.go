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
	"time"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/trace"
	"github.com/latticeio/lattice/go/rowset"
	"github.com/latticeio/lattice/go/stats"
)

var routeLatency = stats.NewTimings(
	"RouteExecuteLatency",
	"Native query round-trip latency by data source",
	"Source")

// Route is a leaf primitive: one native query executed through the
// adapter of its data source.
type Route struct {
	Source string
	Query  adapters.NativeQuery
}

var _ Primitive = (*Route)(nil)

// Execute implements Primitive.
func (r *Route) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	span, ctx := trace.NewSpan(ctx, "engine.Route")
	defer span.Finish()
	span.Annotate("source", r.Source)
	if r.Query.SQL != "" {
		trace.AnnotateSQL(span, r.Query.SQL)
	}
	defer routeLatency.Record(r.Source, time.Now())

	adapter, err := ec.Adapters.Get(r.Source)
	if err != nil {
		return nil, err
	}
	q := r.Query
	if len(q.Args) > 0 {
		q.Args = resolveArgs(ec, q.Args)
	}
	if q.Call != nil {
		call := *q.Call
		call.Args = resolveArgMap(ec, call.Args)
		q.Call = &call
	}
	return adapter.Execute(ctx, &q)
}

// Description implements Primitive.
func (r *Route) Description() PrimitiveDescription {
	other := map[string]any{"Source": r.Source}
	variant := "Scan"
	switch {
	case r.Query.SQL != "":
		variant = "SQL"
		other["Query"] = r.Query.SQL
	case r.Query.Call != nil:
		variant = "Call"
		other["Function"] = r.Query.Call.Name
	default:
		other["Object"] = r.Query.Object
	}
	return PrimitiveDescription{
		OperatorType: "Route",
		Variant:      variant,
		Other:        other,
	}
}
