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

// Package trace wraps opentracing so callers create spans without knowing
// which tracer the embedding process installed. With no tracer installed the
// opentracing noop tracer makes every span free.
package trace

import (
	"context"

	"github.com/opentracing/opentracing-go"
)

// Span represents a unit of work within a trace.
type Span interface {
	// Finish marks the span as complete.
	Finish()
	// Annotate records a key/value pair on the span. It must be called
	// before Finish.
	Annotate(key string, value any)
}

var _ Span = (*openTracingSpan)(nil)

type openTracingSpan struct {
	otSpan opentracing.Span
}

func (s openTracingSpan) Finish() {
	s.otSpan.Finish()
}

func (s openTracingSpan) Annotate(key string, value any) {
	s.otSpan.SetTag(key, value)
}

// NewSpan starts a span as a child of the span in ctx, if any, and returns
// it along with a context carrying it.
func NewSpan(ctx context.Context, label string) (Span, context.Context) {
	otSpan, newCtx := opentracing.StartSpanFromContext(ctx, label)
	return openTracingSpan{otSpan: otSpan}, newCtx
}

// AnnotateSQL records the SQL statement a span is executing.
func AnnotateSQL(span Span, sql string) {
	span.Annotate("sql", sql)
}
