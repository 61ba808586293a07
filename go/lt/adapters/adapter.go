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

// Package adapters defines the contract between the execution engine
// and concrete data sources, plus the registries that resolve them.
//
// A source type (postgres, mysql, http, file) registers a Factory from
// its package init, database/sql driver style. At schema compile time
// the gate builds one Adapter per configured source and collects them
// in a Registry the engine resolves by source name at run time.
package adapters

import (
	"context"
	"sort"
	"sync"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/log"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

// Adapter executes native queries against one configured data source.
// Implementations are safe for concurrent use.
type Adapter interface {
	// Capabilities reports what the source executes natively. The
	// planner keeps anything beyond them in local fallback.
	Capabilities() catalog.Capabilities

	// Execute runs one native query. Errors carry execution codes,
	// with backend states where the driver exposes them.
	Execute(ctx context.Context, q *NativeQuery) (*rowset.Result, error)

	// Close releases the adapter's connections.
	Close() error
}

// NativeQuery is the unit of work handed to an adapter. SQL adapters
// read SQL and Args, the HTTP adapter reads Call, the file adapter
// reads Object. Fields declares the result columns in selection order;
// adapters coerce driver values against it and fall back to driver
// metadata when it is empty.
type NativeQuery struct {
	SQL  string
	Args []any

	Call *FunctionCall

	Object string

	Fields []rowset.Field

	// Exec marks statements run for their side effects alone. Adapters
	// whose driver separates query and exec paths collect only the
	// affected count for them.
	Exec bool
}

// FunctionCall describes one HTTP-backed function invocation.
type FunctionCall struct {
	Name   string
	Method string
	// Path is the endpoint template, with {arg} placeholders still in
	// place. The adapter substitutes Args into it.
	Path string
	// JSONPath selects the result subdocument from the response body.
	// Empty keeps the whole body.
	JSONPath string
	Args     map[string]any
}

// Config is the materialized data-source record an adapter is built
// from.
type Config struct {
	Name string
	Type string
	// Path locates the source: a DSN for SQL sources, a base URL for
	// HTTP sources, a directory for file sources.
	Path string
}

// Factory builds an adapter for one source type.
type Factory func(ctx context.Context, cfg Config) (Adapter, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a source type available to Build. Meant to be called
// from adapter package init functions; registering a type twice is a
// programming error.
func Register(typ string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[typ]; dup {
		panic("adapters: Register called twice for source type " + typ)
	}
	factories[typ] = f
}

// Build constructs the adapter for cfg.Type.
func Build(ctx context.Context, cfg Config) (Adapter, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition, "source %q: unknown data source type %q", cfg.Name, cfg.Type)
	}
	return f(ctx, cfg)
}

// Registry resolves adapters by source name for one schema snapshot.
// It is populated during schema compile and read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Add registers an adapter under its source name.
func (r *Registry) Add(name string, a Adapter) error {
	if _, dup := r.adapters[name]; dup {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition, "duplicate data source %q", name)
	}
	r.adapters[name] = a
	return nil
}

// Get returns the adapter for a source name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, lterrors.StateErrorf(lterrors.CodeExecution, lterrors.SourceUnreachable, "no adapter for data source %q", name)
	}
	return a, nil
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every adapter, logging failures rather than stopping at
// the first one.
func (r *Registry) Close() {
	for name, a := range r.adapters {
		if err := a.Close(); err != nil {
			log.Warningf("closing adapter for source %q: %v", name, err)
		}
	}
}
