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

// Package gate is the execution coordinator: the facade an embedding
// transport drives. CompileSchema turns materialized data-source and
// role records into a servable snapshot (catalog, GraphQL schema,
// adapters, access grants), and Execute runs one request against the
// current snapshot end to end: parse, validate, plan, execute, and
// assemble the GraphQL response.
//
// Snapshots swap atomically. Requests in flight keep the snapshot they
// started on; a recompile that fails leaves the previous snapshot
// serving.
//
// Reference adapters register themselves from their package inits, so
// the embedder picks source types by import:
//
//	import (
//		_ "github.com/latticeio/lattice/go/lt/adapters/filesource"
//		_ "github.com/latticeio/lattice/go/lt/adapters/httpapi"
//		_ "github.com/latticeio/lattice/go/lt/adapters/mysql"
//		_ "github.com/latticeio/lattice/go/lt/adapters/postgres"
//	)
package gate

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/cache"
	"github.com/latticeio/lattice/go/lt/accessctl"
	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/compiler"
	"github.com/latticeio/lattice/go/lt/log"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/planner"
	"github.com/latticeio/lattice/go/lt/qcache"
	"github.com/latticeio/lattice/go/lt/sdl"
	"github.com/latticeio/lattice/go/stats"
)

var (
	compiles = stats.NewCountersWithSingleLabel(
		"GateSchemaCompiles",
		"Schema compiles by outcome",
		"Outcome")
	schemaVersion = stats.NewGauge(
		"GateSchemaVersion",
		"Version of the snapshot currently serving")
	planLookups = stats.NewCountersWithSingleLabel(
		"GatePlanCache",
		"Plan cache lookups by outcome",
		"Outcome")
)

// DataSource is the materialized data-source record the catalog store
// hands the gate at compile time.
type DataSource struct {
	Name string
	Type string
	// Path locates the source: a DSN for SQL sources, a base URL for
	// HTTP sources, a directory for file sources.
	Path string

	Prefix   string
	ReadOnly bool
	AsModule bool

	// Catalogs are the SDL documents of the source.
	Catalogs []sdl.Source
}

// Config configures an Executor.
type Config struct {
	// ResultCache configures the two-tier query result cache.
	ResultCache qcache.Config
	// PlanCacheTTL bounds how long a reusable plan is kept. Zero keeps
	// plans until the next schema swap.
	PlanCacheTTL time.Duration
}

// Executor coordinates schema compilation and request execution.
type Executor struct {
	cfg   Config
	cache *qcache.Cache

	mu      sync.Mutex // serializes CompileSchema
	version int64
	roles   []accessctl.RoleSpec

	current atomic.Pointer[snapshot]
}

// snapshot is one servable schema state. Immutable once published.
// refs counts the publisher plus every request holding the snapshot;
// the adapters close when the count drains to zero.
type snapshot struct {
	snap     *compiler.Snapshot
	access   *accessctl.Set
	registry *adapters.Registry
	plans    *cache.Cache[planKey, *planEntry]
	issues   []*sdl.SourceError

	refs atomic.Int64
}

// planEntry pairs a reusable plan with its operation definition, kept
// so cache hits still validate and coerce the request's variables.
type planEntry struct {
	plan *planner.Plan
	op   *ast.OperationDefinition
}

// retain takes a reference. It fails once the count has drained to
// zero, which only happens after the snapshot was replaced.
func (st *snapshot) retain() bool {
	for {
		n := st.refs.Load()
		if n == 0 {
			return false
		}
		if st.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (st *snapshot) release() {
	if st.refs.Add(-1) == 0 {
		st.registry.Close()
	}
}

type planKey struct {
	role      string
	operation string
	query     string
}

func (k planKey) Key() string {
	h := xxhash.New()
	h.WriteString(k.role)
	h.Write([]byte{0})
	h.WriteString(k.operation)
	h.Write([]byte{0})
	h.WriteString(k.query)
	return strconv.FormatUint(h.Sum64(), 16)
}

// New builds an Executor. No schema is loaded yet; Execute fails until
// the first successful CompileSchema.
func New(cfg Config) *Executor {
	return &Executor{
		cfg:   cfg,
		cache: qcache.New(cfg.ResultCache),
	}
}

// CompileSchema builds a new snapshot from the source and role records
// and atomically swaps it in. Sources whose adapters or catalogs fail
// are excluded and reported through CompileIssues; the rest still
// compile, so one broken catalog never takes the others down. A failure
// compiling the surviving set leaves the previous snapshot serving and
// returns the error.
//
// The replaced snapshot's adapters close once the last request still
// holding it finishes.
func (e *Executor) CompileSchema(ctx context.Context, sources []DataSource, roles []accessctl.RoleSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	registry := adapters.NewRegistry()
	var issues []*sdl.SourceError
	cfgs := make([]catalog.SourceConfig, 0, len(sources))
	for _, src := range sources {
		a, err := adapters.Build(ctx, adapters.Config{Name: src.Name, Type: src.Type, Path: src.Path})
		if err != nil {
			log.Warningf("schema compile: excluding source %q: %v", src.Name, err)
			issues = append(issues, &sdl.SourceError{DataSource: src.Name, Err: err})
			continue
		}
		if err := registry.Add(src.Name, a); err != nil {
			a.Close()
			registry.Close()
			return err
		}
		cfgs = append(cfgs, catalog.SourceConfig{
			Name:         src.Name,
			Type:         src.Type,
			Prefix:       src.Prefix,
			ReadOnly:     src.ReadOnly,
			AsModule:     src.AsModule,
			Capabilities: a.Capabilities(),
			Catalogs:     src.Catalogs,
		})
	}

	res := catalog.Build(cfgs)
	for _, fail := range res.Failed {
		log.Warningf("schema compile: excluding source %q: %v", fail.DataSource, fail)
		issues = append(issues, fail)
	}

	version := e.version + 1
	snap, err := compiler.Compile(res.Catalog, version)
	if err != nil {
		registry.Close()
		compiles.Add("error", 1)
		return err
	}
	access, err := accessctl.Compile(res.Catalog, roles)
	if err != nil {
		registry.Close()
		compiles.Add("error", 1)
		return err
	}

	next := &snapshot{
		snap:     snap,
		access:   access,
		registry: registry,
		plans: cache.New[planKey, *planEntry](cache.Config{
			DefaultExpiration: e.cfg.PlanCacheTTL,
		}),
		issues: issues,
	}
	next.refs.Store(1)
	prev := e.current.Swap(next)
	e.version = version
	e.roles = append([]accessctl.RoleSpec(nil), roles...)
	schemaVersion.Set(version)
	compiles.Add("ok", 1)
	log.Infof("schema compile: serving version %d with sources %v", version, registry.Names())

	if prev != nil {
		prev.release()
	}
	return nil
}

// CompileIssues reports the sources the current snapshot excluded.
func (e *Executor) CompileIssues() []*sdl.SourceError {
	st := e.current.Load()
	if st == nil {
		return nil
	}
	return st.issues
}

// SchemaVersion returns the version of the snapshot currently serving,
// zero before the first compile.
func (e *Executor) SchemaVersion() int64 {
	st := e.current.Load()
	if st == nil {
		return 0
	}
	return st.snap.Version
}

// InvalidateCache purges the tagged entries from both result cache
// tiers, the hook a cluster coordinator calls on external writes.
func (e *Executor) InvalidateCache(ctx context.Context, tags ...string) {
	e.cache.Invalidate(ctx, tags...)
}

// Close releases the current snapshot's adapters once in-flight
// requests finish.
func (e *Executor) Close() {
	if st := e.current.Swap(nil); st != nil {
		st.release()
	}
}

// acquire takes a reference on the current snapshot for the duration of
// one request. The caller must release it.
func (e *Executor) acquire() (*snapshot, error) {
	for {
		st := e.current.Load()
		if st == nil {
			return nil, lterrors.New(lterrors.CodeExecution, "no schema compiled")
		}
		// A swap between the load and the retain can drain the
		// snapshot; retry against the new one.
		if st.retain() {
			return st, nil
		}
	}
}
