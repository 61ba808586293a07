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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/latticeio/lattice/go/lt/accessctl"
	"github.com/latticeio/lattice/go/lt/log"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sdl"
)

// Coordinator is the cluster-coordination surface the reload loop
// consumes. The coordinator itself lives outside this repo.
type Coordinator interface {
	// CurrentSourceSnapshot returns the materialized data-source
	// records to compile.
	CurrentSourceSnapshot(ctx context.Context) ([]DataSource, error)

	// OnSchemaInvalidated registers a callback fired whenever another
	// node changes the stored schema.
	OnSchemaInvalidated(fn func())
}

// Run compiles the coordinator's current sources and then recompiles on
// every invalidation signal until ctx ends. Role specs carry over from
// the most recent CompileSchema. Recompile failures keep the previous
// snapshot serving and are logged.
func (e *Executor) Run(ctx context.Context, coord Coordinator) error {
	reload := make(chan struct{}, 1)
	coord.OnSchemaInvalidated(func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	})

	if err := e.reloadFrom(ctx, coord); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reload:
			if err := e.reloadFrom(ctx, coord); err != nil {
				log.Errorf("schema reload: %v", err)
			}
		}
	}
}

func (e *Executor) reloadFrom(ctx context.Context, coord Coordinator) error {
	sources, err := coord.CurrentSourceSnapshot(ctx)
	if err != nil {
		return lterrors.Wrap(err, "schema reload: reading source snapshot")
	}
	e.mu.Lock()
	roles := e.roles
	e.mu.Unlock()
	return e.CompileSchema(ctx, sources, roles)
}

// watchSettle is how long the catalog watcher waits after the last
// filesystem event before recompiling, so an editor's write-rename
// burst triggers one reload.
const watchSettle = 250 * time.Millisecond

// WatchCatalogDirs recompiles whenever an SDL file under one of the
// sources' catalog directories changes. Each source's Path must be a
// directory holding .graphql documents; LoadCatalogDir reads them at
// every reload, so edits, additions and removals all take effect. The
// call blocks until ctx ends.
//
// This is the development-loop counterpart of Run: production
// deployments reload through a Coordinator instead.
func (e *Executor) WatchCatalogDirs(ctx context.Context, sources []DataSource, roles []accessctl.RoleSpec) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return lterrors.Wrap(err, "catalog watcher")
	}
	defer watcher.Close()
	dirs := make(map[string]bool)
	for i := range sources {
		dir := sources[i].Path
		if dir == "" || dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return lterrors.Wrapf(err, "catalog watcher: %s", dir)
		}
		dirs[dir] = true
	}

	reload := func() {
		loaded := make([]DataSource, len(sources))
		for i, src := range sources {
			cats, err := LoadCatalogDir(src.Path)
			if err != nil {
				log.Errorf("catalog watcher: %v", err)
				return
			}
			src.Catalogs = cats
			loaded[i] = src
		}
		if err := e.CompileSchema(ctx, loaded, roles); err != nil {
			log.Errorf("catalog watcher: recompile: %v", err)
		}
	}
	reload()

	var settle *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".graphql") {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(watchSettle, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warningf("catalog watcher: %v", err)
		}
	}
}

// LoadCatalogDir reads every .graphql document under dir, sorted by
// name so compile order is stable.
func LoadCatalogDir(dir string) ([]sdl.Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition, "catalog dir %s: %v", dir, err)
	}
	var out []sdl.Source
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".graphql") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition, "catalog dir %s: %v", dir, err)
		}
		out = append(out, sdl.Source{Name: entry.Name(), Input: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
