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

// Package filesource is the adapter for directory-backed sources. Each
// object maps to <name>.json (an array of documents) or <name>.csv (a
// header row plus records) inside the configured directory. Files load
// lazily, stay cached, and reload when the watcher sees them change.
//
// File sources push nothing down and accept no mutations; the engine
// filters, sorts and aggregates their rows locally.
package filesource

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/log"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

func init() {
	adapters.Register("file", func(ctx context.Context, cfg adapters.Config) (adapters.Adapter, error) {
		return New(cfg)
	})
}

// Adapter serves scans over data files in one directory.
type Adapter struct {
	name string
	dir  string

	mu     sync.RWMutex
	tables map[string][]map[string]any

	watcher *fsnotify.Watcher
}

var _ adapters.Adapter = (*Adapter)(nil)

// New verifies the directory and starts the change watcher. A watcher
// that cannot start degrades to loading each file once.
func New(cfg adapters.Config) (*Adapter, error) {
	info, err := os.Stat(cfg.Path)
	if err != nil || !info.IsDir() {
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition, "source %q: %q is not a directory", cfg.Name, cfg.Path)
	}
	a := &Adapter{
		name:   cfg.Name,
		dir:    cfg.Path,
		tables: make(map[string][]map[string]any),
	}
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(cfg.Path)
	}
	if err != nil {
		log.Warningf("file source %q: change watching disabled: %v", cfg.Name, err)
	} else {
		a.watcher = watcher
		go a.watch()
	}
	return a, nil
}

// Capabilities implements adapters.Adapter.
func (a *Adapter) Capabilities() catalog.Capabilities { return catalog.Capabilities{} }

// Close implements adapters.Adapter.
func (a *Adapter) Close() error {
	if a.watcher != nil {
		return a.watcher.Close()
	}
	return nil
}

func (a *Adapter) watch() {
	for {
		select {
		case ev, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				a.invalidate(ev.Name)
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			log.Warningf("file source %q watcher: %v", a.name, err)
		}
	}
}

func (a *Adapter) invalidate(path string) {
	base := filepath.Base(path)
	obj := strings.TrimSuffix(base, filepath.Ext(base))
	a.mu.Lock()
	_, loaded := a.tables[obj]
	delete(a.tables, obj)
	a.mu.Unlock()
	if loaded {
		log.Infof("file source %q: reloading %q after change to %s", a.name, obj, base)
	}
}

// Execute implements adapters.Adapter.
func (a *Adapter) Execute(ctx context.Context, q *adapters.NativeQuery) (*rowset.Result, error) {
	if q.Exec {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "file source %q is read-only", a.name)
	}
	if q.Object == "" {
		return nil, lterrors.New(lterrors.CodePlanning, "file adapter requires an object scan")
	}
	if len(q.Fields) == 0 {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "file source %q: scan of %q declares no columns", a.name, q.Object)
	}
	docs, err := a.load(q.Object)
	if err != nil {
		return nil, err
	}

	result := &rowset.Result{Fields: q.Fields}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, lterrors.Wrap(err, "file source "+a.name)
		}
		row := make(rowset.Row, len(q.Fields))
		for i, f := range q.Fields {
			cv, err := rowset.CoerceValue(f.Type, f.List, doc[f.Name])
			if err != nil {
				return nil, lterrors.Wrapf(err, "file source %q: object %q column %q", a.name, q.Object, f.Name)
			}
			row[i] = cv
		}
		result.AppendRow(row)
	}
	return result, nil
}

func (a *Adapter) load(obj string) ([]map[string]any, error) {
	a.mu.RLock()
	docs, ok := a.tables[obj]
	a.mu.RUnlock()
	if ok {
		return docs, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if docs, ok := a.tables[obj]; ok {
		return docs, nil
	}
	docs, err := a.read(obj)
	if err != nil {
		return nil, err
	}
	a.tables[obj] = docs
	return docs, nil
}

func (a *Adapter) read(obj string) ([]map[string]any, error) {
	if data, err := os.ReadFile(filepath.Join(a.dir, obj+".json")); err == nil {
		return a.readJSON(obj, data)
	}
	if f, err := os.Open(filepath.Join(a.dir, obj + ".csv")); err == nil {
		defer f.Close()
		return a.readCSV(obj, f)
	}
	return nil, lterrors.Errorf(lterrors.CodeExecution, "file source %q: no data file for object %q", a.name, obj)
}

func (a *Adapter) readJSON(obj string, data []byte) ([]map[string]any, error) {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, lterrors.Errorf(lterrors.CodeExecution, "file source %q: %s.json is not a JSON array", a.name, obj)
	}
	elems := parsed.Array()
	docs := make([]map[string]any, 0, len(elems))
	for i, elem := range elems {
		doc, ok := elem.Value().(map[string]any)
		if !ok {
			return nil, lterrors.Errorf(lterrors.CodeExecution, "file source %q: %s.json element %d is not an object", a.name, obj, i)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (a *Adapter) readCSV(obj string, f *os.File) ([]map[string]any, error) {
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, lterrors.Errorf(lterrors.CodeExecution, "file source %q: %s.csv: %v", a.name, obj, err)
	}
	if len(records) == 0 {
		return nil, lterrors.Errorf(lterrors.CodeExecution, "file source %q: %s.csv has no header row", a.name, obj)
	}
	header := records[0]
	docs := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		doc := make(map[string]any, len(header))
		for i, name := range header {
			// CSV cannot express null; empty cells read as nil so
			// typed coercion does not choke on them.
			if rec[i] != "" {
				doc[name] = rec[i]
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
