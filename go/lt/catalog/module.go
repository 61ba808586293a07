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

package catalog

import (
	"sort"
	"strings"
)

// Module is one node of the namespace tree. The root module has an
// empty path; a child's path is parent.path + "." + name (or just name
// at the first level). Every object and function belongs to exactly one
// module.
type Module struct {
	Path     string
	Name     string
	Children []*Module

	Objects   []ObjectID
	Functions []FunctionID
}

// Child returns the named child module or nil.
func (m *Module) Child(name string) *Module {
	for _, c := range m.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// moduleSet builds the tree incrementally during catalog construction.
type moduleSet struct {
	root   *Module
	byPath map[string]*Module
}

func newModuleSet() *moduleSet {
	root := &Module{}
	return &moduleSet{root: root, byPath: map[string]*Module{"": root}}
}

// ensure returns the module at path, creating intermediate nodes.
func (s *moduleSet) ensure(path string) *Module {
	if m, ok := s.byPath[path]; ok {
		return m
	}
	parts := strings.Split(path, ".")
	cur := s.root
	for i, name := range parts {
		next := cur.Child(name)
		if next == nil {
			next = &Module{Path: strings.Join(parts[:i+1], "."), Name: name}
			cur.Children = append(cur.Children, next)
			s.byPath[next.Path] = next
		}
		cur = next
	}
	return cur
}

func (s *moduleSet) sortTree() {
	var walk func(*Module)
	walk = func(m *Module) {
		sort.Slice(m.Children, func(i, j int) bool { return m.Children[i].Name < m.Children[j].Name })
		for _, c := range m.Children {
			walk(c)
		}
	}
	walk(s.root)
}

// modulePath combines the source-level module root with an object's
// @module annotation.
func modulePath(sourceModule, objectModule string) string {
	switch {
	case sourceModule == "":
		return objectModule
	case objectModule == "":
		return sourceModule
	default:
		return sourceModule + "." + objectModule
	}
}
