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

// Package accessctl resolves role specifications from the catalog store
// into per-object grants: which operations a role may run, the row
// filter ANDed into every read and mutation of an object, and the
// fields redacted from results. Roles compile once per schema snapshot;
// requests consult the resolved Grant, never the raw specs.
package accessctl

import (
	"strings"
)

// Op classifies what a request does to an object or function.
type Op int

// Supported operation classes.
const (
	OpSelect Op = iota
	OpInsert
	OpUpdate
	OpDelete
	OpCall
)

var opNames = []string{"select", "insert", "update", "delete", "call"}

// Name returns the lowercase name of the operation, or an empty string
// for an out-of-range value.
func (op Op) Name() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return ""
}

// OpByName returns the operation named by name.
func OpByName(name string) (Op, bool) {
	for i, n := range opNames {
		if n == name {
			return Op(i), true
		}
	}
	return 0, false
}

// RoleSpec is one materialized role record from the catalog store.
type RoleSpec struct {
	Name        string
	Permissions []PermissionSpec
}

// PermissionSpec is one rule of a role. Rules apply in declaration
// order; for each object and operation the last matching rule decides.
type PermissionSpec struct {
	// Object is a module-qualified object or function name. A trailing
	// "*" matches a name prefix; a bare "*" matches everything.
	Object string

	// Ops restricts the rule to the named operations. Empty means all.
	Ops []string

	// Disallow turns the rule into a denial. Denials carry no filter
	// and hide no fields.
	Disallow bool

	// Filter is a row filter in the query filter vocabulary, ANDed
	// into every read and targeted mutation of matched objects.
	Filter map[string]any

	// Hidden names fields redacted from results of matched objects.
	Hidden []string
}

func matchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}
	return pattern == name
}

// qualified builds the module-qualified name rules match against.
func qualified(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}
