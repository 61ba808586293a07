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
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/rowset"
)

// FunctionKind separates SQL-backed from HTTP-backed functions.
type FunctionKind int32

const (
	SQLFunction FunctionKind = iota
	HTTPFunction
)

// FunctionArg is one declared argument of a function.
type FunctionArg struct {
	Name     string
	Physical string
	Type     *ast.Type
	Scalar   rowset.Type
	List     bool
	Required bool
	// Default is the declared argument default, nil when absent.
	Default *ast.Value
}

// Function is one callable declared through extend type Function. SQL
// functions push down as select expressions or table functions; HTTP
// functions always execute locally through their adapter.
type Function struct {
	ID   FunctionID
	Name string
	// PhysicalName is the source-side function identifier from
	// @function(name:).
	PhysicalName string
	Source       int32
	Module       string
	Kind         FunctionKind

	// SQL is the call template for SQLFunction, with $arg placeholders.
	SQL string

	HTTPMethod string
	HTTPPath   string
	JSONPath   string

	IsTable bool
	Args    []FunctionArg

	ReturnType *ast.Type
	// ReturnScalar is set when the function returns a scalar value.
	ReturnScalar rowset.Type
	// ReturnObject is the data object a table function returns rows of,
	// NoObject when it returns scalars or row types.
	ReturnObject ObjectID
	// ReturnRowType is the row type name when the function returns a
	// nested structure.
	ReturnRowType string
	ReturnsList   bool
}

// Arg returns the named argument or nil.
func (f *Function) Arg(name string) *FunctionArg {
	for i := range f.Args {
		if f.Args[i].Name == name {
			return &f.Args[i]
		}
	}
	return nil
}
