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

package compiler

import (
	"strings"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
)

// Namespace type names. The root module maps onto the GraphQL roots;
// nested modules get their own namespace types.
func nsQueryType(modulePath string) string {
	if modulePath == "" {
		return "Query"
	}
	return flatPath(modulePath) + "_module_query"
}

func nsMutationType(modulePath string) string {
	if modulePath == "" {
		return "Mutation"
	}
	return flatPath(modulePath) + "_module_mutation"
}

func nsFunctionType(modulePath string) string {
	if modulePath == "" {
		return "Function"
	}
	return flatPath(modulePath) + "_module_function"
}

func flatPath(modulePath string) string {
	return strings.ReplaceAll(modulePath, ".", "_")
}

func parentPath(modulePath string) string {
	if i := strings.LastIndexByte(modulePath, '.'); i >= 0 {
		return modulePath[:i]
	}
	return ""
}

// Generated type names derive from the object's type name, which the
// schema merge already guarantees to be globally unique.
func filterName(obj *catalog.DataObject) string       { return obj.Name + "_filter" }
func relFilterName(obj *catalog.DataObject) string    { return obj.Name + "_relation_filter" }
func orderByName(obj *catalog.DataObject) string      { return obj.Name + "_order_by" }
func aggResultName(obj *catalog.DataObject) string    { return obj.Name + "_aggregation_result" }
func bucketName(obj *catalog.DataObject) string       { return obj.Name + "_bucket" }
func bucketKeyName(obj *catalog.DataObject) string    { return obj.Name + "_bucket_key" }
func insertInputName(obj *catalog.DataObject) string  { return obj.Name + "_insert_input" }
func updateInputName(obj *catalog.DataObject) string  { return obj.Name + "_update_input" }
func mutationResName(obj *catalog.DataObject) string  { return obj.Name + "_mutation_result" }

// uniqueQueryName builds the by-unique lookup field name. The explicit
// query_suffix replaces the whole generated suffix; otherwise the
// constraint's field list spells it out.
func uniqueQueryName(base string, u *catalog.UniqueConstraint) string {
	if u.QuerySuffix != "" {
		return base + "_" + u.QuerySuffix
	}
	return base + "_by_" + strings.Join(u.Fields, "_")
}

// nameRegistry detects generated-name collisions inside one namespace
// type before any SDL is written, so errors can name both owners.
type nameRegistry struct {
	fields map[string]map[string]string
}

func newNameRegistry() *nameRegistry {
	return &nameRegistry{fields: make(map[string]map[string]string)}
}

func (r *nameRegistry) claim(typeName, field, owner string) error {
	m := r.fields[typeName]
	if m == nil {
		m = make(map[string]string)
		r.fields[typeName] = m
	}
	if prev, ok := m[field]; ok {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"generated field %s.%s for %s collides with %s; disambiguate with a module or a source prefix",
			typeName, field, owner, prev)
	}
	m[field] = owner
	return nil
}
