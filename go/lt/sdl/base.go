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

package sdl

import "github.com/vektah/gqlparser/v2/ast"

// baseSchema declares the custom scalars and the directive grammar every
// catalog is validated against. It is loaded as a built-in source so its
// definitions never show up as catalog objects.
const baseSchema = `
scalar BigInt
scalar Timestamp
scalar Date
scalar JSON
scalar Geometry

"Function hosts SQL and HTTP function declarations added via extend."
type Function {
	_noop: Boolean
}

directive @table(
	name: String!
	is_m2m: Boolean = false
	soft_delete: Boolean = false
	soft_delete_condition: String
	soft_delete_set: String
) on OBJECT

directive @view(name: String!, sql: String) on OBJECT

directive @args(name: String!, required: Boolean = false) on OBJECT

directive @named(name: String!) on ARGUMENT_DEFINITION | INPUT_FIELD_DEFINITION

directive @pk on FIELD_DEFINITION

directive @unique(fields: [String!]!, query_suffix: String) repeatable on OBJECT

directive @sql(exp: String!) on FIELD_DEFINITION

directive @default(
	value: String
	sequence: String
	insert_value: String
	update_value: String
) on FIELD_DEFINITION

directive @field_source(field: String!) on FIELD_DEFINITION

directive @geometry_info(type: String, srid: Int = 4326) on FIELD_DEFINITION

directive @filter_required on OBJECT

directive @dim(size: Int!) on FIELD_DEFINITION

directive @embeddings(model: String, source_field: String) on FIELD_DEFINITION

directive @hypertable on OBJECT

directive @timescale_key on FIELD_DEFINITION

directive @cube on OBJECT

directive @measurement(func: [String!]) on FIELD_DEFINITION

directive @references(
	name: String
	references_name: String!
	source_fields: [String!]!
	references_fields: [String!]!
	query: String
	references_query: String
	is_unique: Boolean = false
) repeatable on OBJECT

directive @field_references(
	references_name: String!
	field: String
	query: String
	references_query: String
	name: String
) on FIELD_DEFINITION

directive @join(
	references_name: String!
	sql: String!
	source_fields: [String!]
	references_fields: [String!]
) on FIELD_DEFINITION

directive @function(
	name: String!
	sql: String
	http_method: String
	http_path: String
	json_path: String
	is_table: Boolean = false
) on FIELD_DEFINITION

directive @function_call(references_name: String!, args: JSON!) on FIELD_DEFINITION

directive @table_function_call_join(
	references_name: String!
	args: JSON!
	source_fields: [String!]
	references_fields: [String!]
) on FIELD_DEFINITION

directive @module(name: String!) on OBJECT

directive @cache(ttl: Int!, key: String, tags: [String!]) on OBJECT

directive @no_cache on OBJECT

directive @invalidate_cache on OBJECT
`

// BaseSource returns the built-in grammar source for schema loading.
func BaseSource() *ast.Source {
	return &ast.Source{
		Name:    "lattice_base.graphql",
		Input:   baseSchema,
		BuiltIn: true,
	}
}

// FunctionTypeName is the reserved type functions extend.
const FunctionTypeName = "Function"
