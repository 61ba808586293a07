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

import "github.com/latticeio/lattice/go/lt/catalog"

// BindKind says what a generated schema field means to the planner.
type BindKind int8

const (
	BindNone BindKind = iota

	// Namespace descent.
	BindModule     // field leads into a module namespace type
	BindFunctionNS // field leads into a module's function namespace

	// Root operations.
	BindSelect
	BindSelectByPK
	BindSelectUnique
	BindAggregate
	BindBucketAggregate
	BindInsert
	BindUpdate
	BindDelete
	BindFunction
	BindVersion

	// Object type fields.
	BindScalar
	BindRelation
	BindRelationAggregate
	BindRelationBucketAggregate
	BindJoin
	BindSpatial
	BindPart
	BindMeasurement

	// Dynamic join target fields.
	BindJoinTarget
	BindSpatialTarget

	// Aggregation and mutation result structure.
	BindRowsCount
	BindBucketKey
	BindBucketAggs
	BindAffectedRows
	BindReturning
)

func (k BindKind) String() string {
	switch k {
	case BindModule:
		return "module"
	case BindFunctionNS:
		return "function_namespace"
	case BindSelect:
		return "select"
	case BindSelectByPK:
		return "select_by_pk"
	case BindSelectUnique:
		return "select_by_unique"
	case BindAggregate:
		return "aggregate"
	case BindBucketAggregate:
		return "bucket_aggregate"
	case BindInsert:
		return "insert"
	case BindUpdate:
		return "update"
	case BindDelete:
		return "delete"
	case BindFunction:
		return "function"
	case BindVersion:
		return "version"
	case BindScalar:
		return "scalar"
	case BindRelation:
		return "relation"
	case BindRelationAggregate:
		return "relation_aggregate"
	case BindRelationBucketAggregate:
		return "relation_bucket_aggregate"
	case BindJoin:
		return "join"
	case BindSpatial:
		return "spatial"
	case BindPart:
		return "part"
	case BindMeasurement:
		return "measurement"
	case BindJoinTarget:
		return "join_target"
	case BindSpatialTarget:
		return "spatial_target"
	case BindRowsCount:
		return "rows_count"
	case BindBucketKey:
		return "bucket_key"
	case BindBucketAggs:
		return "bucket_aggregations"
	case BindAffectedRows:
		return "affected_rows"
	case BindReturning:
		return "returning"
	default:
		return "none"
	}
}

// Binding ties one generated field to its catalog meaning. Which
// members are set depends on Kind: relations carry Relation/Reverse,
// operations carry Object, functions carry Function, unique lookups
// carry the index of the constraint, scalar and part fields carry the
// column name.
type Binding struct {
	Kind     BindKind
	Object   catalog.ObjectID
	Relation catalog.RelationID
	Reverse  bool
	Function catalog.FunctionID
	Unique   int
	Field    string
	Module   string
}

func bindingKey(typeName, field string) string {
	return typeName + "." + field
}
