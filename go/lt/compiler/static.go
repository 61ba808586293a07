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

import "github.com/latticeio/lattice/go/rowset"

// prelude is the fixed part of every generated schema: custom scalars,
// shared enums, the request-side directives, the per-type filter
// inputs, and the per-type aggregation result objects. The filter
// operator sets are contractual and must not grow or shrink per field
// type.
const prelude = `directive @unnest on FIELD

directive @no_pushdown on FIELD | QUERY

directive @with_deleted on FIELD

directive @cache(ttl: Int, key: String, tags: [String!]) on FIELD | QUERY

directive @no_cache on FIELD | QUERY

directive @invalidate_cache on FIELD | QUERY

scalar BigInt
scalar Timestamp
scalar Date
scalar JSON
scalar Geometry

enum OrderDirection {
  ASC
  DESC
}

enum TimePart {
  YEAR
  QUARTER
  MONTH
  WEEK
  DAY
  HOUR
  MINUTE
  SECOND
  DOW
  DOY
  EPOCH
}

enum SpatialOpType {
  INTERSECTS
  CONTAINS
  WITHIN
  DISJOINT
}

enum MeasurementType {
  AREA
  LENGTH
  PERIMETER
}

enum MeasurementFuncType {
  SUM
  AVG
  MIN
  MAX
  COUNT
}

input StringFilter {
  eq: String
  in: [String!]
  like: String
  ilike: String
  regex: String
  is_null: Boolean
}

input IntFilter {
  eq: Int
  in: [Int!]
  gt: Int
  gte: Int
  lt: Int
  lte: Int
  is_null: Boolean
}

input BigIntFilter {
  eq: BigInt
  in: [BigInt!]
  gt: BigInt
  gte: BigInt
  lt: BigInt
  lte: BigInt
  is_null: Boolean
}

input FloatFilter {
  eq: Float
  in: [Float!]
  gt: Float
  gte: Float
  lt: Float
  lte: Float
  is_null: Boolean
}

input BooleanFilter {
  eq: Boolean
  is_null: Boolean
}

input TimestampFilter {
  eq: Timestamp
  gt: Timestamp
  gte: Timestamp
  lt: Timestamp
  lte: Timestamp
  is_null: Boolean
}

input DateFilter {
  eq: Date
  gt: Date
  gte: Date
  lt: Date
  lte: Date
  is_null: Boolean
}

input GeometryFilter {
  intersects: Geometry
  contains: Geometry
  within: Geometry
  is_null: Boolean
}

input string_array_filter {
  eq: [String!]
  contains: [String!]
  intersects: [String!]
  is_null: Boolean
}

input int_array_filter {
  eq: [Int!]
  contains: [Int!]
  intersects: [Int!]
  is_null: Boolean
}

input bigint_array_filter {
  eq: [BigInt!]
  contains: [BigInt!]
  intersects: [BigInt!]
  is_null: Boolean
}

input float_array_filter {
  eq: [Float!]
  contains: [Float!]
  intersects: [Float!]
  is_null: Boolean
}

input boolean_array_filter {
  eq: [Boolean!]
  contains: [Boolean!]
  intersects: [Boolean!]
  is_null: Boolean
}

input timestamp_array_filter {
  eq: [Timestamp!]
  contains: [Timestamp!]
  intersects: [Timestamp!]
  is_null: Boolean
}

input date_array_filter {
  eq: [Date!]
  contains: [Date!]
  intersects: [Date!]
  is_null: Boolean
}

type int_aggregation {
  count: BigInt!
  sum: BigInt
  avg: Float
  min: Int
  max: Int
  stddev: Float
  variance: Float
  list: [Int]
  any: Int
  last: Int
}

type bigint_aggregation {
  count: BigInt!
  sum: BigInt
  avg: Float
  min: BigInt
  max: BigInt
  stddev: Float
  variance: Float
  list: [BigInt]
  any: BigInt
  last: BigInt
}

type float_aggregation {
  count: BigInt!
  sum: Float
  avg: Float
  min: Float
  max: Float
  stddev: Float
  variance: Float
  list: [Float]
  any: Float
  last: Float
}

type string_aggregation {
  count: BigInt!
  string_agg(separator: String! = ","): String
  list: [String]
  any: String
  last: String
}

type boolean_aggregation {
  count: BigInt!
  bool_and: Boolean
  bool_or: Boolean
}

type timestamp_aggregation {
  count: BigInt!
  min: Timestamp
  max: Timestamp
}

type date_aggregation {
  count: BigInt!
  min: Date
  max: Date
}

`

// filterTypeFor maps a scalar column to its filter input name, "" when
// the type is not filterable (JSON, geometry arrays).
func filterTypeFor(t rowset.Type, list bool) string {
	if list {
		switch t {
		case rowset.String:
			return "string_array_filter"
		case rowset.Int64:
			return "int_array_filter"
		case rowset.BigInt:
			return "bigint_array_filter"
		case rowset.Float64:
			return "float_array_filter"
		case rowset.Boolean:
			return "boolean_array_filter"
		case rowset.Timestamp:
			return "timestamp_array_filter"
		case rowset.Date:
			return "date_array_filter"
		default:
			return ""
		}
	}
	switch t {
	case rowset.String:
		return "StringFilter"
	case rowset.Int64:
		return "IntFilter"
	case rowset.BigInt:
		return "BigIntFilter"
	case rowset.Float64:
		return "FloatFilter"
	case rowset.Boolean:
		return "BooleanFilter"
	case rowset.Timestamp:
		return "TimestampFilter"
	case rowset.Date:
		return "DateFilter"
	case rowset.Geometry:
		return "GeometryFilter"
	default:
		return ""
	}
}

// aggTypeFor maps a scalar column to its aggregation object name, ""
// when the type does not aggregate.
func aggTypeFor(t rowset.Type, list bool) string {
	if list {
		return ""
	}
	switch t {
	case rowset.Int64:
		return "int_aggregation"
	case rowset.BigInt:
		return "bigint_aggregation"
	case rowset.Float64:
		return "float_aggregation"
	case rowset.String:
		return "string_aggregation"
	case rowset.Boolean:
		return "boolean_aggregation"
	case rowset.Timestamp:
		return "timestamp_aggregation"
	case rowset.Date:
		return "date_aggregation"
	default:
		return ""
	}
}
