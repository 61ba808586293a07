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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sdl"
)

const shopSchema = `
enum ProductStatus {
  DRAFT
  ACTIVE
  RETIRED
}

type Dimensions {
  w: Float
  h: Float
}

type Category @table(name: "categories") {
  id: BigInt! @pk
  name: String!
}

type Product @table(name: "products")
  @unique(fields: ["sku"])
  @unique(fields: ["name"], query_suffix: "named") {
  id: BigInt! @pk @default(sequence: "products_id_seq")
  sku: String!
  name: String!
  status: ProductStatus
  price: Float
  labels: [String]
  dims: Dimensions
  created_at: Timestamp @default(insert_value: "now()")
  category_id: BigInt @field_references(references_name: "Category", query: "category", references_query: "products")
  margin: Float @sql(exp: "[price] * 0.2")
}

type Tag @table(name: "tags") {
  id: BigInt! @pk
  name: String!
}

type ProductTag @table(name: "product_tags", is_m2m: true) {
  product_id: BigInt! @pk @field_references(references_name: "Product", references_query: "tags")
  tag_id: BigInt! @pk @field_references(references_name: "Tag", references_query: "products")
}

type DailySales @table(name: "daily_sales") @cube @filter_required {
  day: Date! @pk
  category_id: BigInt! @pk @field_references(references_name: "Category", query: "sales_category", references_query: "daily_sales")
  amount: Float @measurement(func: ["SUM", "AVG"])
}

input ReportArgs {
  from: Timestamp! @named(name: "p_from")
  to: Timestamp
}

type Sales @view(name: "sales_report", sql: "SELECT * FROM report($p_from, $to)") @args(name: "ReportArgs", required: true) {
  day: Date
  total: Float
}

extend type Function {
  rating(product_id: BigInt! @named(name: "pid"), window: Int = 30): Float
    @function(name: "product_rating", sql: "SELECT avg_rating($pid, $window)")
}

extend type Product {
  rating: Float @function_call(references_name: "rating", args: {product_id: "id"})
}
`

const geoSchema = `
type Region @table(name: "regions") {
  id: BigInt! @pk
  name: String!
  boundary: Geometry @geometry_info(type: "POLYGON", srid: 4326)
}
`

func buildCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	res := catalog.Build([]catalog.SourceConfig{{
		Name:     "shop",
		Type:     "postgres",
		AsModule: true,
		Capabilities: catalog.Capabilities{
			JoinPushdown:        true,
			AggregationPushdown: true,
		},
		Catalogs: []sdl.Source{{Name: "shop.graphql", Input: shopSchema}},
	}, {
		Name:         "geo",
		Type:         "postgres",
		Prefix:       "geo",
		ReadOnly:     true,
		Capabilities: catalog.Capabilities{SupportsSpatial: true},
		Catalogs:     []sdl.Source{{Name: "geo.graphql", Input: geoSchema}},
	}})
	require.Empty(t, res.Failed)
	require.NotNil(t, res.Catalog)
	return res.Catalog
}

func compileShop(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := Compile(buildCatalog(t), 7)
	require.NoError(t, err)
	require.NotNil(t, snap.Schema)
	return snap
}

func typeDef(t *testing.T, snap *Snapshot, name string) *ast.Definition {
	t.Helper()
	def := snap.Schema.Types[name]
	require.NotNil(t, def, "type %s missing from generated schema", name)
	return def
}

func fieldNames(def *ast.Definition) []string {
	out := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		out = append(out, f.Name)
	}
	return out
}

func field(t *testing.T, def *ast.Definition, name string) *ast.FieldDefinition {
	t.Helper()
	f := def.Fields.ForName(name)
	require.NotNil(t, f, "field %s.%s missing", def.Name, name)
	return f
}

func TestCompileRootQueries(t *testing.T) {
	snap := compileShop(t)

	query := typeDef(t, snap, "Query")
	require.NotNil(t, snap.Schema.Query)
	assert.Equal(t, "Query", snap.Schema.Query.Name)

	assert.NotNil(t, query.Fields.ForName("_version"))
	assert.NotNil(t, query.Fields.ForName("shop"))
	assert.Equal(t, "shop_module_query", field(t, query, "shop").Type.String())

	// The prefixed source stays at the root.
	sel := field(t, query, "geo_Region")
	assert.Equal(t, "[Region!]", sel.Type.String())
	assert.NotNil(t, query.Fields.ForName("geo_Region_by_pk"))
	assert.NotNil(t, query.Fields.ForName("geo_Region_aggregation"))
	assert.NotNil(t, query.Fields.ForName("geo_Region_bucket_aggregation"))

	limit := sel.Arguments.ForName("limit")
	require.NotNil(t, limit)
	require.NotNil(t, limit.DefaultValue)
	assert.Equal(t, "2000", limit.DefaultValue.String())
	for _, arg := range []string{"filter", "order_by", "offset", "distinct_on"} {
		assert.NotNil(t, sel.Arguments.ForName(arg), "select arg %s", arg)
	}

	mod := typeDef(t, snap, "shop_module_query")
	for _, name := range []string{
		"Product", "Product_by_pk", "Product_by_sku", "Product_named",
		"Product_aggregation", "Product_bucket_aggregation",
		"Category", "Sales", "DailySales", "ProductTag", "function",
	} {
		assert.NotNil(t, mod.Fields.ForName(name), "shop_module_query.%s", name)
	}
	// Views have no primary key lookup.
	assert.Nil(t, mod.Fields.ForName("Sales_by_pk"))
	// Row types are not queryable.
	assert.Nil(t, mod.Fields.ForName("Dimensions"))

	pk := field(t, mod, "ProductTag_by_pk")
	require.Len(t, pk.Arguments, 2)
	assert.Equal(t, "product_id", pk.Arguments[0].Name)
	assert.Equal(t, "BigInt!", pk.Arguments[0].Type.String())
	assert.Equal(t, "tag_id", pk.Arguments[1].Name)

	sales := field(t, mod, "Sales")
	args := sales.Arguments.ForName("args")
	require.NotNil(t, args)
	assert.Equal(t, "ReportArgs!", args.Type.String())

	daily := field(t, mod, "DailySales")
	filter := daily.Arguments.ForName("filter")
	require.NotNil(t, filter)
	assert.Equal(t, "DailySales_filter!", filter.Type.String())
}

func TestCompileFilterOperators(t *testing.T) {
	snap := compileShop(t)

	assert.ElementsMatch(t, []string{"eq", "in", "like", "ilike", "regex", "is_null"},
		fieldNames(typeDef(t, snap, "StringFilter")))
	for _, name := range []string{"IntFilter", "BigIntFilter", "FloatFilter"} {
		assert.ElementsMatch(t, []string{"eq", "in", "gt", "gte", "lt", "lte", "is_null"},
			fieldNames(typeDef(t, snap, name)), name)
	}
	assert.ElementsMatch(t, []string{"eq", "is_null"},
		fieldNames(typeDef(t, snap, "BooleanFilter")))
	for _, name := range []string{"TimestampFilter", "DateFilter"} {
		names := fieldNames(typeDef(t, snap, name))
		assert.ElementsMatch(t, []string{"eq", "gt", "gte", "lt", "lte", "is_null"}, names, name)
		assert.NotContains(t, names, "in", name)
	}
	assert.ElementsMatch(t, []string{"intersects", "contains", "within", "is_null"},
		fieldNames(typeDef(t, snap, "GeometryFilter")))
	assert.ElementsMatch(t, []string{"eq", "contains", "intersects", "is_null"},
		fieldNames(typeDef(t, snap, "string_array_filter")))

	order := typeDef(t, snap, "OrderDirection")
	var directions []string
	for _, v := range order.EnumValues {
		directions = append(directions, v.Name)
	}
	assert.Equal(t, []string{"ASC", "DESC"}, directions)
}

func TestCompileObjectFilter(t *testing.T) {
	snap := compileShop(t)

	pf := typeDef(t, snap, "Product_filter")
	assert.Equal(t, "[Product_filter!]", field(t, pf, "_and").Type.String())
	assert.Equal(t, "[Product_filter!]", field(t, pf, "_or").Type.String())
	assert.Equal(t, "Product_filter", field(t, pf, "_not").Type.String())

	assert.Equal(t, "BigIntFilter", field(t, pf, "id").Type.String())
	assert.Equal(t, "StringFilter", field(t, pf, "sku").Type.String())
	// Enum columns filter as strings.
	assert.Equal(t, "StringFilter", field(t, pf, "status").Type.String())
	assert.Equal(t, "FloatFilter", field(t, pf, "margin").Type.String())
	assert.Equal(t, "string_array_filter", field(t, pf, "labels").Type.String())
	assert.Equal(t, "TimestampFilter", field(t, pf, "created_at").Type.String())
	// Row type columns and function call fields are not filterable.
	assert.Nil(t, pf.Fields.ForName("dims"))
	assert.Nil(t, pf.Fields.ForName("rating"))

	// To-one nests the target filter, to-many wraps it.
	assert.Equal(t, "Category_filter", field(t, pf, "category").Type.String())
	cf := typeDef(t, snap, "Category_filter")
	assert.Equal(t, "Product_relation_filter", field(t, cf, "products").Type.String())
	assert.ElementsMatch(t, []string{"any_of", "all_of", "none_of"},
		fieldNames(typeDef(t, snap, "Product_relation_filter")))

	order := typeDef(t, snap, "Product_order_by")
	assert.Equal(t, "String!", field(t, order, "field").Type.String())
	dir := field(t, order, "direction")
	assert.Equal(t, "OrderDirection!", dir.Type.String())
	require.NotNil(t, dir.DefaultValue)
	assert.Equal(t, "ASC", dir.DefaultValue.String())
}

func TestCompileObjectType(t *testing.T) {
	snap := compileShop(t)

	product := typeDef(t, snap, "Product")
	assert.Equal(t, "BigInt!", field(t, product, "id").Type.String())
	assert.Equal(t, "ProductStatus", field(t, product, "status").Type.String())
	assert.Equal(t, "Dimensions", field(t, product, "dims").Type.String())

	// The enum and the row type survive into the served schema.
	status := typeDef(t, snap, "ProductStatus")
	assert.Equal(t, ast.Enum, status.Kind)
	dims := typeDef(t, snap, "Dimensions")
	assert.ElementsMatch(t, []string{"w", "h"}, fieldNames(dims))

	category := field(t, product, "category")
	assert.Equal(t, "Category", category.Type.String())
	assert.Nil(t, category.Arguments.ForName("filter"))
	assert.NotNil(t, category.Arguments.ForName("inner"))

	products := field(t, typeDef(t, snap, "Category"), "products")
	assert.Equal(t, "[Product!]", products.Type.String())
	assert.NotNil(t, products.Arguments.ForName("filter"))
	assert.NotNil(t, products.Arguments.ForName("distinct_on"))

	tags := field(t, product, "tags")
	assert.Equal(t, "[Tag!]", tags.Type.String())

	// Bound function arguments disappear, unbound ones keep defaults.
	rating := field(t, product, "rating")
	assert.Equal(t, "Float", rating.Type.String())
	assert.Nil(t, rating.Arguments.ForName("product_id"))
	window := rating.Arguments.ForName("window")
	require.NotNil(t, window)
	require.NotNil(t, window.DefaultValue)
	assert.Equal(t, "30", window.DefaultValue.String())
}

func TestCompileRelationCompanions(t *testing.T) {
	snap := compileShop(t)

	category := typeDef(t, snap, "Category")
	agg := field(t, category, "products_aggregation")
	assert.Equal(t, "Product_aggregation_result", agg.Type.String())
	bucket := field(t, category, "products_bucket_aggregation")
	assert.Equal(t, "[Product_bucket!]", bucket.Type.String())
	assert.NotNil(t, bucket.Arguments.ForName("order_by"))

	// A required filter follows the target into its companions.
	daily := field(t, category, "daily_sales_aggregation")
	f := daily.Arguments.ForName("filter")
	require.NotNil(t, f)
	assert.Equal(t, "DailySales_filter!", f.Type.String())

	// To-one relations get no companions.
	assert.Nil(t, typeDef(t, snap, "Product").Fields.ForName("category_aggregation"))
}

func TestCompileAggregationTypes(t *testing.T) {
	snap := compileShop(t)

	assert.ElementsMatch(t,
		[]string{"count", "sum", "avg", "min", "max", "stddev", "variance", "list", "any", "last"},
		fieldNames(typeDef(t, snap, "int_aggregation")))
	assert.ElementsMatch(t, []string{"count", "string_agg", "list", "any", "last"},
		fieldNames(typeDef(t, snap, "string_aggregation")))
	assert.ElementsMatch(t, []string{"count", "bool_and", "bool_or"},
		fieldNames(typeDef(t, snap, "boolean_aggregation")))
	assert.ElementsMatch(t, []string{"count", "min", "max"},
		fieldNames(typeDef(t, snap, "timestamp_aggregation")))

	agg := typeDef(t, snap, "Product_aggregation_result")
	assert.Equal(t, "BigInt!", field(t, agg, "_rows_count").Type.String())
	assert.Equal(t, "bigint_aggregation", field(t, agg, "id").Type.String())
	assert.Equal(t, "string_aggregation", field(t, agg, "sku").Type.String())
	assert.Equal(t, "float_aggregation", field(t, agg, "price").Type.String())
	assert.Equal(t, "timestamp_aggregation", field(t, agg, "created_at").Type.String())
	// Lists and row types do not aggregate.
	assert.Nil(t, agg.Fields.ForName("labels"))
	assert.Nil(t, agg.Fields.ForName("dims"))

	sep := field(t, typeDef(t, snap, "string_aggregation"), "string_agg").Arguments.ForName("separator")
	require.NotNil(t, sep)
	require.NotNil(t, sep.DefaultValue)
	assert.Equal(t, `","`, sep.DefaultValue.String())

	bucket := typeDef(t, snap, "Product_bucket")
	assert.Equal(t, "Product_bucket_key!", field(t, bucket, "key").Type.String())
	assert.Equal(t, "Product_aggregation_result!", field(t, bucket, "aggregations").Type.String())

	key := typeDef(t, snap, "Product_bucket_key")
	created := field(t, key, "created_at")
	assert.NotNil(t, created.Arguments.ForName("bucket"))
	part := field(t, key, "_created_at_part")
	assert.Equal(t, "BigInt", part.Type.String())
	require.NotNil(t, part.Arguments.ForName("part"))
	assert.Equal(t, "TimePart!", part.Arguments.ForName("part").Type.String())
	// Plain columns take no bucket argument.
	assert.Empty(t, field(t, key, "sku").Arguments)
}

func TestCompileMutations(t *testing.T) {
	snap := compileShop(t)

	require.NotNil(t, snap.Schema.Mutation)
	mutation := typeDef(t, snap, "Mutation")
	assert.NotNil(t, mutation.Fields.ForName("shop"))
	// The read-only source generates no mutations at all.
	assert.Nil(t, mutation.Fields.ForName("insert_geo_Region"))

	mod := typeDef(t, snap, "shop_module_mutation")
	ins := field(t, mod, "insert_Product")
	assert.Equal(t, "[Product_insert_input!]!", ins.Arguments.ForName("data").Type.String())
	assert.Equal(t, "Product_mutation_result", ins.Type.String())
	upd := field(t, mod, "update_Product")
	assert.NotNil(t, upd.Arguments.ForName("filter"))
	assert.Equal(t, "Product_update_input!", upd.Arguments.ForName("data").Type.String())
	assert.NotNil(t, mod.Fields.ForName("delete_Product"))

	insert := typeDef(t, snap, "Product_insert_input")
	// Sequence and insert defaults keep their columns optional.
	assert.Equal(t, "BigInt", field(t, insert, "id").Type.String())
	assert.Equal(t, "Timestamp", field(t, insert, "created_at").Type.String())
	assert.Equal(t, "String!", field(t, insert, "sku").Type.String())
	assert.Equal(t, "JSON", field(t, insert, "dims").Type.String())
	// Computed columns never accept writes.
	assert.Nil(t, insert.Fields.ForName("margin"))
	assert.Nil(t, insert.Fields.ForName("rating"))

	update := typeDef(t, snap, "Product_update_input")
	assert.Equal(t, "String", field(t, update, "sku").Type.String())

	res := typeDef(t, snap, "Product_mutation_result")
	assert.Equal(t, "BigInt!", field(t, res, "affected_rows").Type.String())
	assert.Equal(t, "[Product!]!", field(t, res, "returning").Type.String())

	// Views are read-only even on writable sources.
	assert.Nil(t, mod.Fields.ForName("insert_Sales"))
}

func TestCompileSpecialFields(t *testing.T) {
	snap := compileShop(t)

	product := typeDef(t, snap, "Product")
	join := field(t, product, "_join")
	assert.Equal(t, "_join_targets", join.Type.String())
	assert.Equal(t, "[String!]!", join.Arguments.ForName("fields").Type.String())
	// No geometry on Product, no spatial hop.
	assert.Nil(t, product.Fields.ForName("_spatial"))

	part := field(t, product, "_created_at_part")
	assert.Equal(t, "BigInt", part.Type.String())

	region := typeDef(t, snap, "Region")
	spatial := field(t, region, "_spatial")
	assert.Equal(t, "_spatial_targets", spatial.Type.String())
	op := spatial.Arguments.ForName("type")
	require.NotNil(t, op)
	require.NotNil(t, op.DefaultValue)
	assert.Equal(t, "INTERSECTS", op.DefaultValue.String())
	assert.NotNil(t, spatial.Arguments.ForName("buffer"))

	measure := field(t, region, "_boundary_measurement")
	assert.Equal(t, "Float", measure.Type.String())
	assert.Equal(t, "MeasurementType!", measure.Arguments.ForName("type").Type.String())

	targets := typeDef(t, snap, "_join_targets")
	for _, name := range []string{"shop_Product", "shop_Category", "shop_Sales", "shop_DailySales", "geo_Region"} {
		f := targets.Fields.ForName(name)
		require.NotNil(t, f, "_join_targets.%s", name)
		assert.Equal(t, "[String!]!", f.Arguments.ForName("references_fields").Type.String())
	}
	assert.Equal(t, "ReportArgs!", field(t, targets, "shop_Sales").Arguments.ForName("args").Type.String())

	spatialTargets := typeDef(t, snap, "_spatial_targets")
	assert.Equal(t, []string{"geo_Region"}, fieldNames(spatialTargets))
	assert.Equal(t, "String!", field(t, spatialTargets, "geo_Region").Arguments.ForName("field").Type.String())
}

func TestCompileMeasurementFunc(t *testing.T) {
	snap := compileShop(t)

	amount := field(t, typeDef(t, snap, "DailySales"), "amount")
	mf := amount.Arguments.ForName("measurement_func")
	require.NotNil(t, mf)
	assert.Equal(t, "MeasurementFuncType", mf.Type.String())
	require.NotNil(t, mf.DefaultValue)
	assert.Equal(t, "SUM", mf.DefaultValue.String())

	// Measurements only take the argument on cube objects.
	price := field(t, typeDef(t, snap, "Product"), "price")
	assert.Nil(t, price.Arguments.ForName("measurement_func"))
}

func TestCompileFunctionNamespace(t *testing.T) {
	snap := compileShop(t)

	mod := typeDef(t, snap, "shop_module_query")
	assert.Equal(t, "shop_module_function", field(t, mod, "function").Type.String())

	fns := typeDef(t, snap, "shop_module_function")
	rating := field(t, fns, "rating")
	assert.Equal(t, "Float", rating.Type.String())
	assert.Equal(t, "BigInt!", rating.Arguments.ForName("product_id").Type.String())
	window := rating.Arguments.ForName("window")
	require.NotNil(t, window)
	assert.Equal(t, "30", window.DefaultValue.String())
}

func TestCompileBindings(t *testing.T) {
	snap := compileShop(t)
	cat := snap.Catalog

	productID, ok := cat.ObjectByName("Product")
	require.True(t, ok)

	b, ok := snap.Binding("Query", "_version")
	require.True(t, ok)
	assert.Equal(t, BindVersion, b.Kind)

	b, ok = snap.Binding("Query", "shop")
	require.True(t, ok)
	assert.Equal(t, BindModule, b.Kind)
	assert.Equal(t, "shop", b.Module)

	b, ok = snap.Binding("shop_module_query", "Product")
	require.True(t, ok)
	assert.Equal(t, BindSelect, b.Kind)
	assert.Equal(t, productID, b.Object)

	b, ok = snap.Binding("shop_module_query", "Product_by_sku")
	require.True(t, ok)
	assert.Equal(t, BindSelectUnique, b.Kind)
	assert.Equal(t, 0, b.Unique)

	b, ok = snap.Binding("shop_module_query", "Product_named")
	require.True(t, ok)
	assert.Equal(t, 1, b.Unique)

	b, ok = snap.Binding("Product", "category")
	require.True(t, ok)
	assert.Equal(t, BindRelation, b.Kind)
	assert.False(t, b.Reverse)

	b, ok = snap.Binding("Category", "products")
	require.True(t, ok)
	assert.Equal(t, BindRelation, b.Kind)
	assert.True(t, b.Reverse)
	assert.Equal(t, productID, b.Object)

	b, ok = snap.Binding("Category", "products_aggregation")
	require.True(t, ok)
	assert.Equal(t, BindRelationAggregate, b.Kind)

	b, ok = snap.Binding("Product", "_join")
	require.True(t, ok)
	assert.Equal(t, BindJoin, b.Kind)

	b, ok = snap.Binding("_join_targets", "shop_Product")
	require.True(t, ok)
	assert.Equal(t, BindJoinTarget, b.Kind)
	assert.Equal(t, productID, b.Object)

	b, ok = snap.Binding("shop_module_mutation", "insert_Product")
	require.True(t, ok)
	assert.Equal(t, BindInsert, b.Kind)

	b, ok = snap.Binding("shop_module_query", "function")
	require.True(t, ok)
	assert.Equal(t, BindFunctionNS, b.Kind)

	b, ok = snap.Binding("Product_aggregation_result", "_rows_count")
	require.True(t, ok)
	assert.Equal(t, BindRowsCount, b.Kind)

	_, ok = snap.Binding("Product", "no_such_field")
	assert.False(t, ok)
}

func TestCompileNameCollision(t *testing.T) {
	res := catalog.Build([]catalog.SourceConfig{{
		Name:     "shop",
		Type:     "postgres",
		AsModule: true,
		Catalogs: []sdl.Source{{Name: "shop.graphql", Input: `
type Item @table(name: "items") {
  id: BigInt! @pk
}
`}},
	}, {
		Name: "other",
		Type: "postgres",
		Catalogs: []sdl.Source{{Name: "other.graphql", Input: `
type shop @table(name: "shops") {
  id: BigInt! @pk
}
`}},
	}})
	require.Empty(t, res.Failed)

	_, err := Compile(res.Catalog, 1)
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeSchemaDefinition, lterrors.ErrCode(err))
	assert.Contains(t, err.Error(), "object shop")
	assert.Contains(t, err.Error(), "module shop")
}

func TestCompilePrefixResolvesCollision(t *testing.T) {
	// A table legitimately named users_aggregation claims the same root
	// field the users table derives for its aggregation.
	build := func(prefix string) *catalog.Catalog {
		res := catalog.Build([]catalog.SourceConfig{{
			Name: "a",
			Type: "postgres",
			Catalogs: []sdl.Source{{Name: "a.graphql", Input: `
type users @table(name: "users") {
  id: BigInt! @pk
}
`}},
		}, {
			Name:   "b",
			Type:   "mysql",
			Prefix: prefix,
			Catalogs: []sdl.Source{{Name: "b.graphql", Input: `
type users_aggregation @table(name: "users_aggregation") {
  id: BigInt! @pk
}
`}},
		}})
		require.Empty(t, res.Failed)
		return res.Catalog
	}

	_, err := Compile(build(""), 1)
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeSchemaDefinition, lterrors.ErrCode(err))
	assert.Contains(t, err.Error(), "object users_aggregation")
	assert.Contains(t, err.Error(), "object users")
	assert.Contains(t, err.Error(), "source prefix")

	snap, err := Compile(build("crm"), 1)
	require.NoError(t, err)
	query := typeDef(t, snap, "Query")
	assert.NotNil(t, query.Fields.ForName("users"))
	assert.NotNil(t, query.Fields.ForName("users_aggregation"))
	assert.NotNil(t, query.Fields.ForName("crm_users_aggregation"))
}

func TestCompileDeterministic(t *testing.T) {
	cat := buildCatalog(t)

	first, err := Compile(cat, 1)
	require.NoError(t, err)
	second, err := Compile(cat, 2)
	require.NoError(t, err)

	assert.Equal(t, first.SDL, second.SDL)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.NotEqual(t, first.Version, second.Version)
	assert.NotZero(t, first.Fingerprint)
}
