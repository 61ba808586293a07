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

package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/sdl"
)

const storeSchema = `
type Category @table(name: "categories") {
  id: BigInt! @pk
  name: String!
}

type Product @table(
  name: "products"
  soft_delete: true
  soft_delete_condition: "[deleted_at] IS NULL"
  soft_delete_set: "deleted_at = now()"
) {
  id: BigInt! @pk @default(sequence: "products_id_seq")
  name: String!
  price: Float
  labels: [String]
  deleted_at: Timestamp
  created_at: Timestamp @default(insert_value: "now()", update_value: "now()")
  category_id: BigInt @field_references(references_name: "Category", query: "category", references_query: "products")
  price_with_tax: Float @sql(exp: "[price] * 1.2")
}

type Tag @table(name: "tags") {
  id: BigInt! @pk
  name: String!
}

type ProductTag @table(name: "product_tags", is_m2m: true) {
  product_id: BigInt! @pk @field_references(references_name: "Product", references_query: "tags")
  tag_id: BigInt! @pk @field_references(references_name: "Tag", references_query: "products")
}

type Warehouse @table(name: "warehouses") {
  id: BigInt! @pk
  name: String!
  location: Geometry @geometry_info(type: "Point", srid: 4326)
}

type Reading @table(name: "readings") @hypertable {
  id: BigInt! @pk
  at: Timestamp! @timescale_key
  value: Float
}

type RegionSales @table(name: "region_sales") @cube {
  region: String
  day: Date
  amount: Float @measurement(func: ["SUM", "AVG"])
}

input ReportArgs {
  from: Timestamp! @named(name: "p_from")
  to: Timestamp
}

type Sales @view(name: "sales_report", sql: "SELECT * FROM sales($p_from, $to)") @args(name: "ReportArgs", required: true) {
  day: Date
  total: Float
}

extend type Function {
  rating(product_id: BigInt! @named(name: "pid")): Float
    @function(name: "product_rating", sql: "SELECT rating FROM ratings WHERE product_id = $pid")
  tax(amount: Float!): Float @function(name: "tax", sql: "$amount * 0.2")
  top_products(n: Int! = 10): [Product] @function(name: "top_products", sql: "top_products($n)", is_table: true)
  weather(city: String!): JSON @function(name: "weather", http_path: "/v1/weather?city={city}", json_path: "current")
}

extend type Product {
  rating: Float @function_call(references_name: "rating", args: {product_id: "id"})
}
`

func buildStore(t *testing.T) *catalog.Catalog {
	t.Helper()
	res := catalog.Build([]catalog.SourceConfig{{
		Name: "store",
		Type: "postgres",
		Capabilities: catalog.Capabilities{
			JoinPushdown:        true,
			AggregationPushdown: true,
			SupportsSpatial:     true,
		},
		Catalogs: []sdl.Source{{Name: "store.graphql", Input: storeSchema}},
	}})
	require.Empty(t, res.Failed)
	require.NotNil(t, res.Catalog)
	return res.Catalog
}

func pgBuilder(cat *catalog.Catalog) *Builder {
	return New(Postgres{}, cat, Options{})
}

func myBuilder(cat *catalog.Catalog) *Builder {
	return New(MySQL{}, cat, Options{})
}

func objID(t *testing.T, cat *catalog.Catalog, name string) catalog.ObjectID {
	t.Helper()
	id, ok := cat.ObjectByName(name)
	require.True(t, ok, "object %s", name)
	return id
}

func queryRel(t *testing.T, cat *catalog.Catalog, obj catalog.ObjectID, field string) (catalog.RelationID, bool) {
	t.Helper()
	id, reverse, ok := cat.ResolveRelation(obj, field)
	require.True(t, ok, "relation field %s", field)
	return id, reverse
}

func funcID(t *testing.T, cat *catalog.Catalog, name string) catalog.FunctionID {
	t.Helper()
	id, ok := cat.FunctionByName(name)
	require.True(t, ok, "function %s", name)
	return id
}
