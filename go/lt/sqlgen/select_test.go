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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/lterrors"
)

func TestSelectScalarAndCalculated(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")

	q, err := b.Select(&SelectDef{
		Object: products,
		Columns: []Column{
			{Alias: "id", Field: "id"},
			{Alias: "name", Field: "name"},
			{Alias: "price_with_tax", Field: "price_with_tax"},
		},
		Filter:  map[string]any{"price": map[string]any{"gt": 10.0}},
		OrderBy: []OrderBy{{Field: "name", Direction: "ASC"}},
		Limit:   10,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id" AS "id", t0."name" AS "name", (t0."price" * 1.2) AS "price_with_tax"`+
			` FROM "products" AS t0`+
			` WHERE (t0."price" > $1 AND (t0."deleted_at" IS NULL))`+
			` ORDER BY t0."name" ASC LIMIT 10`,
		q.SQL)
	assert.Equal(t, []any{10.0}, q.Args)
}

func TestSelectWithDeleted(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")

	q, err := b.Select(&SelectDef{
		Object:      products,
		Columns:     []Column{{Alias: "id", Field: "id"}},
		WithDeleted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0."id" AS "id" FROM "products" AS t0`, q.SQL)
	assert.Empty(t, q.Args)
}

func TestSelectGeometryWire(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	warehouses := objID(t, cat, "Warehouse")

	q, err := b.Select(&SelectDef{
		Object: warehouses,
		Columns: []Column{
			{Alias: "id", Field: "id"},
			{Alias: "location", Field: "location"},
			{Alias: "area", Measure: &MeasureColumn{Field: "location", Measure: "AREA"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id" AS "id", ST_AsGeoJSON(t0."location")::json AS "location",`+
			` ST_Area(t0."location") AS "area" FROM "warehouses" AS t0`,
		q.SQL)
}

func TestSelectTimePartColumn(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	readings := objID(t, cat, "Reading")

	q, err := b.Select(&SelectDef{
		Object: readings,
		Columns: []Column{
			{Alias: "at_year", Part: &PartColumn{Field: "at", Part: "YEAR"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT CAST(EXTRACT(YEAR FROM t0."at") AS bigint) AS "at_year" FROM "readings" AS t0`,
		q.SQL)

	_, err = b.Select(&SelectDef{
		Object: readings,
		Columns: []Column{
			{Alias: "bad", Part: &PartColumn{Field: "value", Part: "YEAR"}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeQueryValidation, lterrors.ErrCode(err))
}

func TestSelectToOneJoin(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")
	categories := objID(t, cat, "Category")
	rel, reverse := queryRel(t, cat, products, "category")
	require.False(t, reverse)

	q, err := b.Select(&SelectDef{
		Object: products,
		Columns: []Column{
			{Alias: "id", Field: "id"},
			{Alias: "category", Relation: &RelationColumn{
				Relation: rel,
				Select: SelectDef{
					Object: categories,
					Columns: []Column{
						{Alias: "id", Field: "id"},
						{Alias: "name", Field: "name"},
					},
				},
			}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id" AS "id",`+
			` CASE WHEN t1."id" IS NULL THEN NULL ELSE json_build_object('id', t1."id", 'name', t1."name") END AS "category"`+
			` FROM "products" AS t0`+
			` LEFT JOIN "categories" AS t1 ON t1."id" = t0."category_id"`+
			` WHERE (t0."deleted_at" IS NULL)`,
		q.SQL)
	assert.Empty(t, q.Args)
}

func TestSelectToOneInnerJoin(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")
	categories := objID(t, cat, "Category")
	rel, _ := queryRel(t, cat, products, "category")

	q, err := b.Select(&SelectDef{
		Object: products,
		Columns: []Column{
			{Alias: "id", Field: "id"},
			{Alias: "category", Relation: &RelationColumn{
				Relation: rel,
				Inner:    true,
				Select: SelectDef{
					Object:  categories,
					Columns: []Column{{Alias: "name", Field: "name"}},
				},
			}},
		},
		WithDeleted: true,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id" AS "id",`+
			` CASE WHEN t1."id" IS NULL THEN NULL ELSE json_build_object('name', t1."name") END AS "category"`+
			` FROM "products" AS t0`+
			` INNER JOIN "categories" AS t1 ON t1."id" = t0."category_id"`,
		q.SQL)
}

func TestSelectToManySubquery(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	categories := objID(t, cat, "Category")
	products := objID(t, cat, "Product")
	rel, reverse := queryRel(t, cat, categories, "products")
	require.True(t, reverse)

	q, err := b.Select(&SelectDef{
		Object: categories,
		Columns: []Column{
			{Alias: "id", Field: "id"},
			{Alias: "products", Relation: &RelationColumn{
				Relation: rel,
				Reverse:  reverse,
				Select: SelectDef{
					Object: products,
					Columns: []Column{
						{Alias: "id", Field: "id"},
						{Alias: "name", Field: "name"},
					},
					OrderBy: []OrderBy{{Field: "name", Direction: "ASC"}},
					Limit:   5,
				},
			}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id" AS "id",`+
			` (SELECT coalesce(json_agg(json_build_object('id', t2."id", 'name', t2."name")), '[]'::json)`+
			` FROM (SELECT t1."id" AS "id", t1."name" AS "name" FROM "products" AS t1`+
			` WHERE ((t1."deleted_at" IS NULL) AND t1."category_id" = t0."id")`+
			` ORDER BY t1."name" ASC LIMIT 5) AS t2) AS "products"`+
			` FROM "categories" AS t0`,
		q.SQL)
	assert.Empty(t, q.Args)
}

func TestSelectM2MSubquery(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")
	tags := objID(t, cat, "Tag")
	rel, reverse := queryRel(t, cat, products, "tags")
	require.False(t, reverse)

	q, err := b.Select(&SelectDef{
		Object:      products,
		WithDeleted: true,
		Columns: []Column{
			{Alias: "id", Field: "id"},
			{Alias: "tags", Relation: &RelationColumn{
				Relation: rel,
				Select: SelectDef{
					Object: tags,
					Columns: []Column{
						{Alias: "id", Field: "id"},
						{Alias: "name", Field: "name"},
					},
				},
			}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id" AS "id",`+
			` (SELECT coalesce(json_agg(json_build_object('id', t3."id", 'name', t3."name")), '[]'::json)`+
			` FROM (SELECT t1."id" AS "id", t1."name" AS "name" FROM "tags" AS t1`+
			` INNER JOIN "product_tags" AS t2 ON t2."tag_id" = t1."id"`+
			` WHERE t2."product_id" = t0."id") AS t3) AS "tags"`+
			` FROM "products" AS t0`,
		q.SQL)
}

func TestSelectParameterizedView(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	sales := objID(t, cat, "Sales")

	q, err := b.Select(&SelectDef{
		Object: sales,
		Columns: []Column{
			{Alias: "day", Field: "day"},
			{Alias: "total", Field: "total"},
		},
		Args: map[string]any{"from": "2026-01-01", "to": nil},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."day" AS "day", t0."total" AS "total"`+
			` FROM (SELECT * FROM sales($1, $2)) AS t0`,
		q.SQL)
	assert.Equal(t, []any{"2026-01-01", nil}, q.Args)
}

func TestSelectFunctionCallColumn(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")
	rel, _ := queryRel(t, cat, products, "rating")

	q, err := b.Select(&SelectDef{
		Object: products,
		Columns: []Column{
			{Alias: "id", Field: "id"},
			{Alias: "rating", Call: &CallColumn{Relation: rel}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."id" AS "id",`+
			` (SELECT rating FROM ratings WHERE product_id = t0."id") AS "rating"`+
			` FROM "products" AS t0 WHERE (t0."deleted_at" IS NULL)`,
		q.SQL)
}

func TestSelectDistinctOn(t *testing.T) {
	cat := buildStore(t)
	products := objID(t, cat, "Product")

	q, err := pgBuilder(cat).Select(&SelectDef{
		Object:     products,
		Columns:    []Column{{Alias: "id", Field: "id"}},
		DistinctOn: []string{"category_id"},
		OrderBy:    []OrderBy{{Field: "name", Direction: "DESC"}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT DISTINCT ON (t0."category_id") t0."id" AS "id"`+
			` FROM "products" AS t0 WHERE (t0."deleted_at" IS NULL)`+
			` ORDER BY t0."category_id" ASC, t0."name" DESC`,
		q.SQL)

	_, err = myBuilder(cat).Select(&SelectDef{
		Object:     products,
		Columns:    []Column{{Alias: "id", Field: "id"}},
		DistinctOn: []string{"category_id"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSelectSortDirectionValidated(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")

	_, err := b.Select(&SelectDef{
		Object:  products,
		Columns: []Column{{Alias: "id", Field: "id"}},
		OrderBy: []OrderBy{{Field: "name", Direction: "asc"}},
	})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeQueryValidation, lterrors.ErrCode(err))
}

func TestSelectCubePreAggregation(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	sales := objID(t, cat, "RegionSales")

	q, err := b.Select(&SelectDef{
		Object: sales,
		Columns: []Column{
			{Alias: "region", Field: "region"},
			{Alias: "amount", Field: "amount"},
		},
		Filter: map[string]any{"region": map[string]any{"eq": "west"}},
		Cube: &CubePre{
			Dimensions: []string{"region"},
			Measures:   []CubeMeasure{{Field: "amount", Func: "SUM"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT t0."region" AS "region", t0."amount" AS "amount"`+
			` FROM (SELECT t1."region" AS "region", sum(t1."amount") AS "amount"`+
			` FROM "region_sales" AS t1 WHERE t1."region" = $1 GROUP BY 1) AS t0`,
		q.SQL)
	assert.Equal(t, []any{"west"}, q.Args)

	_, err = b.Select(&SelectDef{
		Object:  sales,
		Columns: []Column{{Alias: "day", Field: "day"}},
		Cube: &CubePre{
			Dimensions: []string{"day"},
			Measures:   []CubeMeasure{{Field: "amount", Func: "COUNT"}},
		},
	})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeQueryValidation, lterrors.ErrCode(err))
}

func TestSelectCallFieldNotSelectable(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")

	_, err := b.Select(&SelectDef{
		Object:  products,
		Columns: []Column{{Alias: "rating", Field: "rating"}},
	})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeQueryValidation, lterrors.ErrCode(err))
}
