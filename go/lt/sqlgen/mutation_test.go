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

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sdl"
)

func TestInsertWithDefaults(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")

	q, err := b.Insert(&InsertDef{
		Object:    products,
		Rows:      []map[string]any{{"name": "Widget", "price": 9.5}},
		Returning: []Column{{Alias: "id", Field: "id"}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "products" ("id","name","price","created_at")`+
			` VALUES (nextval('products_id_seq'),$1,$2,now())`+
			` RETURNING "id" AS "id"`,
		q.SQL)
	assert.Equal(t, []any{"Widget", 9.5}, q.Args)
}

func TestInsertMultiRow(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")

	q, err := b.Insert(&InsertDef{
		Object: products,
		Rows: []map[string]any{
			{"name": "A", "price": 1.0},
			{"name": "B"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "products" ("id","name","price","created_at")`+
			` VALUES (nextval('products_id_seq'),$1,$2,now()),(nextval('products_id_seq'),$3,DEFAULT,now())`,
		q.SQL)
	assert.Equal(t, []any{"A", 1.0, "B"}, q.Args)
}

func TestInsertListColumn(t *testing.T) {
	cat := buildStore(t)
	products := objID(t, cat, "Product")

	q, err := pgBuilder(cat).Insert(&InsertDef{
		Object: products,
		Rows:   []map[string]any{{"name": "X", "labels": []any{"a", "b"}}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "products" ("id","name","labels","created_at")`+
			` VALUES (nextval('products_id_seq'),$1,$2,now())`,
		q.SQL)
	assert.Equal(t, []any{"X", []any{"a", "b"}}, q.Args)

	q, err = myBuilder(cat).Insert(&InsertDef{
		Object: products,
		Rows:   []map[string]any{{"id": 1, "name": "X", "labels": []any{"a", "b"}}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO `products` (`id`,`name`,`labels`,`created_at`) VALUES (?,?,?,now())",
		q.SQL)
	assert.Equal(t, []any{1, "X", `["a","b"]`}, q.Args)
}

func TestInsertGeometry(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	warehouses := objID(t, cat, "Warehouse")

	q, err := b.Insert(&InsertDef{
		Object: warehouses,
		Rows: []map[string]any{{
			"name":     "W1",
			"location": map[string]any{"type": "Point", "coordinates": []any{1.0, 2.0}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "warehouses" ("name","location")`+
			` VALUES ($1,ST_SetSRID(ST_GeomFromGeoJSON($2), 4326))`,
		q.SQL)
	assert.Equal(t, []any{"W1", `{"coordinates":[1,2],"type":"Point"}`}, q.Args)
}

func TestInsertMySQLSequence(t *testing.T) {
	cat := buildStore(t)
	products := objID(t, cat, "Product")

	_, err := myBuilder(cat).Insert(&InsertDef{
		Object: products,
		Rows:   []map[string]any{{"name": "X"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestInsertValidation(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")
	categories := objID(t, cat, "Category")
	sales := objID(t, cat, "Sales")

	tests := []struct {
		name string
		def  InsertDef
		code lterrors.Code
	}{{
		name: "no rows",
		def:  InsertDef{Object: products},
		code: lterrors.CodeQueryValidation,
	}, {
		name: "no columns",
		def:  InsertDef{Object: categories, Rows: []map[string]any{{}}},
		code: lterrors.CodeQueryValidation,
	}, {
		name: "unknown field",
		def:  InsertDef{Object: products, Rows: []map[string]any{{"nope": 1}}},
		code: lterrors.CodeQueryValidation,
	}, {
		name: "calculated field",
		def:  InsertDef{Object: products, Rows: []map[string]any{{"price_with_tax": 2.0}}},
		code: lterrors.CodeQueryValidation,
	}, {
		name: "function call field",
		def:  InsertDef{Object: products, Rows: []map[string]any{{"rating": 2.0}}},
		code: lterrors.CodeQueryValidation,
	}, {
		name: "view target",
		def:  InsertDef{Object: sales, Rows: []map[string]any{{"total": 1.0}}},
		code: lterrors.CodePlanning,
	}}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.Insert(&tc.def)
			require.Error(t, err)
			assert.Equal(t, tc.code, lterrors.ErrCode(err))
		})
	}
}

func TestInsertReadOnlySource(t *testing.T) {
	res := catalog.Build([]catalog.SourceConfig{{
		Name:     "store",
		Type:     "postgres",
		ReadOnly: true,
		Catalogs: []sdl.Source{{Name: "store.graphql", Input: storeSchema}},
	}})
	require.Empty(t, res.Failed)
	b := pgBuilder(res.Catalog)
	products := objID(t, res.Catalog, "Product")

	_, err := b.Insert(&InsertDef{
		Object: products,
		Rows:   []map[string]any{{"name": "X"}},
	})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodePlanning, lterrors.ErrCode(err))
}

func TestUpdateTouchesOnUpdateDefaults(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")

	q, err := b.Update(&UpdateDef{
		Object: products,
		Set:    map[string]any{"price": 12.0},
		Filter: map[string]any{"id": map[string]any{"eq": 5}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "products" AS t0 SET "price" = $1, "created_at" = now()`+
			` WHERE (t0."id" = $2 AND (t0."deleted_at" IS NULL))`,
		q.SQL)
	assert.Equal(t, []any{12.0, 5}, q.Args)
}

func TestUpdateReturning(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	categories := objID(t, cat, "Category")

	q, err := b.Update(&UpdateDef{
		Object:    categories,
		Set:       map[string]any{"name": "Tools"},
		Filter:    map[string]any{"id": map[string]any{"eq": 3}},
		Returning: []Column{{Alias: "id", Field: "id"}, {Alias: "name", Field: "name"}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "categories" AS t0 SET "name" = $1 WHERE t0."id" = $2`+
			` RETURNING t0."id" AS "id", t0."name" AS "name"`,
		q.SQL)
	assert.Equal(t, []any{"Tools", 3}, q.Args)
}

func TestUpdateValidation(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")
	sales := objID(t, cat, "Sales")

	_, err := b.Update(&UpdateDef{Object: products})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeQueryValidation, lterrors.ErrCode(err))

	_, err = b.Update(&UpdateDef{Object: products, Set: map[string]any{"rating": 1.0}})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeQueryValidation, lterrors.ErrCode(err))

	_, err = b.Update(&UpdateDef{Object: sales, Set: map[string]any{"total": 1.0}})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodePlanning, lterrors.ErrCode(err))
}

func TestDeleteSoftRewrite(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")

	q, err := b.Delete(&DeleteDef{
		Object: products,
		Filter: map[string]any{"id": map[string]any{"eq": 7}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "products" AS t0 SET deleted_at = now()`+
			` WHERE (t0."id" = $1 AND (t0."deleted_at" IS NULL))`,
		q.SQL)
	assert.Equal(t, []any{7}, q.Args)

	q, err = b.Delete(&DeleteDef{
		Object:      products,
		Filter:      map[string]any{"id": map[string]any{"eq": 7}},
		WithDeleted: true,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "products" AS t0 SET deleted_at = now() WHERE t0."id" = $1`,
		q.SQL)
}

func TestDeleteHard(t *testing.T) {
	cat := buildStore(t)
	categories := objID(t, cat, "Category")

	q, err := pgBuilder(cat).Delete(&DeleteDef{
		Object:    categories,
		Filter:    map[string]any{"id": map[string]any{"eq": 3}},
		Returning: []Column{{Alias: "id", Field: "id"}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`DELETE FROM "categories" AS t0 WHERE t0."id" = $1 RETURNING t0."id" AS "id"`,
		q.SQL)
	assert.Equal(t, []any{3}, q.Args)

	q, err = myBuilder(cat).Delete(&DeleteDef{
		Object:    categories,
		Filter:    map[string]any{"id": map[string]any{"eq": 3}},
		Returning: []Column{{Alias: "id", Field: "id"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `categories` AS t0 WHERE t0.`id` = ?", q.SQL)
}

func TestReturningRejectsRelations(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	products := objID(t, cat, "Product")
	categories := objID(t, cat, "Category")
	rel, _ := queryRel(t, cat, products, "category")

	_, err := b.Insert(&InsertDef{
		Object: products,
		Rows:   []map[string]any{{"name": "X"}},
		Returning: []Column{{Alias: "category", Relation: &RelationColumn{
			Relation: rel,
			Select:   SelectDef{Object: categories, Columns: []Column{{Alias: "id", Field: "id"}}},
		}}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
}
