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

package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/accessctl"
	"github.com/latticeio/lattice/go/lt/compiler"
	"github.com/latticeio/lattice/go/lt/engine"
)

func TestPlanInsertWithReturning(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	plan := mustPlan(t, snap, g, `mutation {
	  shop {
	    insert_Product(data: [{sku: "a-1", name: "Anvil", price: 10}]) {
	      affected_rows
	      returning { id sku }
	    }
	  }
	}`)
	assert.False(t, plan.Cacheable, "mutations never reuse")

	pf := planField(t, plan, "shop", "insert_Product")
	assert.Equal(t, RenderMutation, pf.Kind)
	require.Len(t, pf.Mutation, 2)
	assert.Equal(t, "affected_rows", pf.Mutation[0].Alias)
	assert.True(t, pf.Mutation[0].Affected)
	assert.Equal(t, "returning", pf.Mutation[1].Alias)
	assert.True(t, pf.Mutation[1].Returning)

	proj, ok := pf.Prim.(*engine.Projection)
	require.True(t, ok)
	mut, ok := proj.Input.(*engine.Mutation)
	require.True(t, ok)
	assert.Equal(t, "shop", mut.Source)
	assert.NotEmpty(t, mut.Query.SQL)
	assert.False(t, mut.Query.Exec, "RETURNING produces rows on this dialect")
	assert.Len(t, mut.Query.Fields, 2)
	assert.Nil(t, mut.Returning, "no re-select when the statement returns rows")

	assert.NotNil(t, projCol(t, proj, "id"))
	assert.NotNil(t, projCol(t, proj, "sku"))
}

func TestPlanInsertExecOnly(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	pf := planField(t, mustPlan(t, snap, g, `mutation {
	  shop { insert_Product(data: [{sku: "a-1", name: "Anvil"}]) { affected_rows } }
	}`), "shop", "insert_Product")
	mut, ok := pf.Prim.(*engine.Mutation)
	require.True(t, ok, "no returning means no projection layer")
	assert.True(t, mut.Query.Exec)
	require.Len(t, pf.Mutation, 1)
	assert.True(t, pf.Mutation[0].Affected)
}

func TestPlanInsertReselectWithoutReturningSupport(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	pf := planField(t, mustPlan(t, snap, g, `mutation {
	  insert_Note(data: [{id: 5, body: "x"}, {id: 6}]) {
	    affected_rows
	    returning { id body }
	  }
	}`), "insert_Note")
	proj, ok := pf.Prim.(*engine.Projection)
	require.True(t, ok)
	mut, ok := proj.Input.(*engine.Mutation)
	require.True(t, ok)
	assert.True(t, mut.Query.Exec, "the write itself returns no rows")
	route, ok := mut.Returning.(*engine.Route)
	require.True(t, ok, "the written rows read back by primary key")
	assert.Equal(t, "legacy", route.Source)
	assert.Len(t, route.Query.Fields, 2)
}

func TestPlanInsertReselectRequiresKeys(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	_, err := buildPlan(t, snap, g, `mutation {
	  insert_Note(data: [{body: "x"}]) { returning { id } }
	}`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires primary key values")
}

func TestPlanUpdateWithReturning(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	pf := planField(t, mustPlan(t, snap, g, `mutation {
	  shop {
	    update_Product(filter: {id: {eq: 1}}, data: {price: 12}) {
	      affected_rows
	      returning { id price }
	    }
	  }
	}`), "shop", "update_Product")
	proj, ok := pf.Prim.(*engine.Projection)
	require.True(t, ok)
	mut, ok := proj.Input.(*engine.Mutation)
	require.True(t, ok)
	assert.False(t, mut.Query.Exec)
	assert.Nil(t, mut.Returning)
}

func TestPlanUpdateReselect(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	pf := planField(t, mustPlan(t, snap, g, `mutation {
	  update_Note(filter: {id: {eq: 5}}, data: {body: "y"}) { returning { body } }
	}`), "update_Note")
	proj, ok := pf.Prim.(*engine.Projection)
	require.True(t, ok)
	mut, ok := proj.Input.(*engine.Mutation)
	require.True(t, ok)
	_, ok = mut.Returning.(*engine.Route)
	assert.True(t, ok, "the update's filter re-selects the rows it touched")
}

func TestPlanDeleteReturning(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	pf := planField(t, mustPlan(t, snap, g, `mutation {
	  shop { delete_Product(filter: {id: {eq: 1}}) { affected_rows returning { id } } }
	}`), "shop", "delete_Product")
	proj, ok := pf.Prim.(*engine.Projection)
	require.True(t, ok)
	mut, ok := proj.Input.(*engine.Mutation)
	require.True(t, ok)
	assert.False(t, mut.Query.Exec)

	// Deleted rows cannot be read back after the fact.
	_, err := buildPlan(t, snap, g, `mutation {
	  delete_Note(filter: {id: {eq: 5}}) { returning { id } }
	}`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETURNING support")
}

func TestPlanMutationRequiresSQLSource(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	_, err := buildPlan(t, snap, g, `mutation {
	  insert_EventLog(data: [{id: 1, kind: "scan"}]) { affected_rows }
	}`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "require a SQL source")
}

func TestPlanWriteHiddenFieldRejected(t *testing.T) {
	cat := buildFederation(t)
	snap, err := compiler.Compile(cat, 1)
	require.NoError(t, err)
	set, err := accessctl.Compile(cat, []accessctl.RoleSpec{{
		Name: "analyst",
		Permissions: []accessctl.PermissionSpec{
			{Object: "*"},
			{Object: "shop.Product", Hidden: []string{"price"}},
		},
	}})
	require.NoError(t, err)
	g, err := set.Role("analyst")
	require.NoError(t, err)

	_, err = buildPlan(t, snap, g, `mutation {
	  shop { insert_Product(data: [{sku: "a", name: "A", price: 1}]) { affected_rows } }
	}`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot write field price")
}

func TestPlanSQLFunctionRoot(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	pf := planField(t, mustPlan(t, snap, g,
		`{ shop { function { rating(product_id: 9) } } }`), "shop", "function", "rating")
	assert.Equal(t, RenderValue, pf.Kind)
	proj, ok := pf.Prim.(*engine.Projection)
	require.True(t, ok)
	route, ok := proj.Input.(*engine.Route)
	require.True(t, ok)
	assert.Equal(t, "shop", route.Source)
	assert.NotEmpty(t, route.Query.SQL)
	assert.Nil(t, route.Query.Call)
	require.Len(t, route.Query.Fields, 1)
	assert.Equal(t, "_result", route.Query.Fields[0].Name)
}

func TestPlanHTTPFunctionRoot(t *testing.T) {
	snap := compileFederation(t)
	g := openGrant(t, snap.Catalog)

	pf := planField(t, mustPlan(t, snap, g,
		`{ api { function { weather(city: "berlin") } } }`), "api", "function", "weather")
	assert.Equal(t, RenderValue, pf.Kind)
	proj, ok := pf.Prim.(*engine.Projection)
	require.True(t, ok)
	route, ok := proj.Input.(*engine.Route)
	require.True(t, ok)
	assert.Equal(t, "api", route.Source)
	assert.Empty(t, route.Query.SQL)
	require.NotNil(t, route.Query.Call)
	assert.Equal(t, "GET", route.Query.Call.Method)
	assert.Equal(t, map[string]any{"city": "berlin"}, route.Query.Call.Args)
}
