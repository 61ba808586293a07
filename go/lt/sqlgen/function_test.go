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

func TestFunctionCallStatement(t *testing.T) {
	cat := buildStore(t)
	fn := funcID(t, cat, "rating")

	q, err := pgBuilder(cat).FunctionCall(&FunctionDef{
		Function: fn,
		Args:     map[string]any{"product_id": 7},
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT rating FROM ratings WHERE product_id = $1`, q.SQL)
	assert.Equal(t, []any{7}, q.Args)

	q, err = myBuilder(cat).FunctionCall(&FunctionDef{
		Function: fn,
		Args:     map[string]any{"product_id": 7},
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT rating FROM ratings WHERE product_id = ?`, q.SQL)
}

func TestFunctionCallFragment(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	fn := funcID(t, cat, "tax")

	q, err := b.FunctionCall(&FunctionDef{
		Function: fn,
		Args:     map[string]any{"amount": 12.5},
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT $1 * 0.2 AS "_result"`, q.SQL)
	assert.Equal(t, []any{12.5}, q.Args)
}

func TestFunctionCallTable(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	fn := funcID(t, cat, "top_products")

	q, err := b.FunctionCall(&FunctionDef{Function: fn})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM top_products($1) AS "_f"`, q.SQL)
	assert.Equal(t, []any{int64(10)}, q.Args)
}

func TestFunctionCallHTTPNotSQL(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	fn := funcID(t, cat, "weather")

	_, err := b.FunctionCall(&FunctionDef{
		Function: fn,
		Args:     map[string]any{"city": "Lima"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFunctionCallRequiredArg(t *testing.T) {
	cat := buildStore(t)
	b := pgBuilder(cat)
	fn := funcID(t, cat, "rating")

	_, err := b.FunctionCall(&FunctionDef{Function: fn})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeQueryValidation, lterrors.ErrCode(err))
}
