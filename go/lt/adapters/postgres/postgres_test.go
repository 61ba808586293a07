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

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		sqlstate string
		state    lterrors.State
	}{
		{"23505", lterrors.UniqueViolation},
		{"23503", lterrors.ForeignKeyViolation},
		{"23502", lterrors.NotNullViolation},
		{"23514", lterrors.CheckViolation},
		{"57014", lterrors.Timeout},
		{"57P01", lterrors.SourceUnreachable},
		{"42601", lterrors.Undefined},
	}
	for _, tc := range cases {
		err := mapError(fmt.Errorf("exec: %w", &pgconn.PgError{Code: tc.sqlstate, Message: "boom"}))
		assert.Equal(t, lterrors.CodeExecution, lterrors.ErrCode(err), tc.sqlstate)
		assert.Equal(t, tc.state, lterrors.ErrState(err), tc.sqlstate)
	}

	err := mapError(context.DeadlineExceeded)
	assert.Equal(t, lterrors.Timeout, lterrors.ErrState(err))

	err = mapError(fmt.Errorf("dial: connection refused"))
	assert.Equal(t, lterrors.SourceUnreachable, lterrors.ErrState(err))
}

func TestNormalizeDriverValue(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("12.5"))
	assert.Equal(t, 12.5, normalizeDriverValue(n))

	id := [16]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x00}
	assert.Equal(t, "11223344-5566-7788-99aa-bbccddeeff00", normalizeDriverValue(id))

	assert.Equal(t, int64(7), normalizeDriverValue(int64(7)))
}

func TestCoerceCellUsesDeclaredTypes(t *testing.T) {
	fields := []rowset.Field{{Name: "price", Type: rowset.Float64}}
	v, err := coerceCell(fields, 0, int64(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	// Columns past the declared shape pass through untouched.
	v, err = coerceCell(fields, 1, "raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", v)
}
