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

package lterrors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeSurvivesWrapping(t *testing.T) {
	err := Errorf(CodePlanning, "cross-source relation %q needs a local join", "orders")
	wrapped := Wrapf(Wrap(err, "planning field customers"), "request %d", 7)

	assert.Equal(t, CodePlanning, ErrCode(wrapped))
	assert.Equal(t, `request 7: planning field customers: cross-source relation "orders" needs a local join`, wrapped.Error())
}

func TestStateSurvivesWrapping(t *testing.T) {
	err := NewState(CodeExecution, UniqueViolation, "duplicate key value")
	wrapped := fmt.Errorf("insert_customers: %w", err)

	assert.Equal(t, CodeExecution, ErrCode(wrapped))
	assert.Equal(t, UniqueViolation, ErrState(wrapped))
}

func TestUncodedErrors(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrCode(io.EOF))
	assert.Equal(t, Undefined, ErrState(errors.New("plain")))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "nothing"))
	assert.NoError(t, Wrapf(nil, "nothing %d", 1))
}

func TestStateFromSQLState(t *testing.T) {
	tests := []struct {
		sqlstate string
		want     State
	}{
		{"23505", UniqueViolation},
		{"23503", ForeignKeyViolation},
		{"23502", NotNullViolation},
		{"23514", CheckViolation},
		{"57014", Timeout},
		{"08006", SourceUnreachable},
		{"42601", Undefined},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StateFromSQLState(tc.sqlstate), "sqlstate %s", tc.sqlstate)
	}
}

func TestToGraphQL(t *testing.T) {
	err := NewState(CodeExecution, UniqueViolation, "duplicate key value")
	gqlErr := ToGraphQL(err, PathName("insert_customers"))
	require.NotNil(t, gqlErr)
	assert.Equal(t, "duplicate key value", gqlErr.Message)
	assert.Equal(t, "UNIQUE_VIOLATION", gqlErr.Extensions["code"])
	assert.Equal(t, `insert_customers`, gqlErr.Path.String())

	valErr := ToGraphQL(New(CodeQueryValidation, "unknown field"), nil)
	assert.Equal(t, "QUERY_VALIDATION", valErr.Extensions["code"])
}
