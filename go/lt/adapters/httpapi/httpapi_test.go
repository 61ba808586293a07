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

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

func newAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := New(adapters.Config{Name: "api", Type: "http", Path: srv.URL})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(adapters.Config{Name: "api", Path: "ftp://example.com"})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeSchemaDefinition, lterrors.ErrCode(err))
}

func TestCallExpandsPathAndQuery(t *testing.T) {
	var gotPath, gotQuery string
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{"current":{"temp":21.5,"city":"Oslo"}}`)
	}))

	res, err := a.Execute(context.Background(), &adapters.NativeQuery{
		Call: &adapters.FunctionCall{
			Name:     "weather",
			Path:     "/v1/weather/{city}",
			JSONPath: "current",
			Args:     map[string]any{"city": "Oslo", "units": "metric"},
		},
		Fields: []rowset.Field{
			{Name: "temp", Type: rowset.Float64},
			{Name: "city", Type: rowset.String},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/v1/weather/Oslo", gotPath)
	assert.Equal(t, "units=metric", gotQuery)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, rowset.Row{21.5, "Oslo"}, res.Rows[0])
}

func TestCallArrayResult(t *testing.T) {
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"items":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`)
	}))

	res, err := a.Execute(context.Background(), &adapters.NativeQuery{
		Call: &adapters.FunctionCall{Name: "list", Path: "/items", JSONPath: "items"},
		Fields: []rowset.Field{
			{Name: "id", Type: rowset.Int64},
			{Name: "name", Type: rowset.String},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, rowset.Row{int64(1), "a"}, res.Rows[0])
	assert.Equal(t, rowset.Row{int64(2), "b"}, res.Rows[1])
}

func TestCallScalarResult(t *testing.T) {
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"rate":0.25}`)
	}))

	res, err := a.Execute(context.Background(), &adapters.NativeQuery{
		Call:   &adapters.FunctionCall{Name: "rate", Path: "/rate", JSONPath: "rate"},
		Fields: []rowset.Field{{Name: "_result", Type: rowset.Float64}},
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, rowset.Row{0.25}, res.Rows[0])
}

func TestCallPostSendsJSONBody(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody map[string]any
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"ok":true}`)
	}))

	res, err := a.Execute(context.Background(), &adapters.NativeQuery{
		Call: &adapters.FunctionCall{
			Name:   "notify",
			Method: http.MethodPost,
			Path:   "/channels/{channel}/notify",
			Args:   map[string]any{"channel": "ops", "message": "deploy done", "urgent": true},
		},
		Fields: []rowset.Field{{Name: "ok", Type: rowset.Boolean}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{"message": "deploy done", "urgent": true}, gotBody)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, rowset.Row{true}, res.Rows[0])
}

func TestCallStatusMapping(t *testing.T) {
	var status int
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	q := &adapters.NativeQuery{
		Call:   &adapters.FunctionCall{Name: "f", Path: "/f"},
		Fields: []rowset.Field{{Name: "_result", Type: rowset.JSON}},
	}

	status = http.StatusBadGateway
	_, err := a.Execute(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, lterrors.SourceUnreachable, lterrors.ErrState(err))

	status = http.StatusForbidden
	_, err = a.Execute(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, lterrors.AccessDenied, lterrors.ErrState(err))

	status = http.StatusGatewayTimeout
	_, err = a.Execute(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, lterrors.Timeout, lterrors.ErrState(err))

	status = http.StatusNotFound
	_, err = a.Execute(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeExecution, lterrors.ErrCode(err))
	assert.Equal(t, lterrors.Undefined, lterrors.ErrState(err))
}

func TestCallMissingJSONPath(t *testing.T) {
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"other":1}`)
	}))
	_, err := a.Execute(context.Background(), &adapters.NativeQuery{
		Call:   &adapters.FunctionCall{Name: "f", Path: "/f", JSONPath: "data"},
		Fields: []rowset.Field{{Name: "_result", Type: rowset.JSON}},
	})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodeExecution, lterrors.ErrCode(err))
}

func TestCallUnresolvedPlaceholder(t *testing.T) {
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	_, err := a.Execute(context.Background(), &adapters.NativeQuery{
		Call: &adapters.FunctionCall{Name: "f", Path: "/f/{id}", Args: map[string]any{}},
	})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodePlanning, lterrors.ErrCode(err))

	// Planning-level failures never reach the wire.
	_, err = a.Execute(context.Background(), &adapters.NativeQuery{})
	require.Error(t, err)
	assert.Equal(t, lterrors.CodePlanning, lterrors.ErrCode(err))
}

func TestCallNullResult(t *testing.T) {
	a := newAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":null}`)
	}))
	res, err := a.Execute(context.Background(), &adapters.NativeQuery{
		Call:   &adapters.FunctionCall{Name: "f", Path: "/f", JSONPath: "data"},
		Fields: []rowset.Field{{Name: "_result", Type: rowset.JSON}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}
