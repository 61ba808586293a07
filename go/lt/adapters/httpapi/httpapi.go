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

// Package httpapi is the adapter for HTTP API sources. Such sources
// expose functions only: each call expands the declared path template,
// issues one request and extracts rows from the JSON response.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

func init() {
	adapters.Register("http", func(ctx context.Context, cfg adapters.Config) (adapters.Adapter, error) {
		return New(cfg)
	})
}

const maxResponseBytes = 32 << 20

var placeholderRE = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// Adapter calls one HTTP API base URL.
type Adapter struct {
	name   string
	base   string
	client *http.Client
}

var _ adapters.Adapter = (*Adapter)(nil)

// New validates the base URL in cfg.Path. No connection is attempted;
// HTTP sources are probed per call.
func New(cfg adapters.Config) (*Adapter, error) {
	u, err := url.Parse(cfg.Path)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition, "source %q: invalid base URL %q", cfg.Name, cfg.Path)
	}
	return &Adapter{
		name: cfg.Name,
		base: strings.TrimRight(u.String(), "/"),
		// The per-request context carries the real deadline; this is a
		// backstop against calls issued without one.
		client: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Capabilities implements adapters.Adapter. HTTP sources push nothing
// down; every operator runs locally.
func (a *Adapter) Capabilities() catalog.Capabilities { return catalog.Capabilities{} }

// Close implements adapters.Adapter.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

// Execute implements adapters.Adapter.
func (a *Adapter) Execute(ctx context.Context, q *adapters.NativeQuery) (*rowset.Result, error) {
	call := q.Call
	if call == nil {
		return nil, lterrors.New(lterrors.CodePlanning, "http adapter requires a function call")
	}
	req, err := a.buildRequest(ctx, call)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, mapTransportError(call.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, mapTransportError(call.Name, err)
	}
	if len(body) > maxResponseBytes {
		return nil, lterrors.Errorf(lterrors.CodeExecution, "function %s: response exceeds %d bytes", call.Name, maxResponseBytes)
	}
	if err := checkStatus(call.Name, resp.StatusCode); err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	if call.JSONPath != "" {
		doc = doc.Get(call.JSONPath)
		if !doc.Exists() {
			return nil, lterrors.Errorf(lterrors.CodeExecution, "function %s: path %q not present in response", call.Name, call.JSONPath)
		}
	}
	return shape(call.Name, doc, q.Fields)
}

func (a *Adapter) buildRequest(ctx context.Context, call *adapters.FunctionCall) (*http.Request, error) {
	path, used, err := expandPath(call.Name, call.Path, call.Args)
	if err != nil {
		return nil, err
	}
	method := call.Method
	if method == "" {
		method = http.MethodGet
	}
	rest := remainingArgs(call.Args, used)

	target := a.base + path
	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		if len(rest) > 0 {
			target = appendQuery(target, rest)
		}
	default:
		if len(rest) > 0 {
			payload, err := json.Marshal(rest)
			if err != nil {
				return nil, lterrors.Errorf(lterrors.CodePlanning, "function %s: cannot encode arguments: %v", call.Name, err)
			}
			body = bytes.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, lterrors.Errorf(lterrors.CodePlanning, "function %s: %v", call.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// expandPath substitutes {arg} placeholders and reports which argument
// names were consumed. An unresolved placeholder is a planning bug, not
// a source failure.
func expandPath(fn, tmpl string, args map[string]any) (string, map[string]bool, error) {
	used := make(map[string]bool)
	var missing []string
	out := placeholderRE.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := args[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		used[name] = true
		return url.QueryEscape(renderArg(v))
	})
	if len(missing) > 0 {
		return "", nil, lterrors.Errorf(lterrors.CodePlanning, "function %s: unresolved path arguments %v", fn, missing)
	}
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out, used, nil
}

func remainingArgs(args map[string]any, used map[string]bool) map[string]any {
	rest := make(map[string]any)
	for name, v := range args {
		if !used[name] && v != nil {
			rest[name] = v
		}
	}
	return rest
}

func appendQuery(target string, args map[string]any) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString(target)
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	for _, name := range names {
		sb.WriteString(sep)
		sb.WriteString(url.QueryEscape(name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(renderArg(args[name])))
		sep = "&"
	}
	return sb.String()
}

func renderArg(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func mapTransportError(fn string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.Timeout, "function %s: %v", fn, err)
	}
	if errors.Is(err, context.Canceled) {
		return lterrors.Wrap(err, "function "+fn)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.Timeout, "function %s: %v", fn, err)
	}
	return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.SourceUnreachable, "function %s: %v", fn, err)
}

func checkStatus(fn string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.AccessDenied, "function %s: status %d", fn, status)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.Timeout, "function %s: status %d", fn, status)
	case status >= 500:
		return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.SourceUnreachable, "function %s: status %d", fn, status)
	default:
		return lterrors.Errorf(lterrors.CodeExecution, "function %s: status %d", fn, status)
	}
}

// shape turns the selected JSON document into rows. Arrays become one
// row per element; a lone document becomes a single row. Elements that
// are objects are split across the declared columns by name, anything
// else lands in the single declared column.
func shape(fn string, doc gjson.Result, fields []rowset.Field) (*rowset.Result, error) {
	if len(fields) == 0 {
		fields = []rowset.Field{{Name: "_result", Type: rowset.JSON}}
	}
	result := &rowset.Result{Fields: fields}

	appendDoc := func(elem gjson.Result) error {
		row := make(rowset.Row, len(fields))
		for i, f := range fields {
			var raw any
			if len(fields) == 1 && !elem.IsObject() {
				raw = elem.Value()
			} else {
				raw = elem.Get(f.Name).Value()
			}
			cv, err := rowset.CoerceValue(f.Type, f.List, raw)
			if err != nil {
				return lterrors.Wrapf(err, "function %s: column %q", fn, f.Name)
			}
			row[i] = cv
		}
		result.AppendRow(row)
		return nil
	}

	if doc.IsArray() {
		for _, elem := range doc.Array() {
			if err := appendDoc(elem); err != nil {
				return nil, err
			}
		}
		return result, nil
	}
	if doc.Type == gjson.Null {
		return result, nil
	}
	if err := appendDoc(doc); err != nil {
		return nil, err
	}
	return result, nil
}
