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

package rowset

import (
	"bytes"
	"encoding/json"
	"time"
)

// Document is an insertion-ordered string map. GraphQL responses must
// render fields in selection order, so assembled results use Document
// instead of plain maps.
type Document struct {
	keys   []string
	values map[string]any
}

// NewDocument returns an empty Document.
func NewDocument() *Document {
	return &Document{values: make(map[string]any)}
}

// Set stores a value, keeping first-set order for the key.
func (d *Document) Set(key string, value any) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value for key.
func (d *Document) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the keys in insertion order. The slice is shared.
func (d *Document) Keys() []string {
	return d.keys
}

// Len returns the number of keys.
func (d *Document) Len() int {
	return len(d.keys)
}

// MarshalJSON renders the document preserving key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RenderValue converts a normalized cell value into a JSON-native value
// for response assembly. Timestamps render as RFC3339Nano, dates as
// yyyy-mm-dd.
func RenderValue(t Type, list bool, v any) any {
	if v == nil {
		return nil
	}
	if list {
		items, ok := v.([]any)
		if !ok {
			return v
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = RenderValue(t, false, item)
		}
		return out
	}
	switch t {
	case Timestamp:
		if ts, ok := v.(time.Time); ok {
			return ts.Format(time.RFC3339Nano)
		}
	case Date:
		if ts, ok := v.(time.Time); ok {
			return ts.Format("2006-01-02")
		}
	}
	return v
}
