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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrIncomparable is returned by NullsafeCompare for value pairs with no
// defined ordering.
var ErrIncomparable = fmt.Errorf("values are not comparable")

// NullsafeCompare compares two normalized cell values. nil sorts before
// everything; numbers compare across int64/float64; strings, bools and
// times compare natively.
func NullsafeCompare(a, b any) (int, error) {
	if a == nil && b == nil {
		return 0, nil
	}
	if a == nil {
		return -1, nil
	}
	if b == nil {
		return 1, nil
	}
	if af, aok := numericValue(a); aok {
		bf, bok := numericValue(b)
		if !bok {
			return 0, ErrIncomparable
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, ErrIncomparable
		}
		return strings.Compare(av, bv), nil
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, ErrIncomparable
		}
		switch {
		case av == bv:
			return 0, nil
		case bv:
			return -1, nil
		default:
			return 1, nil
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, ErrIncomparable
		}
		return av.Compare(bv), nil
	}
	return 0, ErrIncomparable
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// KeyString renders a value into a canonical string usable as a hash map
// key. Integral floats collapse to their integer form so that rows decoded
// from JSON sources join against rows from SQL drivers.
func KeyString(v any) string {
	switch n := v.(type) {
	case nil:
		return "\x00"
	case int64:
		return "i" + strconv.FormatInt(n, 10)
	case int32:
		return "i" + strconv.FormatInt(int64(n), 10)
	case int:
		return "i" + strconv.FormatInt(int64(n), 10)
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return "i" + strconv.FormatInt(int64(n), 10)
		}
		return "f" + strconv.FormatFloat(n, 'g', -1, 64)
	case bool:
		if n {
			return "b1"
		}
		return "b0"
	case string:
		return "s" + n
	case time.Time:
		return "t" + n.UTC().Format(time.RFC3339Nano)
	default:
		return "x" + fmt.Sprintf("%v", n)
	}
}

// RowKey renders the given columns of a row into one joinable key.
func RowKey(row Row, cols []int) string {
	var sb strings.Builder
	for i, c := range cols {
		if i > 0 {
			sb.WriteByte('\x1f')
		}
		sb.WriteString(KeyString(row[c]))
	}
	return sb.String()
}

// CoerceValue normalizes a raw driver or JSON-decoded value to the
// canonical Go representation for the given column type. It is lenient
// about source representations (JSON numbers for ints, strings for
// timestamps) and strict about results.
func CoerceValue(t Type, list bool, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if list {
		items, err := anySlice(v)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			cv, err := CoerceValue(t, false, item)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}
	switch t {
	case Int64, BigInt:
		return coerceInt(v)
	case Float64:
		return coerceFloat(v)
	case Boolean:
		return coerceBool(v)
	case String:
		return coerceString(v)
	case Timestamp:
		return coerceTime(v, false)
	case Date:
		return coerceTime(v, true)
	case JSON:
		return coerceJSON(v)
	case Geometry:
		return coerceGeometry(v)
	default:
		return v, nil
	}
}

func anySlice(v any) ([]any, error) {
	switch s := v.(type) {
	case []any:
		return s, nil
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	case []int64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	case []byte:
		// array transported as a JSON document
		var decoded []any
		if err := json.Unmarshal(s, &decoded); err != nil {
			return nil, fmt.Errorf("cannot decode array value: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("cannot treat %T as array", v)
	}
}

func coerceInt(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("integer value %d overflows", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", v)
	}
}

func coerceFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	default:
		return nil, fmt.Errorf("cannot coerce %T to float", v)
	}
}

func coerceBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case string:
		return strconv.ParseBool(b)
	case []byte:
		return strconv.ParseBool(string(b))
	default:
		return nil, fmt.Errorf("cannot coerce %T to boolean", v)
	}
}

func coerceString(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to string", v)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func coerceTime(v any, dateOnly bool) (any, error) {
	var ts time.Time
	switch s := v.(type) {
	case time.Time:
		ts = s
	case string:
		parsed, err := parseTime(s)
		if err != nil {
			return nil, err
		}
		ts = parsed
	case []byte:
		parsed, err := parseTime(string(s))
		if err != nil {
			return nil, err
		}
		ts = parsed
	default:
		return nil, fmt.Errorf("cannot coerce %T to timestamp", v)
	}
	if dateOnly {
		ts = ts.Truncate(24 * time.Hour)
	}
	return ts, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as timestamp", s)
}

func coerceJSON(v any) (any, error) {
	switch d := v.(type) {
	case []byte:
		var decoded any
		if err := json.Unmarshal(d, &decoded); err != nil {
			return nil, fmt.Errorf("invalid JSON value: %w", err)
		}
		return decoded, nil
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(d), &decoded); err != nil {
			return nil, fmt.Errorf("invalid JSON value: %w", err)
		}
		return decoded, nil
	default:
		return v, nil
	}
}

func coerceGeometry(v any) (any, error) {
	switch g := v.(type) {
	case map[string]any:
		return g, nil
	case []byte:
		var decoded map[string]any
		if err := json.Unmarshal(g, &decoded); err != nil {
			return nil, fmt.Errorf("invalid GeoJSON value: %w", err)
		}
		return decoded, nil
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(g), &decoded); err != nil {
			return nil, fmt.Errorf("invalid GeoJSON value: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to geometry", v)
	}
}
