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

package qcache

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ResultKey derives the cache key for a query subtree that carries no
// explicit key. Two requests with the same query text, the same
// variable values and the same role always derive the same key, so
// repeated lookups land on the same entry in both tiers.
//
// Variables are canonicalized through encoding/json, which writes map
// keys in sorted order. The role participates in the key so that
// role-filtered results never leak across roles.
func ResultKey(role, query string, variables map[string]any) string {
	h := xxhash.New()
	h.WriteString(role)
	h.Write([]byte{0})
	h.WriteString(query)
	h.Write([]byte{0})
	if len(variables) > 0 {
		vars, err := json.Marshal(variables)
		if err != nil {
			// Unencodable variables would have failed coercion before
			// reaching the cache. An empty key makes Fetch skip both
			// tiers rather than mix results across variable sets.
			return ""
		}
		h.Write(vars)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
