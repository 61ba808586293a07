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
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/engine"
	"github.com/latticeio/lattice/go/lt/lterrors"
)

func hasDirective(dirs ast.DirectiveList, name string) bool {
	return dirs.ForName(name) != nil
}

// cacheDirectives is the parsed caching stance of one field or of the
// whole operation.
type cacheDirectives struct {
	cache      bool
	ttl        time.Duration
	key        string
	tags       []string
	noCache    bool
	invalidate bool
}

func (p *planner) cacheDirectivesOf(dirs ast.DirectiveList) (cacheDirectives, error) {
	var cd cacheDirectives
	cd.noCache = hasDirective(dirs, "no_cache")
	cd.invalidate = hasDirective(dirs, "invalidate_cache")
	d := dirs.ForName("cache")
	if d == nil {
		return cd, nil
	}
	cd.cache = true
	for _, a := range d.Arguments {
		v, err := p.value(a.Value)
		if err != nil {
			return cd, err
		}
		if v == nil {
			continue
		}
		switch a.Name {
		case "ttl":
			secs, err := toInt64(v, "@cache(ttl)")
			if err != nil {
				return cd, err
			}
			cd.ttl = time.Duration(secs) * time.Second
		case "key":
			s, err := toString(v, "@cache(key)")
			if err != nil {
				return cd, err
			}
			cd.key = s
		case "tags":
			tags, err := toStringList(v, "@cache(tags)")
			if err != nil {
				return cd, err
			}
			cd.tags = tags
		default:
			return cd, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown @cache argument %s", a.Name)
		}
	}
	return cd, nil
}

// wrapCache applies the result cache stance of one root read field: the
// field's directives override the object's schema policy, and the
// operation-level directives override both. Mutation roots never pass
// through here; their writes invalidate tags instead.
func (p *planner) wrapCache(prim engine.Primitive, f *ast.Field, obj *catalog.DataObject, path []string) (engine.Primitive, error) {
	fd, err := p.cacheDirectivesOf(f.Directives)
	if err != nil {
		return nil, err
	}

	spec := &engine.Cached{Input: prim}
	cached := false
	if obj != nil && obj.Cache != nil && !obj.NoCache {
		cached = true
		spec.TTL = time.Duration(obj.Cache.TTLSeconds) * time.Second
		spec.Key = obj.Cache.Key
		spec.Tags = append([]string(nil), obj.Cache.Tags...)
	}
	if fd.cache || p.opCache.cache {
		cached = true
		src := fd
		if !fd.cache {
			src = p.opCache
		}
		if src.ttl > 0 {
			spec.TTL = src.ttl
		}
		if src.key != "" {
			spec.Key = src.key
		}
		if len(src.tags) > 0 {
			spec.Tags = src.tags
		}
	}

	invalidate := fd.invalidate || p.opCache.invalidate || (obj != nil && obj.InvalidateCache)
	if invalidate {
		spec.Invalidate = true
		return spec, nil
	}
	if !cached {
		return prim, nil
	}
	if fd.noCache || p.opCache.noCache || (obj != nil && obj.NoCache) {
		// The field would cache by policy but this request opted out;
		// bypass still counts the lookup.
		spec.Bypass = true
	}
	if spec.Key == "" {
		// Derived keys hash the request text plus the field's response
		// path, so two cached roots of one document never collide.
		spec.KeyText = p.queryText + "\x00" + strings.Join(path, ".")
	}
	return spec, nil
}
