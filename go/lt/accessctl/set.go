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

package accessctl

import (
	"sort"
	"strings"

	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
)

// Set holds the compiled grants of every role against one catalog
// snapshot. Objects a role's rules never match are denied.
type Set struct {
	cat   *catalog.Catalog
	roles map[string]*Grant
	open  *Grant
}

// Grant is one role resolved against the catalog.
type Grant struct {
	cat     *catalog.Catalog
	name    string
	all     bool
	objects map[catalog.ObjectID]*objectGrant
	funcs   map[catalog.FunctionID]bool
	filters map[catalog.ObjectID]map[string]any
}

type objectGrant struct {
	allowed [4]bool
	filter  map[string]any
	hidden  map[string]bool
	// denied closes the object entirely when a wildcard rule's filter
	// does not resolve against it.
	denied bool
}

// Compile resolves role specifications against the catalog. Rules with
// an exact object pattern must match a known object or function; rules
// carrying a denial must not also carry a filter or hidden fields.
func Compile(cat *catalog.Catalog, specs []RoleSpec) (*Set, error) {
	s := &Set{
		cat:   cat,
		roles: make(map[string]*Grant, len(specs)),
		open:  &Grant{cat: cat, all: true},
	}
	for i := range specs {
		spec := &specs[i]
		if spec.Name == "" {
			return nil, lterrors.New(lterrors.CodeSchemaDefinition, "role with an empty name")
		}
		if _, dup := s.roles[spec.Name]; dup {
			return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition, "duplicate role %q", spec.Name)
		}
		g, err := s.compileRole(spec)
		if err != nil {
			return nil, err
		}
		s.roles[spec.Name] = g
	}
	return s, nil
}

// Role returns the grant for name. An empty name disables access
// control for the request; an unknown name is a validation error.
func (s *Set) Role(name string) (*Grant, error) {
	if name == "" {
		return s.open, nil
	}
	g, ok := s.roles[name]
	if !ok {
		return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown role %q", name)
	}
	return g, nil
}

// Roles lists the compiled role names, sorted.
func (s *Set) Roles() []string {
	out := make([]string, 0, len(s.roles))
	for name := range s.roles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Set) compileRole(spec *RoleSpec) (*Grant, error) {
	g := &Grant{
		cat:     s.cat,
		name:    spec.Name,
		objects: make(map[catalog.ObjectID]*objectGrant),
		funcs:   make(map[catalog.FunctionID]bool),
		filters: make(map[catalog.ObjectID]map[string]any),
	}

	rules := make([]rule, 0, len(spec.Permissions))
	for i := range spec.Permissions {
		r, err := compileRule(spec.Name, &spec.Permissions[i])
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	for _, id := range s.cat.Objects() {
		obj := s.cat.Object(id)
		name := qualified(obj.Module, obj.Name)
		og := &objectGrant{}
		matched := false
		for ri := range rules {
			r := &rules[ri]
			if !matchPattern(r.spec.Object, name) {
				continue
			}
			r.used = true
			matched = true
			for op := OpSelect; op <= OpDelete; op++ {
				if r.objOps[op] {
					og.allowed[op] = !r.spec.Disallow
				}
			}
			if r.spec.Disallow {
				continue
			}
			if r.spec.Filter != nil {
				if err := s.checkFilterKeys(id, obj, r.spec.Filter); err != nil {
					if r.exact {
						return nil, lterrors.Wrapf(err, "role %q", spec.Name)
					}
					og.denied = true
					continue
				}
				og.filter = andFilters(og.filter, r.spec.Filter)
			}
			for _, h := range r.spec.Hidden {
				if obj.Field(h) == nil {
					if r.exact {
						return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
							"role %q hides unknown field %q on %s", spec.Name, h, name)
					}
					continue
				}
				if og.hidden == nil {
					og.hidden = make(map[string]bool)
				}
				og.hidden[h] = true
			}
		}
		if matched {
			g.objects[id] = og
			if !og.denied && og.filter != nil {
				g.filters[id] = og.filter
			}
		}
	}

	for _, id := range s.cat.Functions() {
		fn := s.cat.Function(id)
		name := qualified(fn.Module, fn.Name)
		for ri := range rules {
			r := &rules[ri]
			if !matchPattern(r.spec.Object, name) {
				continue
			}
			r.used = true
			if r.call {
				g.funcs[id] = !r.spec.Disallow
			}
		}
	}

	for ri := range rules {
		r := &rules[ri]
		if !r.exact || r.used {
			continue
		}
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"role %q references unknown object %q", spec.Name, r.spec.Object)
	}
	return g, nil
}

type rule struct {
	spec   *PermissionSpec
	objOps [4]bool
	call   bool
	exact  bool
	used   bool
}

func compileRule(role string, p *PermissionSpec) (rule, error) {
	r := rule{spec: p, exact: !strings.HasSuffix(p.Object, "*")}
	if p.Object == "" {
		return r, lterrors.Errorf(lterrors.CodeSchemaDefinition, "role %q has a permission without an object", role)
	}
	if p.Disallow && (p.Filter != nil || len(p.Hidden) > 0) {
		return r, lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"role %q denial of %q cannot carry a filter or hidden fields", role, p.Object)
	}
	if len(p.Ops) == 0 {
		r.objOps = [4]bool{true, true, true, true}
		r.call = true
		return r, nil
	}
	for _, name := range p.Ops {
		op, ok := OpByName(name)
		if !ok {
			return r, lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"role %q permission on %q names unknown operation %q", role, p.Object, name)
		}
		if op == OpCall {
			r.call = true
			continue
		}
		r.objOps[op] = true
	}
	return r, nil
}

// checkFilterKeys verifies the top level of a row filter resolves on
// the object: combinators, scalar fields, or relation query fields.
// Deeper shapes are validated when the filter compiles per request.
func (s *Set) checkFilterKeys(id catalog.ObjectID, obj *catalog.DataObject, m map[string]any) error {
	for k := range m {
		if k == "_and" || k == "_or" || k == "_not" {
			continue
		}
		if _, _, ok := s.cat.ResolveRelation(id, k); ok {
			continue
		}
		if f := obj.Field(k); f != nil && f.IsScalar() {
			continue
		}
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"row filter references unknown field %q on %s", k, qualified(obj.Module, obj.Name))
	}
	return nil
}

func andFilters(a, b map[string]any) map[string]any {
	if a == nil {
		return b
	}
	return map[string]any{"_and": []any{a, b}}
}

// Name returns the role name; the open grant has none.
func (g *Grant) Name() string { return g.name }

// CheckObject reports whether the role may run op against the object,
// as a validation error naming both when it may not.
func (g *Grant) CheckObject(id catalog.ObjectID, op Op) error {
	if g.all {
		return nil
	}
	og := g.objects[id]
	if og == nil || og.denied || op < OpSelect || op > OpDelete || !og.allowed[op] {
		obj := g.cat.Object(id)
		return lterrors.Errorf(lterrors.CodeQueryValidation,
			"role %q may not %s %s", g.name, op.Name(), qualified(obj.Module, obj.Name))
	}
	return nil
}

// CheckFunction reports whether the role may call the function.
func (g *Grant) CheckFunction(id catalog.FunctionID) error {
	if g.all {
		return nil
	}
	if !g.funcs[id] {
		fn := g.cat.Function(id)
		return lterrors.Errorf(lterrors.CodeQueryValidation,
			"role %q may not call %s", g.name, qualified(fn.Module, fn.Name))
	}
	return nil
}

// RowFilters returns the per-object row filters of the role, in the
// query filter vocabulary. Callers must not mutate the result.
func (g *Grant) RowFilters() map[catalog.ObjectID]map[string]any {
	if g.all {
		return nil
	}
	return g.filters
}

// RowFilter returns the row filter for one object, nil when none.
func (g *Grant) RowFilter(id catalog.ObjectID) map[string]any {
	if g.all {
		return nil
	}
	return g.filters[id]
}

// Hidden lists the redacted fields of an object, sorted.
func (g *Grant) Hidden(id catalog.ObjectID) []string {
	if g.all {
		return nil
	}
	og := g.objects[id]
	if og == nil || len(og.hidden) == 0 {
		return nil
	}
	out := make([]string, 0, len(og.hidden))
	for name := range og.hidden {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HiddenField reports whether the named field is redacted.
func (g *Grant) HiddenField(id catalog.ObjectID, name string) bool {
	if g.all {
		return false
	}
	og := g.objects[id]
	return og != nil && og.hidden[name]
}
