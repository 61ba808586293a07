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

package catalog

// Cardinality is the relation arity seen from the source side.
type Cardinality int32

const (
	OneToOne Cardinality = iota
	ManyToOne
	OneToMany
	ManyToMany
)

func (c Cardinality) String() string {
	switch c {
	case OneToOne:
		return "OneToOne"
	case ManyToOne:
		return "ManyToOne"
	case OneToMany:
		return "OneToMany"
	case ManyToMany:
		return "ManyToMany"
	}
	return "Unknown"
}

// Inverse is the arity seen from the target side.
func (c Cardinality) Inverse() Cardinality {
	switch c {
	case ManyToOne:
		return OneToMany
	case OneToMany:
		return ManyToOne
	}
	return c
}

// ToMany reports whether the source-side query field yields row lists.
func (c Cardinality) ToMany() bool {
	return c == OneToMany || c == ManyToMany
}

// RelationKind tells how the relation was declared and therefore how it
// joins.
type RelationKind int32

const (
	// RefRelation comes from @references or @field_references; joins on
	// field equality, pushdown-capable within one source.
	RefRelation RelationKind = iota
	// JoinRelation comes from @join; joins on a raw SQL template.
	JoinRelation
	// FuncCallRelation comes from @function_call or
	// @table_function_call_join; resolved by calling a function per
	// distinct argument tuple.
	FuncCallRelation
	// M2MRelation is synthesized from the two foreign keys of an is_m2m
	// junction table.
	M2MRelation
)

func (k RelationKind) String() string {
	switch k {
	case RefRelation:
		return "ref"
	case JoinRelation:
		return "join"
	case FuncCallRelation:
		return "function_call"
	case M2MRelation:
		return "m2m"
	}
	return "unknown"
}

// FuncCall binds a FuncCallRelation to its function. Args maps function
// argument names to source field names.
type FuncCall struct {
	Function FunctionID
	Args     map[string]string
	// JoinSourceFields/JoinTargetFields are set for
	// @table_function_call_join: the call's result rows are matched to
	// source rows on these fields instead of argument identity.
	JoinSourceFields []string
	JoinTargetFields []string
}

// Relation is a named, directed edge between two data objects. For
// FuncCallRelation the target may be NoObject when the function returns
// scalars or row types.
type Relation struct {
	ID   RelationID
	Name string
	Kind RelationKind

	From ObjectID
	To   ObjectID

	SourceFields []string
	TargetFields []string
	Cardinality  Cardinality

	// QueryFieldOnSource/QueryFieldOnTarget name the generated (or, for
	// @join and call relations, declared) query fields. Empty means no
	// field on that side.
	QueryFieldOnSource string
	QueryFieldOnTarget string

	// JoinCondition is the raw SQL template of a JoinRelation, with
	// [source.field] and [ref.field] placeholders.
	JoinCondition string

	// Through is the junction object of an M2MRelation, with the field
	// pairs from junction to each side.
	Through              ObjectID
	ThroughSourceFields  []string
	ThroughTargetFields  []string
	SourceUnique         bool
	IsCrossSource        bool
	FuncCall             *FuncCall
}

// CardinalityFor is the arity seen from the given side.
func (r *Relation) CardinalityFor(reverse bool) Cardinality {
	if reverse {
		return r.Cardinality.Inverse()
	}
	return r.Cardinality
}

// OtherSide returns the opposite object id from the given side.
func (r *Relation) OtherSide(reverse bool) ObjectID {
	if reverse {
		return r.From
	}
	return r.To
}

// OwnFields returns the join fields belonging to the given side.
func (r *Relation) OwnFields(reverse bool) []string {
	if reverse {
		return r.TargetFields
	}
	return r.SourceFields
}

// OtherFields returns the join fields belonging to the opposite side.
func (r *Relation) OtherFields(reverse bool) []string {
	if reverse {
		return r.SourceFields
	}
	return r.TargetFields
}
