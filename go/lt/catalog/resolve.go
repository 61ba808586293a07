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

import (
	"fmt"
	"sort"
	"strings"

	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/sdl"
	"github.com/latticeio/lattice/go/rowset"
)

// defaultQueryFields fills in the query field names for a reference
// relation when the SDL omitted them. The forward field takes the
// relation name; the reverse field prefixes the source object name
// unless the relation name already carries it. Self-referential
// relations must name at least one side explicitly or the two defaults
// collide.
func defaultQueryFields(obj *DataObject, relName, query, refQuery string) (string, string) {
	if query == "" {
		query = relName
	}
	if refQuery == "" {
		refQuery = relName
		if !strings.HasPrefix(relName, obj.Name+"_") {
			refQuery = obj.Name + "_" + relName
		}
	}
	return query, refQuery
}

// resolveRelations is pass two for one object: every cross-reference
// recorded in pass one is resolved against the full object set, in
// declaration order.
func (b *builder) resolveRelations(w *objWork) *sdl.SourceError {
	obj := &b.cat.objects[w.id]

	for _, r := range w.def.References {
		if err := b.addReference(w, obj, r); err != nil {
			return &sdl.SourceError{DataSource: w.cfg.Name, Err: err}
		}
	}

	idxs := make([]int, 0, len(w.relFields))
	for idx := range w.relFields {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		fd := w.relFields[idx]
		var err error
		switch {
		case fd.FieldReferences != nil:
			err = b.addFieldReference(w, obj, idx, fd)
		case fd.Join != nil:
			err = b.addJoin(w, obj, idx, fd)
		case fd.FunctionCall != nil, fd.TableFuncJoin != nil:
			err = b.addFuncCall(w, obj, idx, fd)
		}
		if err != nil {
			owner := fd.Owner
			if owner == "" {
				owner = w.cfg.Name
			}
			return &sdl.SourceError{DataSource: owner, Err: err}
		}
	}
	return nil
}

func (b *builder) addReference(w *objWork, obj *DataObject, r *sdl.ReferencesSpec) error {
	target, ok := b.cat.byName[r.ReferencesName]
	if !ok {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"object %s: @references names unknown object %s", obj.Name, r.ReferencesName)
	}
	if b.cat.objects[target].Source != obj.Source {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"object %s: @references to %s crosses data sources, use @join or @function_call", obj.Name, r.ReferencesName)
	}
	if err := b.checkKeyFields(obj, r.SourceFields, &b.cat.objects[target], r.ReferencesFields); err != nil {
		return err
	}
	card := ManyToOne
	if r.IsUnique {
		card = OneToOne
	}
	name := r.Name
	if name == "" {
		name = fmt.Sprintf("%s_%s", obj.Name, r.ReferencesName)
	}
	query, refQuery := defaultQueryFields(obj, name, r.Query, r.ReferencesQuery)
	_, err := b.register(Relation{
		Name:               name,
		Kind:               RefRelation,
		From:               obj.ID,
		To:                 target,
		SourceFields:       append([]string{}, r.SourceFields...),
		TargetFields:       append([]string{}, r.ReferencesFields...),
		Cardinality:        card,
		QueryFieldOnSource: query,
		QueryFieldOnTarget: refQuery,
		SourceUnique:       r.IsUnique,
	}, -1, -1)
	return err
}

func (b *builder) addFieldReference(w *objWork, obj *DataObject, idx int, fd *sdl.FieldDef) error {
	r := fd.FieldReferences
	target, ok := b.cat.byName[r.ReferencesName]
	if !ok {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"field %s.%s: @field_references names unknown object %s", obj.Name, fd.Name, r.ReferencesName)
	}
	to := &b.cat.objects[target]
	if to.Source != obj.Source {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"field %s.%s: @field_references to %s crosses data sources, use @join or @function_call", obj.Name, fd.Name, r.ReferencesName)
	}
	targetField := r.Field
	if targetField == "" {
		if len(to.PrimaryKey) != 1 {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"field %s.%s: @field_references needs field, %s has no single-column primary key", obj.Name, fd.Name, r.ReferencesName)
		}
		targetField = to.PrimaryKey[0]
	}
	if err := b.checkKeyFields(obj, []string{fd.Name}, to, []string{targetField}); err != nil {
		return err
	}
	name := r.Name
	if name == "" {
		name = fmt.Sprintf("%s_%s", obj.Name, fd.Name)
	}
	query, refQuery := defaultQueryFields(obj, name, r.Query, r.ReferencesQuery)
	_, err := b.register(Relation{
		Name:               name,
		Kind:               RefRelation,
		From:               obj.ID,
		To:                 target,
		SourceFields:       []string{fd.Name},
		TargetFields:       []string{targetField},
		Cardinality:        ManyToOne,
		QueryFieldOnSource: query,
		QueryFieldOnTarget: refQuery,
	}, idx, -1)
	return err
}

func (b *builder) addJoin(w *objWork, obj *DataObject, idx int, fd *sdl.FieldDef) error {
	r := fd.Join
	target, ok := b.cat.byName[r.ReferencesName]
	if !ok {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"field %s.%s: @join names unknown object %s", obj.Name, fd.Name, r.ReferencesName)
	}
	if name := baseName(fd); name != r.ReferencesName {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"field %s.%s: field type %s does not match references_name %s", obj.Name, fd.Name, name, r.ReferencesName)
	}
	to := &b.cat.objects[target]
	cross := to.Source != obj.Source
	if cross && (len(r.SourceFields) == 0 || len(r.SourceFields) != len(r.ReferencesFields)) {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"field %s.%s: cross-source @join requires matching source_fields and references_fields", obj.Name, fd.Name)
	}
	card := OneToOne
	if fd.Def.Type.Elem != nil {
		card = OneToMany
	}
	_, err := b.register(Relation{
		Name:               fmt.Sprintf("%s_%s", obj.Name, fd.Name),
		Kind:               JoinRelation,
		From:               obj.ID,
		To:                 target,
		SourceFields:       append([]string{}, r.SourceFields...),
		TargetFields:       append([]string{}, r.ReferencesFields...),
		Cardinality:        card,
		QueryFieldOnSource: fd.Name,
		JoinCondition:      r.SQL,
		IsCrossSource:      cross,
	}, idx, -1)
	return err
}

func (b *builder) addFuncCall(w *objWork, obj *DataObject, idx int, fd *sdl.FieldDef) error {
	var refName string
	var args map[string]string
	var joinSrc, joinTgt []string
	if fd.FunctionCall != nil {
		refName = fd.FunctionCall.ReferencesName
		args = fd.FunctionCall.Args
	} else {
		refName = fd.TableFuncJoin.ReferencesName
		args = fd.TableFuncJoin.Args
		joinSrc = fd.TableFuncJoin.SourceFields
		joinTgt = fd.TableFuncJoin.ReferencesFields
	}
	fnID, ok := b.cat.funcByName[refName]
	if !ok {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"field %s.%s: references unknown function %s", obj.Name, fd.Name, refName)
	}
	fn := &b.cat.functions[fnID]
	for argName, srcField := range args {
		if fn.Arg(argName) == nil {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"field %s.%s: function %s has no argument %s", obj.Name, fd.Name, refName, argName)
		}
		if obj.Field(srcField) == nil {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"field %s.%s: argument %s maps to unknown field %s", obj.Name, fd.Name, argName, srcField)
		}
	}
	if fd.TableFuncJoin != nil {
		if !fn.IsTable {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"field %s.%s: @table_function_call_join requires a table function", obj.Name, fd.Name)
		}
		if len(joinSrc) == 0 || len(joinSrc) != len(joinTgt) {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"field %s.%s: @table_function_call_join requires matching source_fields and references_fields", obj.Name, fd.Name)
		}
	}
	card := OneToOne
	if fd.Def.Type.Elem != nil {
		card = OneToMany
	}
	_, err := b.register(Relation{
		Name:               fmt.Sprintf("%s_%s", obj.Name, fd.Name),
		Kind:               FuncCallRelation,
		From:               obj.ID,
		To:                 fn.ReturnObject,
		Cardinality:        card,
		QueryFieldOnSource: fd.Name,
		IsCrossSource:      fn.Source != obj.Source,
		FuncCall: &FuncCall{
			Function:         fnID,
			Args:             args,
			JoinSourceFields: append([]string{}, joinSrc...),
			JoinTargetFields: append([]string{}, joinTgt...),
		},
	}, idx, -1)
	return err
}

// checkKeyFields verifies both key sides exist and agree on scalar type.
func (b *builder) checkKeyFields(from *DataObject, fromFields []string, to *DataObject, toFields []string) error {
	for i := range fromFields {
		ff := from.Field(fromFields[i])
		if ff == nil {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"object %s: relation names unknown field %s", from.Name, fromFields[i])
		}
		tf := to.Field(toFields[i])
		if tf == nil {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"object %s: relation names unknown field %s on %s", from.Name, toFields[i], to.Name)
		}
		if !compatibleKeyTypes(ff.Scalar, tf.Scalar) || ff.List || tf.List {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"object %s: relation key %s (%s) does not match %s.%s (%s)",
				from.Name, fromFields[i], ff.Scalar, to.Name, toFields[i], tf.Scalar)
		}
	}
	return nil
}

func compatibleKeyTypes(a, b rowset.Type) bool {
	if a == b {
		return true
	}
	return a.IsNumeric() && b.IsNumeric()
}

// register adds the relation to the arena and claims its query fields
// on both sides. fromIdx/toIdx point at declared relation fields in the
// respective objects' field arrays, -1 when the field is synthesized by
// the compiler.
func (b *builder) register(rel Relation, fromIdx, toIdx int) (RelationID, error) {
	id := RelationID(len(b.cat.relations))
	rel.ID = id
	if rel.To == NoObject && rel.Kind != FuncCallRelation {
		return NoRelation, lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"relation %s has no target", rel.Name)
	}

	from := &b.cat.objects[rel.From]
	if rel.QueryFieldOnSource != "" {
		if err := b.claimQueryField(from, rel.QueryFieldOnSource, relRef{id: id, reverse: false}, fromIdx); err != nil {
			return NoRelation, err
		}
	}
	if rel.To != NoObject && rel.QueryFieldOnTarget != "" {
		to := &b.cat.objects[rel.To]
		if err := b.claimQueryField(to, rel.QueryFieldOnTarget, relRef{id: id, reverse: true}, toIdx); err != nil {
			return NoRelation, err
		}
	}

	b.cat.relations = append(b.cat.relations, rel)
	from.Relations = append(from.Relations, id)
	if rel.To != NoObject && rel.To != rel.From {
		b.cat.objects[rel.To].Relations = append(b.cat.objects[rel.To].Relations, id)
	}
	if fromIdx >= 0 {
		from.Fields[fromIdx].Relation = id
	}
	return id, nil
}

// claimQueryField binds a relation to a query field name on one object.
// declaredIdx >= 0 means the name belongs to a field declared in SDL;
// otherwise the name must be free for the compiler to synthesize.
func (b *builder) claimQueryField(obj *DataObject, name string, ref relRef, declaredIdx int) error {
	if prev, ok := obj.relFields[name]; ok {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"object %s: query field %s already claimed by relation %s",
			obj.Name, name, b.cat.relations[prev.id].Name)
	}
	if idx, ok := obj.fieldIndex[name]; ok && idx != declaredIdx {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"object %s: generated query field %s collides with declared field", obj.Name, name)
	}
	obj.relFields[name] = ref
	return nil
}

// synthesizeM2M derives a ManyToMany relation from the two foreign keys
// of every is_m2m junction table and reroutes the junction's reverse
// query fields to it.
func (b *builder) synthesizeM2M() *sdl.SourceError {
	for i := range b.cat.objects {
		junction := &b.cat.objects[i]
		if !junction.IsM2M {
			continue
		}
		var fks []RelationID
		for _, rid := range junction.Relations {
			r := &b.cat.relations[rid]
			if r.Kind == RefRelation && r.From == junction.ID {
				fks = append(fks, rid)
			}
		}
		srcName := b.cat.sources[junction.Source].Name
		if len(fks) != 2 {
			return &sdl.SourceError{DataSource: srcName, Err: lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"junction %s: is_m2m requires exactly two foreign keys, found %d", junction.Name, len(fks))}
		}
		ra := &b.cat.relations[fks[0]]
		rb := &b.cat.relations[fks[1]]
		if err := b.checkM2MKey(junction, ra, rb); err != nil {
			return &sdl.SourceError{DataSource: srcName, Err: err}
		}

		// The reverse fields of the two FKs become the two ends of the
		// derived relation.
		qa, qb := ra.QueryFieldOnTarget, rb.QueryFieldOnTarget
		unclaim(&b.cat.objects[ra.To], qa)
		unclaim(&b.cat.objects[rb.To], qb)
		ra.QueryFieldOnTarget = ""
		rb.QueryFieldOnTarget = ""

		_, err := b.register(Relation{
			Name:                fmt.Sprintf("%s_m2m", junction.Name),
			Kind:                M2MRelation,
			From:                ra.To,
			To:                  rb.To,
			SourceFields:        append([]string{}, ra.TargetFields...),
			TargetFields:        append([]string{}, rb.TargetFields...),
			Cardinality:         ManyToMany,
			QueryFieldOnSource:  qa,
			QueryFieldOnTarget:  qb,
			Through:             junction.ID,
			ThroughSourceFields: append([]string{}, ra.SourceFields...),
			ThroughTargetFields: append([]string{}, rb.SourceFields...),
		}, -1, -1)
		if err != nil {
			return &sdl.SourceError{DataSource: srcName, Err: err}
		}
	}
	return nil
}

func unclaim(obj *DataObject, name string) {
	if name != "" {
		delete(obj.relFields, name)
	}
}

// checkM2MKey enforces that the junction's primary key is exactly the
// union of its two foreign keys' source fields.
func (b *builder) checkM2MKey(junction *DataObject, ra, rb *Relation) error {
	want := make(map[string]bool, len(ra.SourceFields)+len(rb.SourceFields))
	for _, f := range ra.SourceFields {
		want[f] = true
	}
	for _, f := range rb.SourceFields {
		want[f] = true
	}
	if len(junction.PrimaryKey) != len(want) {
		return lterrors.Errorf(lterrors.CodeSchemaDefinition,
			"junction %s: primary key must be exactly the foreign key fields", junction.Name)
	}
	for _, f := range junction.PrimaryKey {
		if !want[f] {
			return lterrors.Errorf(lterrors.CodeSchemaDefinition,
				"junction %s: primary key field %s is not part of a foreign key", junction.Name, f)
		}
	}
	return nil
}

func baseName(fd *sdl.FieldDef) string {
	t := fd.Def.Type
	for t.Elem != nil {
		t = t.Elem
	}
	return t.NamedType
}
