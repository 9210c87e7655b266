package reconcile

import (
	"github.com/roach88/formforge/internal/alias"
	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/session"
)

type fieldSlot struct {
	entry session.Entry
	field *form.Field
	isNew bool
}

// Fields rebuilds f.Fields from entries, in entry order.
//
// An entry whose "id" names an existing field of f updates that field; any
// other entry creates a new one. Existing fields not named by any entry are
// dropped from the collection. Updates keep the persisted alias, and keep
// the label unless the entry provides a non-empty one. New fields get an
// alias unique among the form's fields and the reserved column names.
func (r *Reconciler) Fields(f *form.Form, entries []session.Entry) (FieldKeys, error) {
	existing := f.Fields
	if existing == nil {
		existing = form.NewCollection[*form.Field]()
	}

	// Identities are settled before any alias is allocated so a new field
	// can never take the alias of an existing field listed after it.
	aliases := alias.NewAllocator(form.ReservedAliases()...)
	claimed := make(map[int64]bool, len(entries))
	slots := make([]fieldSlot, len(entries))
	for i, e := range entries {
		id := form.ParseID(e.Props["id"])
		if fld, ok := existing.ByID(id); ok && !claimed[id] {
			claimed[id] = true
			aliases.Reserve(fld.Alias)
			slots[i] = fieldSlot{entry: e, field: fld}
			continue
		}
		slots[i] = fieldSlot{entry: e, field: &form.Field{}, isNew: true}
	}

	next := form.NewCollection[*form.Field]()
	keys := make(FieldKeys, len(entries))
	for i, s := range slots {
		fld := s.field
		if err := r.applyField(fld, s.entry, s.isNew); err != nil {
			return nil, err
		}
		if s.isNew {
			fld.Alias = aliases.Allocate(aliasSource(fld, s.entry.Props))
		}
		fld.Form = f
		fld.SessionID = s.entry.Key
		fld.Order = i + 1

		next.Add(fld)
		keys[s.entry.Key] = fld
	}

	f.Fields = next
	return keys, nil
}

func (r *Reconciler) applyField(fld *form.Field, e session.Entry, isNew bool) error {
	if v, ok := e.Props["type"]; ok {
		if _, err := fld.TrySet("type", v); err != nil {
			return invalidAttribute("field", e.Key, "type", err)
		}
	}

	for _, name := range sortedNames(e.Props) {
		v := e.Props[name]
		switch {
		case name == "alias":
			// Persisted aliases are immutable; new ones go through the
			// allocator.
			continue
		case name == "label" && !isNew && isBlank(v):
			continue
		}

		if !r.registry.FieldSupports(fld.Type, name) {
			r.logger.Debug("ignoring property unsupported by field type",
				"key", e.Key, "type", fld.Type, "property", name)
			continue
		}
		ok, err := fld.TrySet(name, v)
		if err != nil {
			return invalidAttribute("field", e.Key, name, err)
		}
		if !ok {
			r.logger.Debug("ignoring unknown field property",
				"key", e.Key, "property", name)
		}
	}
	return nil
}

// aliasSource picks the text a new field's alias is derived from: an
// explicit alias, else the label, else the type.
func aliasSource(fld *form.Field, props map[string]any) string {
	explicit, _ := props["alias"].(string)
	for _, s := range []string{explicit, fld.Label, fld.Type} {
		if alias.FieldBase(s) != "" {
			return s
		}
	}
	return "field"
}
