package reconcile

import (
	"maps"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/session"
)

// Actions rebuilds f.Actions from entries and rewrites every action's
// mappedFields references to permanent field ids.
//
// keys must come from the Fields call of the same save, after the fields
// were persisted. A transient reference whose field has no id yet, or any
// reference to a field not on the form, fails the whole pass.
func (r *Reconciler) Actions(f *form.Form, entries []session.Entry, keys FieldKeys) error {
	existing := f.Actions
	if existing == nil {
		existing = form.NewCollection[*form.Action]()
	}

	claimed := make(map[int64]bool, len(entries))
	next := form.NewCollection[*form.Action]()
	for i, e := range entries {
		act := &form.Action{}
		id := form.ParseID(e.Props["id"])
		if old, ok := existing.ByID(id); ok && !claimed[id] {
			claimed[id] = true
			act = old
		}

		if err := r.applyAction(act, e); err != nil {
			return err
		}
		if err := resolveMappedFields(f, act, e.Key, keys); err != nil {
			return err
		}
		act.Form = f
		act.SetSessionKey(e.Key)
		act.Order = i + 1
		next.Add(act)
	}

	f.Actions = next
	return nil
}

func (r *Reconciler) applyAction(act *form.Action, e session.Entry) error {
	if v, ok := e.Props["type"]; ok {
		if _, err := act.TrySet("type", v); err != nil {
			return invalidAttribute("action", e.Key, "type", err)
		}
	}

	for _, name := range sortedNames(e.Props) {
		if !r.registry.ActionSupports(act.Type, name) {
			r.logger.Debug("ignoring property unsupported by action type",
				"key", e.Key, "type", act.Type, "property", name)
			continue
		}
		ok, err := act.TrySet(name, e.Props[name])
		if err != nil {
			return invalidAttribute("action", e.Key, name, err)
		}
		if !ok {
			r.logger.Debug("ignoring unknown action property",
				"key", e.Key, "property", name)
		}
	}
	return nil
}

// resolveMappedFields replaces act's mappedFields with a copy whose
// references are all permanent field ids. Empty values mean "unmapped" and
// are kept as they are. A mappedFields value that is not a map is an
// invalid attribute.
func resolveMappedFields(f *form.Form, act *form.Action, key string, keys FieldKeys) error {
	mapped := act.MappedFields()
	if mapped == nil {
		if raw := act.Properties["mappedFields"]; raw != nil {
			return invalidAttribute("action", key, "mappedFields",
				&form.AttributeError{Attribute: "mappedFields", Value: raw, Want: "map"})
		}
		return nil
	}

	out := make(map[string]any, len(mapped))
	for name, ref := range mapped {
		switch {
		case isBlank(ref):
			out[name] = ref

		case session.IsTransient(ref):
			fld, ok := keys[ref.(string)]
			if !ok {
				return unresolved(key, name, ref, "matches no field in this save")
			}
			if fld.ID == 0 {
				return unresolved(key, name, ref, "names a field that was not persisted")
			}
			out[name] = fld.ID

		default:
			id := form.ParseID(ref)
			if id == 0 {
				return unresolved(key, name, ref, "is not a field id")
			}
			if f.Fields == nil {
				return unresolved(key, name, ref, "names no field of this form")
			}
			if _, ok := f.Fields.ByID(id); !ok {
				return unresolved(key, name, ref, "names no field of this form")
			}
			out[name] = id
		}
	}

	props := maps.Clone(act.Properties)
	props["mappedFields"] = out
	act.Properties = props
	return nil
}
