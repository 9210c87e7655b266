package session

import (
	"maps"
	"strconv"

	"github.com/roach88/formforge/internal/form"
)

// FromForm returns a snapshot holding the persisted fields and actions of
// f in order, each keyed by its id. Saving it unchanged is a no-op.
func FromForm(f *form.Form) *Snapshot {
	s := &Snapshot{}
	if f.Fields != nil {
		for _, fld := range f.Fields.All() {
			s.Fields = append(s.Fields, Entry{Key: idKey(fld.ID), Props: fieldProps(fld)})
		}
	}
	if f.Actions != nil {
		for _, a := range f.Actions.All() {
			s.Actions = append(s.Actions, Entry{Key: idKey(a.ID), Props: actionProps(a)})
		}
	}
	return s
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

func fieldProps(f *form.Field) map[string]any {
	props := map[string]any{
		"id":                f.ID,
		"label":             f.Label,
		"alias":             f.Alias,
		"type":              f.Type,
		"defaultValue":      f.DefaultValue,
		"isRequired":        f.IsRequired,
		"validationMessage": f.ValidationMessage,
		"helpMessage":       f.HelpMessage,
		"inputAttributes":   f.InputAttributes,
		"labelAttributes":   f.LabelAttributes,
	}
	if f.ShowLabel != nil {
		props["showLabel"] = *f.ShowLabel
	}
	if f.SaveResult != nil {
		props["saveResult"] = *f.SaveResult
	}
	if f.Properties != nil {
		props["properties"] = maps.Clone(f.Properties)
	}
	return props
}

func actionProps(a *form.Action) map[string]any {
	props := map[string]any{
		"id":          a.ID,
		"name":        a.Name,
		"description": a.Description,
		"type":        a.Type,
	}
	if a.Properties != nil {
		props["properties"] = maps.Clone(a.Properties)
	}
	return props
}
