// Package registry describes the field and action types available to the
// form builder and the attributes each type exposes.
//
// Types are declared in CUE: the embedded registry.cue provides the
// built-in set and callers may unify extra CUE sources on top of it (for
// example plugin-supplied types). A Registry is an ordinary value with an
// explicit lifetime; build one at startup and pass it to the reconcilers.
package registry

import (
	_ "embed"
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed registry.cue
var builtinCUE []byte

// Type describes one field or action type.
type Type struct {
	Name       string   `json:"name"`
	Label      string   `json:"label"`
	Group      string   `json:"group,omitempty"`
	Attributes []string `json:"attributes"`
}

// Supports reports whether the type exposes the named attribute.
func (t *Type) Supports(attr string) bool {
	return slices.Contains(t.Attributes, attr)
}

// Registry is an immutable set of field and action types.
type Registry struct {
	fields  []*Type
	actions []*Type
	byField map[string]*Type
	byAct   map[string]*Type
}

// Source is an extra CUE document unified with the built-in types.
type Source struct {
	Name string // used in error positions
	Data []byte
}

// Load compiles the built-in types together with any extra sources.
func Load(sources ...Source) (*Registry, error) {
	ctx := cuecontext.New()

	v := ctx.CompileBytes(builtinCUE, cue.Filename("registry.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile built-in registry: %w", formatCUEError(err))
	}

	for _, src := range sources {
		extra := ctx.CompileBytes(src.Data, cue.Filename(src.Name))
		if err := extra.Err(); err != nil {
			return nil, fmt.Errorf("compile %s: %w", src.Name, formatCUEError(err))
		}
		v = v.Unify(extra)
	}

	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", formatCUEError(err))
	}

	r := &Registry{
		byField: make(map[string]*Type),
		byAct:   make(map[string]*Type),
	}

	var err error
	if r.fields, err = decodeTypes(v, "fields"); err != nil {
		return nil, err
	}
	if r.actions, err = decodeTypes(v, "actions"); err != nil {
		return nil, err
	}
	for _, t := range r.fields {
		r.byField[t.Name] = t
	}
	for _, t := range r.actions {
		r.byAct[t.Name] = t
	}

	return r, nil
}

// MustLoad is Load for the built-in types only; it panics on error.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

func decodeTypes(v cue.Value, section string) ([]*Type, error) {
	iter, err := v.LookupPath(cue.ParsePath(section)).Fields()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", section, formatCUEError(err))
	}

	var types []*Type
	for iter.Next() {
		t := &Type{}
		if err := iter.Value().Decode(t); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", section, iter.Label(), formatCUEError(err))
		}
		t.Name = iter.Label()
		types = append(types, t)
	}
	return types, nil
}

// FieldType returns the named field type.
func (r *Registry) FieldType(name string) (*Type, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.byField[name]
	return t, ok
}

// ActionType returns the named action type.
func (r *Registry) ActionType(name string) (*Type, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.byAct[name]
	return t, ok
}

// FieldTypes returns the field types in declaration order.
func (r *Registry) FieldTypes() []*Type { return r.fields }

// ActionTypes returns the action types in declaration order.
func (r *Registry) ActionTypes() []*Type { return r.actions }

// FieldSupports reports whether fields of type typ accept attr. Types the
// registry does not know about accept every attribute the entity has.
func (r *Registry) FieldSupports(typ, attr string) bool {
	t, ok := r.FieldType(typ)
	return !ok || t.Supports(attr)
}

// ActionSupports reports whether actions of type typ accept attr.
func (r *Registry) ActionSupports(typ, attr string) bool {
	t, ok := r.ActionType(typ)
	return !ok || t.Supports(attr)
}

// formatCUEError flattens a CUE error list into a single error with
// positions.
func formatCUEError(err error) error {
	return fmt.Errorf("%s", errors.Details(err, nil))
}
