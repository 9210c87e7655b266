package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/formforge/internal/builder"
	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/schema"
	"github.com/roach88/formforge/internal/store"
)

// AssertionContext provides the state assertions are evaluated against.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Builder *builder.Builder

	// Forms maps scenario handles to the forms as last saved.
	Forms map[string]*form.Form
}

// EvaluateAssertions checks all assertions and returns one message per
// failure. An empty slice means every assertion held.
func EvaluateAssertions(actx *AssertionContext, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(actx, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluateAssertion(actx *AssertionContext, a Assertion) error {
	switch a.Type {
	case AssertColumns:
		return assertColumns(actx, a)
	case AssertTableExists:
		return assertTable(actx, a, true)
	case AssertTableAbsent:
		return assertTable(actx, a, false)
	case AssertFormCount:
		return assertFormCount(actx, a)
	case AssertMappedField:
		return assertMappedField(actx, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func (actx *AssertionContext) form(handle string) (*form.Form, error) {
	f, ok := actx.Forms[handle]
	if !ok {
		return nil, fmt.Errorf("form %q was never saved", handle)
	}
	return f, nil
}

// assertColumns verifies the results table has exactly the expected
// columns, in ordinal order.
func assertColumns(actx *AssertionContext, a Assertion) error {
	f, err := actx.form(a.Form)
	if err != nil {
		return err
	}
	table := schema.TableName(f.ID, f.Alias)
	cols, err := actx.Store.Dialect().Columns(actx.Ctx, actx.Store.DB(), table)
	if err != nil {
		return err
	}
	if !slices.Equal(cols, a.Expect) {
		return fmt.Errorf("table %s has columns %v, expected %v", table, cols, a.Expect)
	}
	return nil
}

// assertTable verifies whether the form's results table exists.
func assertTable(actx *AssertionContext, a Assertion, want bool) error {
	f, err := actx.form(a.Form)
	if err != nil {
		return err
	}
	table := schema.TableName(f.ID, f.Alias)
	exists, err := actx.Store.Dialect().TableExists(actx.Ctx, actx.Store.DB(), table)
	if err != nil {
		return err
	}
	if exists != want {
		if want {
			return fmt.Errorf("table %s does not exist", table)
		}
		return fmt.Errorf("table %s still exists", table)
	}
	return nil
}

// assertFormCount verifies the number of stored forms.
func assertFormCount(actx *AssertionContext, a Assertion) error {
	forms, err := actx.Builder.List(actx.Ctx)
	if err != nil {
		return err
	}
	if len(forms) != a.Count {
		return fmt.Errorf("expected %d forms, got %d", a.Count, len(forms))
	}
	return nil
}

// assertMappedField verifies that a stored action's mappedFields entry
// names the field with the expected alias.
func assertMappedField(actx *AssertionContext, a Assertion) error {
	saved, err := actx.form(a.Form)
	if err != nil {
		return err
	}
	f, err := actx.Builder.Load(actx.Ctx, saved.ID)
	if err != nil {
		return err
	}

	actions := f.Actions.All()
	if a.Action > len(actions) {
		return fmt.Errorf("form %q has %d actions, no action %d", a.Form, len(actions), a.Action)
	}
	ref, ok := actions[a.Action-1].MappedFields()[a.Mapping]
	if !ok {
		return fmt.Errorf("action %d has no mapping %q", a.Action, a.Mapping)
	}

	fld := findField(f, a.Field)
	if fld == nil {
		return fmt.Errorf("form %q has no field %q", a.Form, a.Field)
	}
	if got := form.ParseID(ref); got != fld.ID {
		return fmt.Errorf("mapping %q is %v, expected field %s (id %d)", a.Mapping, ref, a.Field, fld.ID)
	}
	return nil
}
