package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/formforge/internal/builder"
	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/reconcile"
	"github.com/roach88/formforge/internal/schema"
	"github.com/roach88/formforge/internal/session"
	"github.com/roach88/formforge/internal/store"
)

// Outcome codes recorded in the trace besides reconcile error codes.
const (
	OutcomeOK             = "ok"
	OutcomeNotFound       = "NOT_FOUND"
	OutcomeTableCollision = "TABLE_COLLISION"
)

// Harness is the scenario execution engine.
type Harness struct {
	store   *store.Store
	builder *builder.Builder
	logger  *slog.Logger

	// forms maps a scenario handle to the form as last saved.
	forms map[string]*form.Form
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, so form
// ids and table names are the same on every run.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Execute steps in order, checking each step's expectations
// 3. Evaluate final assertions
// 4. Return result with pass/fail, trace, and errors
//
// A returned error means the scenario itself is broken (an unknown handle,
// a dangling reference, a database failure); expectation mismatches are
// reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store:   st,
		builder: builder.New(st, builder.WithSessions(session.NewMemoryStore()), builder.WithLogger(logger)),
		logger:  logger,
		forms:   make(map[string]*form.Form),
	}

	ctx := context.Background()
	result := NewResult()
	for i := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, &scenario.Steps[i], result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		Builder: h.builder,
		Forms:   h.forms,
	}
	for _, errMsg := range EvaluateAssertions(actx, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeStep runs one step, records its trace event and checks its
// expectations.
func (h *Harness) executeStep(ctx context.Context, n int, step *Step, result *Result) error {
	event := TraceEvent{Step: n, Op: step.Op, Form: step.Form}

	var opErr error
	switch step.Op {
	case OpSave:
		var saved *form.Form
		saved, opErr = h.save(ctx, step)
		if saved != nil {
			h.forms[step.Form] = saved
			for _, fld := range saved.Fields.All() {
				event.Fields = append(event.Fields, fld.Alias)
			}
		}
	case OpRebuild:
		f, err := h.known(step.Form)
		if err != nil {
			return err
		}
		_, opErr = h.builder.Rebuild(ctx, f.ID)
	case OpDelete:
		f, err := h.known(step.Form)
		if err != nil {
			return err
		}
		deleted, err := h.builder.Delete(ctx, f.ID)
		if err != nil {
			return err
		}
		if !deleted {
			opErr = store.ErrNotFound
		}
	}
	if opErr != nil && !isOutcome(opErr) {
		return opErr
	}
	event.Outcome = outcome(opErr)

	if f, ok := h.forms[step.Form]; ok {
		table := schema.TableName(f.ID, f.Alias)
		exists, err := h.store.Dialect().TableExists(ctx, h.store.DB(), table)
		if err != nil {
			return err
		}
		if exists {
			event.Table = table
			event.Columns, err = h.store.Dialect().Columns(ctx, h.store.DB(), table)
			if err != nil {
				return err
			}
		}
	}

	result.Trace = append(result.Trace, event)
	checkExpect(n, step.Expect, &event, result)
	return nil
}

// save commits the step's session to its form, creating the form on the
// first save of a handle.
func (h *Harness) save(ctx context.Context, step *Step) (*form.Form, error) {
	snap, err := step.snapshot()
	if err != nil {
		return nil, err
	}
	if err := h.resolveSnapshot(snap); err != nil {
		return nil, err
	}

	f := form.New(step.Name)
	if prev, ok := h.forms[step.Form]; ok {
		f, err = h.builder.Load(ctx, prev.ID)
		if err != nil {
			return nil, err
		}
		if step.Name != "" {
			f.Name = step.Name
		}
	}
	return h.builder.Save(ctx, f, snap)
}

func (h *Harness) known(handle string) (*form.Form, error) {
	f, ok := h.forms[handle]
	if !ok {
		return nil, fmt.Errorf("unknown form %q", handle)
	}
	return f, nil
}

// resolveSnapshot replaces "@handle.alias" strings anywhere in the
// snapshot's props with the id of the named field.
func (h *Harness) resolveSnapshot(snap *session.Snapshot) error {
	for _, entries := range [][]session.Entry{snap.Fields, snap.Actions} {
		for _, e := range entries {
			for k, v := range e.Props {
				resolved, err := h.resolve(v)
				if err != nil {
					return fmt.Errorf("entry %s: %w", e.Key, err)
				}
				e.Props[k] = resolved
			}
		}
	}
	return nil
}

func (h *Harness) resolve(v any) (any, error) {
	switch v := v.(type) {
	case string:
		if !strings.HasPrefix(v, "@") {
			return v, nil
		}
		return h.fieldID(v[1:])
	case map[string]any:
		for k, item := range v {
			resolved, err := h.resolve(item)
			if err != nil {
				return nil, err
			}
			v[k] = resolved
		}
	case []any:
		for i, item := range v {
			resolved, err := h.resolve(item)
			if err != nil {
				return nil, err
			}
			v[i] = resolved
		}
	}
	return v, nil
}

// fieldID looks up "handle.alias" among the saved fields.
func (h *Harness) fieldID(ref string) (int64, error) {
	handle, fieldAlias, ok := strings.Cut(ref, ".")
	if !ok {
		return 0, fmt.Errorf("malformed reference @%s: want @form.alias", ref)
	}
	f, err := h.known(handle)
	if err != nil {
		return 0, err
	}
	fld := findField(f, fieldAlias)
	if fld == nil {
		return 0, fmt.Errorf("form %q has no field %q", handle, fieldAlias)
	}
	return fld.ID, nil
}

func findField(f *form.Form, fieldAlias string) *form.Field {
	for _, fld := range f.Fields.All() {
		if fld.Alias == fieldAlias {
			return fld
		}
	}
	return nil
}

// isOutcome reports whether err is an expected failure a step can assert
// on, as opposed to a broken scenario or database.
func isOutcome(err error) bool {
	var rerr *reconcile.Error
	return errors.As(err, &rerr) ||
		errors.Is(err, schema.ErrTableCollision) ||
		errors.Is(err, store.ErrNotFound)
}

func outcome(err error) string {
	var rerr *reconcile.Error
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &rerr):
		return string(rerr.Code)
	case errors.Is(err, schema.ErrTableCollision):
		return OutcomeTableCollision
	default:
		return OutcomeNotFound
	}
}

// checkExpect compares a step's trace event with its expectations.
func checkExpect(n int, expect *StepExpect, event *TraceEvent, result *Result) {
	want := OutcomeOK
	if expect != nil && expect.Error != "" {
		want = expect.Error
	}
	if event.Outcome != want {
		result.AddError(fmt.Sprintf("step %d (%s %s): outcome %s, expected %s",
			n, event.Op, event.Form, event.Outcome, want))
	}
	if expect == nil {
		return
	}
	if expect.Fields != nil && !slices.Equal(event.Fields, expect.Fields) {
		result.AddError(fmt.Sprintf("step %d: fields %v, expected %v", n, event.Fields, expect.Fields))
	}
	if expect.Columns != nil && !slices.Equal(event.Columns, expect.Columns) {
		result.AddError(fmt.Sprintf("step %d: columns %v, expected %v", n, event.Columns, expect.Columns))
	}
}
