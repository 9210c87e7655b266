// Package reconcile merges an editing session into a form's field and action
// collections.
//
// Fields are reconciled first. Their session keys are collected into a
// FieldKeys index which the action pass uses to rewrite mappedFields
// references from transient keys to permanent field ids. Since new fields
// only get ids when persisted, the caller must save fields between the two
// passes; Pipeline.Run makes that ordering explicit.
package reconcile

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/registry"
	"github.com/roach88/formforge/internal/session"
)

// Reconciler applies session entries to forms.
type Reconciler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger for ignored-property diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// New returns a Reconciler that checks attributes against reg. A nil
// registry accepts every attribute the entities themselves support.
func New(reg *registry.Registry, opts ...Option) *Reconciler {
	r := &Reconciler{
		registry: reg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FieldKeys maps session keys to the fields reconciled from them in the
// current save.
type FieldKeys map[string]*form.Field

// FieldSaver persists a form's reconciled fields, assigning ids to new ones.
type FieldSaver interface {
	SaveFields(ctx context.Context, f *form.Form) error
}

// ActionSaver persists a form's reconciled actions.
type ActionSaver interface {
	SaveActions(ctx context.Context, f *form.Form) error
}

// Saver persists both collections.
type Saver interface {
	FieldSaver
	ActionSaver
}

// Pipeline runs the two reconciliation passes with persistence in between.
type Pipeline struct {
	r     *Reconciler
	saver Saver
}

// NewPipeline returns a pipeline writing through saver.
func NewPipeline(r *Reconciler, saver Saver) *Pipeline {
	return &Pipeline{r: r, saver: saver}
}

// Run reconciles fields, saves them, reconciles actions against the saved
// fields and saves the actions. f must already have an id.
func (p *Pipeline) Run(ctx context.Context, f *form.Form, snap *session.Snapshot) error {
	keys, err := p.r.Fields(f, snap.ActiveFields())
	if err != nil {
		return err
	}
	if err := p.saver.SaveFields(ctx, f); err != nil {
		return err
	}
	if err := p.r.Actions(f, snap.ActiveActions(), keys); err != nil {
		return err
	}
	return p.saver.SaveActions(ctx, f)
}

// skipped are never applied as attributes.
var skipped = map[string]bool{"id": true, "order": true, "type": true}

// sortedNames returns the property names to apply in a stable order.
func sortedNames(props map[string]any) []string {
	names := slices.Sorted(maps.Keys(props))
	return slices.DeleteFunc(names, func(n string) bool { return skipped[n] })
}

// isBlank matches the values an update treats as "not provided".
func isBlank(v any) bool {
	s, isString := v.(string)
	return v == nil || (isString && s == "")
}
