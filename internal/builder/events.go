package builder

import (
	"context"

	"github.com/roach88/formforge/internal/form"
)

// Event describes a form being saved or deleted.
type Event struct {
	Form *form.Form

	// IsNew is true when the save created the form.
	IsNew bool
}

// Listener observes saves and deletes.
//
// PreSave and PreDelete run inside the transaction, after the form is
// fully reconciled (for a save) or loaded (for a delete). An error from
// either rolls the whole operation back. PostSave and PostDelete run after
// commit and cannot fail it.
type Listener interface {
	PreSave(ctx context.Context, e Event) error
	PostSave(ctx context.Context, e Event)
	PreDelete(ctx context.Context, e Event) error
	PostDelete(ctx context.Context, e Event)
}

// Hooks is a Listener built from optional functions. Nil hooks are skipped.
type Hooks struct {
	OnPreSave    func(ctx context.Context, e Event) error
	OnPostSave   func(ctx context.Context, e Event)
	OnPreDelete  func(ctx context.Context, e Event) error
	OnPostDelete func(ctx context.Context, e Event)
}

func (h Hooks) PreSave(ctx context.Context, e Event) error {
	if h.OnPreSave == nil {
		return nil
	}
	return h.OnPreSave(ctx, e)
}

func (h Hooks) PostSave(ctx context.Context, e Event) {
	if h.OnPostSave != nil {
		h.OnPostSave(ctx, e)
	}
}

func (h Hooks) PreDelete(ctx context.Context, e Event) error {
	if h.OnPreDelete == nil {
		return nil
	}
	return h.OnPreDelete(ctx, e)
}

func (h Hooks) PostDelete(ctx context.Context, e Event) {
	if h.OnPostDelete != nil {
		h.OnPostDelete(ctx, e)
	}
}

// WithListener registers l. Listeners run in registration order.
func WithListener(l Listener) Option {
	return func(b *Builder) { b.listeners = append(b.listeners, l) }
}

func (b *Builder) preSave(ctx context.Context, e Event) error {
	for _, l := range b.listeners {
		if err := l.PreSave(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) postSave(ctx context.Context, e Event) {
	for _, l := range b.listeners {
		l.PostSave(ctx, e)
	}
}

func (b *Builder) preDelete(ctx context.Context, e Event) error {
	for _, l := range b.listeners {
		if err := l.PreDelete(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) postDelete(ctx context.Context, e Event) {
	for _, l := range b.listeners {
		l.PostDelete(ctx, e)
	}
}
