// Package builder commits editing sessions to forms.
//
// A save runs every step in one database transaction, in this order:
//
//  1. persist the form row (a new form gets its alias and id here)
//  2. lock the form
//  3. reconcile and persist fields, then actions
//  4. sync the results table
//  5. render and store the cached HTML
//  6. run the PreSave listeners
//
// Any failure rolls all of it back, so the stored definition is never ahead
// of its results table.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/roach88/formforge/internal/alias"
	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/metrics"
	"github.com/roach88/formforge/internal/reconcile"
	"github.com/roach88/formforge/internal/registry"
	"github.com/roach88/formforge/internal/render"
	"github.com/roach88/formforge/internal/schema"
	"github.com/roach88/formforge/internal/session"
	"github.com/roach88/formforge/internal/store"
)

// defaultFormAlias is used when a form name has no alphanumerics.
const defaultFormAlias = "form"

// ErrSessionNotFound is returned when saving from a session that does not
// exist.
var ErrSessionNotFound = errors.New("editing session not found")

// Builder saves and deletes forms.
type Builder struct {
	store      *store.Store
	sessions   session.Store
	registry   *registry.Registry
	renderer   render.Renderer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	reconciler *reconcile.Reconciler
	sync       *schema.Synchronizer
	locks      *formLocks
	listeners  []Listener
}

// Option configures a Builder.
type Option func(*Builder)

// WithSessions sets the editing-session store. Default: in memory.
func WithSessions(s session.Store) Option {
	return func(b *Builder) { b.sessions = s }
}

// WithRegistry sets the field and action type registry. Default: the
// built-in types.
func WithRegistry(r *registry.Registry) Option {
	return func(b *Builder) { b.registry = r }
}

// WithRenderer sets the cached-presentation renderer. Default: HTML.
func WithRenderer(r render.Renderer) Option {
	return func(b *Builder) { b.renderer = r }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// New returns a Builder persisting to st.
func New(st *store.Store, opts ...Option) *Builder {
	b := &Builder{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		locks:  newFormLocks(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.sessions == nil {
		b.sessions = session.NewMemoryStore()
	}
	if b.registry == nil {
		b.registry = registry.MustLoad()
	}
	if b.renderer == nil {
		b.renderer = render.MustHTMLRenderer()
	}
	b.reconciler = reconcile.New(b.registry, reconcile.WithLogger(b.logger))
	b.sync = schema.NewSynchronizer(b.logger)
	return b
}

// Sessions returns the editing-session store.
func (b *Builder) Sessions() session.Store { return b.sessions }

// Registry returns the type registry.
func (b *Builder) Registry() *registry.Registry { return b.registry }

// Save commits snap to f and returns the persisted form.
//
// f supplies the form's identity and its name and description; a form
// without an id is created. f itself is never modified. On error nothing
// is persisted.
func (b *Builder) Save(ctx context.Context, f *form.Form, snap *session.Snapshot) (saved *form.Form, err error) {
	start := time.Now()
	defer func() { b.metrics.ObserveSave(start, err) }()

	if f.Name == "" {
		return nil, fmt.Errorf("save form: name is required")
	}
	if snap == nil {
		snap = &session.Snapshot{}
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("save form: %w", err)
	}

	unlock := b.locks.lock(f.ID)
	defer unlock()

	var (
		res     *schema.Result
		created bool
	)
	err = b.store.WithTx(ctx, func(tx *store.Tx) error {
		work, err := b.workingCopy(ctx, tx, f)
		if err != nil {
			return err
		}

		created, err = tx.SaveForm(ctx, work)
		if err != nil {
			return err
		}
		if created {
			if err := tx.Lock(ctx, work.ID); err != nil {
				return err
			}
		}

		if err := reconcile.NewPipeline(b.reconciler, tx).Run(ctx, work, snap); err != nil {
			return err
		}

		backend := schema.NewSQLBackend(tx.Querier(), b.store.Dialect())
		if res, err = b.sync.Sync(ctx, backend, work, created, false); err != nil {
			return err
		}

		html, err := b.renderer.Render(ctx, work)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		if err := tx.SaveCachedHTML(ctx, work.ID, string(html)); err != nil {
			return err
		}
		work.CachedHTML = string(html)

		if err := b.preSave(ctx, Event{Form: work, IsNew: created}); err != nil {
			return err
		}
		saved = work
		return nil
	})
	if err != nil {
		b.logger.Warn("form save failed", "form_id", f.ID, "error", err)
		return nil, fmt.Errorf("save form: %w", err)
	}

	b.metrics.ObserveSchema(res.Created, res.Dropped, len(res.Added))
	b.logger.Info("form saved",
		"form_id", saved.ID,
		"fields", saved.Fields.Len(),
		"actions", saved.Actions.Len(),
		"table", res.Table,
		"changes", res.Statements,
	)
	b.postSave(ctx, Event{Form: saved, IsNew: created})
	return saved, nil
}

// workingCopy returns the form the save operates on: the stored form for
// an existing id (locked first), or a fresh shell for a new one.
func (b *Builder) workingCopy(ctx context.Context, tx *store.Tx, f *form.Form) (*form.Form, error) {
	if f.IsNew() {
		work := form.New(f.Name)
		work.Description = f.Description
		work.Alias = f.Alias
		if work.Alias == "" {
			work.Alias = alias.FormAlias(f.Name)
		}
		if work.Alias == "" {
			work.Alias = defaultFormAlias
		}
		return work, nil
	}

	if err := tx.Lock(ctx, f.ID); err != nil {
		return nil, err
	}
	work, err := tx.LoadForm(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	work.Name = f.Name
	work.Description = f.Description
	return work, nil
}

// SaveSession commits the stored editing session sessionID to form formID
// and clears the session.
func (b *Builder) SaveSession(ctx context.Context, formID int64, sessionID string) (*form.Form, error) {
	f, err := b.store.LoadForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	return b.SaveWithSession(ctx, f, sessionID)
}

// CreateFromSession creates a form named name from the stored editing
// session sessionID and clears the session.
func (b *Builder) CreateFromSession(ctx context.Context, name, sessionID string) (*form.Form, error) {
	return b.SaveWithSession(ctx, form.New(name), sessionID)
}

// SaveWithSession is Save with the snapshot read from the stored editing
// session sessionID. The session is cleared once the save commits.
func (b *Builder) SaveWithSession(ctx context.Context, f *form.Form, sessionID string) (*form.Form, error) {
	snap, err := b.sessions.Read(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	saved, err := b.Save(ctx, f, snap)
	if err != nil {
		return nil, err
	}

	// The save is committed; a stale session only costs the user a reload.
	if err := b.sessions.Clear(ctx, sessionID); err != nil {
		b.logger.Warn("failed to clear editing session", "session", sessionID, "error", err)
	}
	return saved, nil
}

// EditSession starts an editing session for form id holding its persisted
// fields and actions, replacing any session already stored for it. The
// session id is the form id.
func (b *Builder) EditSession(ctx context.Context, id int64) (string, *session.Snapshot, error) {
	f, err := b.store.LoadForm(ctx, id)
	if err != nil {
		return "", nil, err
	}
	sessionID := strconv.FormatInt(id, 10)
	snap := session.FromForm(f)
	if err := b.sessions.Write(ctx, sessionID, snap); err != nil {
		return "", nil, fmt.Errorf("write session %s: %w", sessionID, err)
	}
	return sessionID, snap, nil
}

// Load returns a stored form.
func (b *Builder) Load(ctx context.Context, id int64) (*form.Form, error) {
	return b.store.LoadForm(ctx, id)
}

// List returns every stored form without fields or actions.
func (b *Builder) List(ctx context.Context) ([]*form.Form, error) {
	return b.store.ListForms(ctx)
}

// Columns returns the results-table columns form id requires.
func (b *Builder) Columns(ctx context.Context, id int64) ([]schema.ColumnSpec, error) {
	f, err := b.store.LoadForm(ctx, id)
	if err != nil {
		return nil, err
	}
	return schema.ComputeColumns(f), nil
}

// Rebuild drops and recreates the results table of form id. Stored
// submissions are lost.
func (b *Builder) Rebuild(ctx context.Context, id int64) (*schema.Result, error) {
	unlock := b.locks.lock(id)
	defer unlock()

	var res *schema.Result
	err := b.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.Lock(ctx, id); err != nil {
			return err
		}
		f, err := tx.LoadForm(ctx, id)
		if err != nil {
			return err
		}
		res, err = b.sync.Sync(ctx, schema.NewSQLBackend(tx.Querier(), b.store.Dialect()), f, true, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild form %d: %w", id, err)
	}

	b.metrics.ObserveSchema(res.Created, res.Dropped, len(res.Added))
	b.logger.Info("results table rebuilt", "form_id", id, "table", res.Table)
	return res, nil
}

// Delete removes a form and drops its results table. Deleting an unknown
// form is a no-op that reports false.
func (b *Builder) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := b.DeleteMany(ctx, []int64{id})
	if err != nil {
		return false, err
	}
	return len(deleted) == 1, nil
}

// DeleteMany removes several forms in one transaction and drops their
// results tables in one batch. It returns the ids that existed.
func (b *Builder) DeleteMany(ctx context.Context, ids []int64) ([]int64, error) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	unlock := b.locks.lock(ids...)
	defer unlock()

	var (
		deleted []int64
		forms   []*form.Form
	)
	err := b.store.WithTx(ctx, func(tx *store.Tx) error {
		deleted, forms = nil, nil
		var tables []string
		for _, id := range ids {
			if err := tx.Lock(ctx, id); err != nil {
				return err
			}
			f, err := tx.LoadForm(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := b.preDelete(ctx, Event{Form: f}); err != nil {
				return err
			}
			if _, err := tx.DeleteForm(ctx, id); err != nil {
				return err
			}
			tables = append(tables, schema.TableName(f.ID, f.Alias))
			deleted = append(deleted, id)
			forms = append(forms, f)
		}
		return b.sync.DropMany(ctx, schema.NewSQLBackend(tx.Querier(), b.store.Dialect()), tables...)
	})
	if err != nil {
		return nil, fmt.Errorf("delete forms: %w", err)
	}

	b.metrics.ObserveDeletes(len(deleted))
	if len(deleted) > 0 {
		b.logger.Info("forms deleted", "form_ids", deleted)
	}
	for _, f := range forms {
		b.postDelete(ctx, Event{Form: f})
	}
	return deleted, nil
}
