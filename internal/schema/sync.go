package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/formforge/internal/form"
)

// ErrTableCollision is returned when a form's results table already holds
// submissions of a different form. Form aliases are not globally unique, so
// this is detected rather than silently sharing the table.
var ErrTableCollision = errors.New("results table belongs to another form")

// Result describes what one Sync did.
type Result struct {
	Table   string
	Dropped bool
	Created bool
	Added   []string

	// Statements is the number of mutations executed.
	Statements int
}

// Changed reports whether the sync mutated the schema.
func (r *Result) Changed() bool { return r.Statements > 0 }

// Synchronizer reconciles results tables against form definitions.
type Synchronizer struct {
	logger *slog.Logger
}

// NewSynchronizer returns a synchronizer. A nil logger discards output.
func NewSynchronizer(logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Synchronizer{logger: logger}
}

// Sync makes f's results table match its current fields.
//
// A missing table is created with every column. An existing table only gets
// the columns it lacks. When isNew and dropExisting are both set, an
// existing table is dropped and recreated; that is reserved for forced
// rebuilds. All mutations of one call are executed together.
func (s *Synchronizer) Sync(ctx context.Context, b Backend, f *form.Form, isNew, dropExisting bool) (*Result, error) {
	if f.ID == 0 {
		return nil, fmt.Errorf("sync schema: form %q has no id", f.Name)
	}

	spec := resultsTable(f)
	res := &Result{Table: spec.Name}

	exists, err := b.TableExists(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("sync schema: %w", err)
	}

	if exists && isNew && dropExisting {
		b.DropTable(spec.Name)
		res.Dropped = true
		exists = false
	}

	if !exists {
		b.CreateTable(spec)
		res.Created = true
	} else {
		other, err := b.OwnedByOther(ctx, spec.Name, f.ID)
		if err != nil {
			return nil, fmt.Errorf("sync schema: %w", err)
		}
		if other {
			return nil, fmt.Errorf("sync schema: %s: %w", spec.Name, ErrTableCollision)
		}

		for _, col := range spec.Columns {
			ok, err := b.ColumnExists(ctx, spec.Name, col.Name)
			if err != nil {
				return nil, fmt.Errorf("sync schema: %w", err)
			}
			if !ok {
				b.AddColumn(spec.Name, col)
				res.Added = append(res.Added, col.Name)
			}
		}
	}

	n, err := b.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync schema: %w", err)
	}
	res.Statements = n

	if res.Changed() {
		s.logger.Info("results table synced",
			"form_id", f.ID,
			"table", res.Table,
			"created", res.Created,
			"dropped", res.Dropped,
			"added", res.Added,
			"changes", n)
	}
	return res, nil
}

// Drop removes a results table. Dropping a missing table is a no-op.
func (s *Synchronizer) Drop(ctx context.Context, b Backend, table string) error {
	return s.DropMany(ctx, b, table)
}

// DropMany removes several results tables in one executed batch.
func (s *Synchronizer) DropMany(ctx context.Context, b Backend, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	for _, t := range tables {
		b.DropTable(t)
	}
	if _, err := b.Execute(ctx); err != nil {
		return fmt.Errorf("drop results tables: %w", err)
	}
	s.logger.Info("results tables dropped", "tables", tables)
	return nil
}
