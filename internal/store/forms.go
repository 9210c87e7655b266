package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/sqldb"
)

// queries implements the reads and writes shared by Store and Tx.
type queries struct {
	q sqldb.Querier
	d sqldb.Dialect
}

func (s queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.d.Rebind(query), args...)
}

func (s queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.d.Rebind(query), args...)
}

func (s queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.d.Rebind(query), args...)
}

// SaveForm writes the form row. A new form is inserted and gets its id; an
// existing one has its name and description updated. The alias is written
// only on insert. It reports whether the row was created.
func (s queries) SaveForm(ctx context.Context, f *form.Form) (created bool, err error) {
	if f.IsNew() {
		err := s.queryRow(ctx, `
			INSERT INTO forms (name, alias, description)
			VALUES (?, ?, ?)
			RETURNING id
		`, f.Name, f.Alias, f.Description).Scan(&f.ID)
		if err != nil {
			return false, fmt.Errorf("save form: %w", err)
		}
		return true, nil
	}

	res, err := s.exec(ctx, `
		UPDATE forms SET name = ?, description = ?
		WHERE id = ?
	`, f.Name, f.Description, f.ID)
	if err != nil {
		return false, fmt.Errorf("save form %d: %w", f.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save form %d: %w", f.ID, err)
	}
	if n == 0 {
		return false, fmt.Errorf("save form %d: %w", f.ID, ErrNotFound)
	}
	return false, nil
}

// SaveCachedHTML stores the rendered form.
func (s queries) SaveCachedHTML(ctx context.Context, formID int64, html string) error {
	if _, err := s.exec(ctx, `UPDATE forms SET cached_html = ? WHERE id = ?`, html, formID); err != nil {
		return fmt.Errorf("save cached html of form %d: %w", formID, err)
	}
	return nil
}

// LoadForm reads a form with its fields and actions in order.
func (s queries) LoadForm(ctx context.Context, id int64) (*form.Form, error) {
	f := form.New("")
	err := s.queryRow(ctx, `
		SELECT id, name, alias, description, cached_html
		FROM forms WHERE id = ?
	`, id).Scan(&f.ID, &f.Name, &f.Alias, &f.Description, &f.CachedHTML)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load form %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load form %d: %w", id, err)
	}

	if err := s.loadFields(ctx, f); err != nil {
		return nil, err
	}
	if err := s.loadActions(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// ListForms returns every form without fields or actions, ordered by id.
func (s queries) ListForms(ctx context.Context) ([]*form.Form, error) {
	rows, err := s.query(ctx, `SELECT id, name, alias, description FROM forms ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	forms := []*form.Form{}
	for rows.Next() {
		f := form.New("")
		if err := rows.Scan(&f.ID, &f.Name, &f.Alias, &f.Description); err != nil {
			return nil, fmt.Errorf("list forms: scan: %w", err)
		}
		forms = append(forms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return forms, nil
}

// DeleteForm removes a form; its fields and actions cascade. It reports
// whether the form existed.
func (s queries) DeleteForm(ctx context.Context, id int64) (bool, error) {
	// Children are deleted explicitly as well, for connections where
	// foreign keys are not enforced.
	for _, stmt := range []string{
		`DELETE FROM form_actions WHERE form_id = ?`,
		`DELETE FROM form_fields WHERE form_id = ?`,
	} {
		if _, err := s.exec(ctx, stmt, id); err != nil {
			return false, fmt.Errorf("delete form %d: %w", id, err)
		}
	}

	res, err := s.exec(ctx, `DELETE FROM forms WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete form %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete form %d: %w", id, err)
	}
	return n > 0, nil
}
