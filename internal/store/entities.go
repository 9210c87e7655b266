package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/formforge/internal/form"
)

// SaveFields makes the stored fields of f match f.Fields: rows no longer in
// the collection are deleted, kept fields are updated, and new fields are
// inserted and given their ids.
//
// Deletes run first so a new field may reuse the alias of a removed one
// without tripping UNIQUE(form_id, alias).
func (s queries) SaveFields(ctx context.Context, f *form.Form) error {
	if f.IsNew() {
		return fmt.Errorf("save fields: form has no id")
	}
	if err := s.deleteMissing(ctx, "form_fields", f.ID, f.Fields.IDs()); err != nil {
		return fmt.Errorf("save fields: %w", err)
	}

	for _, fld := range f.Fields.All() {
		props, err := marshalProps(fld.Properties)
		if err != nil {
			return fmt.Errorf("save field %q: %w", fld.Alias, err)
		}
		args := []any{
			fld.Order, fld.Label, fld.Type, fld.DefaultValue, fld.IsRequired,
			fld.ValidationMessage, fld.HelpMessage, nullBool(fld.ShowLabel), nullBool(fld.SaveResult),
			fld.InputAttributes, fld.LabelAttributes, props, fld.SessionID,
		}

		if fld.ID != 0 {
			_, err = s.exec(ctx, `
				UPDATE form_fields SET
					field_order = ?, label = ?, type = ?, default_value = ?, is_required = ?,
					validation_message = ?, help_message = ?, show_label = ?, save_result = ?,
					input_attributes = ?, label_attributes = ?, properties = ?, session_id = ?
				WHERE id = ? AND form_id = ?
			`, append(args, fld.ID, f.ID)...)
		} else {
			err = s.queryRow(ctx, `
				INSERT INTO form_fields (
					field_order, label, type, default_value, is_required,
					validation_message, help_message, show_label, save_result,
					input_attributes, label_attributes, properties, session_id,
					form_id, alias
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING id
			`, append(args, f.ID, fld.Alias)...).Scan(&fld.ID)
		}
		if err != nil {
			return fmt.Errorf("save field %q: %w", fld.Alias, err)
		}
	}

	f.Fields.Reindex()
	return nil
}

// SaveActions makes the stored actions of f match f.Actions.
func (s queries) SaveActions(ctx context.Context, f *form.Form) error {
	if f.IsNew() {
		return fmt.Errorf("save actions: form has no id")
	}
	if err := s.deleteMissing(ctx, "form_actions", f.ID, f.Actions.IDs()); err != nil {
		return fmt.Errorf("save actions: %w", err)
	}

	for _, act := range f.Actions.All() {
		props, err := marshalProps(act.Properties)
		if err != nil {
			return fmt.Errorf("save action %q: %w", act.Name, err)
		}

		if act.ID != 0 {
			_, err = s.exec(ctx, `
				UPDATE form_actions SET action_order = ?, name = ?, description = ?, type = ?, properties = ?
				WHERE id = ? AND form_id = ?
			`, act.Order, act.Name, act.Description, act.Type, props, act.ID, f.ID)
		} else {
			err = s.queryRow(ctx, `
				INSERT INTO form_actions (form_id, action_order, name, description, type, properties)
				VALUES (?, ?, ?, ?, ?, ?)
				RETURNING id
			`, f.ID, act.Order, act.Name, act.Description, act.Type, props).Scan(&act.ID)
		}
		if err != nil {
			return fmt.Errorf("save action %q: %w", act.Name, err)
		}
	}

	f.Actions.Reindex()
	return nil
}

// deleteMissing removes the rows of formID in table whose id is not in keep.
func (s queries) deleteMissing(ctx context.Context, table string, formID int64, keep []int64) error {
	rows, err := s.query(ctx, "SELECT id FROM "+table+" WHERE form_id = ?", formID)
	if err != nil {
		return err
	}
	var stale []int64
	kept := make(map[int64]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if !kept[id] {
			stale = append(stale, id)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := s.exec(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
			return err
		}
	}
	return nil
}

func (s queries) loadFields(ctx context.Context, f *form.Form) error {
	rows, err := s.query(ctx, `
		SELECT id, field_order, label, alias, type, default_value, is_required,
			validation_message, help_message, show_label, save_result,
			input_attributes, label_attributes, properties, session_id
		FROM form_fields
		WHERE form_id = ?
		ORDER BY field_order ASC, id ASC
	`, f.ID)
	if err != nil {
		return fmt.Errorf("load fields of form %d: %w", f.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		fld := &form.Field{Form: f}
		var showLabel, saveResult sql.NullBool
		var props string
		if err := rows.Scan(
			&fld.ID, &fld.Order, &fld.Label, &fld.Alias, &fld.Type, &fld.DefaultValue, &fld.IsRequired,
			&fld.ValidationMessage, &fld.HelpMessage, &showLabel, &saveResult,
			&fld.InputAttributes, &fld.LabelAttributes, &props, &fld.SessionID,
		); err != nil {
			return fmt.Errorf("load fields of form %d: scan: %w", f.ID, err)
		}
		fld.ShowLabel = boolPtr(showLabel)
		fld.SaveResult = boolPtr(saveResult)
		if fld.Properties, err = unmarshalProps(props); err != nil {
			return fmt.Errorf("load field %d: %w", fld.ID, err)
		}
		f.Fields.Add(fld)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load fields of form %d: %w", f.ID, err)
	}
	return nil
}

func (s queries) loadActions(ctx context.Context, f *form.Form) error {
	rows, err := s.query(ctx, `
		SELECT id, action_order, name, description, type, properties
		FROM form_actions
		WHERE form_id = ?
		ORDER BY action_order ASC, id ASC
	`, f.ID)
	if err != nil {
		return fmt.Errorf("load actions of form %d: %w", f.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		act := &form.Action{Form: f}
		var props string
		if err := rows.Scan(&act.ID, &act.Order, &act.Name, &act.Description, &act.Type, &props); err != nil {
			return fmt.Errorf("load actions of form %d: scan: %w", f.ID, err)
		}
		if act.Properties, err = unmarshalProps(props); err != nil {
			return fmt.Errorf("load action %d: %w", act.ID, err)
		}
		f.Actions.Add(act)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load actions of form %d: %w", f.ID, err)
	}
	return nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func boolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}
