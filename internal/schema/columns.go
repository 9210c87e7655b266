// Package schema keeps each form's results table in step with its fields.
//
// Evolution is additive: tables are created and columns added, but nothing
// is renamed, retyped or removed on the edit path. The only destructive
// operations are an explicit rebuild and dropping the table of a deleted
// form.
package schema

import (
	"fmt"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/sqldb"
)

// ColumnSpec describes one results-table column.
type ColumnSpec struct {
	Name     string           `json:"name"`
	Kind     sqldb.ColumnKind `json:"kind"`
	Nullable bool             `json:"nullable"`
}

// TableSpec describes a results table to create.
type TableSpec struct {
	Name       string
	Columns    []ColumnSpec
	PrimaryKey []string
	Unique     []string
}

// TableName returns the results table of a form. Existing data depends on
// this exact format.
func TableName(formID int64, formAlias string) string {
	return fmt.Sprintf("form_results_%d_%s", formID, formAlias)
}

// ComputeColumns returns the columns f's results table must have: the two
// identity columns followed by one nullable text column per storable field,
// in field order.
func ComputeColumns(f *form.Form) []ColumnSpec {
	cols := []ColumnSpec{
		{Name: form.ColumnSubmissionID, Kind: sqldb.KindInteger},
		{Name: form.ColumnFormID, Kind: sqldb.KindInteger},
	}
	if f.Fields == nil {
		return cols
	}
	for _, fld := range f.Fields.All() {
		if !fld.Storable() {
			continue
		}
		cols = append(cols, ColumnSpec{Name: fld.Alias, Kind: sqldb.KindText, Nullable: true})
	}
	return cols
}

// resultsTable is the full create spec for f.
func resultsTable(f *form.Form) TableSpec {
	return TableSpec{
		Name:       TableName(f.ID, f.Alias),
		Columns:    ComputeColumns(f),
		PrimaryKey: []string{form.ColumnSubmissionID},
		Unique:     []string{form.ColumnSubmissionID, form.ColumnFormID},
	}
}
