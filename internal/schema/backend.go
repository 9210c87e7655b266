package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/formforge/internal/form"
	"github.com/roach88/formforge/internal/sqldb"
)

// Backend inspects and mutates the storage engine. Mutations are queued and
// only reach the database when Execute runs, as a single unit.
type Backend interface {
	TableExists(ctx context.Context, name string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)

	// OwnedByOther reports whether table holds rows of a form other than
	// formID.
	OwnedByOther(ctx context.Context, table string, formID int64) (bool, error)

	CreateTable(spec TableSpec)
	AddColumn(table string, col ColumnSpec)
	DropTable(name string)

	// Execute runs the queued mutations and returns how many ran.
	Execute(ctx context.Context) (int, error)
}

// SQLBackend is a Backend over database/sql.
//
// When q is a transaction, Execute runs the statements inside it and leaves
// committing to the owner. When q can begin transactions itself (a *sql.DB),
// Execute wraps the statements in a transaction of its own.
type SQLBackend struct {
	q       sqldb.Querier
	dialect sqldb.Dialect

	pending []string
	columns map[string]map[string]bool
}

// NewSQLBackend returns a backend issuing queries through q.
func NewSQLBackend(q sqldb.Querier, d sqldb.Dialect) *SQLBackend {
	return &SQLBackend{
		q:       q,
		dialect: d,
		columns: make(map[string]map[string]bool),
	}
}

func (b *SQLBackend) TableExists(ctx context.Context, name string) (bool, error) {
	return b.dialect.TableExists(ctx, b.q, name)
}

// ColumnExists answers from a per-table cache filled on first use.
func (b *SQLBackend) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	cols, ok := b.columns[table]
	if !ok {
		names, err := b.dialect.Columns(ctx, b.q, table)
		if err != nil {
			return false, err
		}
		cols = make(map[string]bool, len(names))
		for _, n := range names {
			cols[n] = true
		}
		b.columns[table] = cols
	}
	return cols[column], nil
}

func (b *SQLBackend) OwnedByOther(ctx context.Context, table string, formID int64) (bool, error) {
	ok, err := b.ColumnExists(ctx, table, form.ColumnFormID)
	if err != nil || !ok {
		return false, err
	}

	query := b.dialect.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s <> ?",
		b.dialect.Quote(table), b.dialect.Quote(form.ColumnFormID)))
	var n int
	if err := b.q.QueryRowContext(ctx, query, formID).Scan(&n); err != nil {
		return false, fmt.Errorf("check owner of %s: %w", table, err)
	}
	return n > 0, nil
}

func (b *SQLBackend) CreateTable(spec TableSpec) {
	b.pending = append(b.pending, CreateTableSQL(b.dialect, spec))
}

func (b *SQLBackend) AddColumn(table string, col ColumnSpec) {
	b.pending = append(b.pending, b.dialect.AddColumnSQL(table, col.Name, col.Kind))
}

func (b *SQLBackend) DropTable(name string) {
	b.pending = append(b.pending, "DROP TABLE IF EXISTS "+b.dialect.Quote(name))
}

// Pending returns the queued statements.
func (b *SQLBackend) Pending() []string {
	return append([]string(nil), b.pending...)
}

func (b *SQLBackend) Execute(ctx context.Context) (int, error) {
	stmts := b.pending
	b.pending = nil
	if len(stmts) == 0 {
		return 0, nil
	}
	// The schema is about to change under the cache.
	b.columns = make(map[string]map[string]bool)

	if beginner, ok := b.q.(sqldb.Beginner); ok {
		if err := b.executeInTx(ctx, beginner, stmts); err != nil {
			return 0, err
		}
		return len(stmts), nil
	}
	for _, stmt := range stmts {
		if _, err := b.q.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	return len(stmts), nil
}

func (b *SQLBackend) executeInTx(ctx context.Context, db sqldb.Beginner, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// CreateTableSQL renders the CREATE TABLE statement for spec.
func CreateTableSQL(d sqldb.Dialect, spec TableSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", d.Quote(spec.Name))

	lines := make([]string, 0, len(spec.Columns)+2)
	for _, c := range spec.Columns {
		line := "  " + d.Quote(c.Name) + " " + d.TypeName(c.Kind)
		if !c.Nullable {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}
	if len(spec.PrimaryKey) > 0 {
		lines = append(lines, "  PRIMARY KEY ("+quoteList(d, spec.PrimaryKey)+")")
	}
	if len(spec.Unique) > 0 {
		lines = append(lines, "  UNIQUE ("+quoteList(d, spec.Unique)+")")
	}

	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")
	return b.String()
}

func quoteList(d sqldb.Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

var _ Backend = (*SQLBackend)(nil)

// sql.Tx satisfies Querier but not Beginner; Execute relies on that to run
// inside a caller's transaction.
var _ sqldb.Querier = (*sql.Tx)(nil)
