package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect captures the engine-specific SQL used by the store and the schema
// backend. Both supported engines run DDL transactionally, which is what lets
// a form save and its results-table sync commit as one unit.
type Dialect interface {
	// Name is the canonical dialect name ("sqlite3" or "postgres").
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// PrepareDSN adds the connection parameters the engine needs.
	PrepareDSN(dsn string) string
	// Configure applies pool settings and session pragmas after Open.
	Configure(db *sql.DB) error

	// Rebind converts ? placeholders into the engine's placeholder syntax.
	Rebind(query string) string
	// Quote quotes an identifier.
	Quote(ident string) string
	// TypeName maps a logical column kind to a column type.
	TypeName(kind ColumnKind) string

	// TableExists reports whether a table with the given name exists.
	TableExists(ctx context.Context, q Querier, name string) (bool, error)
	// Columns lists the columns of a table in ordinal order.
	Columns(ctx context.Context, q Querier, table string) ([]string, error)
	// AddColumnSQL renders an ALTER TABLE ... ADD COLUMN statement.
	AddColumnSQL(table, column string, kind ColumnKind) string

	// LockForm takes an exclusive lock on a form for the remainder of the
	// transaction q belongs to.
	LockForm(ctx context.Context, q Querier, formID int64) error
}

// SQLite is the dialect for github.com/mattn/go-sqlite3.
type SQLite struct{}

func (SQLite) Name() string       { return DriverSQLite }
func (SQLite) DriverName() string { return DriverSQLite }

// PrepareDSN makes every transaction BEGIN IMMEDIATE so that concurrent
// writers queue on the database lock instead of failing at commit.
func (SQLite) PrepareDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_txlock=immediate&_foreign_keys=on"
}

// Configure limits the pool to one connection (SQLite has a single writer)
// and applies the required pragmas.
func (SQLite) Configure(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (SQLite) Rebind(query string) string { return query }
func (SQLite) Quote(ident string) string  { return quoteIdent(ident) }

func (SQLite) TypeName(kind ColumnKind) string {
	if kind == KindInteger {
		return "INTEGER"
	}
	return "TEXT"
}

func (SQLite) TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return count > 0, nil
}

func (SQLite) Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	return scanNames(rows, table)
}

// AddColumnSQL renders a plain ADD COLUMN; SQLite has no IF NOT EXISTS form,
// so callers check existence first.
func (d SQLite) AddColumnSQL(table, column string, kind ColumnKind) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", d.Quote(table), d.Quote(column), d.TypeName(kind))
}

// LockForm is a no-op: the transaction already holds the database write
// lock (see PrepareDSN).
func (SQLite) LockForm(context.Context, Querier, int64) error { return nil }

// Postgres is the dialect for github.com/lib/pq.
type Postgres struct{}

func (Postgres) Name() string                 { return DriverPostgres }
func (Postgres) DriverName() string           { return DriverPostgres }
func (Postgres) PrepareDSN(dsn string) string { return dsn }

func (Postgres) Configure(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return nil
}

func (Postgres) Rebind(query string) string { return rebindDollar(query) }
func (Postgres) Quote(ident string) string  { return quoteIdent(ident) }

func (Postgres) TypeName(kind ColumnKind) string {
	if kind == KindInteger {
		return "INTEGER"
	}
	return "TEXT"
}

func (Postgres) TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return exists, nil
}

func (Postgres) Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	return scanNames(rows, table)
}

func (d Postgres) AddColumnSQL(table, column string, kind ColumnKind) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", d.Quote(table), d.Quote(column), d.TypeName(kind))
}

// LockForm takes a transaction-scoped advisory lock keyed by the form id.
func (Postgres) LockForm(ctx context.Context, q Querier, formID int64) error {
	if _, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", formID); err != nil {
		return fmt.Errorf("lock form %d: %w", formID, err)
	}
	return nil
}

func scanNames(rows *sql.Rows, table string) ([]string, error) {
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", table, err)
	}
	return names, nil
}
