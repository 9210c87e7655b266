package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/roach88/formforge/internal/sqldb"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// ErrNotFound is returned when a form does not exist.
var ErrNotFound = errors.New("form not found")

// Store provides durable storage for form definitions.
type Store struct {
	queries
	db *sql.DB
}

// Open connects to the database and applies the schema. driver is
// "sqlite3" or "postgres"; for SQLite dsn is a file path.
//
// This function is idempotent - safe to call multiple times.
func Open(driver, dsn string) (*Store, error) {
	db, d, err := sqldb.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if err := applySchema(db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{queries: queries{q: db, d: d}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the connection.
func (s *Store) Dialect() sqldb.Dialect {
	return s.d
}

// Tx is a store transaction. It has the same read and write methods as
// Store.
type Tx struct {
	queries
	tx *sql.Tx
}

// WithTx runs fn in a transaction, committing when it returns nil and
// rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	if err := fn(&Tx{queries: queries{q: sqlTx, d: s.d}, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Lock holds an exclusive lock on formID until the transaction ends.
func (t *Tx) Lock(ctx context.Context, formID int64) error {
	return t.d.LockForm(ctx, t.tx, formID)
}

// Querier exposes the transaction for collaborators that issue their own
// statements, such as the results-table backend.
func (t *Tx) Querier() sqldb.Querier {
	return t.tx
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB, d sqldb.Dialect) error {
	ddl := schemaSQLite
	if d.Name() == sqldb.DriverPostgres {
		ddl = schemaPostgres
	}
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on the recorded
// version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		return nil
	}

	if _, err := db.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("INSERT INTO schema_version (version) VALUES (%d)", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}
