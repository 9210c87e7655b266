// Package store persists form definitions: one row per form, field and
// action.
//
// # Tables
//
//   - forms: name, alias (fixed at creation), description, cached HTML
//   - form_fields: UNIQUE(form_id, alias), ordered by field_order
//   - form_actions: ordered by action_order, properties as JSON
//
// Fields and actions cascade with their form. Results tables are not
// managed here; see package schema.
//
// # Transactions
//
// A save runs inside WithTx. The same transaction is handed to the schema
// backend so the definition and its results table commit together. Tx.Lock
// serializes saves of one form across processes: an advisory lock on
// PostgreSQL, and on SQLite the write lock every transaction takes when it
// begins.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
