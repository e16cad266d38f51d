// Package store provides the SQLite-backed transactional store for the
// billing core.
//
// The store owns every row: categories, products, bills, bill items and
// settings. Other components never hold a *sql.DB; they hand a unit of work
// to Run or RunTx and receive a Querier scoped to that call.
//
// # Access Discipline
//
//   - Exactly one live connection (SetMaxOpenConns(1)).
//   - One mutex serializes every unit of work; a unit runs to commit or
//     rollback before the next starts.
//   - While a restore has the store detached, Run and RunTx fail fast with
//     apperr.DatabaseUnavailable instead of blocking.
//
// # Database Configuration
//
//   - WAL mode: the main file is made self-contained by a TRUNCATE checkpoint
//     before snapshots and before detaching
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: bill_items block hard deletes of referenced products
//
// # Schema
//
// Numbered SQL migrations under migrations/ are applied with golang-migrate,
// which records the version in schema_migrations. Stores created before
// versioning are first brought up to date by an explicit column reconcile
// pass. Opening an initialized store is a no-op.
package store
