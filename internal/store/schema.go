package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Schema version tracking (schema_migrations):
// 1 - Initial tables
// 2 - Reporting indexes on bills.created_at, bill_items.product_id, products.name
const currentSchemaVersion = 2

// migrationsTable records the applied migration version.
const migrationsTable = "schema_migrations"

// legacyColumn is a column that stores created before schema versioning may
// lack. ddl must be valid for ALTER TABLE ... ADD COLUMN (constant default).
type legacyColumn struct {
	table  string
	column string
	ddl    string
}

var legacyColumns = []legacyColumn{
	{"categories", "is_active", "is_active INTEGER NOT NULL DEFAULT 1"},
	{"products", "item_no", "item_no INTEGER"},
	{"products", "is_available", "is_available INTEGER NOT NULL DEFAULT 1"},
	{"products", "created_at", "created_at TEXT NOT NULL DEFAULT ''"},
	{"products", "updated_at", "updated_at TEXT NOT NULL DEFAULT ''"},
	{"bills", "discount_rate_bps", "discount_rate_bps INTEGER NOT NULL DEFAULT 0"},
	{"bills", "discount_cents", "discount_cents INTEGER NOT NULL DEFAULT 0"},
}

// settingSeeds are inserted on every open if missing.
var settingSeeds = []struct{ key, value string }{
	{SettingBillSeq, "0"},
	{SettingBackupPath, ""},
	{SettingBackupIntervalMinutes, "60"},
	{SettingDiscountRateBps, "0"},
}

// applySchema reconciles legacy tables, runs migrations and seeds settings.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	// Legacy tables must have every column the migrations index before the
	// migrations run.
	if err := reconcileLegacyColumns(db); err != nil {
		return fmt.Errorf("failed to reconcile legacy columns: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := seedSettings(db); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	return nil
}

// runMigrations applies the embedded migrations in order.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	// m.Close is not called: the sqlite3 driver would close db with it.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// reconcileLegacyColumns adds columns missing from tables that already
// exist. Tables that do not exist yet are left to the migrations.
func reconcileLegacyColumns(db *sql.DB) error {
	existing := make(map[string]map[string]bool)

	for _, lc := range legacyColumns {
		cols, ok := existing[lc.table]
		if !ok {
			var err error
			cols, err = tableColumns(db, lc.table)
			if err != nil {
				return err
			}
			existing[lc.table] = cols
		}
		if len(cols) == 0 || cols[lc.column] {
			continue
		}

		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", lc.table, lc.ddl)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("add %s.%s: %w", lc.table, lc.column, err)
		}
		cols[lc.column] = true
	}
	return nil
}

// tableColumns returns the column names of table, empty if it does not exist.
func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return cols, nil
}

func seedSettings(db *sql.DB) error {
	for _, seed := range settingSeeds {
		_, err := db.Exec(`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, seed.key, seed.value)
		if err != nil {
			return fmt.Errorf("seed %s: %w", seed.key, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.Run(ctx, func(q Querier) error {
		var dirty bool
		err := q.QueryRowContext(ctx, "SELECT version, dirty FROM "+migrationsTable+" LIMIT 1").Scan(&version, &dirty)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty", version)
		}
		return nil
	})
	return version, err
}
