package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the schema with the QA report table at its default name.
var migrations = schemaMigrations("qa_report")

// schemaMigrations returns the ordered list of schema migrations to apply,
// creating the QA report table as qaTable (optionally schema-qualified).
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
func schemaMigrations(qaTable string) []migration {
	table := identifierFor(qaTable).Sanitize()
	index := indexName(qaTable, "file_path")
	return []migration{
		{
			name: "create " + qaTable,
			sql: `CREATE TABLE IF NOT EXISTS ` + table + ` (
    directory_name  text NOT NULL,
    corpus_code     text,
    file_path       text NOT NULL,
    audio_duration  double precision,
    email           text,
    user_id         text,
    gender          text,
    native_language text
)`,
			check: `SELECT to_regclass(` + quoteLiteral(table) + `) IS NOT NULL`,
		},
		{
			name:  "add " + qaTable + " file_path index",
			sql:   `CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{index}.Sanitize() + ` ON ` + table + ` (file_path)`,
			check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = ` + quoteLiteral(index) + `)`,
		},
		{
			name: "create input_metadata",
			sql: `CREATE TABLE IF NOT EXISTS input_metadata (
    directory_name text PRIMARY KEY,
    pin            text
)`,
			check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'input_metadata')`,
		},
		{
			name: "create processed_exports",
			sql: `CREATE TABLE IF NOT EXISTS processed_exports (
    path         text PRIMARY KEY,
    digest       text NOT NULL,
    groups       int NOT NULL DEFAULT 0,
    utterances   int NOT NULL DEFAULT 0,
    processed_at timestamptz NOT NULL DEFAULT now()
)`,
			check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'processed_exports')`,
		},
	}
}

// indexName derives an index name from the last part of a table name.
func indexName(table, column string) string {
	parts := strings.Split(table, ".")
	base := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return '_'
	}, parts[len(parts)-1])
	return "idx_" + base + "_" + column
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Migrate runs all pending schema migrations. The QA report table is
// created under the configured QAReportTable name.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. If the apply fails (e.g. insufficient
// privileges), the error is returned and the caller should treat it as fatal
// since metadata lookups and the ledger depend on these tables.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range schemaMigrations(db.qaTable()) {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen rerun transcribe-etl.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
