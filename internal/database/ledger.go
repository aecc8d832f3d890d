package database

import (
	"context"
	"fmt"
)

// ExportProcessed reports whether the export at path was already processed
// with the same content digest.
func (db *DB) ExportProcessed(ctx context.Context, path, digest string) (bool, error) {
	var done bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_exports WHERE path = $1 AND digest = $2)`,
		path, digest,
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("check processed export: %w", err)
	}
	return done, nil
}

// MarkExportProcessed records a processed export, replacing any earlier
// entry for the same path.
func (db *DB) MarkExportProcessed(ctx context.Context, path, digest string, groups, utterances int) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO processed_exports (path, digest, groups, utterances, processed_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (path) DO UPDATE SET
			digest = EXCLUDED.digest,
			groups = EXCLUDED.groups,
			utterances = EXCLUDED.utterances,
			processed_at = EXCLUDED.processed_at`,
		path, digest, groups, utterances,
	)
	if err != nil {
		return fmt.Errorf("mark processed export: %w", err)
	}
	return nil
}
