package database

import (
	"context"
	"fmt"
)

// UnmappedPin is reported for QA report rows whose directory has no
// input_metadata entry.
const UnmappedPin = "unmapped-pin"

// TranscriptMetadata is one QA report row joined with the input metadata of
// its directory. Nullable columns are nil when NULL.
type TranscriptMetadata struct {
	FilePath       string
	DirectoryName  string
	CorpusCode     *string
	AudioDuration  *float64
	Email          *string
	UserID         *string
	Gender         *string
	NativeLanguage *string
	Pin            string
}

// LookupTranscriptMetadata returns the metadata of every file in files that
// has a QA report row, keyed by file path. Files without a row are absent
// from the map. When a path appears more than once the first row wins.
func (db *DB) LookupTranscriptMetadata(ctx context.Context, files []string) (map[string]TranscriptMetadata, error) {
	out := make(map[string]TranscriptMetadata, len(files))
	if len(files) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`
		SELECT q.file_path, q.directory_name,
		       q.corpus_code, q.audio_duration,
		       q.email, q.user_id,
		       q.gender, q.native_language,
		       COALESCE(im.pin, $2)
		FROM %s q
		LEFT JOIN input_metadata im ON im.directory_name = q.directory_name
		WHERE q.file_path = ANY($1)
		ORDER BY q.file_path`, identifierFor(db.qaTable()).Sanitize())

	rows, err := db.Pool.Query(ctx, query, files, UnmappedPin)
	if err != nil {
		return nil, fmt.Errorf("lookup transcript metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m TranscriptMetadata
		if err := rows.Scan(
			&m.FilePath, &m.DirectoryName,
			&m.CorpusCode, &m.AudioDuration,
			&m.Email, &m.UserID,
			&m.Gender, &m.NativeLanguage,
			&m.Pin,
		); err != nil {
			return nil, fmt.Errorf("scan transcript metadata: %w", err)
		}
		if _, seen := out[m.FilePath]; !seen {
			out[m.FilePath] = m
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup transcript metadata: %w", err)
	}
	return out, nil
}

func (db *DB) qaTable() string {
	if db.QAReportTable == "" {
		return "qa_report"
	}
	return db.QAReportTable
}
