// Package stage copies a run's inputs out of the source container into a
// per-execution staging directory so the rest of the pipeline works on a
// stable local snapshot.
package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/transcribe-etl/internal/storage"
)

// TableDumper writes a relational table as CSV.
type TableDumper interface {
	DumpTable(ctx context.Context, table string, w io.Writer) (int64, error)
}

// Synchronizer stages files and tables for one execution under
// <stageDir>/<YYYYMMDDHH>-<execution-id>/<container>/.
type Synchronizer struct {
	source      storage.Store
	stageDir    string
	executionID uuid.UUID
	hierarchy   string
	log         zerolog.Logger
}

// NewSynchronizer creates a synchronizer for a fresh execution started at now.
func NewSynchronizer(source storage.Store, stageDir string, now time.Time, log zerolog.Logger) *Synchronizer {
	id := uuid.New()
	return &Synchronizer{
		source:      source,
		stageDir:    stageDir,
		executionID: id,
		hierarchy:   Hierarchy(now, id),
		log: log.With().
			Str("component", "stage").
			Str("execution_id", id.String()).
			Logger(),
	}
}

// Hierarchy names the staging directory of an execution.
func Hierarchy(now time.Time, id uuid.UUID) string {
	return now.Format("2006010215") + "-" + id.String()
}

func (s *Synchronizer) ExecutionID() uuid.UUID { return s.executionID }

// Dir returns the execution's staging directory.
func (s *Synchronizer) Dir() string {
	return filepath.Join(s.stageDir, s.hierarchy)
}

// SyncFiles copies every <container>/*.<fileType> object from the source
// store into the staging directory and returns the staged paths in key
// order. Objects in nested prefixes are not staged. An empty or missing
// container stages nothing.
func (s *Synchronizer) SyncFiles(ctx context.Context, container, fileType string) ([]string, error) {
	keys, err := s.source.List(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", container, err)
	}

	dest := filepath.Join(s.Dir(), container)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dest, err)
	}

	ext := "." + fileType
	var staged []string
	for _, key := range keys {
		if path.Dir(key) != container || path.Ext(key) != ext {
			continue
		}
		local := filepath.Join(dest, path.Base(key))
		if err := s.copyObject(ctx, key, local); err != nil {
			return staged, err
		}
		staged = append(staged, local)
	}

	s.log.Info().
		Str("container", container).
		Str("file_type", fileType).
		Int("files", len(staged)).
		Msg("files staged")
	return staged, nil
}

func (s *Synchronizer) copyObject(ctx context.Context, key, dst string) error {
	r, err := s.source.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("copy %s: %w", key, err)
	}
	return f.Close()
}

// SyncTable dumps table into <container>/<table>.csv in the staging
// directory and returns the file's path.
func (s *Synchronizer) SyncTable(ctx context.Context, dumper TableDumper, container, table string) (string, error) {
	dest := filepath.Join(s.Dir(), container)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dest, err)
	}

	out := filepath.Join(dest, table+".csv")
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", out, err)
	}
	rows, err := dumper.DumpTable(ctx, table, f)
	if err != nil {
		f.Close()
		os.Remove(out)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", out, err)
	}

	s.log.Info().Str("table", table).Int64("rows", rows).Str("path", out).Msg("table staged")
	return out, nil
}
