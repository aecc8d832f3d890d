package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore stores objects on the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local filesystem store rooted at root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	// Atomic write: temp file + rename
	tmp, err := os.CreateTemp(dir, ".etl-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	base := filepath.Join(s.root, filepath.FromSlash(prefix))
	var keys []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == base {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || isTempFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalStore) Type() string { return "local" }

// Dir returns the store's root directory.
func (s *LocalStore) Dir() string { return s.root }

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".etl-") && strings.HasSuffix(name, ".tmp")
}
