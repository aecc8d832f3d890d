package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLocalStoreSaveOpen(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	if err := s.Save(ctx, "2023-04-11/1234/call_tx.json", []byte(`[]`), "application/json"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "2023-04-11", "1234", "call_tx.json")); err != nil {
		t.Fatalf("saved object not on disk: %v", err)
	}

	rc, err := s.Open(ctx, "2023-04-11/1234/call_tx.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "[]" {
		t.Errorf("content = %q, want []", data)
	}

	// Overwrite replaces content
	if err := s.Save(ctx, "2023-04-11/1234/call_tx.json", []byte(`[1]`), "application/json"); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(s.Dir(), "2023-04-11", "1234", "call_tx.json"))
	if string(got) != "[1]" {
		t.Errorf("content after overwrite = %q, want [1]", got)
	}
}

func TestLocalStoreList(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewLocalStore(root)

	for _, key := range []string{
		"extract_files/b.txt",
		"extract_files/a.txt",
		"extract_files/nested/c.txt",
		"other/d.txt",
	} {
		if err := s.Save(ctx, key, []byte("x"), ""); err != nil {
			t.Fatalf("Save %s: %v", key, err)
		}
	}
	// Leftover temp files from an interrupted write are not listed
	os.WriteFile(filepath.Join(root, "extract_files", ".etl-123.tmp"), []byte("x"), 0o644)

	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{"container", "extract_files", []string{"extract_files/a.txt", "extract_files/b.txt", "extract_files/nested/c.txt"}},
		{"missing", "nope", nil},
		{"root", "", []string{"extract_files/a.txt", "extract_files/b.txt", "extract_files/nested/c.txt", "other/d.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.prefix)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("List(%q) = %v, want %v", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestContentTypeFromExt(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".json", "application/json"},
		{".txt", "text/plain; charset=utf-8"},
		{".csv", "text/csv"},
		{".wav", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentTypeFromExt(tt.ext); got != tt.want {
			t.Errorf("ContentTypeFromExt(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestIsTempFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".etl-1234.tmp", true},
		{"call_tx.json", false},
		{".etl-1234", false},
		{"x.tmp", false},
	}
	for _, tt := range tests {
		if got := isTempFile(tt.name); got != tt.want {
			t.Errorf("isTempFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStoresSatisfyStore(t *testing.T) {
	var (
		_ Store = (*LocalStore)(nil)
		_ Store = (*S3Store)(nil)
		_ Store = (*TieredStore)(nil)
	)
}
