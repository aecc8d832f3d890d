package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestStagePrunerPrune(t *testing.T) {
	stage := t.TempDir()
	now := time.Now()

	mk := func(name string, age time.Duration) string {
		dir := filepath.Join(stage, name, "extract_files")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644)
		top := filepath.Join(stage, name)
		mtime := now.Add(-age)
		if err := os.Chtimes(top, mtime, mtime); err != nil {
			t.Fatal(err)
		}
		return top
	}
	old := mk("2023041100-old", 10*24*time.Hour)
	fresh := mk("2023041800-fresh", time.Hour)

	p := NewStagePruner(stage, 7*24*time.Hour, zerolog.Nop())
	if n := p.prune(now); n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("old execution dir still present: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh execution dir removed: %v", err)
	}
}

func TestStagePrunerDisabled(t *testing.T) {
	stage := t.TempDir()
	dir := filepath.Join(stage, "x")
	os.MkdirAll(dir, 0o755)
	old := time.Now().Add(-365 * 24 * time.Hour)
	os.Chtimes(dir, old, old)

	p := NewStagePruner(stage, 0, zerolog.Nop())
	if n := p.prune(time.Now()); n != 0 {
		t.Errorf("pruned = %d with zero retention, want 0", n)
	}
}

func TestHumanizeBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := humanizeBytes(tt.in); got != tt.want {
			t.Errorf("humanizeBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
