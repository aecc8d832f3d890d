package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestReconcilerCandidates(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("2023-04-09/1234/old_tx.json")
	write("2023-04-11/1234/a_tx.json")
	write("2023-04-11/1234/a_meta.json")
	write("2023-04-11/no-pin/b_tx.json")
	write("2023-04-11/no-pin/.etl-99.tmp")
	write("stray.json")

	r := NewUploadReconciler(dir, nil, 24*time.Hour, zerolog.Nop())
	now := time.Date(2023, 4, 11, 15, 0, 0, 0, time.UTC)
	got := r.candidates(now)
	want := []string{
		"2023-04-11/1234/a_meta.json",
		"2023-04-11/1234/a_tx.json",
		"2023-04-11/no-pin/b_tx.json",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("candidates = %v, want %v", got, want)
	}
}
