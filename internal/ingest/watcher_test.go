package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/transcribe-etl/internal/etl"
)

type fakeProcessor struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
}

func (p *fakeProcessor) ProcessFile(ctx context.Context, path string) (*etl.FileReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	if p.fail[filepath.Base(path)] {
		return nil, errors.New("malformed")
	}
	return &etl.FileReport{Path: path, Groups: 1, Utterances: 2}, nil
}

func (p *fakeProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]string(nil), p.paths...)
	sort.Strings(out)
	return out
}

type memLedger struct {
	mu   sync.Mutex
	rows map[string]string
}

func (l *memLedger) ExportProcessed(ctx context.Context, path, digest string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows[path] == digest, nil
}

func (l *memLedger) MarkExportProcessed(ctx context.Context, path, digest string, groups, utterances int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[path] = digest
	return nil
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	os.MkdirAll(filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcherBackfill(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "A")
	writeFile(t, filepath.Join(dir, "nested", "b.txt"), "B")
	writeFile(t, filepath.Join(dir, "bad.txt"), "X")
	writeFile(t, filepath.Join(dir, "ignored.csv"), "C")
	writeFile(t, filepath.Join(dir, ".partial.txt"), "P")

	proc := &fakeProcessor{fail: map[string]bool{"bad.txt": true}}
	fw := NewFileWatcher(proc, nil, WatcherOptions{Dir: dir, FileType: "txt", Workers: 2, Backfill: true}, zerolog.Nop())
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	waitFor(t, func() bool { return fw.Status().Status == "watching" })

	want := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "bad.txt"),
		filepath.Join(dir, "nested", "b.txt"),
	}
	got := proc.processed()
	if len(got) != len(want) {
		t.Fatalf("processed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("processed[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	st := fw.Status()
	if st.FilesProcessed != 2 || st.FilesFailed != 1 {
		t.Errorf("status = %+v, want 2 processed and 1 failed", st)
	}
}

func TestWatcherPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	proc := &fakeProcessor{}
	fw := NewFileWatcher(proc, nil, WatcherOptions{Dir: dir, FileType: "txt", Workers: 1}, zerolog.Nop())
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	writeFile(t, filepath.Join(dir, "new.txt"), "N")
	waitFor(t, func() bool { return fw.Processed() == 1 })

	if got := proc.processed(); len(got) != 1 || got[0] != filepath.Join(dir, "new.txt") {
		t.Errorf("processed %v", got)
	}
}

func TestProcessFileSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "first")

	ledger := &memLedger{rows: map[string]string{}}
	proc := &fakeProcessor{}
	fw := NewFileWatcher(proc, ledger, WatcherOptions{Dir: dir}, zerolog.Nop())
	fw.ctx = context.Background()

	fw.processFile(path)
	fw.processFile(path)
	if n := len(proc.processed()); n != 1 {
		t.Fatalf("processed %d times, want 1", n)
	}
	if fw.Skipped() != 1 {
		t.Errorf("skipped = %d, want 1", fw.Skipped())
	}
	if ledger.rows[path] != contentDigest([]byte("first")) {
		t.Error("ledger not updated with content digest")
	}

	// Changed content is processed again
	writeFile(t, path, "second")
	fw.processFile(path)
	if n := len(proc.processed()); n != 2 {
		t.Errorf("processed %d times after change, want 2", n)
	}

	// A fresh watcher consults the ledger
	proc2 := &fakeProcessor{}
	fw2 := NewFileWatcher(proc2, ledger, WatcherOptions{Dir: dir}, zerolog.Nop())
	fw2.ctx = context.Background()
	fw2.processFile(path)
	if n := len(proc2.processed()); n != 0 {
		t.Errorf("fresh watcher reprocessed a ledgered export")
	}
}

func TestMatches(t *testing.T) {
	fw := NewFileWatcher(&fakeProcessor{}, nil, WatcherOptions{Dir: ".", FileType: ".TXT"}, zerolog.Nop())
	tests := []struct {
		path string
		want bool
	}{
		{"/inbox/a.txt", true},
		{"/inbox/A.TXT", true},
		{"/inbox/a.csv", false},
		{"/inbox/.a.txt", false},
		{"/inbox/.etl-1.tmp", false},
	}
	for _, tt := range tests {
		if got := fw.matches(tt.path); got != tt.want {
			t.Errorf("matches(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
