package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/transcribe-etl/internal/api"
	"github.com/snarg/transcribe-etl/internal/etl"
)

const debounceDelay = 500 * time.Millisecond

// Processor transforms and loads one export document.
type Processor interface {
	ProcessFile(ctx context.Context, path string) (*etl.FileReport, error)
}

// Ledger remembers which export contents were already processed.
type Ledger interface {
	ExportProcessed(ctx context.Context, path, digest string) (bool, error)
	MarkExportProcessed(ctx context.Context, path, digest string, groups, utterances int) error
}

// WatcherOptions configures a FileWatcher.
type WatcherOptions struct {
	Dir      string
	FileType string // extension without the dot
	Workers  int    // backfill concurrency
	Backfill bool
}

// FileWatcher monitors an inbox directory for export documents and runs each
// new or changed one through the pipeline. Documents already present when the
// watcher starts are backfilled with a bounded worker pool.
type FileWatcher struct {
	proc   Processor
	ledger Ledger
	opts   WatcherOptions
	ext    string
	log    zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// Digests processed during this process lifetime, used when no ledger
	// is configured and to avoid a ledger round-trip for repeated events.
	seenMu sync.Mutex
	seen   map[string]string

	// Stats
	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	filesFailed    atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFileWatcher creates a watcher. ledger may be nil.
func NewFileWatcher(proc Processor, ledger Ledger, opts WatcherOptions, log zerolog.Logger) *FileWatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FileType == "" {
		opts.FileType = "txt"
	}
	fw := &FileWatcher{
		proc:           proc,
		ledger:         ledger,
		opts:           opts,
		ext:            "." + strings.ToLower(strings.TrimPrefix(opts.FileType, ".")),
		log:            log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		seen:           make(map[string]string),
	}
	fw.status.Store("starting")
	return fw
}

// Start initializes the fsnotify watcher, adds all existing directories, and
// begins watching for new files. If backfill is enabled, existing documents
// are processed in a background goroutine.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(fw.opts.Dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w

	// Walk the directory tree and add all directories to fsnotify.
	dirCount := 0
	err = filepath.WalkDir(fw.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil // continue walking
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.opts.Dir).
		Msg("file watcher initialized")

	fw.ctx, fw.cancel = context.WithCancel(ctx)

	fw.wg.Add(1)
	go func() {
		defer fw.wg.Done()
		fw.watchLoop()
	}()

	if fw.opts.Backfill {
		fw.wg.Add(1)
		go func() {
			defer fw.wg.Done()
			fw.backfill()
		}()
	} else {
		fw.status.Store("watching")
	}

	return nil
}

// Stop closes the fsnotify watcher, cancels pending debounce timers and waits
// for in-flight processing to finish.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
	}

	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	fw.wg.Wait()
	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Int64("files_failed", fw.filesFailed.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() *api.WatcherStatusData {
	s, _ := fw.status.Load().(string)
	return &api.WatcherStatusData{
		Status:         s,
		WatchDir:       fw.opts.Dir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
		FilesFailed:    fw.filesFailed.Load(),
	}
}

func (fw *FileWatcher) Processed() int64 { return fw.filesProcessed.Load() }
func (fw *FileWatcher) Skipped() int64   { return fw.filesSkipped.Load() }

// Pending returns the number of files waiting for their debounce timer.
func (fw *FileWatcher) Pending() int {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()
	return len(fw.debounceTimers)
}

// watchLoop is the main event loop that processes fsnotify events.
func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: add it to the watch set so we catch exports
			// dropped into freshly created subdirectories.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !fw.matches(event.Name) {
				continue
			}

			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// matches reports whether path is an export document. Temp files written by
// editors and atomic writers are ignored.
func (fw *FileWatcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(base), fw.ext)
}

// scheduleProcess debounces file processing by 500ms. This coalesces rapid
// Create+Write events and ensures the file is fully written before reading.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(debounceDelay)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		// Stop clears the timer map under the same lock, so a timer that
		// is still registered here is counted before Stop waits.
		fw.debounceMu.Lock()
		_, live := fw.debounceTimers[path]
		delete(fw.debounceTimers, path)
		if live {
			fw.wg.Add(1)
		}
		fw.debounceMu.Unlock()
		if !live {
			return
		}
		defer fw.wg.Done()
		if fw.ctx.Err() != nil {
			return
		}
		fw.processFile(path)
	})
}

// processFile runs one export through the pipeline unless the same content
// was already processed.
func (fw *FileWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to read export")
		return
	}
	digest := contentDigest(data)

	if fw.alreadyProcessed(path, digest) {
		fw.filesSkipped.Add(1)
		fw.log.Debug().Str("path", path).Msg("export unchanged, skipping")
		return
	}

	fr, err := fw.proc.ProcessFile(fw.ctx, path)
	if err != nil {
		fw.filesFailed.Add(1)
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to process export")
		return
	}

	fw.seenMu.Lock()
	fw.seen[path] = digest
	fw.seenMu.Unlock()
	if fw.ledger != nil {
		if err := fw.ledger.MarkExportProcessed(fw.ctx, path, digest, fr.Groups, fr.Utterances); err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("failed to record processed export")
		}
	}
	fw.filesProcessed.Add(1)
}

func (fw *FileWatcher) alreadyProcessed(path, digest string) bool {
	fw.seenMu.Lock()
	prev, ok := fw.seen[path]
	fw.seenMu.Unlock()
	if ok && prev == digest {
		return true
	}
	if fw.ledger == nil {
		return false
	}
	done, err := fw.ledger.ExportProcessed(fw.ctx, path, digest)
	if err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("ledger check failed, processing anyway")
		return false
	}
	return done
}

func contentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// backfill processes export documents already in the inbox, in path order,
// with a bounded worker pool.
func (fw *FileWatcher) backfill() {
	fw.status.Store("backfilling")
	start := time.Now()

	var files []string
	_ = filepath.WalkDir(fw.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fw.matches(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)

	fw.log.Info().
		Int("files", len(files)).
		Int("workers", fw.opts.Workers).
		Msg("backfill starting")

	work := make(chan string, fw.opts.Workers*2)
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := 0; i < fw.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range work {
				fw.processFile(path)
				n := processed.Add(1)
				if n%500 == 0 {
					fw.log.Info().
						Int64("processed", n).
						Int("total", len(files)).
						Msg("backfill progress")
				}
			}
		}()
	}

	for _, path := range files {
		select {
		case <-fw.ctx.Done():
			fw.log.Info().Int64("processed", processed.Load()).Msg("backfill interrupted by shutdown")
			close(work)
			wg.Wait()
			return
		case work <- path:
		}
	}
	close(work)
	wg.Wait()

	fw.status.Store("watching")
	fw.log.Info().
		Int64("processed", processed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("backfill complete")
}
