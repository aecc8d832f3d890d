package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// UploadReconciler scans the local artifact tree for files missing from S3
// and re-uploads them. Handles dropped async uploads and crash recovery.
// The tree is laid out as {YYYY-MM-DD}/{pin}/{artifact}.
type UploadReconciler struct {
	dir      string
	s3       *S3Store
	interval time.Duration
	window   time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewUploadReconciler creates a reconciler that checks for missing S3 uploads
// among artifacts whose package date falls within window.
func NewUploadReconciler(dir string, s3 *S3Store, window time.Duration, log zerolog.Logger) *UploadReconciler {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &UploadReconciler{
		dir:      dir,
		s3:       s3,
		interval: 5 * time.Minute,
		window:   window,
		log:      log.With().Str("component", "upload-reconciler").Logger(),
		stop:     make(chan struct{}),
	}
}

func (r *UploadReconciler) Start() { go r.loop() }
func (r *UploadReconciler) Stop()  { r.stopOnce.Do(func() { close(r.stop) }) }

func (r *UploadReconciler) loop() {
	// Delay first run to let startup uploads settle
	select {
	case <-time.After(2 * time.Minute):
	case <-r.stop:
		return
	}

	r.reconcile()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stop:
			return
		}
	}
}

func (r *UploadReconciler) reconcile() {
	var uploaded, failed, checked int

	for _, key := range r.candidates(time.Now()) {
		checked++

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		exists := r.s3.Exists(ctx, key)
		cancel()
		if exists {
			continue
		}

		data, readErr := os.ReadFile(filepath.Join(r.dir, filepath.FromSlash(key)))
		if readErr != nil {
			continue
		}

		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		if saveErr := r.s3.Save(ctx, key, data, ContentTypeFromExt(filepath.Ext(key))); saveErr != nil {
			r.log.Warn().Err(saveErr).Str("key", key).Msg("reconcile upload failed")
			failed++
		} else {
			uploaded++
		}
		cancel()
	}

	if uploaded > 0 || failed > 0 {
		r.log.Info().
			Int("uploaded", uploaded).
			Int("failed", failed).
			Int("checked", checked).
			Msg("reconcile complete")
	}
}

// candidates lists artifact keys whose date directory is within the window.
// Directories whose name is not a date are always included.
func (r *UploadReconciler) candidates(now time.Time) []string {
	var keys []string
	cutoff := now.Add(-r.window).Truncate(24 * time.Hour)

	dateDirs, _ := os.ReadDir(r.dir)
	for _, dateDir := range dateDirs {
		if !dateDir.IsDir() {
			continue
		}
		dirDate, err := time.Parse("2006-01-02", dateDir.Name())
		if err == nil && dirDate.Before(cutoff) {
			continue
		}

		datePath := filepath.Join(r.dir, dateDir.Name())
		pinDirs, _ := os.ReadDir(datePath)
		for _, pinDir := range pinDirs {
			if !pinDir.IsDir() {
				continue
			}
			files, _ := os.ReadDir(filepath.Join(datePath, pinDir.Name()))
			for _, f := range files {
				if f.IsDir() || isTempFile(f.Name()) {
					continue
				}
				keys = append(keys, dateDir.Name()+"/"+pinDir.Name()+"/"+f.Name())
			}
		}
	}
	return keys
}
