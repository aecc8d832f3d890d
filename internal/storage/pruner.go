package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StagePruner removes staging execution directories once they are older
// than the retention period. Staged copies are disposable: the source
// container and the written artifacts remain.
type StagePruner struct {
	stageDir  string
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewStagePruner creates a pruner for stageDir. A zero retention disables it.
func NewStagePruner(stageDir string, retention time.Duration, log zerolog.Logger) *StagePruner {
	return &StagePruner{
		stageDir:  stageDir,
		retention: retention,
		interval:  1 * time.Hour,
		log:       log.With().Str("component", "stage-pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *StagePruner) Start() {
	go p.loop()
}

func (p *StagePruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// RunOnce prunes immediately and returns how many directories were removed.
func (p *StagePruner) RunOnce() int {
	return p.prune(time.Now())
}

func (p *StagePruner) loop() {
	// Run once on startup to clear any backlog from downtime
	p.prune(time.Now())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune(time.Now())
		case <-p.stop:
			return
		}
	}
}

// prune deletes every execution directory last modified before now-retention
// and returns how many were removed.
func (p *StagePruner) prune(now time.Time) int {
	if p.retention <= 0 {
		return 0
	}

	cutoff := now.Add(-p.retention)
	var prunedCount int
	var prunedBytes int64

	entries, _ := os.ReadDir(p.stageDir)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(p.stageDir, e.Name())
		size := dirSize(path)
		if err := os.RemoveAll(path); err != nil {
			p.log.Warn().Err(err).Str("path", path).Msg("failed to prune staging directory")
			continue
		}
		prunedCount++
		prunedBytes += size
	}

	if prunedCount > 0 {
		p.log.Info().
			Int("pruned", prunedCount).
			Str("freed", humanizeBytes(prunedBytes)).
			Msg("stage prune complete")
	}
	return prunedCount
}

func dirSize(path string) int64 {
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
