package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AsyncUploader pushes artifacts to S3 in the background so a load never
// blocks on the bucket. Artifacts are already on local disk when enqueued.
type AsyncUploader struct {
	s3      *S3Store
	ch      chan uploadJob
	workers int
	log     zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

type uploadJob struct {
	key         string
	data        []byte
	contentType string
}

// NewAsyncUploader creates an async S3 uploader with the given buffer size.
func NewAsyncUploader(s3 *S3Store, bufferSize int, log zerolog.Logger) *AsyncUploader {
	return &AsyncUploader{
		s3:      s3,
		ch:      make(chan uploadJob, bufferSize),
		workers: 2,
		log:     log.With().Str("component", "async-uploader").Logger(),
	}
}

// Enqueue adds an S3 upload job. Non-blocking: drops with a warning if the
// queue is full or stopped. The reconciler picks up dropped artifacts.
func (u *AsyncUploader) Enqueue(key string, data []byte, contentType string) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.stopped {
		return
	}
	select {
	case u.ch <- uploadJob{key: key, data: data, contentType: contentType}:
	default:
		u.log.Warn().Str("key", key).Msg("async upload queue full, skipping (artifact safe on disk)")
	}
}

// Start launches worker goroutines.
func (u *AsyncUploader) Start() {
	for i := 0; i < u.workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	u.log.Info().Int("workers", u.workers).Int("buffer", cap(u.ch)).Msg("async uploader started")
}

// Stop stops accepting jobs and waits for queued uploads to drain.
func (u *AsyncUploader) Stop() {
	u.mu.Lock()
	if u.stopped {
		u.mu.Unlock()
		return
	}
	u.stopped = true
	close(u.ch)
	u.mu.Unlock()
	u.wg.Wait()
}

func (u *AsyncUploader) worker() {
	defer u.wg.Done()
	for job := range u.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := u.s3.Save(ctx, job.key, job.data, job.contentType); err != nil {
			u.log.Error().Err(err).Str("key", job.key).Msg("async S3 upload failed (artifact safe on disk)")
		}
		cancel()
	}
}
