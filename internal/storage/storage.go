package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/transcribe-etl/internal/config"
)

// Store abstracts the object stores the pipeline reads exports from and
// writes artifacts to. Keys are slash-separated and relative to the store root.
type Store interface {
	// Save stores data under key, replacing any existing object.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader for the object at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the keys directly or transitively under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// NewArtifactStore creates the store load artifacts are written to. Returns
// the store and optional background services (uploader, reconciler) that the
// caller must Start/Stop. Returns an error if S3 is configured but unreachable.
func NewArtifactStore(cfg config.S3Config, outputDir string, log zerolog.Logger) (Store, []BackgroundService, error) {
	if !cfg.Enabled() {
		return NewLocalStore(outputDir), nil, nil
	}

	s3store, err := openS3(cfg, cfg.Bucket, log)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.LocalCache {
		return s3store, nil, nil
	}

	// Tiered mode: local primary + S3 backup
	uploader := NewAsyncUploader(s3store, 256, log)
	tiered := NewTieredStore(s3store, NewLocalStore(outputDir), uploader, log)
	reconciler := NewUploadReconciler(outputDir, s3store, cfg.ReconcileWindow, log)

	return tiered, []BackgroundService{uploader, reconciler}, nil
}

// NewSourceStore creates the store exports are staged from: an S3 bucket
// when bucket is set, otherwise the local sourceDir.
func NewSourceStore(cfg config.S3Config, bucket, sourceDir string, log zerolog.Logger) (Store, error) {
	if bucket == "" {
		return NewLocalStore(sourceDir), nil
	}
	src := cfg
	src.Prefix = ""
	return openS3(src, bucket, log)
}

func openS3(cfg config.S3Config, bucket string, log zerolog.Logger) (*S3Store, error) {
	cfg.Bucket = bucket
	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")
	return s3store, nil
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}

// ContentTypeFromExt returns the MIME type for an artifact or export extension.
func ContentTypeFromExt(ext string) string {
	switch ext {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
