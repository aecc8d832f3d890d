package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/rs/zerolog"
)

// TieredStore combines local disk (source of truth) with S3 (backup/durability).
// Write path: save locally first (never block on S3), then queue the S3 push.
// Read path: local first, S3 fallback with cache-on-read.
type TieredStore struct {
	s3       *S3Store
	local    *LocalStore
	uploader *AsyncUploader
	log      zerolog.Logger
}

// NewTieredStore creates a tiered local-primary + S3-backup store. uploader
// may be nil, in which case S3 writes happen inline.
func NewTieredStore(s3 *S3Store, local *LocalStore, uploader *AsyncUploader, log zerolog.Logger) *TieredStore {
	return &TieredStore{
		s3:       s3,
		local:    local,
		uploader: uploader,
		log:      log.With().Str("component", "tiered-store").Logger(),
	}
}

// Save writes to local disk first (fatal on failure), then S3 (warning on failure).
// S3 failures are non-fatal; the upload reconciler will catch them.
func (s *TieredStore) Save(ctx context.Context, key string, data []byte, ct string) error {
	if err := s.local.Save(ctx, key, data, ct); err != nil {
		return err
	}
	if s.uploader != nil {
		s.uploader.Enqueue(key, data, ct)
		return nil
	}
	if err := s.s3.Save(ctx, key, data, ct); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("S3 backup write failed, reconciler will retry")
	}
	return nil
}

// Open checks local disk first, then falls back to S3. On S3 hit, the object
// is cached locally for future reads.
func (s *TieredStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if r, err := s.local.Open(ctx, key); err == nil {
		return r, nil
	}
	r, err := s.s3.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	if cacheErr := s.local.Save(ctx, key, data, ""); cacheErr != nil {
		s.log.Warn().Err(cacheErr).Str("key", key).Msg("failed to cache S3 object locally")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// List reports the local view; the reconciler keeps S3 a superset of it.
func (s *TieredStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.local.List(ctx, prefix)
}

func (s *TieredStore) Type() string { return "tiered" }
