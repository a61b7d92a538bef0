package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/util"
)

// RetryingKV decorates a KV with bounded-backoff retries on transient backend
// faults. Version conflicts are never retried here; they carry meaning the
// services must see.
type RetryingKV struct {
	inner     KV
	attempts  int
	baseDelay time.Duration
}

// NewRetryingKV wraps kv with the given retry budget
func NewRetryingKV(inner KV, attempts int, baseDelay time.Duration) *RetryingKV {
	if attempts <= 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 50 * time.Millisecond
	}
	return &RetryingKV{inner: inner, attempts: attempts, baseDelay: baseDelay}
}

func transient(err error) bool {
	return stderrors.Is(err, errors.ErrUnavailable)
}

func (s *RetryingKV) retry(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, s.attempts, s.baseDelay, transient, fn)
}

// Get retries point reads on transient faults
func (s *RetryingKV) Get(ctx context.Context, key string) (*Record, error) {
	var rec *Record
	err := s.retry(ctx, func() error {
		var err error
		rec, err = s.inner.Get(ctx, key)
		return err
	})
	return rec, err
}

// Put retries unconditional writes on transient faults
func (s *RetryingKV) Put(ctx context.Context, key string, value []byte) error {
	return s.retry(ctx, func() error {
		return s.inner.Put(ctx, key, value)
	})
}

// CompareAndPut retries transient faults only; a retried CAS that already
// landed surfaces as a version conflict, which is exactly what the caller's
// conflict handling expects.
func (s *RetryingKV) CompareAndPut(ctx context.Context, key string, expectedVersion int64, value []byte) error {
	return s.retry(ctx, func() error {
		return s.inner.CompareAndPut(ctx, key, expectedVersion, value)
	})
}

// ScanPrefix retries scans on transient faults
func (s *RetryingKV) ScanPrefix(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.retry(ctx, func() error {
		var err error
		entries, err = s.inner.ScanPrefix(ctx, prefix, afterKey, limit)
		return err
	})
	return entries, err
}

// Delete retries deletes on transient faults
func (s *RetryingKV) Delete(ctx context.Context, key string) error {
	return s.retry(ctx, func() error {
		return s.inner.Delete(ctx, key)
	})
}

// Capabilities reports the wrapped backend's capabilities
func (s *RetryingKV) Capabilities() Capabilities {
	return s.inner.Capabilities()
}

// Ping checks the wrapped backend
func (s *RetryingKV) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the wrapped backend
func (s *RetryingKV) Close() error {
	return s.inner.Close()
}
