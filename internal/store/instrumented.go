package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/metrics"
)

// InstrumentedKV decorates a KV with Prometheus operation metrics
type InstrumentedKV struct {
	inner KV
	m     *metrics.Metrics
}

// NewInstrumentedKV wraps kv with metrics recording
func NewInstrumentedKV(inner KV, m *metrics.Metrics) *InstrumentedKV {
	return &InstrumentedKV{inner: inner, m: m}
}

func (s *InstrumentedKV) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case stderrors.Is(err, errors.ErrVersionConflict):
		status = "conflict"
		s.m.VersionConflicts.Inc()
	case stderrors.Is(err, errors.ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	s.m.RecordStoreOp(op, status, time.Since(start).Seconds())
}

// Get records metrics around a point read
func (s *InstrumentedKV) Get(ctx context.Context, key string) (*Record, error) {
	start := time.Now()
	rec, err := s.inner.Get(ctx, key)
	s.observe("get", start, err)
	return rec, err
}

// Put records metrics around an unconditional write
func (s *InstrumentedKV) Put(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.inner.Put(ctx, key, value)
	s.observe("put", start, err)
	return err
}

// CompareAndPut records metrics around a conditional write
func (s *InstrumentedKV) CompareAndPut(ctx context.Context, key string, expectedVersion int64, value []byte) error {
	start := time.Now()
	err := s.inner.CompareAndPut(ctx, key, expectedVersion, value)
	s.observe("compare_and_put", start, err)
	return err
}

// ScanPrefix records metrics around a prefix scan
func (s *InstrumentedKV) ScanPrefix(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error) {
	start := time.Now()
	entries, err := s.inner.ScanPrefix(ctx, prefix, afterKey, limit)
	s.observe("scan_prefix", start, err)
	return entries, err
}

// Delete records metrics around a delete
func (s *InstrumentedKV) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

// Capabilities reports the wrapped backend's capabilities
func (s *InstrumentedKV) Capabilities() Capabilities {
	return s.inner.Capabilities()
}

// Ping checks the wrapped backend
func (s *InstrumentedKV) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the wrapped backend
func (s *InstrumentedKV) Close() error {
	return s.inner.Close()
}
