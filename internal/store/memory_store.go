package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rowanad/commentable/internal/errors"
)

// MemoryStore implements KV over an in-process map. It backs single-process
// deployments and the service test suites; it is not usable across serverless
// invocations and exists on the engine side of the adapter boundary only.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

// NewMemoryStore creates an empty in-memory adapter
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
	}
}

// Get retrieves a record by key
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[key]
	if !ok {
		return nil, errors.ErrNotFound
	}

	cp := Record{Value: append([]byte(nil), rec.Value...), Version: rec.Version}
	return &cp, nil
}

// Put writes unconditionally, bumping the version
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.data[key]
	s.data[key] = Record{
		Value:   append([]byte(nil), value...),
		Version: rec.Version + 1,
	}
	return nil
}

// CompareAndPut writes only if the stored version matches expectedVersion
func (s *MemoryStore) CompareAndPut(ctx context.Context, key string, expectedVersion int64, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.data[key]
	if expectedVersion == 0 {
		if exists {
			return errors.VersionConflict(key, nil)
		}
	} else if !exists || rec.Version != expectedVersion {
		return errors.VersionConflict(key, nil)
	}

	s.data[key] = Record{
		Value:   append([]byte(nil), value...),
		Version: expectedVersion + 1,
	}
	return nil
}

// ScanPrefix returns matching entries in key order. One lock covers both the
// key collection and the record copies, so a concurrent Delete can never leave
// a zero-value record in the page.
func (s *MemoryStore) ScanPrefix(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for k := range s.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix && k > afterKey {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		rec := s.data[k]
		entries = append(entries, Entry{
			Key:    k,
			Record: Record{Value: append([]byte(nil), rec.Value...), Version: rec.Version},
		})
	}
	return entries, nil
}

// Delete removes a key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Capabilities reports conditional-write support
func (s *MemoryStore) Capabilities() Capabilities {
	return Capabilities{ConditionalWrite: true}
}

// Ping always succeeds for the in-memory adapter
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory adapter
func (s *MemoryStore) Close() error {
	return nil
}
