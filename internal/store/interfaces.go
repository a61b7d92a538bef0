// Package store defines the backend capability contract the engine is
// written against, plus one adapter per supported backend. The engine never
// touches backend-specific types; all cross-invocation coordination goes
// through CompareAndPut.
package store

import (
	"context"
)

// Record is a stored value with its backend-managed version. Version 0 is
// never a live version; CompareAndPut with expectedVersion 0 means
// "create only, fail if the key exists".
type Record struct {
	Value   []byte
	Version int64
}

// Entry is one (key, record) pair from a prefix scan
type Entry struct {
	Key    string
	Record Record
}

// Capabilities describes what a backend natively supports
type Capabilities struct {
	// ConditionalWrite is required by every mutation path in the engine.
	// A backend that cannot provide or emulate it is rejected at startup.
	ConditionalWrite bool
}

// KV is the capability interface every backend adapter implements.
//
// Failure contract: Get returns errors.ErrNotFound for missing keys,
// CompareAndPut returns errors.ErrVersionConflict when the expected version
// does not match (including create-only against an existing key), and any
// transient backend fault surfaces as errors.ErrUnavailable so callers can
// retry with bounded backoff.
type KV interface {
	// Get performs a point read
	Get(ctx context.Context, key string) (*Record, error)

	// Put writes unconditionally, last-writer-wins. Used only for records
	// that are never mutated in place.
	Put(ctx context.Context, key string, value []byte) error

	// CompareAndPut writes only if the key's current version equals
	// expectedVersion (0 = key must not exist)
	CompareAndPut(ctx context.Context, key string, expectedVersion int64, value []byte) error

	// ScanPrefix returns up to limit entries with the given key prefix in
	// backend-native key order, strictly after afterKey ("" = from the
	// start). limit <= 0 means no page bound.
	ScanPrefix(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error)

	// Delete removes a key. Used only for TTL-style cleanup of rate-limit
	// and idempotency records, never for comments.
	Delete(ctx context.Context, key string) error

	// Capabilities reports what the backend supports
	Capabilities() Capabilities

	// Ping checks backend reachability
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}
