package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/errors"
)

// NatsKVStore implements KV on a JetStream key-value bucket. JetStream
// revisions are native compare-and-put: Create claims absent keys and
// Update(lastRevision) guards mutations.
//
// JetStream keys cannot contain ':' or '#', so engine keys are transposed
// (':' -> '.', '#' -> '='). Deployments using this backend must keep '.' out
// of thread IDs or the transposition stops being reversible.
type NatsKVStore struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	logger *zap.Logger
}

// NewNatsKVStore connects to NATS and binds (creating if needed) the bucket
func NewNatsKVStore(ctx context.Context, url, bucket string, logger *zap.Logger) (*NatsKVStore, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to bind bucket %s: %w", bucket, err)
	}

	return &NatsKVStore{conn: conn, kv: kv, logger: logger}, nil
}

func encodeNatsKey(key string) string {
	return strings.NewReplacer(":", ".", "#", "=").Replace(key)
}

func decodeNatsKey(key string) string {
	return strings.NewReplacer(".", ":", "=", "#").Replace(key)
}

// Get retrieves a record by key
func (s *NatsKVStore) Get(ctx context.Context, key string) (*Record, error) {
	entry, err := s.kv.Get(ctx, encodeNatsKey(key))
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Unavailable("nats kv get", err)
	}
	return &Record{Value: entry.Value(), Version: int64(entry.Revision())}, nil
}

// Put writes unconditionally
func (s *NatsKVStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, encodeNatsKey(key), value); err != nil {
		return errors.Unavailable("nats kv put", err)
	}
	return nil
}

// CompareAndPut writes only if the stored revision matches expectedVersion
func (s *NatsKVStore) CompareAndPut(ctx context.Context, key string, expectedVersion int64, value []byte) error {
	encoded := encodeNatsKey(key)

	if expectedVersion == 0 {
		_, err := s.kv.Create(ctx, encoded, value)
		if stderrors.Is(err, jetstream.ErrKeyExists) {
			return errors.VersionConflict(key, err)
		}
		if err != nil {
			return errors.Unavailable("nats kv create", err)
		}
		return nil
	}

	_, err := s.kv.Update(ctx, encoded, value, uint64(expectedVersion))
	if err != nil {
		var apiErr *jetstream.APIError
		if stderrors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
			return errors.VersionConflict(key, err)
		}
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return errors.VersionConflict(key, err)
		}
		return errors.Unavailable("nats kv update", err)
	}
	return nil
}

// ScanPrefix returns matching entries in key order. JetStream lists keys
// unordered and unfiltered, so matching and ordering happen client-side.
func (s *NatsKVStore) ScanPrefix(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, errors.Unavailable("nats kv list", err)
	}

	var keys []string
	for k := range lister.Keys() {
		decoded := decodeNatsKey(k)
		if strings.HasPrefix(decoded, prefix) && decoded > afterKey {
			keys = append(keys, decoded)
		}
	}

	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		rec, err := s.Get(ctx, k)
		if stderrors.Is(err, errors.ErrNotFound) {
			continue // deleted between list and get
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: k, Record: *rec})
	}
	return entries, nil
}

// Delete removes a key
func (s *NatsKVStore) Delete(ctx context.Context, key string) error {
	if err := s.kv.Purge(ctx, encodeNatsKey(key)); err != nil {
		return errors.Unavailable("nats kv delete", err)
	}
	return nil
}

// Capabilities reports conditional-write support
func (s *NatsKVStore) Capabilities() Capabilities {
	return Capabilities{ConditionalWrite: true}
}

// Ping checks the NATS connection
func (s *NatsKVStore) Ping(ctx context.Context) error {
	if !s.conn.IsConnected() {
		return fmt.Errorf("nats connection is not established")
	}
	return nil
}

// Close drains the NATS connection
func (s *NatsKVStore) Close() error {
	s.conn.Close()
	return nil
}
