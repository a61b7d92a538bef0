package store

import (
	"context"
	stderrors "errors"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/errors"
)

// redisEnvelope wraps a value with its optimistic-lock version, since Redis
// has no native record versioning
type redisEnvelope struct {
	Version int64  `json:"version"`
	Value   []byte `json:"value"`
}

// RedisStore implements KV on Redis (Cloudflare-KV-class deployments that
// front Redis, or self-hosted mode). Conditional writes are emulated with
// WATCH/MULTI optimistic transactions over a version envelope.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore creates a new Redis adapter and verifies connectivity
func NewRedisStore(host string, port int, password string, db int, logger *zap.Logger) (*RedisStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: logger,
	}, nil
}

// NewRedisStoreWithClient creates an adapter from an existing client, used by
// the test suite with miniredis
func NewRedisStoreWithClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

// Get retrieves a record by key
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Unavailable("redis get", err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope for %s: %w", key, err)
	}
	return &Record{Value: env.Value, Version: env.Version}, nil
}

// Put writes unconditionally, bumping whatever version is present
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	for attempt := 0; ; attempt++ {
		err := s.putOnce(ctx, key, value)
		if stderrors.Is(err, redis.TxFailedErr) && attempt < 5 {
			// Lost a race with a concurrent writer; retry until the
			// last-writer-wins write lands
			continue
		}
		if err != nil {
			return errors.Unavailable("redis put", err)
		}
		return nil
	}
}

func (s *RedisStore) putOnce(ctx context.Context, key string, value []byte) error {
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		version := int64(0)
		if data, err := tx.Get(ctx, key).Bytes(); err == nil {
			var env redisEnvelope
			if err := json.Unmarshal(data, &env); err == nil {
				version = env.Version
			}
		} else if !stderrors.Is(err, redis.Nil) {
			return err
		}

		data, err := json.Marshal(redisEnvelope{Version: version + 1, Value: value})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

// CompareAndPut writes only if the stored version matches expectedVersion
func (s *RedisStore) CompareAndPut(ctx context.Context, key string, expectedVersion int64, value []byte) error {
	conflict := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case stderrors.Is(err, redis.Nil):
			if expectedVersion != 0 {
				conflict = true
				return nil
			}
		case err != nil:
			return err
		default:
			if expectedVersion == 0 {
				conflict = true
				return nil
			}
			var env redisEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				return fmt.Errorf("failed to unmarshal envelope for %s: %w", key, err)
			}
			if env.Version != expectedVersion {
				conflict = true
				return nil
			}
		}

		next, err := json.Marshal(redisEnvelope{Version: expectedVersion + 1, Value: value})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)
	if stderrors.Is(err, redis.TxFailedErr) {
		// Key changed between WATCH and EXEC, which is a version conflict
		// by definition
		return errors.VersionConflict(key, err)
	}
	if err != nil {
		return errors.Unavailable("redis compare-and-put", err)
	}
	if conflict {
		return errors.VersionConflict(key, nil)
	}
	return nil
}

// ScanPrefix returns matching entries in key order. Redis has no ordered
// keyspace, so keys are collected with SCAN and sorted before the page is
// cut; acceptable for thread-sized prefixes.
func (s *RedisStore) ScanPrefix(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, escapeMatch(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		if k := iter.Val(); k > afterKey {
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Unavailable("redis scan", err)
	}

	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		rec, err := s.Get(ctx, k)
		if stderrors.Is(err, errors.ErrNotFound) {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: k, Record: *rec})
	}
	return entries, nil
}

// Delete removes a key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Unavailable("redis delete", err)
	}
	return nil
}

// Capabilities reports conditional-write support
func (s *RedisStore) Capabilities() Capabilities {
	return Capabilities{ConditionalWrite: true}
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// escapeMatch escapes SCAN MATCH glob metacharacters in a literal prefix
func escapeMatch(prefix string) string {
	out := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, prefix[i])
	}
	return string(out)
}
