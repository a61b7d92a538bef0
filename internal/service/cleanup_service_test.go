package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/model"
)

func seedRateLimit(t *testing.T, e *engine, identity, windowID string, expiresAt time.Time) string {
	t.Helper()
	rec := model.RateLimitRecord{
		IdentityHash: identity,
		WindowID:     windowID,
		Count:        3,
		WindowStart:  expiresAt.Add(-2 * time.Minute),
		ExpiresAt:    expiresAt,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	key := model.RateLimitKey(identity, windowID)
	require.NoError(t, e.kv.Put(context.Background(), key, data))
	return key
}

func seedIdempotency(t *testing.T, e *engine, key string, expiresAt time.Time) string {
	t.Helper()
	rec := model.IdempotencyRecord{
		Key:             key,
		ResultCommentID: "c-1",
		ThreadID:        "blog/post-1",
		CreatedAt:       expiresAt.Add(-24 * time.Hour),
		ExpiresAt:       expiresAt,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	storeKey := model.IdempotencyKey(key)
	require.NoError(t, e.kv.Put(context.Background(), storeKey, data))
	return storeKey
}

func TestPruneExpired_RemovesOnlyExpiredRecords(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	expiredRL := seedRateLimit(t, e, "fp-1", "20250601T100000Z", now.Add(-time.Hour))
	liveRL := seedRateLimit(t, e, "fp-2", "20250601T120000Z", now.Add(time.Hour))
	expiredID := seedIdempotency(t, e, "old-key", now.Add(-time.Minute))
	liveID := seedIdempotency(t, e, "fresh-key", now.Add(time.Hour))

	pruned, err := e.cleanup.PruneExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	_, err = e.kv.Get(ctx, expiredRL)
	assert.Error(t, err)
	_, err = e.kv.Get(ctx, expiredID)
	assert.Error(t, err)

	_, err = e.kv.Get(ctx, liveRL)
	assert.NoError(t, err)
	_, err = e.kv.Get(ctx, liveID)
	assert.NoError(t, err)
}

func TestPruneExpired_KeepsUnparseableRecords(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	key := model.RateLimitPrefix + "garbage"
	require.NoError(t, e.kv.Put(ctx, key, []byte("not json")))

	pruned, err := e.cleanup.PruneExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)

	_, err = e.kv.Get(ctx, key)
	assert.NoError(t, err, "records that fail to parse are never deleted")
}

func TestPruneExpired_NeverTouchesComments(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	comment := e.submit(t, "blog/post-1", "192.0.2.10", "key-1", cleanBody)
	seedRateLimit(t, e, "fp-1", "20240101T000000Z", time.Now().Add(-time.Hour))

	_, err := e.cleanup.PruneExpired(ctx, time.Now().UTC())
	require.NoError(t, err)

	got, _, err := e.threading.GetComment(ctx, "blog/post-1", comment.ID)
	require.NoError(t, err)
	assert.Equal(t, comment.ID, got.ID)
}

func TestPruneExpired_WalksPastOneBatch(t *testing.T) {
	e := newEngineWith(t, engineOptions{pageSize: 100})
	ctx := context.Background()
	now := time.Now().UTC()

	// Cleanup batch size follows the engine page size; force paging with a
	// small dedicated service
	small := NewCleanupService(e.kv, 3, zap.NewNop())
	for i := 0; i < 10; i++ {
		seedIdempotency(t, e, fmt.Sprintf("key-%02d", i), now.Add(-time.Minute))
	}

	pruned, err := small.PruneExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 10, pruned)
}
