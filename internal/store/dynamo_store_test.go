package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rowanad/commentable/internal/model"
)

var _ KV = (*DynamoStore)(nil)

func TestSplitKey(t *testing.T) {
	cases := []struct {
		key string
		pk  string
		sk  string
	}{
		{"thread:blog/post-1", "thread:", "blog/post-1"},
		{"thread:blog/post-1:comment:0001-abcd", "thread:blog/post-1:comment:", "0001-abcd"},
		{"idempotency:key-1", "idempotency:", "key-1"},
		{"ratelimit:fp-1:20250601T120000Z", "ratelimit:fp-1:", "20250601T120000Z"},
		{"nocolon", "nocolon", "-"},
	}

	for _, tc := range cases {
		pk, sk := splitKey(tc.key)
		assert.Equal(t, tc.pk, pk, tc.key)
		assert.Equal(t, tc.sk, sk, tc.key)
	}
}

func TestIsPartitionPrefix(t *testing.T) {
	// Prefixes that are full partition keys take the ordered Query path
	assert.True(t, isPartitionPrefix("thread:"))
	assert.True(t, isPartitionPrefix(model.CommentPrefix("blog/post-1")))
	assert.True(t, isPartitionPrefix(model.ReactionPrefix("blog/post-1")))
	assert.True(t, isPartitionPrefix(model.IdempotencyPrefix))
	assert.True(t, isPartitionPrefix("ratelimit:fp-1:"))

	// The bare rate-limit prefix spans partitions; a Query against it would
	// match nothing, so it must fall back to a table scan
	assert.False(t, isPartitionPrefix(model.RateLimitPrefix))
	assert.False(t, isPartitionPrefix("thread:blog/post-1:comment:0001"))
}

// TestRateLimitKeysRouteToScan pins the relationship that broke cleanup on
// DynamoDB: stored rate-limit partition keys are never equal to the cleanup
// scan prefix, so that prefix cannot be served by a partition Query.
func TestRateLimitKeysRouteToScan(t *testing.T) {
	pk, _ := splitKey(model.RateLimitKey("fp-1", "20250601T120000Z"))
	assert.NotEqual(t, model.RateLimitPrefix, pk)
	assert.False(t, isPartitionPrefix(model.RateLimitPrefix))

	// But a single identity's window records do share a queryable partition
	assert.True(t, isPartitionPrefix(pk))
}
