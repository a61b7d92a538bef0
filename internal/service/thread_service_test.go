package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/model"
)

func TestEnsure_CreatesWithDefaultPolicy(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	thread, err := e.threads.Ensure(ctx, "blog/post-1")
	require.NoError(t, err)
	assert.Equal(t, "blog/post-1", thread.ThreadID)
	assert.Equal(t, 0.3, thread.Policy.AutoApproveThreshold)
	assert.False(t, thread.Policy.Locked)
	assert.Equal(t, 0, thread.CommentCount)
}

func TestEnsure_IsIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	first, err := e.threads.Ensure(ctx, "blog/post-1")
	require.NoError(t, err)

	second, err := e.threads.Ensure(ctx, "blog/post-1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestGet_MissingThread(t *testing.T) {
	e := newEngine(t)

	_, _, err := e.threads.Get(context.Background(), "nope")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestSetPolicy_LocksThread(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.threads.Ensure(ctx, "blog/post-1")
	require.NoError(t, err)

	updated, err := e.threads.SetPolicy(ctx, "blog/post-1", model.Policy{
		AutoApproveThreshold: 0.1,
		Locked:               true,
	})
	require.NoError(t, err)
	assert.True(t, updated.Policy.Locked)

	got, _, err := e.threads.Get(ctx, "blog/post-1")
	require.NoError(t, err)
	assert.True(t, got.Policy.Locked)
	assert.Equal(t, 0.1, got.Policy.AutoApproveThreshold)
}

func TestSetPolicy_MissingThread(t *testing.T) {
	e := newEngine(t)

	_, err := e.threads.SetPolicy(context.Background(), "nope", model.Policy{})
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestSetCommentCount(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.threads.Ensure(ctx, "blog/post-1")
	require.NoError(t, err)

	require.NoError(t, e.threads.SetCommentCount(ctx, "blog/post-1", 7))

	got, _, err := e.threads.Get(ctx, "blog/post-1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.CommentCount)

	// Writing the same count is a no-op
	require.NoError(t, e.threads.SetCommentCount(ctx, "blog/post-1", 7))
}
