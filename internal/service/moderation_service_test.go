package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/model"
)

func TestTransition_ApprovePending(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	pending := e.submit(t, "blog/post-1", "192.0.2.10", "key-1", spammyBody)
	require.Equal(t, model.StatusPending, pending.Status)

	approved, err := e.moderation.Transition(ctx, "blog/post-1", pending.ID, model.StatusApproved, "moderator-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)

	thread, _, err := e.threads.Get(ctx, "blog/post-1")
	require.NoError(t, err)
	assert.Equal(t, 1, thread.CommentCount)

	kinds := e.dispatcher.kinds()
	assert.Contains(t, kinds, model.EventCommentApproved)
}

func TestTransition_DeleteDecrementsCount(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	comment := e.submit(t, "blog/post-1", "192.0.2.10", "key-1", cleanBody)
	require.Equal(t, model.StatusApproved, comment.Status)

	_, err := e.moderation.Transition(ctx, "blog/post-1", comment.ID, model.StatusDeleted, "moderator-1")
	require.NoError(t, err)

	thread, _, err := e.threads.Get(ctx, "blog/post-1")
	require.NoError(t, err)
	assert.Equal(t, 0, thread.CommentCount)
}

func TestTransition_DeletedIsTerminal(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	comment := e.submit(t, "blog/post-1", "192.0.2.10", "key-1", cleanBody)
	_, err := e.moderation.Transition(ctx, "blog/post-1", comment.ID, model.StatusDeleted, "moderator-1")
	require.NoError(t, err)

	for _, target := range []model.Status{model.StatusApproved, model.StatusRejected, model.StatusFlagged} {
		_, err := e.moderation.Transition(ctx, "blog/post-1", comment.ID, target, "moderator-1")
		assert.Equal(t, errors.KindInvalidTransition, errors.KindOf(err), "deleted -> %s", target)
	}
}

func TestTransition_IllegalPathsRejectedWithoutWrite(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	comment := e.submit(t, "blog/post-1", "192.0.2.10", "key-1", cleanBody)
	require.Equal(t, model.StatusApproved, comment.Status)

	_, err := e.moderation.Transition(ctx, "blog/post-1", comment.ID, model.StatusRejected, "moderator-1")
	assert.Equal(t, errors.KindInvalidTransition, errors.KindOf(err))

	got, _, err := e.threading.GetComment(ctx, "blog/post-1", comment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status, "a rejected transition must leave state untouched")
}

func TestTransition_TargetPendingAlwaysRejected(t *testing.T) {
	e := newEngine(t)

	comment := e.submit(t, "blog/post-1", "192.0.2.10", "key-1", cleanBody)
	_, err := e.moderation.Transition(context.Background(), "blog/post-1", comment.ID, model.StatusPending, "moderator-1")
	assert.Equal(t, errors.KindInvalidTransition, errors.KindOf(err))
}

func TestTransition_UnknownStatus(t *testing.T) {
	e := newEngine(t)

	comment := e.submit(t, "blog/post-1", "192.0.2.10", "key-1", cleanBody)
	_, err := e.moderation.Transition(context.Background(), "blog/post-1", comment.ID, model.Status("published"), "moderator-1")
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestTransition_SameStatusIsIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	pending := e.submit(t, "blog/post-1", "192.0.2.10", "key-1", spammyBody)
	_, err := e.moderation.Transition(ctx, "blog/post-1", pending.ID, model.StatusApproved, "moderator-1")
	require.NoError(t, err)

	// A retried moderation action lands on a comment already in the target
	// state and succeeds without effect
	again, err := e.moderation.Transition(ctx, "blog/post-1", pending.ID, model.StatusApproved, "moderator-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, again.Status)
}

func TestTransition_MissingComment(t *testing.T) {
	e := newEngine(t)

	_, err := e.moderation.Transition(context.Background(), "blog/post-1", "no-such-id", model.StatusApproved, "moderator-1")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestTransition_FlagKeepsCommentVisible(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	comment := e.submit(t, "blog/post-1", "192.0.2.10", "key-1", cleanBody)
	flagged, err := e.moderation.Transition(ctx, "blog/post-1", comment.ID, model.StatusFlagged, "moderator-1")
	require.NoError(t, err)
	assert.True(t, flagged.Visible())

	// Flagged comments still count as publicly visible but not approved
	thread, _, err := e.threads.Get(ctx, "blog/post-1")
	require.NoError(t, err)
	assert.Equal(t, 0, thread.CommentCount)
}
