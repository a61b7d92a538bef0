package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/model"
)

func TestList_NestsRepliesUnderParents(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	a := e.submit(t, "blog/post-1", "192.0.2.10", "key-a", cleanBody)
	b := e.reply(t, "blog/post-1", a.ID, "192.0.2.11", "key-b", cleanBody)

	page, err := e.threading.List(ctx, "blog/post-1", "", 0)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, a.ID, page.Comments[0].ID)
	require.Len(t, page.Comments[0].Replies, 1)
	assert.Equal(t, b.ID, page.Comments[0].Replies[0].ID)
	assert.Empty(t, page.NextCursor)
}

func TestList_HidesPendingAndRejected(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	approved := e.submit(t, "blog/post-1", "192.0.2.10", "key-a", cleanBody)
	pending := e.submit(t, "blog/post-1", "192.0.2.11", "key-b", spammyBody)

	rejected := e.submit(t, "blog/post-1", "192.0.2.12", "key-c", spammyBody)
	_, err := e.moderation.Transition(ctx, "blog/post-1", rejected.ID, model.StatusRejected, "mod")
	require.NoError(t, err)

	page, err := e.threading.List(ctx, "blog/post-1", "", 0)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, approved.ID, page.Comments[0].ID)
	_ = pending
}

func TestList_DeletedParentBecomesPlaceholder(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	parent := e.submit(t, "blog/post-1", "192.0.2.10", "key-a", cleanBody)
	reply := e.reply(t, "blog/post-1", parent.ID, "192.0.2.11", "key-b", cleanBody)

	_, err := e.moderation.Transition(ctx, "blog/post-1", parent.ID, model.StatusDeleted, "mod")
	require.NoError(t, err)

	page, err := e.threading.List(ctx, "blog/post-1", "", 0)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)

	placeholder := page.Comments[0]
	assert.Equal(t, parent.ID, placeholder.ID)
	assert.Empty(t, placeholder.Body, "deleted comment body must not leak")
	assert.Empty(t, placeholder.AuthorName)
	require.Len(t, placeholder.Replies, 1)
	assert.Equal(t, reply.ID, placeholder.Replies[0].ID)
}

func TestList_DeletedLeafDisappears(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	keep := e.submit(t, "blog/post-1", "192.0.2.10", "key-a", cleanBody)
	gone := e.submit(t, "blog/post-1", "192.0.2.11", "key-b", cleanBody)

	_, err := e.moderation.Transition(ctx, "blog/post-1", gone.ID, model.StatusDeleted, "mod")
	require.NoError(t, err)

	page, err := e.threading.List(ctx, "blog/post-1", "", 0)
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, keep.ID, page.Comments[0].ID)
}

func TestList_CreationOrder(t *testing.T) {
	e := newEngine(t)

	var want []string
	for i := 0; i < 4; i++ {
		c := e.submit(t, "blog/post-1", fmt.Sprintf("192.0.2.%d", i), fmt.Sprintf("key-%d", i), cleanBody)
		want = append(want, c.ID)
		time.Sleep(2 * time.Millisecond) // distinct creation timestamps
	}

	page, err := e.threading.List(context.Background(), "blog/post-1", "", 0)
	require.NoError(t, err)
	require.Len(t, page.Comments, 4)
	for i, node := range page.Comments {
		assert.Equal(t, want[i], node.ID, "comments must list in creation order")
	}
}

func TestList_PaginationWalksTheThread(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	var want []string
	for i := 0; i < 5; i++ {
		c := e.submit(t, "blog/post-1", fmt.Sprintf("192.0.2.%d", i), fmt.Sprintf("key-%d", i), cleanBody)
		want = append(want, c.ID)
		time.Sleep(2 * time.Millisecond) // distinct creation timestamps
	}

	var got []string
	cursor := ""
	pages := 0
	for {
		page, err := e.threading.List(ctx, "blog/post-1", cursor, 2)
		require.NoError(t, err)
		pages++
		for _, node := range page.Comments {
			got = append(got, node.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, want, got, "pagination must visit every comment exactly once")
	assert.Equal(t, 3, pages)
}

func TestList_OrphanedReplyPromotedToTopLevel(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	parent := e.submit(t, "blog/post-1", "192.0.2.10", "key-a", cleanBody)
	reply := e.reply(t, "blog/post-1", parent.ID, "192.0.2.11", "key-b", cleanBody)

	// Page size one: the reply's parent falls on the previous page
	first, err := e.threading.List(ctx, "blog/post-1", "", 1)
	require.NoError(t, err)
	require.Len(t, first.Comments, 1)
	assert.Equal(t, parent.ID, first.Comments[0].ID)
	require.NotEmpty(t, first.NextCursor)

	second, err := e.threading.List(ctx, "blog/post-1", first.NextCursor, 1)
	require.NoError(t, err)
	require.Len(t, second.Comments, 1)
	assert.Equal(t, reply.ID, second.Comments[0].ID, "reply without its parent on the page lists at top level")
}

func TestList_MalformedCursor(t *testing.T) {
	e := newEngine(t)

	_, err := e.threading.List(context.Background(), "blog/post-1", "not base64 !!!", 0)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestRecountApproved(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.submit(t, "blog/post-1", "192.0.2.10", "key-a", cleanBody)
	e.submit(t, "blog/post-1", "192.0.2.11", "key-b", cleanBody)
	e.submit(t, "blog/post-1", "192.0.2.12", "key-c", spammyBody) // pending

	count, err := e.threading.RecountApproved(ctx, "blog/post-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	thread, _, err := e.threads.Get(ctx, "blog/post-1")
	require.NoError(t, err)
	assert.Equal(t, 2, thread.CommentCount)
}

func TestGetComment(t *testing.T) {
	e := newEngine(t)

	comment := e.submit(t, "blog/post-1", "192.0.2.10", "key-a", cleanBody)

	got, version, err := e.threading.GetComment(context.Background(), "blog/post-1", comment.ID)
	require.NoError(t, err)
	assert.Equal(t, comment.ID, got.ID)
	assert.Equal(t, int64(1), version)

	_, _, err = e.threading.GetComment(context.Background(), "blog/post-1", "missing")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}
