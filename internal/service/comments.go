package service

import (
	"context"
	stderrors "errors"
	"encoding/json"
	"fmt"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/model"
	"github.com/rowanad/commentable/internal/store"
)

// loadComment reads and decodes one comment record with its store version
func loadComment(ctx context.Context, kv store.KV, threadID, commentID string) (*model.Comment, int64, error) {
	key := model.CommentKey(threadID, commentID)
	rec, err := kv.Get(ctx, key)
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil, 0, errors.NotFound("comment", commentID)
	}
	if err != nil {
		return nil, 0, err
	}

	var comment model.Comment
	if err := json.Unmarshal(rec.Value, &comment); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal comment %s: %w", key, err)
	}
	return &comment, rec.Version, nil
}
