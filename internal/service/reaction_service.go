package service

import (
	"context"
	stderrors "errors"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/model"
	"github.com/rowanad/commentable/internal/store"
)

// ReactionService manages per-comment reactions. Uniqueness per
// (comment, author, type) is enforced by the create-only claim on the
// reaction key, so Add is naturally idempotent across retried invocations.
type ReactionService struct {
	kv     store.KV
	salt   string
	logger *zap.Logger
}

// NewReactionService creates a new reaction service
func NewReactionService(kv store.KV, fingerprintSalt string, logger *zap.Logger) *ReactionService {
	return &ReactionService{
		kv:     kv,
		salt:   fingerprintSalt,
		logger: logger,
	}
}

// Add records a reaction. Adding the same reaction twice is a no-op success.
func (s *ReactionService) Add(ctx context.Context, threadID, commentID, authorIdentity string, typ model.ReactionType) error {
	if typ == "" {
		return errors.Validation("reaction type is required")
	}
	if authorIdentity == "" {
		return errors.Validation("author identity is required")
	}

	comment, _, err := loadComment(ctx, s.kv, threadID, commentID)
	if err != nil {
		return err
	}
	if !comment.Visible() {
		return errors.Validationf("comment %s is not open for reactions", commentID)
	}

	fingerprint := model.Fingerprint(s.salt, authorIdentity)
	reaction := model.Reaction{
		ThreadID:          threadID,
		CommentID:         commentID,
		AuthorFingerprint: fingerprint,
		Type:              typ,
		CreatedAt:         time.Now().UTC(),
	}
	data, err := json.Marshal(reaction)
	if err != nil {
		return fmt.Errorf("failed to marshal reaction: %w", err)
	}

	key := model.ReactionKey(threadID, commentID, fingerprint, typ)
	casErr := s.kv.CompareAndPut(ctx, key, 0, data)
	if stderrors.Is(casErr, errors.ErrVersionConflict) {
		return nil // already reacted
	}
	return casErr
}

// Remove withdraws a reaction. Removing an absent reaction is a no-op.
func (s *ReactionService) Remove(ctx context.Context, threadID, commentID, authorIdentity string, typ model.ReactionType) error {
	if typ == "" {
		return errors.Validation("reaction type is required")
	}
	fingerprint := model.Fingerprint(s.salt, authorIdentity)
	return s.kv.Delete(ctx, model.ReactionKey(threadID, commentID, fingerprint, typ))
}
