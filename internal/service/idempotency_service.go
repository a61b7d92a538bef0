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

// IdempotencyService deduplicates retried submissions. The claim on the
// idempotency key is the linearization point: a comment only becomes part of
// its thread after its key claim succeeded, so at-least-once invocation
// collapses to exactly-once visible effect.
type IdempotencyService struct {
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotencyService creates a new idempotency service
func NewIdempotencyService(kv store.KV, ttl time.Duration, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

// RegisterOrFetch resolves an idempotency key to a comment ID. On a fresh key
// it invokes producer, claims the key with a create-only compare-and-put and
// returns (commentID, true). On a known key, or after losing the claim race
// to a concurrent invocation, it returns the recorded winner's comment ID and
// false without a second visible effect.
func (s *IdempotencyService) RegisterOrFetch(
	ctx context.Context,
	idempotencyKey string,
	producer func(context.Context) (*model.Comment, error),
) (string, bool, error) {
	storeKey := model.IdempotencyKey(idempotencyKey)
	now := time.Now().UTC()

	expectedVersion := int64(0)
	if record, version, err := s.get(ctx, storeKey); err == nil {
		if !record.Expired(now) {
			s.logger.Debug("Idempotency key already claimed",
				zap.String("idempotency_key", idempotencyKey),
				zap.String("comment_id", record.ResultCommentID))
			return record.ResultCommentID, false, nil
		}
		// Retention elapsed: the key may be reclaimed, guarded by the old
		// record's version
		expectedVersion = version
	} else if !stderrors.Is(err, errors.ErrNotFound) {
		return "", false, err
	}

	comment, err := producer(ctx)
	if err != nil {
		return "", false, err
	}

	claim := model.IdempotencyRecord{
		Key:             idempotencyKey,
		ResultCommentID: comment.ID,
		ThreadID:        comment.ThreadID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}
	data, err := json.Marshal(claim)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	casErr := s.kv.CompareAndPut(ctx, storeKey, expectedVersion, data)
	if stderrors.Is(casErr, errors.ErrVersionConflict) {
		// A concurrent invocation claimed the key first; adopt its result
		// and discard ours
		record, _, err := s.get(ctx, storeKey)
		if err != nil {
			return "", false, err
		}
		s.logger.Debug("Lost idempotency claim race",
			zap.String("idempotency_key", idempotencyKey),
			zap.String("winner_comment_id", record.ResultCommentID))
		return record.ResultCommentID, false, nil
	}
	if casErr != nil {
		return "", false, casErr
	}

	return comment.ID, true, nil
}

// get reads and decodes an idempotency record with its store version
func (s *IdempotencyService) get(ctx context.Context, storeKey string) (*model.IdempotencyRecord, int64, error) {
	rec, err := s.kv.Get(ctx, storeKey)
	if err != nil {
		return nil, 0, err
	}
	var record model.IdempotencyRecord
	if err := json.Unmarshal(rec.Value, &record); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal idempotency record %s: %w", storeKey, err)
	}
	return &record, rec.Version, nil
}
