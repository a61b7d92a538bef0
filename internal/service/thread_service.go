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

// ThreadService owns thread records and their moderation policy. Threads are
// created lazily on first use and never deleted by the engine.
type ThreadService struct {
	kv            store.KV
	defaultPolicy model.Policy
	logger        *zap.Logger
}

// NewThreadService creates a new thread service
func NewThreadService(kv store.KV, defaultPolicy model.Policy, logger *zap.Logger) *ThreadService {
	return &ThreadService{
		kv:            kv,
		defaultPolicy: defaultPolicy,
		logger:        logger,
	}
}

// Get retrieves a thread record with its store version
func (s *ThreadService) Get(ctx context.Context, threadID string) (*model.Thread, int64, error) {
	rec, err := s.kv.Get(ctx, model.ThreadKey(threadID))
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil, 0, errors.NotFound("thread", threadID)
	}
	if err != nil {
		return nil, 0, err
	}

	var thread model.Thread
	if err := json.Unmarshal(rec.Value, &thread); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal thread %s: %w", threadID, err)
	}
	return &thread, rec.Version, nil
}

// Ensure returns the thread, creating it with the default policy if absent.
// Concurrent first submissions race on the create; the loser adopts the
// winner's record.
func (s *ThreadService) Ensure(ctx context.Context, threadID string) (*model.Thread, error) {
	thread, _, err := s.Get(ctx, threadID)
	if err == nil {
		return thread, nil
	}
	if errors.KindOf(err) != errors.KindNotFound {
		return nil, err
	}

	fresh := model.Thread{
		ThreadID:  threadID,
		Policy:    s.defaultPolicy,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal thread %s: %w", threadID, err)
	}

	casErr := s.kv.CompareAndPut(ctx, model.ThreadKey(threadID), 0, data)
	if stderrors.Is(casErr, errors.ErrVersionConflict) {
		thread, _, err := s.Get(ctx, threadID)
		return thread, err
	}
	if casErr != nil {
		return nil, casErr
	}

	s.logger.Info("Thread created", zap.String("thread_id", threadID))
	return &fresh, nil
}

// SetPolicy replaces the thread's moderation policy via compare-and-put
func (s *ThreadService) SetPolicy(ctx context.Context, threadID string, policy model.Policy) (*model.Thread, error) {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		thread, version, err := s.Get(ctx, threadID)
		if err != nil {
			return nil, err
		}

		thread.Policy = policy
		data, err := json.Marshal(thread)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal thread %s: %w", threadID, err)
		}

		casErr := s.kv.CompareAndPut(ctx, model.ThreadKey(threadID), version, data)
		if stderrors.Is(casErr, errors.ErrVersionConflict) {
			lastErr = casErr
			continue
		}
		if casErr != nil {
			return nil, casErr
		}

		s.logger.Info("Thread policy updated",
			zap.String("thread_id", threadID),
			zap.Bool("locked", policy.Locked),
			zap.Float64("auto_approve_threshold", policy.AutoApproveThreshold))
		return thread, nil
	}
	return nil, errors.VersionConflict(model.ThreadKey(threadID), lastErr)
}

// SetCommentCount writes a freshly recomputed approved-comment count. Losing
// the race to a concurrent recount is fine: both counted from a scan, and the
// next recount converges.
func (s *ThreadService) SetCommentCount(ctx context.Context, threadID string, count int) error {
	thread, version, err := s.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if thread.CommentCount == count {
		return nil
	}

	thread.CommentCount = count
	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal thread %s: %w", threadID, err)
	}

	casErr := s.kv.CompareAndPut(ctx, model.ThreadKey(threadID), version, data)
	if stderrors.Is(casErr, errors.ErrVersionConflict) {
		return nil // concurrent writer already updated the record
	}
	return casErr
}
