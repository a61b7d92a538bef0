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
	"github.com/rowanad/commentable/internal/notify"
	"github.com/rowanad/commentable/internal/store"
)

// ModerationService drives comments through the moderation lifecycle. Every
// transition is a compare-and-put on the comment's stored version, so two
// concurrent moderation actions race safely: the loser re-reads and
// re-decides against the fresh state.
type ModerationService struct {
	kv         store.KV
	threading  *ThreadingService
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

// NewModerationService creates a new moderation service
func NewModerationService(
	kv store.KV,
	threading *ThreadingService,
	dispatcher notify.Dispatcher,
	logger *zap.Logger,
) *ModerationService {
	return &ModerationService{
		kv:         kv,
		threading:  threading,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Transition applies a moderation transition to a comment. Version conflicts
// are retried internally a bounded number of times, re-checking legality
// against the fresh state each round; an illegal transition (notably anything
// out of Deleted) is rejected without a write.
func (s *ModerationService) Transition(
	ctx context.Context,
	threadID, commentID string,
	target model.Status,
	actor string,
) (*model.Comment, error) {
	if !model.IsValidStatus(target) {
		return nil, errors.Validationf("unknown status %q", target)
	}
	if target == model.StatusPending {
		return nil, errors.InvalidTransition("*", string(model.StatusPending))
	}

	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		comment, version, err := loadComment(ctx, s.kv, threadID, commentID)
		if err != nil {
			return nil, err
		}

		if comment.Status == target {
			return comment, nil // retried action already applied
		}
		if !model.CanTransition(comment.Status, target) {
			return nil, errors.InvalidTransition(string(comment.Status), string(target))
		}

		from := comment.Status
		comment.Status = target
		data, err := json.Marshal(comment)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal comment %s: %w", commentID, err)
		}

		casErr := s.kv.CompareAndPut(ctx, model.CommentKey(threadID, commentID), version, data)
		if stderrors.Is(casErr, errors.ErrVersionConflict) {
			lastErr = casErr
			s.logger.Debug("Moderation transition lost a race, re-reading",
				zap.String("comment_id", commentID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if casErr != nil {
			return nil, casErr
		}

		s.logger.Info("Moderation transition applied",
			zap.String("thread_id", threadID),
			zap.String("comment_id", commentID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
			zap.String("actor", actor))

		s.emit(ctx, comment, target, actor)
		s.recount(ctx, threadID)
		return comment, nil
	}
	return nil, errors.VersionConflict(model.CommentKey(threadID, commentID), lastErr)
}

// emit publishes the moderation event; dispatch failures are logged and never
// fail the transition
func (s *ModerationService) emit(ctx context.Context, comment *model.Comment, target model.Status, actor string) {
	kind, ok := eventKindFor(target)
	if !ok {
		return
	}
	event := model.ModerationEvent{
		EventID:   model.NewEventID(),
		Kind:      kind,
		ThreadID:  comment.ThreadID,
		CommentID: comment.ID,
		Actor:     actor,
		At:        time.Now().UTC(),
	}
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		s.logger.Warn("Failed to dispatch moderation event",
			zap.String("event_id", event.EventID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

// recount refreshes the thread's approved count; staleness is tolerated, so
// failures only log
func (s *ModerationService) recount(ctx context.Context, threadID string) {
	if _, err := s.threading.RecountApproved(ctx, threadID); err != nil {
		s.logger.Warn("Failed to recount thread after transition",
			zap.String("thread_id", threadID),
			zap.Error(err))
	}
}

func eventKindFor(target model.Status) (model.EventKind, bool) {
	switch target {
	case model.StatusApproved:
		return model.EventCommentApproved, true
	case model.StatusRejected:
		return model.EventCommentRejected, true
	case model.StatusFlagged:
		return model.EventCommentFlagged, true
	case model.StatusDeleted:
		return model.EventCommentDeleted, true
	default:
		return "", false
	}
}
