package service

import (
	"context"
	stderrors "errors"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/model"
	"github.com/rowanad/commentable/internal/notify"
	"github.com/rowanad/commentable/internal/spam"
	"github.com/rowanad/commentable/internal/store"
)

// SubmitRequest carries one comment submission from the routing layer
type SubmitRequest struct {
	ThreadID       string
	ParentID       string
	AuthorIdentity string // raw identity (IP, email); hashed immediately, never stored
	AuthorName     string
	Body           string
	IdempotencyKey string
}

// IngestionLimits bounds submissions
type IngestionLimits struct {
	MaxBodyBytes   int
	MaxThreadIDLen int
}

// DefaultIngestionLimits returns the stock submission bounds
func DefaultIngestionLimits() IngestionLimits {
	return IngestionLimits{
		MaxBodyBytes:   8192,
		MaxThreadIDLen: 256,
	}
}

// IngestionService validates, sanitizes, fingerprints and persists new
// comments. The write sequence is resumable by design: the idempotency claim
// is the only linearization point, the comment record write after it is
// create-only under a key derived from the claim, so retrying the whole
// operation from the top is always safe.
type IngestionService struct {
	kv          store.KV
	idempotency *IdempotencyService
	rateLimit   *RateLimitService
	threads     *ThreadService
	scorer      spam.Scorer
	dispatcher  notify.Dispatcher
	limits      IngestionLimits
	salt        string
	logger      *zap.Logger
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	kv store.KV,
	idempotency *IdempotencyService,
	rateLimit *RateLimitService,
	threads *ThreadService,
	scorer spam.Scorer,
	dispatcher notify.Dispatcher,
	limits IngestionLimits,
	fingerprintSalt string,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		kv:          kv,
		idempotency: idempotency,
		rateLimit:   rateLimit,
		threads:     threads,
		scorer:      scorer,
		dispatcher:  dispatcher,
		limits:      limits,
		salt:        fingerprintSalt,
		logger:      logger,
	}
}

// Submit runs the full ingestion pipeline for one comment. The returned flag
// reports whether this call created the comment or resolved to one an earlier
// invocation with the same idempotency key already produced.
func (s *IngestionService) Submit(ctx context.Context, req SubmitRequest) (*model.Comment, bool, error) {
	if err := s.validate(&req); err != nil {
		return nil, false, err
	}

	thread, err := s.threads.Ensure(ctx, req.ThreadID)
	if err != nil {
		return nil, false, err
	}
	if thread.Policy.Locked {
		return nil, false, errors.ThreadLocked(req.ThreadID)
	}

	now := time.Now().UTC()
	createdAt := now

	var parent *model.Comment
	if req.ParentID != "" {
		parent, _, err = loadComment(ctx, s.kv, req.ThreadID, req.ParentID)
		if errors.KindOf(err) == errors.KindNotFound {
			return nil, false, errors.Validationf("parent comment %s does not exist in thread %s", req.ParentID, req.ThreadID)
		}
		if err != nil {
			return nil, false, err
		}
		if parent.Status == model.StatusDeleted {
			return nil, false, errors.Validation("cannot reply to a deleted comment")
		}
		// A reply is never ordered before its parent, even under clock skew
		// between invocations
		if createdAt.Before(parent.CreatedAt) {
			createdAt = parent.CreatedAt
		}
	}

	fingerprint := model.Fingerprint(s.salt, req.AuthorIdentity)
	score := s.scorer.Score(ctx, req.Body, fingerprint, spam.ThreadContext{
		ThreadID:     thread.ThreadID,
		CommentCount: thread.CommentCount,
	})

	if err := s.rateLimit.Allow(ctx, fingerprint, now); err != nil {
		return nil, false, err
	}

	status := model.StatusPending
	if score < thread.Policy.AutoApproveThreshold {
		status = model.StatusApproved
	}

	commentID := model.NewCommentID(createdAt)
	if parent != nil && commentID <= parent.ID {
		// Same-millisecond tie with the parent: nudge the sort key forward so
		// the reply always orders after it
		createdAt = parent.CreatedAt.Add(time.Millisecond)
		commentID = model.NewCommentID(createdAt)
	}

	candidate := &model.Comment{
		ID:                commentID,
		ThreadID:          req.ThreadID,
		ParentID:          req.ParentID,
		AuthorFingerprint: fingerprint,
		AuthorName:        strings.TrimSpace(req.AuthorName),
		Body:              sanitizeBody(req.Body),
		CreatedAt:         createdAt,
		Status:            status,
		IdempotencyKey:    req.IdempotencyKey,
		SpamScore:         score,
	}

	commentID, created, err := s.idempotency.RegisterOrFetch(ctx, req.IdempotencyKey,
		func(ctx context.Context) (*model.Comment, error) {
			return candidate, nil
		})
	if err != nil {
		return nil, false, err
	}

	if !created {
		// A previous (or concurrent) invocation of this same logical request
		// won the claim; converge on its comment
		adopted, err := s.adoptClaim(ctx, candidate, commentID)
		return adopted, false, err
	}

	if err := s.persist(ctx, candidate); err != nil {
		return nil, false, err
	}

	s.logger.Info("Comment ingested",
		zap.String("thread_id", candidate.ThreadID),
		zap.String("comment_id", candidate.ID),
		zap.String("status", string(candidate.Status)),
		zap.Float64("spam_score", score))

	s.afterPersist(ctx, candidate)
	return candidate, true, nil
}

// persist writes the comment record create-only. A version conflict means a
// retry of this same invocation already landed the record, which is success.
func (s *IngestionService) persist(ctx context.Context, comment *model.Comment) error {
	data, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("failed to marshal comment %s: %w", comment.ID, err)
	}
	key := model.CommentKey(comment.ThreadID, comment.ID)
	casErr := s.kv.CompareAndPut(ctx, key, 0, data)
	if casErr != nil && !stderrors.Is(casErr, errors.ErrVersionConflict) {
		return casErr
	}
	return nil
}

// adoptClaim resolves a duplicate submission to the claim winner's comment.
// If the winner died between claiming the key and writing its comment
// record, this retry finishes the job with the same payload under the
// winner's ID, keeping the sequence resumable from the top.
func (s *IngestionService) adoptClaim(ctx context.Context, candidate *model.Comment, winnerID string) (*model.Comment, error) {
	stored, _, err := loadComment(ctx, s.kv, candidate.ThreadID, winnerID)
	if err == nil {
		return stored, nil
	}
	if errors.KindOf(err) != errors.KindNotFound {
		return nil, err
	}

	adopted := *candidate
	adopted.ID = winnerID
	if t, ok := model.CommentIDTime(winnerID); ok {
		adopted.CreatedAt = t
	}
	if err := s.persist(ctx, &adopted); err != nil {
		return nil, err
	}

	s.logger.Info("Completed interrupted ingestion for claimed key",
		zap.String("thread_id", adopted.ThreadID),
		zap.String("comment_id", adopted.ID))

	s.afterPersist(ctx, &adopted)
	return &adopted, nil
}

// afterPersist emits the pending-review event and refreshes the approved
// count; both are best effort
func (s *IngestionService) afterPersist(ctx context.Context, comment *model.Comment) {
	if comment.Status == model.StatusPending {
		event := model.ModerationEvent{
			EventID:   model.NewEventID(),
			Kind:      model.EventCommentPending,
			ThreadID:  comment.ThreadID,
			CommentID: comment.ID,
			At:        time.Now().UTC(),
		}
		if err := s.dispatcher.Dispatch(ctx, event); err != nil {
			s.logger.Warn("Failed to dispatch pending-comment event",
				zap.String("comment_id", comment.ID),
				zap.Error(err))
		}
		return
	}

	if comment.Status == model.StatusApproved {
		if err := s.bumpCount(ctx, comment.ThreadID); err != nil {
			s.logger.Warn("Failed to refresh comment count",
				zap.String("thread_id", comment.ThreadID),
				zap.Error(err))
		}
	}
}

// bumpCount recomputes the approved count from a scan, same as the
// moderation path
func (s *IngestionService) bumpCount(ctx context.Context, threadID string) error {
	prefix := model.CommentPrefix(threadID)
	count := 0
	afterKey := ""
	for {
		entries, err := s.kv.ScanPrefix(ctx, prefix, afterKey, 200)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			var c model.Comment
			if err := json.Unmarshal(e.Record.Value, &c); err != nil {
				return fmt.Errorf("failed to unmarshal comment %s: %w", e.Key, err)
			}
			if c.Status == model.StatusApproved {
				count++
			}
			afterKey = e.Key
		}
		if len(entries) < 200 {
			break
		}
	}
	return s.threads.SetCommentCount(ctx, threadID, count)
}

// validate enforces the submission contract before any storage access
func (s *IngestionService) validate(req *SubmitRequest) error {
	if req.ThreadID == "" {
		return errors.Validation("thread_id is required")
	}
	if len(req.ThreadID) > s.limits.MaxThreadIDLen {
		return errors.Validationf("thread_id exceeds %d bytes", s.limits.MaxThreadIDLen)
	}
	if strings.ContainsAny(req.ThreadID, ":#\n\r\t ") {
		return errors.Validation("thread_id must not contain ':', '#' or whitespace")
	}
	if req.IdempotencyKey == "" {
		return errors.Validation("idempotency_key is required")
	}
	if len(req.IdempotencyKey) > 128 {
		return errors.Validation("idempotency_key exceeds 128 bytes")
	}
	if req.AuthorIdentity == "" {
		return errors.Validation("author identity is required")
	}

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return errors.Validation("body is required")
	}
	if len(body) > s.limits.MaxBodyBytes {
		return errors.Validationf("body exceeds %d bytes", s.limits.MaxBodyBytes)
	}
	if !utf8.ValidString(body) {
		return errors.Validation("body must be valid UTF-8")
	}
	return nil
}

// sanitizeBody trims the body and strips control characters except newlines
// and tabs. Markup neutralization happens at render time in the widget; the
// engine stores plain text.
func sanitizeBody(body string) string {
	body = strings.TrimSpace(body)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, body)
}
