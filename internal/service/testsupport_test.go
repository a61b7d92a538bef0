package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/model"
	"github.com/rowanad/commentable/internal/notify"
	"github.com/rowanad/commentable/internal/spam"
	"github.com/rowanad/commentable/internal/store"
)

// captureDispatcher records dispatched events for assertions
type captureDispatcher struct {
	mu     sync.Mutex
	events []model.ModerationEvent
}

func (d *captureDispatcher) Dispatch(ctx context.Context, event model.ModerationEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *captureDispatcher) kinds() []model.EventKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]model.EventKind, len(d.events))
	for i, e := range d.events {
		kinds[i] = e.Kind
	}
	return kinds
}

var _ notify.Dispatcher = (*captureDispatcher)(nil)

// engineOptions tweaks the test engine wiring
type engineOptions struct {
	rateLimitThreshold int
	idempotencyTTL     time.Duration
	defaultPolicy      model.Policy
	pageSize           int
}

// engine bundles a fully wired service stack over the in-memory adapter
type engine struct {
	kv          *store.MemoryStore
	threads     *ThreadService
	rateLimit   *RateLimitService
	idempotency *IdempotencyService
	ingestion   *IngestionService
	threading   *ThreadingService
	moderation  *ModerationService
	reactions   *ReactionService
	cleanup     *CleanupService
	dispatcher  *captureDispatcher
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	return newEngineWith(t, engineOptions{})
}

func newEngineWith(t *testing.T, opts engineOptions) *engine {
	t.Helper()

	if opts.rateLimitThreshold == 0 {
		opts.rateLimitThreshold = 5
	}
	if opts.idempotencyTTL == 0 {
		opts.idempotencyTTL = 24 * time.Hour
	}
	if opts.defaultPolicy == (model.Policy{}) {
		opts.defaultPolicy = model.Policy{AutoApproveThreshold: 0.3}
	}
	if opts.pageSize == 0 {
		opts.pageSize = 100
	}

	logger := zap.NewNop()
	kv := store.NewMemoryStore()
	dispatcher := &captureDispatcher{}

	threads := NewThreadService(kv, opts.defaultPolicy, logger)
	rateLimit := NewRateLimitService(kv, time.Minute, opts.rateLimitThreshold, logger)
	idempotency := NewIdempotencyService(kv, opts.idempotencyTTL, logger)
	ingestion := NewIngestionService(
		kv,
		idempotency,
		rateLimit,
		threads,
		spam.NewHeuristicScorer(),
		dispatcher,
		DefaultIngestionLimits(),
		"test-salt",
		logger,
	)
	threading := NewThreadingService(kv, threads, opts.pageSize, logger)
	moderation := NewModerationService(kv, threading, dispatcher, logger)
	reactions := NewReactionService(kv, "test-salt", logger)
	cleanup := NewCleanupService(kv, opts.pageSize, logger)

	return &engine{
		kv:          kv,
		threads:     threads,
		rateLimit:   rateLimit,
		idempotency: idempotency,
		ingestion:   ingestion,
		threading:   threading,
		moderation:  moderation,
		reactions:   reactions,
		cleanup:     cleanup,
		dispatcher:  dispatcher,
	}
}

// submit is shorthand for a clean top-level submission
func (e *engine) submit(t *testing.T, threadID, identity, key, body string) *model.Comment {
	t.Helper()
	comment, _, err := e.ingestion.Submit(context.Background(), SubmitRequest{
		ThreadID:       threadID,
		AuthorIdentity: identity,
		Body:           body,
		IdempotencyKey: key,
	})
	if err != nil {
		t.Fatalf("submit %s/%s failed: %v", threadID, key, err)
	}
	return comment
}

// reply is shorthand for a clean reply submission
func (e *engine) reply(t *testing.T, threadID, parentID, identity, key, body string) *model.Comment {
	t.Helper()
	comment, _, err := e.ingestion.Submit(context.Background(), SubmitRequest{
		ThreadID:       threadID,
		ParentID:       parentID,
		AuthorIdentity: identity,
		Body:           body,
		IdempotencyKey: key,
	})
	if err != nil {
		t.Fatalf("reply %s/%s failed: %v", threadID, key, err)
	}
	return comment
}
