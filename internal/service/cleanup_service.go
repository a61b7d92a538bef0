package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/model"
	"github.com/rowanad/commentable/internal/store"
)

// CleanupService prunes expired rate-limit and idempotency records on
// backends without native TTL. It is one-shot by design: a scheduled
// invocation calls PruneExpired and exits, the same execution model as every
// other engine operation. Comments are never touched here.
type CleanupService struct {
	kv        store.KV
	batchSize int
	logger    *zap.Logger
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(kv store.KV, batchSize int, logger *zap.Logger) *CleanupService {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &CleanupService{
		kv:        kv,
		batchSize: batchSize,
		logger:    logger,
	}
}

// PruneExpired deletes expired ephemeral records and reports how many were
// removed. Deleting a record another invocation already deleted is harmless.
func (s *CleanupService) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	pruned := 0

	n, err := s.pruneRateLimits(ctx, now)
	pruned += n
	if err != nil {
		return pruned, err
	}

	n, err = s.pruneIdempotency(ctx, now)
	pruned += n
	if err != nil {
		return pruned, err
	}

	s.logger.Info("Cleanup pass completed", zap.Int("pruned", pruned))
	return pruned, nil
}

func (s *CleanupService) pruneRateLimits(ctx context.Context, now time.Time) (int, error) {
	return s.prunePrefix(ctx, model.RateLimitPrefix, func(value []byte) bool {
		var rec model.RateLimitRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return false // never delete what we cannot parse
		}
		return rec.Expired(now)
	})
}

func (s *CleanupService) pruneIdempotency(ctx context.Context, now time.Time) (int, error) {
	return s.prunePrefix(ctx, model.IdempotencyPrefix, func(value []byte) bool {
		var rec model.IdempotencyRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return false
		}
		return rec.Expired(now)
	})
}

func (s *CleanupService) prunePrefix(ctx context.Context, prefix string, expired func([]byte) bool) (int, error) {
	pruned := 0
	afterKey := ""
	for {
		entries, err := s.kv.ScanPrefix(ctx, prefix, afterKey, s.batchSize)
		if err != nil {
			return pruned, err
		}
		if len(entries) == 0 {
			return pruned, nil
		}
		for _, e := range entries {
			afterKey = e.Key
			if !expired(e.Record.Value) {
				continue
			}
			if err := s.kv.Delete(ctx, e.Key); err != nil {
				return pruned, err
			}
			pruned++
		}
		if len(entries) < s.batchSize {
			return pruned, nil
		}
	}
}
