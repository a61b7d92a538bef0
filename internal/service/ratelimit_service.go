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

// casAttempts bounds optimistic-write loops across all services. Conflicts
// past this budget surface to the caller as "try again".
const casAttempts = 4

// RateLimitService enforces per-identity submission quotas with fixed-window
// counters. Every increment is a compare-and-put, so concurrent invocations
// can only over-count, never under-count: the bias is toward false rejection,
// never quota bypass.
type RateLimitService struct {
	kv        store.KV
	window    time.Duration
	threshold int
	retention time.Duration
	logger    *zap.Logger
}

// incrementAttempts bounds the counter loop separately from casAttempts. Each
// conflict means another invocation advanced the counter and then left, so the
// loop always terminates; a budget smaller than a plausible concurrent burst
// would reject submitters who still had quota.
const incrementAttempts = 16

// NewRateLimitService creates a new rate limit service. Records are kept for
// two windows so late-arriving invocations of the previous window still see
// their counter.
func NewRateLimitService(kv store.KV, window time.Duration, threshold int, logger *zap.Logger) *RateLimitService {
	return &RateLimitService{
		kv:        kv,
		window:    window,
		threshold: threshold,
		retention: 2 * window,
		logger:    logger,
	}
}

// Allow counts one submission attempt for the identity and reports whether it
// is within quota. The increment is retained even when the submission is
// rejected, so an aborted request never refunds quota.
func (s *RateLimitService) Allow(ctx context.Context, identityHash string, now time.Time) error {
	windowID := model.WindowID(now, s.window)
	key := model.RateLimitKey(identityHash, windowID)

	var lastErr error
	for attempt := 0; attempt < incrementAttempts; attempt++ {
		rec, getErr := s.kv.Get(ctx, key)

		var record model.RateLimitRecord
		var expectedVersion int64

		switch {
		case stderrors.Is(getErr, errors.ErrNotFound):
			record = model.RateLimitRecord{
				IdentityHash: identityHash,
				WindowID:     windowID,
				Count:        1,
				WindowStart:  now.Truncate(s.window).UTC(),
				ExpiresAt:    now.Truncate(s.window).UTC().Add(s.retention),
			}
			expectedVersion = 0
		case getErr != nil:
			return getErr
		default:
			if err := json.Unmarshal(rec.Value, &record); err != nil {
				return fmt.Errorf("failed to unmarshal rate limit record %s: %w", key, err)
			}
			record.Count++
			expectedVersion = rec.Version
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal rate limit record %s: %w", key, err)
		}

		casErr := s.kv.CompareAndPut(ctx, key, expectedVersion, data)
		if stderrors.Is(casErr, errors.ErrVersionConflict) {
			lastErr = casErr
			continue // another invocation advanced the counter, re-read
		}
		if casErr != nil {
			return casErr
		}

		if record.Count > s.threshold {
			s.logger.Debug("Rate limit exceeded",
				zap.String("identity_hash", identityHash),
				zap.String("window_id", windowID),
				zap.Int("count", record.Count),
				zap.Int("threshold", s.threshold))
			return errors.RateLimited(identityHash)
		}
		return nil
	}

	return errors.VersionConflict(key, lastErr)
}
