package model

import "time"

// IdempotencyRecord maps a caller-supplied idempotency key to the comment it
// produced. Written once via create-only compare-and-put, read-only after,
// pruned after its retention window.
type IdempotencyRecord struct {
	Key             string    `json:"key"`
	ResultCommentID string    `json:"result_comment_id"`
	ThreadID        string    `json:"thread_id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its retention window
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
