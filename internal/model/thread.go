package model

import "time"

// Policy controls how a thread moderates incoming comments
type Policy struct {
	// AutoApproveThreshold is the spam score strictly below which a new
	// comment is approved without moderator review.
	AutoApproveThreshold float64 `json:"auto_approve_threshold"`
	// Locked rejects all new submissions while set
	Locked bool `json:"locked"`
}

// Thread is the per-page comment collection. Created lazily on the first
// submission, never deleted by the engine. CommentCount tracks approved
// comments only and is recomputed lazily from a scan rather than maintained
// incrementally, so it is a second-order value that may briefly lag.
type Thread struct {
	ThreadID     string    `json:"thread_id"`
	CommentCount int       `json:"comment_count"`
	Policy       Policy    `json:"policy"`
	CreatedAt    time.Time `json:"created_at"`
}
