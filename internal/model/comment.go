package model

import "time"

// Status is the moderation state of a comment
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusFlagged  Status = "flagged"
	StatusDeleted  Status = "deleted"
)

// legalTransitions is the full set of allowed moderation transitions.
// Deleted is terminal: nothing transitions out of it.
var legalTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusFlagged},
	StatusApproved: {StatusFlagged, StatusDeleted},
	StatusFlagged:  {StatusApproved, StatusRejected, StatusDeleted},
	StatusRejected: {StatusDeleted},
	StatusDeleted:  {},
}

// CanTransition reports whether from -> to is a legal moderation transition
func CanTransition(from, to Status) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether s is a known moderation status
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFlagged, StatusDeleted:
		return true
	default:
		return false
	}
}

// Comment is a single stored comment. The ID doubles as the sort key inside
// its thread, so backend-native key order is creation order. A comment record
// is immutable after creation except for Status, which is only mutated via
// compare-and-put by the moderation service.
type Comment struct {
	ID                string    `json:"id"`
	ThreadID          string    `json:"thread_id"`
	ParentID          string    `json:"parent_id,omitempty"` // empty means top-level
	AuthorFingerprint string    `json:"author_fingerprint"`
	AuthorName        string    `json:"author_name,omitempty"` // display only, never used for identity
	Body              string    `json:"body"`
	CreatedAt         time.Time `json:"created_at"`
	Status            Status    `json:"status"`
	IdempotencyKey    string    `json:"idempotency_key"`
	SpamScore         float64   `json:"spam_score"`
}

// Visible reports whether the comment should appear in public listings
func (c *Comment) Visible() bool {
	return c.Status == StatusApproved || c.Status == StatusFlagged
}
