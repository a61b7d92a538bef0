package model

import "time"

// EventKind identifies a moderation-relevant event
type EventKind string

const (
	EventCommentPending  EventKind = "comment.pending"
	EventCommentApproved EventKind = "comment.approved"
	EventCommentRejected EventKind = "comment.rejected"
	EventCommentFlagged  EventKind = "comment.flagged"
	EventCommentDeleted  EventKind = "comment.deleted"
)

// ModerationEvent is the data record the engine emits for downstream
// notification delivery. Delivery itself (email, webhook) is external.
type ModerationEvent struct {
	EventID   string    `json:"event_id"`
	Kind      EventKind `json:"kind"`
	ThreadID  string    `json:"thread_id"`
	CommentID string    `json:"comment_id"`
	Actor     string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}
