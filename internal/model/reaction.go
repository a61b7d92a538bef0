package model

import "time"

// ReactionType is an emoji-style reaction identifier, e.g. "like" or "+1"
type ReactionType string

// Reaction is one author's reaction to one comment. Uniqueness per
// (comment, fingerprint, type) is enforced by the create-only key claim.
type Reaction struct {
	ThreadID          string       `json:"thread_id"`
	CommentID         string       `json:"comment_id"`
	AuthorFingerprint string       `json:"author_fingerprint"`
	Type              ReactionType `json:"type"`
	CreatedAt         time.Time    `json:"created_at"`
}
