package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewCommentID mints a lexicographically sortable comment identifier:
// zero-padded unix milliseconds plus eight hex characters of entropy to break
// ties between comments created in the same millisecond. Ordering between
// concurrent submissions is decided by this token, never by which write
// physically lands first.
func NewCommentID(t time.Time) string {
	return fmt.Sprintf("%013d-%s", t.UnixMilli(), uuid.NewString()[:8])
}

// CommentIDTime recovers the creation instant encoded in a comment ID. Used
// when an invocation adopts another invocation's idempotency claim and must
// reconstruct the winner's record deterministically.
func CommentIDTime(id string) (time.Time, bool) {
	if len(id) < 14 || id[13] != '-' {
		return time.Time{}, false
	}
	var millis int64
	for i := 0; i < 13; i++ {
		c := id[i]
		if c < '0' || c > '9' {
			return time.Time{}, false
		}
		millis = millis*10 + int64(c-'0')
	}
	return time.UnixMilli(millis).UTC(), true
}

// NewEventID mints a unique identifier for a moderation event
func NewEventID() string {
	return uuid.NewString()
}

// Fingerprint derives the one-way author identity token stored in place of
// raw PII. The salt is deployment-wide configuration; rotating it resets all
// rate-limit and spam reputation state.
func Fingerprint(salt, identity string) string {
	sum := sha256.Sum256([]byte(salt + ":" + identity))
	return hex.EncodeToString(sum[:])
}
