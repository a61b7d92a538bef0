package model

// Key builders for the durable key space. The layout is the cross-backend
// schema and must stay stable:
//
//	thread:{threadId}                                  Thread record
//	thread:{threadId}:comment:{sortKey}                Comment record
//	thread:{threadId}:reaction:{commentId}#{fp}#{type} Reaction record
//	idempotency:{key}                                  IdempotencyRecord
//	ratelimit:{identityHash}:{windowId}                RateLimitRecord
//
// Prefix scans over thread:{threadId}:comment: return comments in creation
// order because the sort key is derived from CreatedAt. Thread IDs must not
// contain ':' (enforced at ingestion) so the segments parse unambiguously.

const (
	IdempotencyPrefix = "idempotency:"
	RateLimitPrefix   = "ratelimit:"
)

// ThreadKey returns the key for a thread record
func ThreadKey(threadID string) string {
	return "thread:" + threadID
}

// CommentKey returns the key for one comment inside its thread
func CommentKey(threadID, commentID string) string {
	return CommentPrefix(threadID) + commentID
}

// CommentPrefix returns the scan prefix for all comments of a thread
func CommentPrefix(threadID string) string {
	return "thread:" + threadID + ":comment:"
}

// ReactionKey returns the key for one reaction. The tail is a single segment
// joined with '#' so reaction keys share one scan prefix per thread and sort
// by comment ID.
func ReactionKey(threadID, commentID, fingerprint string, typ ReactionType) string {
	return ReactionPrefix(threadID) + commentID + "#" + fingerprint + "#" + string(typ)
}

// ReactionPrefix returns the scan prefix for all reactions of a thread
func ReactionPrefix(threadID string) string {
	return "thread:" + threadID + ":reaction:"
}

// IdempotencyKey returns the key for an idempotency record
func IdempotencyKey(key string) string {
	return IdempotencyPrefix + key
}

// RateLimitKey returns the key for a rate-limit window counter
func RateLimitKey(identityHash, windowID string) string {
	return RateLimitPrefix + identityHash + ":" + windowID
}
