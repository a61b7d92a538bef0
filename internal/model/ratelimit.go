package model

import "time"

// RateLimitRecord is a fixed-window submission counter for one identity.
// Keyed by (identityHash, windowID); incremented only via compare-and-put so
// concurrent invocations never undercount.
type RateLimitRecord struct {
	IdentityHash string    `json:"identity_hash"`
	WindowID     string    `json:"window_id"`
	Count        int       `json:"count"`
	WindowStart  time.Time `json:"window_start"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its retention window
func (r *RateLimitRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// WindowID truncates t to the window size and formats it as a sortable token
func WindowID(t time.Time, window time.Duration) string {
	return t.Truncate(window).UTC().Format("20060102T150405Z")
}
