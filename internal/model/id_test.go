package model

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommentID_SortsByCreationTime(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ids := []string{
		NewCommentID(base.Add(3 * time.Second)),
		NewCommentID(base),
		NewCommentID(base.Add(90 * time.Minute)),
		NewCommentID(base.Add(time.Millisecond)),
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	assert.Equal(t, []string{ids[1], ids[3], ids[0], ids[2]}, sorted)
}

func TestNewCommentID_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewCommentID(now)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestCommentIDTime_Roundtrip(t *testing.T) {
	created := time.Date(2025, 3, 15, 8, 30, 0, 0, time.UTC)
	id := NewCommentID(created)

	parsed, ok := CommentIDTime(id)
	require.True(t, ok)
	assert.Equal(t, created.UnixMilli(), parsed.UnixMilli())
}

func TestCommentIDTime_RejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "abc", "123", "0000000000000", "0000000000000x12345678"} {
		_, ok := CommentIDTime(id)
		assert.False(t, ok, "id %q should not parse", id)
	}
}

func TestFingerprint_StableAndSaltDependent(t *testing.T) {
	a := Fingerprint("salt-1", "192.0.2.10")
	b := Fingerprint("salt-1", "192.0.2.10")
	c := Fingerprint("salt-2", "192.0.2.10")
	d := Fingerprint("salt-1", "192.0.2.11")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "different salt must yield a different fingerprint")
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64)
	assert.NotContains(t, a, "192.0.2.10", "raw identity must never survive hashing")
}

func TestWindowID_TruncatesToWindow(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC)

	sameWindow := WindowID(at, time.Minute)
	assert.Equal(t, sameWindow, WindowID(at.Add(3*time.Second), time.Minute))
	assert.NotEqual(t, sameWindow, WindowID(at.Add(time.Minute), time.Minute))
}
