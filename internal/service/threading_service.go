package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/errors"
	"github.com/rowanad/commentable/internal/model"
	"github.com/rowanad/commentable/internal/store"
)

// CommentNode is one listed comment with its replies nested under it
type CommentNode struct {
	model.Comment
	Reactions map[model.ReactionType]int `json:"reactions,omitempty"`
	Replies   []*CommentNode             `json:"replies,omitempty"`
}

// ThreadPage is one page of a thread listing
type ThreadPage struct {
	ThreadID   string         `json:"thread_id"`
	Comments   []*CommentNode `json:"comments"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ThreadingService derives thread structure at read time. Comments are
// stored flat under time-ordered keys; the reply tree is rebuilt per request
// by grouping the ordered scan on ParentID, so writes never fan out to
// parent records.
type ThreadingService struct {
	kv       store.KV
	threads  *ThreadService
	pageSize int
	logger   *zap.Logger
}

// NewThreadingService creates a new threading service
func NewThreadingService(kv store.KV, threads *ThreadService, pageSize int, logger *zap.Logger) *ThreadingService {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &ThreadingService{
		kv:       kv,
		threads:  threads,
		pageSize: pageSize,
		logger:   logger,
	}
}

// List returns one page of the thread in creation order, replies nested
// under their parents. The cursor is opaque and encodes the last sort key of
// the previous page; a reply whose parent fell on an earlier page is listed
// at top level for this page rather than re-fetched.
func (s *ThreadingService) List(ctx context.Context, threadID, cursor string, limit int) (*ThreadPage, error) {
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	afterKey := ""
	if cursor != "" {
		lastID, err := decodeCursor(cursor)
		if err != nil {
			return nil, errors.Validation("malformed pagination cursor")
		}
		afterKey = model.CommentKey(threadID, lastID)
	}

	prefix := model.CommentPrefix(threadID)
	entries, err := s.kv.ScanPrefix(ctx, prefix, afterKey, limit)
	if err != nil {
		return nil, err
	}

	comments := make([]*model.Comment, 0, len(entries))
	for _, e := range entries {
		var c model.Comment
		if err := json.Unmarshal(e.Record.Value, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal comment %s: %w", e.Key, err)
		}
		comments = append(comments, &c)
	}

	reactions, err := s.reactionCounts(ctx, threadID)
	if err != nil {
		return nil, err
	}

	page := &ThreadPage{
		ThreadID: threadID,
		Comments: s.buildTree(comments, reactions),
	}
	if len(entries) == limit && len(comments) > 0 {
		page.NextCursor = encodeCursor(comments[len(comments)-1].ID)
	}
	return page, nil
}

// buildTree nests the flat, time-ordered slice by ParentID. Deleted comments
// stay in the tree as body-less placeholders when replies hang off them, so
// the remaining subtree keeps its anchor.
func (s *ThreadingService) buildTree(comments []*model.Comment, reactions map[string]map[model.ReactionType]int) []*CommentNode {
	nodes := make(map[string]*CommentNode, len(comments))
	for _, c := range comments {
		node := &CommentNode{Comment: *c, Reactions: reactions[c.ID]}
		if c.Status == model.StatusDeleted {
			node.Body = ""
			node.AuthorName = ""
		}
		nodes[c.ID] = node
	}

	var roots []*CommentNode
	for _, c := range comments {
		node := nodes[c.ID]
		if parent, ok := nodes[c.ParentID]; c.ParentID != "" && ok {
			parent.Replies = append(parent.Replies, node)
		} else {
			roots = append(roots, node)
		}
	}

	// Prune hidden comments bottom-up: a node survives if it is publicly
	// visible or anchors a surviving reply
	var prune func(list []*CommentNode) []*CommentNode
	prune = func(list []*CommentNode) []*CommentNode {
		return lo.Filter(list, func(n *CommentNode, _ int) bool {
			n.Replies = prune(n.Replies)
			return n.Visible() || len(n.Replies) > 0
		})
	}
	return prune(roots)
}

// reactionCounts aggregates the thread's reactions per comment
func (s *ThreadingService) reactionCounts(ctx context.Context, threadID string) (map[string]map[model.ReactionType]int, error) {
	prefix := model.ReactionPrefix(threadID)
	counts := make(map[string]map[model.ReactionType]int)

	afterKey := ""
	for {
		entries, err := s.kv.ScanPrefix(ctx, prefix, afterKey, s.pageSize)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return counts, nil
		}
		for _, e := range entries {
			var r model.Reaction
			if err := json.Unmarshal(e.Record.Value, &r); err != nil {
				return nil, fmt.Errorf("failed to unmarshal reaction %s: %w", e.Key, err)
			}
			if counts[r.CommentID] == nil {
				counts[r.CommentID] = make(map[model.ReactionType]int)
			}
			counts[r.CommentID][r.Type]++
			afterKey = e.Key
		}
		if len(entries) < s.pageSize {
			return counts, nil
		}
	}
}

// RecountApproved recomputes the thread's approved comment count from a full
// scan and stores it on the thread record. Called after moderation
// transitions and approved submissions instead of maintaining the counter
// incrementally, which would be a second point of write contention.
func (s *ThreadingService) RecountApproved(ctx context.Context, threadID string) (int, error) {
	prefix := model.CommentPrefix(threadID)
	count := 0

	afterKey := ""
	for {
		entries, err := s.kv.ScanPrefix(ctx, prefix, afterKey, s.pageSize)
		if err != nil {
			return 0, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			var c model.Comment
			if err := json.Unmarshal(e.Record.Value, &c); err != nil {
				return 0, fmt.Errorf("failed to unmarshal comment %s: %w", e.Key, err)
			}
			if c.Status == model.StatusApproved {
				count++
			}
			afterKey = e.Key
		}
		if len(entries) < s.pageSize {
			break
		}
	}

	if err := s.threads.SetCommentCount(ctx, threadID, count); err != nil {
		return count, err
	}
	return count, nil
}

// GetComment loads one comment by thread and ID
func (s *ThreadingService) GetComment(ctx context.Context, threadID, commentID string) (*model.Comment, int64, error) {
	return loadComment(ctx, s.kv, threadID, commentID)
}

func encodeCursor(lastCommentID string) string {
	return base64.URLEncoding.EncodeToString([]byte(lastCommentID))
}

func decodeCursor(cursor string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	id := string(raw)
	if id == "" || strings.ContainsAny(id, ":\n") {
		return "", fmt.Errorf("invalid cursor payload")
	}
	return id, nil
}
