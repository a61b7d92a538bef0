// Package spam defines the pluggable spam scoring boundary. The engine only
// depends on the Scorer interface; deployments can inject an external
// classifier without touching the core.
package spam

import (
	"context"
	"strings"
	"unicode"
)

// ThreadContext is the thread-level signal available to a scorer
type ThreadContext struct {
	ThreadID     string
	CommentCount int
}

// Scorer assigns a spam likelihood in [0, 1] to a submission
type Scorer interface {
	Score(ctx context.Context, body, authorFingerprint string, threadCtx ThreadContext) float64
}

// HeuristicScorer is the built-in scorer: cheap lexical signals only, no
// network calls. Deployments wanting a real classifier swap it out at wiring
// time.
type HeuristicScorer struct{}

// NewHeuristicScorer creates the default scorer
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// Score combines link density, length extremes and shouting into [0, 1]
func (s *HeuristicScorer) Score(ctx context.Context, body, authorFingerprint string, threadCtx ThreadContext) float64 {
	score := 0.0

	links := strings.Count(body, "http://") + strings.Count(body, "https://")
	switch {
	case links >= 3:
		score += 0.6
	case links == 2:
		score += 0.35
	case links == 1:
		score += 0.15
	}

	trimmed := strings.TrimSpace(body)
	if len(trimmed) < 4 {
		score += 0.3
	}

	upper, letters := 0, 0
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters >= 12 && float64(upper)/float64(letters) > 0.7 {
		score += 0.3
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
