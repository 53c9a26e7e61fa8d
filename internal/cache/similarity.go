package cache

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultThreshold is the minimum score for a cached document to be reused.
	DefaultThreshold = 0.85
	// DefaultCapacity bounds the number of cached documents across all scopes.
	DefaultCapacity = 50
	// DefaultTTL is how long a cached document stays eligible.
	DefaultTTL = 24 * time.Hour

	containmentFactor = 0.9
	minTokenLength    = 4
)

// Entry is one cached generation result.
type Entry struct {
	Scope          string    `json:"scope"`
	NormalizedText string    `json:"text"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Match is a lookup hit together with the score that selected it.
type Match struct {
	Entry
	Score float64
}

// SimilarityCache stores previous generation results keyed by scope and
// request text and answers near-duplicate lookups.
// Implementations must be safe for concurrent use.
type SimilarityCache interface {
	// Lookup returns the best non-expired entry for scope whose score reaches
	// the threshold, or nil when there is none.
	Lookup(ctx context.Context, scope, text string) (*Match, error)
	// Insert stores content for (scope, text), evicting the oldest entry when full.
	Insert(ctx context.Context, scope, text, content string) error
}

// SimilarityOptions configures both similarity cache backends.
type SimilarityOptions struct {
	Capacity  int
	TTL       time.Duration
	Threshold float64
}

func (o SimilarityOptions) withDefaults() SimilarityOptions {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	return o
}

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Score compares two normalized texts. Identical texts score 1.0; when one
// contains the other the score is the length ratio scaled by 0.9; otherwise it
// is the Jaccard index over words of at least four characters.
func Score(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := la, lb
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer) * containmentFactor
	}

	return jaccard(tokens(a), tokens(b))
}

func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) >= minTokenLength {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// bestMatch picks the highest scoring entry in scope that reaches threshold,
// preferring the most recent one on equal scores. norm must be normalized.
func bestMatch(entries []Entry, scope, norm string, threshold float64) *Match {
	var best *Match
	for _, e := range entries {
		if e.Scope != scope {
			continue
		}
		s := Score(norm, e.NormalizedText)
		if s < threshold {
			continue
		}
		if best == nil || s > best.Score || (s == best.Score && e.CreatedAt.After(best.CreatedAt)) {
			best = &Match{Entry: e, Score: s}
		}
	}
	return best
}
