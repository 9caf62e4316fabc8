package flow

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"
)

// DefaultTopK is the number of questions kept by the ranker when not configured.
const DefaultTopK = 20

// RankMode selects how candidate questions are embedded.
type RankMode string

const (
	// RankModeToken scores a question by its best-matching word.
	RankModeToken RankMode = "token"
	// RankModeWholeQuestion embeds each question as one sentence.
	RankModeWholeQuestion RankMode = "question"
)

// ParseRankMode maps a configuration value to a RankMode, defaulting to token mode.
func ParseRankMode(s string) RankMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RankModeWholeQuestion), "whole", "sentence":
		return RankModeWholeQuestion
	default:
		return RankModeToken
	}
}

var errEmbeddingShape = errors.New("embedding count does not match input count")

// RelevanceRanker orders candidate questions by semantic similarity to a
// free-text summary of the employee.
type RelevanceRanker struct {
	embedder Embedder
	topK     int
	mode     RankMode
}

// RankerOption configures a RelevanceRanker.
type RankerOption func(*RelevanceRanker)

// WithTopK sets how many questions Rank returns. Values below 1 are ignored.
func WithTopK(k int) RankerOption {
	return func(r *RelevanceRanker) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithRankMode sets the embedding granularity.
func WithRankMode(mode RankMode) RankerOption {
	return func(r *RelevanceRanker) { r.mode = mode }
}

// NewRelevanceRanker creates a ranker. A nil embedder makes Rank return the
// first K candidates.
func NewRelevanceRanker(embedder Embedder, opts ...RankerOption) *RelevanceRanker {
	r := &RelevanceRanker{embedder: embedder, topK: DefaultTopK, mode: RankModeToken}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TopK returns the configured result size.
func (r *RelevanceRanker) TopK() int {
	return r.topK
}

// Rank returns at most K questions from pool, most similar to summary first.
// Any embedding failure yields the first K questions in pool order.
func (r *RelevanceRanker) Rank(ctx context.Context, summary string, pool []string) []string {
	k := r.topK
	if k > len(pool) {
		k = len(pool)
	}
	fallback := append([]string(nil), pool[:k]...)
	if r.embedder == nil || k == 0 || strings.TrimSpace(summary) == "" {
		return fallback
	}

	scores, err := r.score(ctx, summary, pool)
	if err != nil {
		slog.Warn("RelevanceRanker.Rank: embedding failed, using pool order", "error", err, "poolSize", len(pool))
		return fallback
	}

	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	ranked := make([]string, k)
	for i := 0; i < k; i++ {
		ranked[i] = pool[idx[i]]
	}
	slog.Debug("RelevanceRanker.Rank: ranked pool", "mode", r.mode, "poolSize", len(pool), "topK", k)
	return ranked
}

func (r *RelevanceRanker) score(ctx context.Context, summary string, pool []string) ([]float64, error) {
	query, err := r.embedder.Embed(ctx, summary)
	if err != nil {
		return nil, err
	}

	if r.mode == RankModeWholeQuestion {
		vecs, err := r.embedder.EmbedBatch(ctx, pool)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(pool) {
			return nil, errEmbeddingShape
		}
		scores := make([]float64, len(pool))
		for i, v := range vecs {
			scores[i] = cosineSimilarity(query, v)
		}
		return scores, nil
	}

	questionTokens := make([][]string, len(pool))
	tokenIndex := make(map[string]int)
	var vocab []string
	for i, q := range pool {
		questionTokens[i] = tokenize(q)
		for _, tok := range questionTokens[i] {
			if _, ok := tokenIndex[tok]; !ok {
				tokenIndex[tok] = len(vocab)
				vocab = append(vocab, tok)
			}
		}
	}
	if len(vocab) == 0 {
		return make([]float64, len(pool)), nil
	}

	vecs, err := r.embedder.EmbedBatch(ctx, vocab)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(vocab) {
		return nil, errEmbeddingShape
	}
	tokenScores := make([]float64, len(vocab))
	for i, v := range vecs {
		tokenScores[i] = cosineSimilarity(query, v)
	}

	scores := make([]float64, len(pool))
	for i, toks := range questionTokens {
		best := math.Inf(-1)
		for _, tok := range toks {
			if s := tokenScores[tokenIndex[tok]]; s > best {
				best = s
			}
		}
		scores[i] = best
	}
	return scores, nil
}

// tokenize splits text into lower-cased words, dropping punctuation.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
