package flow

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

// NextQuestionSelector lets the LLM choose the next main question from the
// unasked part of the pool.
type NextQuestionSelector struct {
	client Completer
	pick   func(n int) int
}

// NewNextQuestionSelector creates a selector backed by client. The fallback
// choice uses math/rand.
func NewNextQuestionSelector(client Completer) *NextQuestionSelector {
	return &NextQuestionSelector{client: client, pick: rand.IntN}
}

// Select returns the next question and records it in asked. It reports false
// when every pool question has been asked. The returned question is always a
// verbatim pool entry; unusable LLM output falls back to a random unasked one.
func (s *NextQuestionSelector) Select(ctx context.Context, history []models.Message, pool []string, asked *AskedQuestions) (string, bool) {
	remaining := remainingQuestions(pool, asked)
	if len(remaining) == 0 {
		return "", false
	}

	choice, err := selectionRequest(history, remaining).run(ctx, s.client)
	if err != nil {
		slog.Warn("NextQuestionSelector.Select: completion failed, using random fallback", "error", err)
	} else if q, ok := matchCandidate(choice, remaining); ok {
		asked.Add(q)
		return q, true
	} else {
		slog.Debug("NextQuestionSelector.Select: answer not in candidate list, using random fallback", "answer", choice)
	}

	q := remaining[s.pick(len(remaining))]
	asked.Add(q)
	return q, true
}

// matchCandidate finds the candidate the LLM answer refers to, ignoring
// whitespace, quoting, list bullets and case.
func matchCandidate(answer string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if answer == c {
			return c, true
		}
	}
	norm := normalizeQuestion(answer)
	if norm == "" {
		return "", false
	}
	for _, c := range candidates {
		if normalizeQuestion(c) == norm {
			return c, true
		}
	}
	return "", false
}

func normalizeQuestion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*•· \t")
	// Numbered list prefix such as "3." or "2)".
	if i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }); i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`“”‘’")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
