package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

// minContradictionHistory is the number of prior turns needed before a
// contradiction can be checked.
const minContradictionHistory = 2

// ContradictionDetector asks the LLM whether the latest utterance conflicts
// with what the employee said earlier.
type ContradictionDetector struct {
	client Completer
}

// NewContradictionDetector creates a detector backed by client.
func NewContradictionDetector(client Completer) *ContradictionDetector {
	return &ContradictionDetector{client: client}
}

// Detect returns a clarifying question, or "" when there is no contradiction.
// With fewer than two prior turns it returns "" without calling the LLM.
// Errors from the completion service are returned unchanged; the caller
// decides how to degrade.
func (d *ContradictionDetector) Detect(ctx context.Context, utterance string, history []models.Message) (string, error) {
	if len(history) < minContradictionHistory {
		return "", nil
	}
	out, err := contradictionRequest(utterance, history).run(ctx, d.client)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if isNoContradiction(out) {
		slog.Debug("ContradictionDetector.Detect: no contradiction")
		return "", nil
	}
	slog.Debug("ContradictionDetector.Detect: contradiction found", "question", out)
	return out, nil
}

func isNoContradiction(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`+"`")
	s = strings.TrimSuffix(s, ".")
	return s == "" || strings.EqualFold(s, noContradiction)
}
