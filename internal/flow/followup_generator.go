package flow

import (
	"context"
	"strings"
)

// FollowUpGenerator produces one probing question about the latest utterance.
type FollowUpGenerator struct {
	client Completer
}

// NewFollowUpGenerator creates a generator backed by client.
func NewFollowUpGenerator(client Completer) *FollowUpGenerator {
	return &FollowUpGenerator{client: client}
}

// Generate returns the trimmed follow-up question. An empty result means no
// follow-up is available.
func (g *FollowUpGenerator) Generate(ctx context.Context, utterance string) (string, error) {
	out, err := followUpRequest(utterance).run(ctx, g.client)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
