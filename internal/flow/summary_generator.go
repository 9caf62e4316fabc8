package flow

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

// SummaryGenerator turns an employee's SHAP attributes into a short HR
// summary used to rank the question pool.
type SummaryGenerator struct {
	client Completer
}

// NewSummaryGenerator creates a generator backed by client.
func NewSummaryGenerator(client Completer) *SummaryGenerator {
	return &SummaryGenerator{client: client}
}

// Summarize returns the LLM summary of e, or the raw attribute list when the
// call fails or returns nothing.
func (g *SummaryGenerator) Summarize(ctx context.Context, e models.Employee) string {
	attrs := DescribeProfile(e)
	if attrs == "" {
		return ""
	}
	out, err := summaryRequest(attrs).run(ctx, g.client)
	if err != nil {
		slog.Warn("SummaryGenerator.Summarize: completion failed, using raw attributes", "employeeID", e.EmployeeID, "error", err)
		return attrs
	}
	if out = strings.TrimSpace(out); out == "" {
		return attrs
	}
	return out
}

// DescribeProfile renders "Topic: direction" pairs, feature-vector topics
// first, then any remaining attributes in key order.
func DescribeProfile(e models.Employee) string {
	seen := make(map[string]bool, len(e.FeatureVector))
	var parts []string
	for _, topic := range e.FeatureVector {
		if seen[topic] {
			continue
		}
		seen[topic] = true
		if nature, ok := e.ShapNature[topic]; ok && nature != "" {
			parts = append(parts, topic+": "+nature)
		} else {
			parts = append(parts, topic)
		}
	}
	var extra []string
	for k := range e.ShapNature {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		parts = append(parts, k+": "+e.ShapNature[k])
	}
	return strings.Join(parts, ", ")
}

// InsightsGenerator writes an HR-facing analysis of a whole transcript.
type InsightsGenerator struct {
	client Completer
}

// NewInsightsGenerator creates a generator backed by client.
func NewInsightsGenerator(client Completer) *InsightsGenerator {
	return &InsightsGenerator{client: client}
}

// Generate returns the insights text for turns.
func (g *InsightsGenerator) Generate(ctx context.Context, employeeName string, turns []models.Message) (string, error) {
	if len(turns) == 0 {
		return "", models.ErrNoMessages
	}
	out, err := insightsRequest(employeeName, turns).run(ctx, g.client)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
