// Package sentiment scores the emotional tone of a check-in and builds the
// HR-facing report.
//
// Each employee message is classified by the LLM into six emotion
// probabilities using a strict JSON schema. The severity of a conversation is
// the larger of the average sadness and average anger, scaled to 0-100.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/VibeCheck/internal/genai"
	"github.com/BTreeMap/VibeCheck/internal/models"
)

const (
	// NeutralSeverity is reported when there is nothing to classify.
	NeutralSeverity = 50.0
	// EscalationThreshold is the severity above which HR is alerted.
	EscalationThreshold = 75.0

	defaultTimeout = 30 * time.Second
)

// StructuredGenerator is the subset of the genai client used for classification.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, req genai.StructuredRequest, out any) error
}

// EmotionScores holds per-emotion probabilities in [0, 1].
type EmotionScores struct {
	Sadness  float64 `json:"sadness" jsonschema:"description=Probability that the message expresses sadness"`
	Anger    float64 `json:"anger" jsonschema:"description=Probability that the message expresses anger"`
	Joy      float64 `json:"joy" jsonschema:"description=Probability that the message expresses joy"`
	Fear     float64 `json:"fear" jsonschema:"description=Probability that the message expresses fear"`
	Love     float64 `json:"love" jsonschema:"description=Probability that the message expresses love"`
	Surprise float64 `json:"surprise" jsonschema:"description=Probability that the message expresses surprise"`
}

func (s EmotionScores) clamp() EmotionScores {
	c := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return EmotionScores{
		Sadness: c(s.Sadness), Anger: c(s.Anger), Joy: c(s.Joy),
		Fear: c(s.Fear), Love: c(s.Love), Surprise: c(s.Surprise),
	}
}

var emotionSchema = genai.GenerateSchema[EmotionScores]()

const classifierPrompt = "You are an emotion classifier for workplace check-in messages. " +
	"Given one employee message, estimate the probability of each emotion: sadness, anger, joy, fear, love, surprise. " +
	"Each probability is between 0 and 1. Respond only with the JSON object."

// Analysis is the aggregate emotional reading of a conversation.
type Analysis struct {
	Severity   float64
	Escalate   bool
	Classified int
	Skipped    int
}

// Analyzer classifies employee messages.
type Analyzer struct {
	client  StructuredGenerator
	timeout time.Duration
}

// NewAnalyzer creates an analyzer. A non-positive timeout uses the default.
func NewAnalyzer(client StructuredGenerator, timeout time.Duration) *Analyzer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Analyzer{client: client, timeout: timeout}
}

// Classify scores a single message.
func (a *Analyzer) Classify(ctx context.Context, text string) (EmotionScores, error) {
	if strings.TrimSpace(text) == "" {
		return EmotionScores{}, errors.New("empty message")
	}
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var scores EmotionScores
	err := a.client.GenerateStructured(cctx, genai.StructuredRequest{
		SchemaName:   "emotion_scores",
		Description:  "Emotion probabilities for one employee message",
		Schema:       emotionSchema,
		SystemPrompt: classifierPrompt,
		UserPrompt:   text,
	}, &scores)
	if err != nil {
		return EmotionScores{}, fmt.Errorf("classify message: %w", err)
	}
	return scores.clamp(), nil
}

// Analyze scores the employee messages of a transcript. Messages that fail
// to classify are skipped; if none succeed the result is neutral.
func (a *Analyzer) Analyze(ctx context.Context, msgs []models.Message) Analysis {
	var res Analysis
	var sadness, anger float64
	for _, m := range msgs {
		if m.SenderType != models.SenderEmployee {
			continue
		}
		scores, err := a.Classify(ctx, m.Content)
		if err != nil {
			slog.Warn("Analyzer.Analyze: skipping message", "messageID", m.ID, "error", err)
			res.Skipped++
			continue
		}
		sadness += scores.Sadness
		anger += scores.Anger
		res.Classified++
	}
	if res.Classified == 0 {
		res.Severity = NeutralSeverity
		return res
	}
	n := float64(res.Classified)
	res.Severity = max(sadness/n, anger/n) * 100
	res.Escalate = res.Severity > EscalationThreshold
	return res
}

// Label buckets a severity score and returns its commentary.
func Label(severity float64) (models.SentimentLabel, string) {
	switch {
	case severity <= 25:
		return models.SentimentPositive, "The employee appears happy and engaged."
	case severity <= 50:
		return models.SentimentNeutral, "The employee’s responses indicate a balanced mood."
	case severity <= 75:
		return models.SentimentNegative, "The employee shows signs of sadness or frustration."
	default:
		return models.SentimentSevere, "The employee exhibits strong signs of sadness or anger. HR action recommended."
	}
}
