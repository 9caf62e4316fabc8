// Package flow implements the check-in conversation engine: the turn-by-turn
// state machine and the LLM-backed collaborators it drives.
package flow

import (
	"context"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

// Completer is the text-completion contract used by every prompt-driven component.
type Completer interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder is the embedding contract used by the RelevanceRanker.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// AskedQuestions is the set of questions already asked in one conversation.
// It keeps insertion order so it can be persisted and restored as a list.
// It is owned by a single ConversationState and is not safe for concurrent use.
type AskedQuestions struct {
	order []string
	set   map[string]struct{}
}

// NewAskedQuestions returns a set seeded with the given questions.
func NewAskedQuestions(questions ...string) *AskedQuestions {
	a := &AskedQuestions{set: make(map[string]struct{}, len(questions))}
	for _, q := range questions {
		a.Add(q)
	}
	return a
}

// Add records q. It reports false if q was already present or is empty.
func (a *AskedQuestions) Add(q string) bool {
	if q == "" {
		return false
	}
	if _, ok := a.set[q]; ok {
		return false
	}
	a.set[q] = struct{}{}
	a.order = append(a.order, q)
	return true
}

// Has reports whether q has been asked.
func (a *AskedQuestions) Has(q string) bool {
	_, ok := a.set[q]
	return ok
}

// Len returns the number of recorded questions.
func (a *AskedQuestions) Len() int {
	return len(a.order)
}

// List returns the recorded questions in the order they were asked.
func (a *AskedQuestions) List() []string {
	return append([]string(nil), a.order...)
}

// ConversationState is the working form of one check-in. It is created when
// the check-in begins and mutated after every exchange.
type ConversationState struct {
	ConversationID string
	EmployeeID     string
	EmployeeName   string
	Topics         []string

	// Turns holds the stored dialogue so far, oldest first.
	Turns []models.Message
	Pool  []string
	Asked *AskedQuestions
	Tag   models.TurnType

	MainQuestionsAsked int
	// MaxMainQuestions caps the number of main questions; 0 means no cap.
	MaxMainQuestions int
	Exhausted        bool
}

// NewConversationState restores a state from its persisted conversation and transcript.
func NewConversationState(c models.Conversation, turns []models.Message, maxMainQuestions int) *ConversationState {
	tag := c.TurnType
	if !models.IsValidTurnType(tag) {
		tag = models.TurnWelcome
	}
	return &ConversationState{
		ConversationID:     c.ID,
		EmployeeID:         c.EmployeeID,
		EmployeeName:       c.EmployeeName,
		Topics:             append([]string(nil), c.Topics...),
		Turns:              turns,
		Pool:               append([]string(nil), c.QuestionPool...),
		Asked:              NewAskedQuestions(c.AskedQuestions...),
		Tag:                tag,
		MainQuestionsAsked: c.MainQuestionsAsked,
		MaxMainQuestions:   maxMainQuestions,
		Exhausted:          c.Status == models.ConversationStatusCompleted,
	}
}

// Remaining returns the pool questions not yet asked, in pool order.
func (s *ConversationState) Remaining() []string {
	return remainingQuestions(s.Pool, s.Asked)
}

// ApplyTo copies the mutable parts of the state onto c.
func (s *ConversationState) ApplyTo(c *models.Conversation) {
	c.TurnType = s.Tag
	c.QuestionPool = append([]string(nil), s.Pool...)
	c.AskedQuestions = s.Asked.List()
	c.MainQuestionsAsked = s.MainQuestionsAsked
	if s.Exhausted {
		c.Status = models.ConversationStatusCompleted
	}
}

func remainingQuestions(pool []string, asked *AskedQuestions) []string {
	remaining := make([]string, 0, len(pool))
	for _, q := range pool {
		if asked == nil || !asked.Has(q) {
			remaining = append(remaining, q)
		}
	}
	return remaining
}
