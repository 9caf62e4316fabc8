package flow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

// Prompt kinds recognised by MockCompleter, keyed on the system prompt.
const (
	kindContradiction = "contradiction"
	kindFollowUp      = "followup"
	kindSelection     = "selection"
	kindSummary       = "summary"
	kindGreeting      = "greeting"
	kindInsights      = "insights"
)

func promptKind(system string) string {
	switch {
	case strings.Contains(system, "detects contradictions"):
		return kindContradiction
	case strings.Contains(system, "follow-up questions"):
		return kindFollowUp
	case strings.Contains(system, "selecting the most relevant next question"):
		return kindSelection
	case strings.Contains(system, "HR assistant AI"):
		return kindSummary
	case strings.Contains(system, "check-in assistant"):
		return kindGreeting
	case strings.Contains(system, "HR analyst"):
		return kindInsights
	default:
		return "unknown"
	}
}

// MockCompleter answers completions per prompt kind and counts calls.
type MockCompleter struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	// responder, when set for a kind, computes the answer from the user prompt.
	responder map[string]func(user string) string
	calls     map[string]int
	lastUser  map[string]string
}

func NewMockCompleter() *MockCompleter {
	return &MockCompleter{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		responder: make(map[string]func(string) string),
		calls:     make(map[string]int),
		lastUser:  make(map[string]string),
	}
}

func (m *MockCompleter) On(kind, response string) *MockCompleter {
	m.responses[kind] = response
	return m
}

func (m *MockCompleter) Fail(kind string, err error) *MockCompleter {
	m.errs[kind] = err
	return m
}

func (m *MockCompleter) Respond(kind string, fn func(user string) string) *MockCompleter {
	m.responder[kind] = fn
	return m
}

func (m *MockCompleter) GeneratePromptWithContext(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kind := promptKind(system)
	m.calls[kind]++
	m.lastUser[kind] = user
	if err := m.errs[kind]; err != nil {
		return "", err
	}
	if fn := m.responder[kind]; fn != nil {
		return fn(user), nil
	}
	return m.responses[kind], nil
}

func (m *MockCompleter) Calls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

func (m *MockCompleter) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *MockCompleter) LastUser(kind string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUser[kind]
}

// blockingCompleter waits for the context to end.
type blockingCompleter struct{}

func (blockingCompleter) GeneratePromptWithContext(ctx context.Context, system, user string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// panicCompleter panics on every call.
type panicCompleter struct{}

func (panicCompleter) GeneratePromptWithContext(ctx context.Context, system, user string) (string, error) {
	panic("completion exploded")
}

// MockEmbedder returns fixed vectors per text; unknown texts get a zero vector.
type MockEmbedder struct {
	vectors map[string][]float64
	err     error
	batches int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vector(text), nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	m.batches++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *MockEmbedder) vector(text string) []float64 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	return []float64{0, 0, 0}
}

var errUpstream = errors.New("upstream unavailable")

func chatbotTurn(content string, tag models.TurnType) models.Message {
	return models.Message{SenderType: models.SenderChatbot, Content: content, MessageType: tag}
}

func employeeTurn(content string) models.Message {
	return models.Message{SenderType: models.SenderEmployee, Content: content, MessageType: models.TurnUserMessage}
}

// firstIndex always picks the first candidate.
func firstIndex(int) int { return 0 }
