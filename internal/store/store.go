// Package store provides storage backends for VibeCheck.
//
// It includes an in-memory store used by tests and single-process setups, and
// SQLite and PostgreSQL stores for persistent storage. All backends keep
// employee profiles, check-in conversations and their append-only dialogue turns.
package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

// Store defines the persistence operations the application relies on.
// Get methods return (nil, nil) when the record does not exist.
type Store interface {
	SaveEmployee(e models.Employee) error
	GetEmployee(employeeID string) (*models.Employee, error)
	ListEmployees() ([]models.Employee, error)

	SaveConversation(c models.Conversation) error
	GetConversation(id string) (*models.Conversation, error)
	ListConversationsByEmployee(employeeID string) ([]models.Conversation, error)

	AppendMessage(m models.Message) error
	GetMessages(conversationID string) ([]models.Message, error)

	Close() error
}

// InMemoryStore is a simple in-memory store.
type InMemoryStore struct {
	mu            sync.RWMutex
	employees     map[string]models.Employee
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
}

// NewInMemoryStore creates a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	slog.Debug("Creating InMemoryStore")
	return &InMemoryStore{
		employees:     make(map[string]models.Employee),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (s *InMemoryStore) SaveEmployee(e models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.employees[e.EmployeeID]; ok && !existing.CreatedAt.IsZero() {
		e.CreatedAt = existing.CreatedAt
	}
	s.employees[e.EmployeeID] = cloneEmployee(e)
	return nil
}

func (s *InMemoryStore) GetEmployee(employeeID string) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[employeeID]
	if !ok {
		return nil, nil
	}
	cp := cloneEmployee(e)
	return &cp, nil
}

func (s *InMemoryStore) ListEmployees() ([]models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, cloneEmployee(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (s *InMemoryStore) SaveConversation(c models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (s *InMemoryStore) GetConversation(id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := cloneConversation(c)
	return &cp, nil
}

func (s *InMemoryStore) ListConversationsByEmployee(employeeID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Conversation
	for _, c := range s.conversations {
		if c.EmployeeID == employeeID {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) AppendMessage(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	return nil
}

func (s *InMemoryStore) GetMessages(conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

func cloneEmployee(e models.Employee) models.Employee {
	e.FeatureVector = append([]string(nil), e.FeatureVector...)
	if e.ShapNature != nil {
		nature := make(map[string]string, len(e.ShapNature))
		for k, v := range e.ShapNature {
			nature[k] = v
		}
		e.ShapNature = nature
	}
	if e.ShapValues != nil {
		values := make(map[string]float64, len(e.ShapValues))
		for k, v := range e.ShapValues {
			values[k] = v
		}
		e.ShapValues = values
	}
	return e
}

func cloneConversation(c models.Conversation) models.Conversation {
	c.Topics = append([]string(nil), c.Topics...)
	c.QuestionPool = append([]string(nil), c.QuestionPool...)
	c.AskedQuestions = append([]string(nil), c.AskedQuestions...)
	return c
}
