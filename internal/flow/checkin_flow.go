package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/VibeCheck/internal/models"
	"github.com/BTreeMap/VibeCheck/internal/questionbank"
	"github.com/BTreeMap/VibeCheck/internal/store"
	"github.com/BTreeMap/VibeCheck/internal/util"
)

// DefaultMaxMainQuestions is the main-question cap applied when none is configured.
const DefaultMaxMainQuestions = 6

// Opts holds configuration for a CheckInFlow.
type Opts struct {
	Embedder         Embedder
	TopK             int
	RankMode         RankMode
	MaxMainQuestions int
	LLMTimeout       time.Duration
	Random           func(n int) int
	Analyzer         EmotionAnalyzer
}

// Option configures a CheckInFlow.
type Option func(*Opts)

// WithEmbedder enables relevance ranking of the question pool.
func WithEmbedder(e Embedder) Option {
	return func(o *Opts) { o.Embedder = e }
}

// WithRelevanceTopK sets how many ranked questions are kept per check-in.
func WithRelevanceTopK(k int) Option {
	return func(o *Opts) { o.TopK = k }
}

// WithRelevanceMode sets the ranking granularity.
func WithRelevanceMode(mode RankMode) Option {
	return func(o *Opts) { o.RankMode = mode }
}

// WithMaxMainQuestions caps the main questions per check-in. 0 disables the cap.
func WithMaxMainQuestions(n int) Option {
	return func(o *Opts) { o.MaxMainQuestions = n }
}

// WithTimeout bounds each LLM or embedding call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.LLMTimeout = d }
}

// WithEmotionAnalyzer enables sentiment reports.
func WithEmotionAnalyzer(a EmotionAnalyzer) Option {
	return func(o *Opts) { o.Analyzer = a }
}

// WithRandomSource replaces the random index source, mainly for tests.
func WithRandomSource(pick func(n int) int) Option {
	return func(o *Opts) { o.Random = pick }
}

// CheckInFlow runs check-in conversations end to end: it builds the question
// pool, persists every turn and drives the Controller.
type CheckInFlow struct {
	store            store.Store
	client           Completer
	bank             *questionbank.Bank
	controller       *Controller
	ranker           *RelevanceRanker
	summaries        *SummaryGenerator
	insights         *InsightsGenerator
	analyzer         EmotionAnalyzer
	locks            *SessionLocks
	rank             bool
	maxMainQuestions int
	timeout          time.Duration
}

// NewCheckInFlow creates a flow over st using client for completions.
func NewCheckInFlow(st store.Store, client Completer, bank *questionbank.Bank, opts ...Option) *CheckInFlow {
	cfg := Opts{
		TopK:             DefaultTopK,
		RankMode:         RankModeToken,
		MaxMainQuestions: DefaultMaxMainQuestions,
		LLMTimeout:       DefaultLLMTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.MaxMainQuestions < 0 {
		cfg.MaxMainQuestions = 0
	}
	if bank == nil {
		bank = questionbank.Default()
	}
	slog.Debug("CheckInFlow.NewCheckInFlow: creating flow", "ranking", cfg.Embedder != nil, "topK", cfg.TopK, "rankMode", cfg.RankMode, "maxMainQuestions", cfg.MaxMainQuestions, "timeout", cfg.LLMTimeout)

	return &CheckInFlow{
		store:            st,
		client:           client,
		bank:             bank,
		controller:       NewController(client, bank, WithLLMTimeout(cfg.LLMTimeout), WithRandom(cfg.Random)),
		ranker:           NewRelevanceRanker(cfg.Embedder, WithTopK(cfg.TopK), WithRankMode(cfg.RankMode)),
		summaries:        NewSummaryGenerator(client),
		insights:         NewInsightsGenerator(client),
		analyzer:         cfg.Analyzer,
		locks:            NewSessionLocks(),
		rank:             cfg.Embedder != nil,
		maxMainQuestions: cfg.MaxMainQuestions,
		timeout:          cfg.LLMTimeout,
	}
}

// Start begins a check-in for employeeID and returns the greeting.
func (f *CheckInFlow) Start(ctx context.Context, employeeID string) (models.StartConversationResult, error) {
	emp, err := f.store.GetEmployee(employeeID)
	if err != nil {
		return models.StartConversationResult{}, fmt.Errorf("load employee %s: %w", employeeID, err)
	}
	if emp == nil {
		return models.StartConversationResult{}, models.ErrEmployeeNotFound
	}

	pool := f.bank.Pool(emp.FeatureVector)
	if len(pool) == 0 {
		slog.Warn("CheckInFlow.Start: no questions for employee topics", "employeeID", employeeID, "topics", emp.FeatureVector)
		return models.StartConversationResult{}, models.ErrNoQuestionsForTopics
	}
	if f.rank {
		sctx, cancel := context.WithTimeout(ctx, f.timeout)
		summary := f.summaries.Summarize(sctx, *emp)
		cancel()
		rctx, cancel := context.WithTimeout(ctx, f.timeout)
		pool = f.ranker.Rank(rctx, summary, pool)
		cancel()
	}

	greeting := f.greeting(ctx, emp.Name)
	now := time.Now().UTC()
	conv := models.Conversation{
		ID:           util.GenerateConversationID(),
		EmployeeID:   emp.EmployeeID,
		EmployeeName: emp.Name,
		Topics:       append([]string(nil), emp.FeatureVector...),
		TurnType:     models.TurnWelcome,
		QuestionPool: pool,
		Status:       models.ConversationStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.store.SaveConversation(conv); err != nil {
		return models.StartConversationResult{}, fmt.Errorf("save conversation: %w", err)
	}
	if err := f.appendTurn(conv.ID, models.SenderChatbot, greeting, models.TurnWelcome); err != nil {
		return models.StartConversationResult{}, err
	}

	if emp.ConversationCompleted {
		emp.ConversationCompleted = false
		emp.UpdatedAt = now
		if err := f.store.SaveEmployee(*emp); err != nil {
			slog.Warn("CheckInFlow.Start: failed to reset completion flag", "employeeID", employeeID, "error", err)
		}
	}

	slog.Info("CheckInFlow.Start: check-in started", "conversationID", conv.ID, "employeeID", employeeID, "poolSize", len(pool))
	return models.StartConversationResult{
		ConversationID:    conv.ID,
		ChatbotResponse:   greeting,
		SelectedQuestions: pool,
	}, nil
}

func (f *CheckInFlow) greeting(ctx context.Context, name string) string {
	gctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	out, err := greetingRequest(name).run(gctx, f.client)
	if err != nil {
		slog.Warn("CheckInFlow.greeting: completion failed, using fallback", "error", err)
		return fmt.Sprintf(GreetingFallback, name)
	}
	if out = strings.TrimSpace(out); out == "" {
		return fmt.Sprintf(GreetingFallback, name)
	}
	return out
}

// Respond records the employee's message and returns the chatbot's reply.
// Calls for the same conversation are applied one at a time.
func (f *CheckInFlow) Respond(ctx context.Context, conversationID, text string) (models.SendMessageResult, error) {
	unlock := f.locks.Lock(conversationID)
	defer unlock()

	conv, err := f.store.GetConversation(conversationID)
	if err != nil {
		return models.SendMessageResult{}, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		return models.SendMessageResult{}, models.ErrConversationNotFound
	}
	if conv.Status == models.ConversationStatusCompleted {
		return models.SendMessageResult{}, models.ErrConversationClosed
	}
	turns, err := f.store.GetMessages(conversationID)
	if err != nil {
		return models.SendMessageResult{}, fmt.Errorf("load transcript %s: %w", conversationID, err)
	}

	if err := f.appendTurn(conversationID, models.SenderEmployee, text, models.TurnUserMessage); err != nil {
		return models.SendMessageResult{}, err
	}

	state := NewConversationState(*conv, turns, f.maxMainQuestions)
	reply := f.controller.Next(ctx, state, text)

	if err := f.appendTurn(conversationID, models.SenderChatbot, reply.Text, reply.TurnType); err != nil {
		return models.SendMessageResult{}, err
	}
	state.ApplyTo(conv)
	conv.UpdatedAt = time.Now().UTC()
	if err := f.store.SaveConversation(*conv); err != nil {
		return models.SendMessageResult{}, fmt.Errorf("save conversation %s: %w", conversationID, err)
	}

	if reply.Exhausted {
		f.markCompleted(conv.EmployeeID)
		slog.Info("CheckInFlow.Respond: check-in completed", "conversationID", conversationID, "mainQuestions", state.MainQuestionsAsked)
	}

	return models.SendMessageResult{
		ConversationID:  conversationID,
		ChatbotResponse: reply.Text,
		MessageType:     reply.TurnType,
		Completed:       reply.Exhausted,
	}, nil
}

func (f *CheckInFlow) markCompleted(employeeID string) {
	emp, err := f.store.GetEmployee(employeeID)
	if err != nil || emp == nil {
		slog.Warn("CheckInFlow.markCompleted: employee not available", "employeeID", employeeID, "error", err)
		return
	}
	emp.ConversationCompleted = true
	emp.UpdatedAt = time.Now().UTC()
	if err := f.store.SaveEmployee(*emp); err != nil {
		slog.Warn("CheckInFlow.markCompleted: failed to save employee", "employeeID", employeeID, "error", err)
	}
}

// Transcript returns the stored turns of a conversation, oldest first.
func (f *CheckInFlow) Transcript(ctx context.Context, conversationID string) ([]models.Message, error) {
	conv, err := f.store.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		return nil, models.ErrConversationNotFound
	}
	msgs, err := f.store.GetMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", conversationID, err)
	}
	return msgs, nil
}

// Insights asks the LLM for an HR analysis of the whole conversation.
func (f *CheckInFlow) Insights(ctx context.Context, conversationID string) (models.InsightsResult, error) {
	conv, err := f.store.GetConversation(conversationID)
	if err != nil {
		return models.InsightsResult{}, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		return models.InsightsResult{}, models.ErrConversationNotFound
	}
	msgs, err := f.store.GetMessages(conversationID)
	if err != nil {
		return models.InsightsResult{}, fmt.Errorf("load transcript %s: %w", conversationID, err)
	}

	ictx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	text, err := f.insights.Generate(ictx, conv.EmployeeName, msgs)
	if err != nil {
		return models.InsightsResult{}, fmt.Errorf("generate insights: %w", err)
	}
	return models.InsightsResult{
		ConversationID: conv.ID,
		EmployeeID:     conv.EmployeeID,
		EmployeeName:   conv.EmployeeName,
		Insights:       text,
	}, nil
}

func (f *CheckInFlow) appendTurn(conversationID string, sender models.SenderType, content string, tag models.TurnType) error {
	m := models.Message{
		ID:             util.GenerateMessageID(),
		ConversationID: conversationID,
		SenderType:     sender,
		Content:        content,
		MessageType:    tag,
		CreatedAt:      time.Now().UTC(),
	}
	if err := f.store.AppendMessage(m); err != nil {
		return fmt.Errorf("append %s turn: %w", sender, err)
	}
	return nil
}
