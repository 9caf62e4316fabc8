package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/BTreeMap/VibeCheck/internal/models"
	"github.com/BTreeMap/VibeCheck/internal/questionbank"
)

// DefaultLLMTimeout bounds each completion or embedding call.
const DefaultLLMTimeout = 30 * time.Second

// Reply is the controller's decision for one turn.
type Reply struct {
	Text     string
	TurnType models.TurnType
	// Exhausted is set when the check-in has nothing more to ask.
	Exhausted bool
}

// Controller is the check-in state machine. It is safe for concurrent use
// across different conversations; a single ConversationState must not be
// passed to Next concurrently.
type Controller struct {
	bank      *questionbank.Bank
	detector  *ContradictionDetector
	followUps *FollowUpGenerator
	selector  *NextQuestionSelector
	timeout   time.Duration
	pick      func(n int) int
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLLMTimeout sets the per-call timeout. Non-positive values are ignored.
func WithLLMTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRandom replaces the random index source used for the welcome question
// and the selector fallback.
func WithRandom(pick func(n int) int) ControllerOption {
	return func(c *Controller) {
		if pick != nil {
			c.pick = pick
			c.selector.pick = pick
		}
	}
}

// NewController wires a controller around a completion client and question bank.
func NewController(client Completer, bank *questionbank.Bank, opts ...ControllerOption) *Controller {
	c := &Controller{
		bank:      bank,
		detector:  NewContradictionDetector(client),
		followUps: NewFollowUpGenerator(client),
		selector:  NewNextQuestionSelector(client),
		timeout:   DefaultLLMTimeout,
		pick:      rand.IntN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Next computes the chatbot reply to utterance and advances st. st.Turns must
// hold the dialogue before utterance. Failures inside a transition produce a
// fixed apology tagged normal_question.
func (c *Controller) Next(ctx context.Context, st *ConversationState, utterance string) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Controller.Next: transition panicked", "conversationID", st.ConversationID, "tag", st.Tag, "panic", r)
			reply = Reply{Text: ApologyMessage, TurnType: models.TurnNormalQuestion}
			st.Tag = reply.TurnType
		}
	}()

	from := st.Tag
	r, err := c.transition(ctx, st, utterance)
	if err != nil {
		slog.Error("Controller.Next: transition failed", "conversationID", st.ConversationID, "tag", from, "error", err)
		r = Reply{Text: ApologyMessage, TurnType: models.TurnNormalQuestion}
	}
	st.Tag = r.TurnType
	if r.Exhausted {
		st.Exhausted = true
	}
	slog.Debug("Controller.Next: transition", "conversationID", st.ConversationID, "from", from, "to", r.TurnType, "exhausted", r.Exhausted)
	return r
}

func (c *Controller) transition(ctx context.Context, st *ConversationState, utterance string) (Reply, error) {
	switch st.Tag {
	case models.TurnWelcome:
		return c.welcome(st)
	case models.TurnNormalQuestion, models.TurnFollowUp1:
		if r, ok := c.probe(ctx, st, utterance); ok {
			return r, nil
		}
	}
	return c.nextMain(ctx, st), nil
}

// welcome picks a random question from the employee's first topic. No LLM call.
func (c *Controller) welcome(st *ConversationState) (Reply, error) {
	if len(st.Topics) == 0 {
		return Reply{}, fmt.Errorf("employee %s has no topics", st.EmployeeID)
	}
	questions := c.bank.Questions(st.Topics[0])
	if len(questions) == 0 {
		return Reply{}, fmt.Errorf("topic %q: %w", st.Topics[0], models.ErrNoQuestionsForTopics)
	}
	q := questions[c.pick(len(questions))]
	st.Asked.Add(q)
	st.MainQuestionsAsked++
	return Reply{Text: q, TurnType: models.TurnNormalQuestion}, nil
}

// probe asks a clarifying or follow-up question about the last answer. It
// reports false when neither is available.
func (c *Controller) probe(ctx context.Context, st *ConversationState, utterance string) (Reply, bool) {
	next := models.TurnFollowUp1
	if st.Tag == models.TurnFollowUp1 {
		next = models.TurnFollowUp2
	}

	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	clarify, err := c.detector.Detect(dctx, utterance, st.Turns)
	cancel()
	if err != nil {
		slog.Warn("Controller.probe: contradiction check failed, assuming none", "conversationID", st.ConversationID, "error", err)
		clarify = ""
	}
	if clarify != "" {
		st.Asked.Add(clarify)
		return Reply{Text: clarify, TurnType: next}, true
	}

	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	followUp, err := c.followUps.Generate(fctx, utterance)
	cancel()
	if err != nil {
		slog.Warn("Controller.probe: follow-up generation failed", "conversationID", st.ConversationID, "error", err)
		return Reply{}, false
	}
	if followUp == "" {
		return Reply{}, false
	}
	return Reply{Text: followUp, TurnType: next}, true
}

// nextMain selects the next main question, or closes the check-in when the
// limit is reached or the pool is exhausted.
func (c *Controller) nextMain(ctx context.Context, st *ConversationState) Reply {
	if st.MaxMainQuestions > 0 && st.MainQuestionsAsked >= st.MaxMainQuestions {
		slog.Info("Controller.nextMain: main question limit reached", "conversationID", st.ConversationID, "asked", st.MainQuestionsAsked)
		return closingReply()
	}

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	q, ok := c.selector.Select(sctx, st.Turns, st.Pool, st.Asked)
	cancel()
	if !ok {
		slog.Info("Controller.nextMain: question pool exhausted", "conversationID", st.ConversationID)
		return closingReply()
	}
	st.MainQuestionsAsked++
	return Reply{Text: q, TurnType: models.TurnNormalQuestion}
}

func closingReply() Reply {
	return Reply{Text: ClosingMessage, TurnType: models.TurnNormalQuestion, Exhausted: true}
}
