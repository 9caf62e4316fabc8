package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/VibeCheck/internal/models"
	"github.com/BTreeMap/VibeCheck/internal/questionbank"
)

func testBank(t *testing.T) *questionbank.Bank {
	t.Helper()
	raw := `{"topics":[
		{"id":"leave","description":"d","questions":["L1","L2"]},
		{"id":"rewards","description":"d","questions":["R1","R2","R3"]}
	]}`
	b, err := questionbank.Load(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	return b
}

func newState(tag models.TurnType, turns []models.Message, asked ...string) *ConversationState {
	return &ConversationState{
		ConversationID: "c_test",
		EmployeeID:     "E1",
		Topics:         []string{"leave", "rewards"},
		Turns:          turns,
		Pool:           []string{"L1", "L2", "R1", "R2", "R3"},
		Asked:          NewAskedQuestions(asked...),
		Tag:            tag,
	}
}

func longHistory() []models.Message {
	return []models.Message{
		chatbotTurn("Hi! How is your vibe today?", models.TurnWelcome),
		employeeTurn("Pretty good"),
		chatbotTurn("L1", models.TurnNormalQuestion),
	}
}

func TestController_WelcomeNoLLM(t *testing.T) {
	mock := NewMockCompleter()
	c := NewController(mock, testBank(t), WithRandom(func(n int) int { return n - 1 }))
	st := newState(models.TurnWelcome, []models.Message{chatbotTurn("hi", models.TurnWelcome)})

	r := c.Next(context.Background(), st, "good thanks")
	if r.TurnType != models.TurnNormalQuestion || st.Tag != models.TurnNormalQuestion {
		t.Errorf("welcome must move to normal_question, got %q", r.TurnType)
	}
	if r.Text != "L2" {
		t.Errorf("expected a question of the first topic, got %q", r.Text)
	}
	if !st.Asked.Has("L2") || st.MainQuestionsAsked != 1 {
		t.Error("welcome question must be recorded and counted")
	}
	if mock.TotalCalls() != 0 {
		t.Errorf("welcome must not call the LLM, got %d calls", mock.TotalCalls())
	}
}

func TestController_WelcomeUnknownTopicApologizes(t *testing.T) {
	c := NewController(NewMockCompleter(), testBank(t))
	st := newState(models.TurnWelcome, nil)
	st.Topics = []string{"payroll"}
	r := c.Next(context.Background(), st, "hello")
	if r.Text != ApologyMessage || r.TurnType != models.TurnNormalQuestion {
		t.Errorf("expected apology, got %+v", r)
	}
}

func TestController_ContradictionAdvancesTag(t *testing.T) {
	cases := []struct {
		from, want models.TurnType
	}{
		{models.TurnNormalQuestion, models.TurnFollowUp1},
		{models.TurnFollowUp1, models.TurnFollowUp2},
	}
	for _, tc := range cases {
		mock := NewMockCompleter().On(kindContradiction, "You said the opposite earlier. Which is it?")
		c := NewController(mock, testBank(t))
		st := newState(tc.from, longHistory(), "L1")

		r := c.Next(context.Background(), st, "Actually it is bad")
		if r.TurnType != tc.want || st.Tag != tc.want {
			t.Errorf("from %q: expected %q, got %q", tc.from, tc.want, r.TurnType)
		}
		if r.Text != "You said the opposite earlier. Which is it?" {
			t.Errorf("unexpected text %q", r.Text)
		}
		if !st.Asked.Has(r.Text) {
			t.Error("clarifying question should be recorded as asked")
		}
		if mock.Calls(kindFollowUp) != 0 {
			t.Error("follow-up must not run when a contradiction is found")
		}
	}
}

func TestController_FollowUpWhenNoContradiction(t *testing.T) {
	mock := NewMockCompleter().On(kindContradiction, "None").On(kindFollowUp, "What would make it better?")
	c := NewController(mock, testBank(t))
	st := newState(models.TurnNormalQuestion, longHistory(), "L1")

	r := c.Next(context.Background(), st, "Could be better")
	if r.Text != "What would make it better?" || r.TurnType != models.TurnFollowUp1 {
		t.Errorf("unexpected reply %+v", r)
	}
}

func TestController_ContradictionFailureFailsOpen(t *testing.T) {
	mock := NewMockCompleter().Fail(kindContradiction, errUpstream).On(kindFollowUp, "Tell me more?")
	c := NewController(mock, testBank(t))
	st := newState(models.TurnFollowUp1, longHistory(), "L1")

	r := c.Next(context.Background(), st, "meh")
	if r.Text != "Tell me more?" || r.TurnType != models.TurnFollowUp2 {
		t.Errorf("expected follow-up after failed contradiction check, got %+v", r)
	}
}

func TestController_EmptyFollowUpSelectsNext(t *testing.T) {
	mock := NewMockCompleter().On(kindContradiction, "None").On(kindFollowUp, "  ").On(kindSelection, "R2")
	c := NewController(mock, testBank(t))
	st := newState(models.TurnNormalQuestion, longHistory(), "L1")

	r := c.Next(context.Background(), st, "ok")
	if r.Text != "R2" || r.TurnType != models.TurnNormalQuestion {
		t.Errorf("expected next main question, got %+v", r)
	}
	if st.MainQuestionsAsked != 1 {
		t.Errorf("expected main question counter to advance, got %d", st.MainQuestionsAsked)
	}
}

func TestController_FollowUp2SelectsNext(t *testing.T) {
	mock := NewMockCompleter().On(kindSelection, "R1")
	c := NewController(mock, testBank(t))
	st := newState(models.TurnFollowUp2, longHistory(), "L1")

	r := c.Next(context.Background(), st, "that's all")
	if r.Text != "R1" || r.TurnType != models.TurnNormalQuestion {
		t.Errorf("unexpected reply %+v", r)
	}
	if mock.Calls(kindContradiction) != 0 || mock.Calls(kindFollowUp) != 0 {
		t.Error("followup_2 must go straight to selection")
	}
}

func TestController_ExhaustionCloses(t *testing.T) {
	mock := NewMockCompleter()
	c := NewController(mock, testBank(t))
	st := newState(models.TurnFollowUp2, longHistory(), "L1", "L2", "R1", "R2", "R3")

	r := c.Next(context.Background(), st, "done")
	if !r.Exhausted || !st.Exhausted || r.Text != ClosingMessage {
		t.Errorf("expected closing reply, got %+v", r)
	}
}

func TestController_MainQuestionLimit(t *testing.T) {
	mock := NewMockCompleter().On(kindSelection, "R1")
	c := NewController(mock, testBank(t))
	st := newState(models.TurnFollowUp2, longHistory(), "L1")
	st.MainQuestionsAsked = 2
	st.MaxMainQuestions = 2

	r := c.Next(context.Background(), st, "done")
	if !r.Exhausted || r.Text != ClosingMessage {
		t.Errorf("expected limit to close the check-in, got %+v", r)
	}
	if mock.Calls(kindSelection) != 0 {
		t.Error("no selection call once the limit is reached")
	}
}

func TestController_PanicBecomesApology(t *testing.T) {
	c := NewController(panicCompleter{}, testBank(t))
	st := newState(models.TurnNormalQuestion, longHistory(), "L1")

	r := c.Next(context.Background(), st, "hello")
	if r.Text != ApologyMessage || r.TurnType != models.TurnNormalQuestion || st.Tag != models.TurnNormalQuestion {
		t.Errorf("expected apology tagged normal_question, got %+v", r)
	}
}

func TestController_TimeoutFallsBack(t *testing.T) {
	c := NewController(blockingCompleter{}, testBank(t), WithLLMTimeout(20*time.Millisecond), WithRandom(firstIndex))
	st := newState(models.TurnNormalQuestion, longHistory(), "L1")

	start := time.Now()
	r := c.Next(context.Background(), st, "hmm")
	if time.Since(start) > 2*time.Second {
		t.Fatal("stalled calls must be bounded by the timeout")
	}
	if r.Text != "L2" || r.TurnType != models.TurnNormalQuestion {
		t.Errorf("expected random fallback question, got %+v", r)
	}
}

func TestController_NoRepeatsAcrossConversation(t *testing.T) {
	// The LLM keeps proposing the same question; the session must never repeat it.
	mock := NewMockCompleter().On(kindContradiction, "None").On(kindFollowUp, "").On(kindSelection, "L1")
	c := NewController(mock, testBank(t))
	st := newState(models.TurnWelcome, []models.Message{chatbotTurn("hi", models.TurnWelcome)})

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		r := c.Next(context.Background(), st, "answer")
		st.Turns = append(st.Turns, employeeTurn("answer"), chatbotTurn(r.Text, r.TurnType))
		if r.Exhausted {
			break
		}
		if seen[r.Text] {
			t.Fatalf("question %q emitted twice", r.Text)
		}
		seen[r.Text] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected every pool question exactly once, got %d", len(seen))
	}
	if !st.Exhausted {
		t.Error("expected the conversation to end when the pool ran out")
	}
}
