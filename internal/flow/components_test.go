package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

func TestContradictionDetector_ShortHistorySkipsLLM(t *testing.T) {
	mock := NewMockCompleter().On(kindContradiction, "Why did you change your answer?")
	d := NewContradictionDetector(mock)

	for _, history := range [][]models.Message{nil, {chatbotTurn("hello", models.TurnWelcome)}} {
		got, err := d.Detect(context.Background(), "I love my job", history)
		if err != nil || got != "" {
			t.Errorf("expected no contradiction, got %q, %v", got, err)
		}
	}
	if mock.TotalCalls() != 0 {
		t.Errorf("expected no completion calls, got %d", mock.TotalCalls())
	}
}

func TestContradictionDetector_Sentinel(t *testing.T) {
	history := []models.Message{chatbotTurn("How is work?", models.TurnNormalQuestion), employeeTurn("Great")}
	for _, answer := range []string{"None", "none", " NONE. ", "\"None\"", ""} {
		mock := NewMockCompleter().On(kindContradiction, answer)
		got, err := NewContradictionDetector(mock).Detect(context.Background(), "fine", history)
		if err != nil || got != "" {
			t.Errorf("answer %q: expected no contradiction, got %q, %v", answer, got, err)
		}
		if mock.Calls(kindContradiction) != 1 {
			t.Errorf("answer %q: expected one call", answer)
		}
	}
}

func TestContradictionDetector_ReturnsQuestionVerbatim(t *testing.T) {
	history := []models.Message{employeeTurn("I never work late"), chatbotTurn("How are your hours?", models.TurnNormalQuestion)}
	mock := NewMockCompleter().On(kindContradiction, "  Earlier you said you never work late. What changed?  ")
	got, err := NewContradictionDetector(mock).Detect(context.Background(), "I stay until 10pm daily", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Earlier you said you never work late. What changed?" {
		t.Errorf("unexpected question %q", got)
	}
	user := mock.LastUser(kindContradiction)
	if !strings.Contains(user, "Employee: I never work late") || !strings.Contains(user, "I stay until 10pm daily") {
		t.Errorf("prompt missing transcript or utterance: %q", user)
	}
}

func TestContradictionDetector_Deterministic(t *testing.T) {
	history := []models.Message{chatbotTurn("q", models.TurnNormalQuestion), employeeTurn("a")}
	mock := NewMockCompleter().Respond(kindContradiction, func(user string) string {
		if strings.Contains(user, "hate") {
			return "Could you clarify?"
		}
		return "None"
	})
	d := NewContradictionDetector(mock)
	first, _ := d.Detect(context.Background(), "I hate it", history)
	for i := 0; i < 5; i++ {
		again, _ := d.Detect(context.Background(), "I hate it", history)
		if (again == "") != (first == "") {
			t.Fatal("same input must reach the same branch")
		}
	}
}

func TestContradictionDetector_ErrorReturned(t *testing.T) {
	history := []models.Message{chatbotTurn("q", models.TurnNormalQuestion), employeeTurn("a")}
	mock := NewMockCompleter().Fail(kindContradiction, errUpstream)
	if _, err := NewContradictionDetector(mock).Detect(context.Background(), "x", history); err == nil {
		t.Error("expected the upstream error to be returned")
	}
}

func TestFollowUpGenerator(t *testing.T) {
	mock := NewMockCompleter().On(kindFollowUp, "\n What made this week harder than usual?\n")
	got, err := NewFollowUpGenerator(mock).Generate(context.Background(), "This week was rough")
	if err != nil || got != "What made this week harder than usual?" {
		t.Errorf("unexpected result %q, %v", got, err)
	}
	if strings.Contains(mock.LastUser(kindFollowUp), "Chatbot:") {
		t.Error("follow-up prompt must use the latest utterance only")
	}

	failing := NewMockCompleter().Fail(kindFollowUp, errUpstream)
	if got, err := NewFollowUpGenerator(failing).Generate(context.Background(), "x"); err == nil || got != "" {
		t.Errorf("expected empty result and error, got %q, %v", got, err)
	}
}

func TestNextQuestionSelector_OnlyUnasked(t *testing.T) {
	pool := []string{"Q1", "Q2", "Q3"}
	answers := []string{"Q1", "Q2", "garbage", "", "Q3"}
	for _, answer := range answers {
		asked := NewAskedQuestions("Q1")
		mock := NewMockCompleter().On(kindSelection, answer)
		got, ok := NewNextQuestionSelector(mock).Select(context.Background(), nil, pool, asked)
		if !ok {
			t.Fatalf("answer %q: expected a question", answer)
		}
		if got != "Q2" && got != "Q3" {
			t.Errorf("answer %q: selector returned %q", answer, got)
		}
		if !asked.Has(got) {
			t.Errorf("answer %q: %q not recorded as asked", answer, got)
		}
	}
}

func TestNextQuestionSelector_ValidChoiceUsed(t *testing.T) {
	pool := []string{"How is your workload?", "Do you feel recognized?"}
	mock := NewMockCompleter().On(kindSelection, "  - \"do you feel   RECOGNIZED?\" ")
	got, ok := NewNextQuestionSelector(mock).Select(context.Background(), nil, pool, NewAskedQuestions())
	if !ok || got != "Do you feel recognized?" {
		t.Errorf("expected normalized match to return verbatim candidate, got %q", got)
	}
	if !strings.Contains(mock.LastUser(kindSelection), "- How is your workload?") {
		t.Error("prompt should list remaining candidates")
	}
}

func TestNextQuestionSelector_FallbackMembership(t *testing.T) {
	pool := []string{"A", "B", "C", "D"}
	s := NewNextQuestionSelector(NewMockCompleter().Fail(kindSelection, errUpstream))
	asked := NewAskedQuestions("B")
	for i := 0; i < 3; i++ {
		got, ok := s.Select(context.Background(), nil, pool, asked)
		if !ok {
			t.Fatalf("iteration %d: unexpected exhaustion", i)
		}
		if got == "B" {
			t.Fatal("fallback returned an asked question")
		}
	}
	if _, ok := s.Select(context.Background(), nil, pool, asked); ok {
		t.Error("expected exhaustion after every question was asked")
	}
}

func TestNextQuestionSelector_EmptyPoolIsExhausted(t *testing.T) {
	mock := NewMockCompleter()
	got, ok := NewNextQuestionSelector(mock).Select(context.Background(), nil, nil, NewAskedQuestions())
	if ok || got != "" {
		t.Errorf("expected exhausted sentinel, got %q, %v", got, ok)
	}
	if mock.TotalCalls() != 0 {
		t.Error("exhausted selector must not call the LLM")
	}
}

func TestNormalizeQuestion(t *testing.T) {
	cases := map[string]string{
		"  How are you?  ":        "how are you?",
		"- How are you?":          "how are you?",
		"2. How are you?":         "how are you?",
		"“How   are\tyou?”":       "how are you?",
		"'How are you?'":          "how are you?",
		"10 days off, was it ok?": "10 days off, was it ok?",
	}
	for in, want := range cases {
		if got := normalizeQuestion(in); got != want {
			t.Errorf("normalizeQuestion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRelevanceRanker_TokenMode(t *testing.T) {
	pool := []string{"How was your leave?", "Are rewards fair?", "Is onboarding clear?"}
	emb := &MockEmbedder{vectors: map[string][]float64{
		"summary":    {1, 0, 0},
		"rewards":    {1, 0, 0},
		"onboarding": {0.5, 0.5, 0},
		"leave":      {0, 1, 0},
	}}
	r := NewRelevanceRanker(emb, WithTopK(2))
	got := r.Rank(context.Background(), "summary", pool)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %v", got)
	}
	if got[0] != "Are rewards fair?" || got[1] != "Is onboarding clear?" {
		t.Errorf("unexpected ranking %v", got)
	}
}

func TestRelevanceRanker_WholeQuestionMode(t *testing.T) {
	pool := []string{"Q-low", "Q-high"}
	emb := &MockEmbedder{vectors: map[string][]float64{
		"summary": {1, 1, 0},
		"Q-low":   {0, 0, 1},
		"Q-high":  {1, 1, 0},
	}}
	got := NewRelevanceRanker(emb, WithRankMode(RankModeWholeQuestion)).Rank(context.Background(), "summary", pool)
	if len(got) != 2 || got[0] != "Q-high" {
		t.Errorf("unexpected ranking %v", got)
	}
}

func TestRelevanceRanker_SizeAndMembership(t *testing.T) {
	pool := make([]string, 30)
	for i := range pool {
		pool[i] = "question number " + string(rune('a'+i%26)) + strings.Repeat("x", i)
	}
	emb := &MockEmbedder{vectors: map[string][]float64{"s": {1, 0, 0}}}
	got := NewRelevanceRanker(emb).Rank(context.Background(), "s", pool)
	if len(got) != DefaultTopK {
		t.Fatalf("expected %d results, got %d", DefaultTopK, len(got))
	}
	members := make(map[string]bool)
	for _, q := range pool {
		members[q] = true
	}
	for _, q := range got {
		if !members[q] {
			t.Errorf("%q is not in the pool", q)
		}
	}

	small := NewRelevanceRanker(emb).Rank(context.Background(), "s", pool[:3])
	if len(small) != 3 {
		t.Errorf("expected all 3 results for a small pool, got %d", len(small))
	}
}

func TestRelevanceRanker_FailureFallsBackToPoolOrder(t *testing.T) {
	pool := []string{"Q1", "Q2", "Q3", "Q4"}
	emb := &MockEmbedder{err: errUpstream}
	got := NewRelevanceRanker(emb, WithTopK(3)).Rank(context.Background(), "summary", pool)
	want := []string{"Q1", "Q2", "Q3"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, got)
	}

	nilRanker := NewRelevanceRanker(nil, WithTopK(2))
	if got := nilRanker.Rank(context.Background(), "summary", pool); len(got) != 2 || got[0] != "Q1" {
		t.Errorf("nil embedder should return first K, got %v", got)
	}
}

func TestParseRankMode(t *testing.T) {
	if ParseRankMode("question") != RankModeWholeQuestion || ParseRankMode(" Sentence ") != RankModeWholeQuestion {
		t.Error("expected whole-question mode")
	}
	if ParseRankMode("") != RankModeToken || ParseRankMode("bogus") != RankModeToken {
		t.Error("expected token mode by default")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float64{1, 0}, []float64{1, 0}); got < 0.999 {
		t.Errorf("identical vectors: %v", got)
	}
	if got := cosineSimilarity([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: %v", got)
	}
	if got := cosineSimilarity([]float64{1}, []float64{1, 2}); got != 0 {
		t.Errorf("mismatched lengths: %v", got)
	}
	if got := cosineSimilarity([]float64{0, 0}, []float64{1, 2}); got != 0 {
		t.Errorf("zero vector: %v", got)
	}
}

func TestAskedQuestions(t *testing.T) {
	a := NewAskedQuestions("Q1", "Q1", "")
	if a.Len() != 1 {
		t.Errorf("expected dedupe, got %d", a.Len())
	}
	if a.Add("Q1") {
		t.Error("re-adding must report false")
	}
	a.Add("Q2")
	if got := a.List(); len(got) != 2 || got[1] != "Q2" {
		t.Errorf("unexpected order %v", got)
	}
}

func TestAskedQuestions_ScopedPerConversation(t *testing.T) {
	one := &ConversationState{Pool: []string{"Q1", "Q2"}, Asked: NewAskedQuestions()}
	two := &ConversationState{Pool: []string{"Q1", "Q2"}, Asked: NewAskedQuestions()}
	one.Asked.Add("Q1")
	if len(two.Remaining()) != 2 {
		t.Error("asking in one conversation must not affect another")
	}
	if r := one.Remaining(); len(r) != 1 || r[0] != "Q2" {
		t.Errorf("unexpected remaining %v", r)
	}
}

func TestSummaryGenerator(t *testing.T) {
	emp := models.Employee{
		EmployeeID:    "E1",
		FeatureVector: []string{"leave", "rewards"},
		ShapNature:    map[string]string{"rewards": "Not Satisfactory", "leave": "Less", "hours": "Very High"},
	}
	if got := DescribeProfile(emp); got != "leave: Less, rewards: Not Satisfactory, hours: Very High" {
		t.Errorf("unexpected profile description %q", got)
	}

	mock := NewMockCompleter().On(kindSummary, "Overworked and under-rewarded.")
	if got := NewSummaryGenerator(mock).Summarize(context.Background(), emp); got != "Overworked and under-rewarded." {
		t.Errorf("unexpected summary %q", got)
	}
	failing := NewMockCompleter().Fail(kindSummary, errUpstream)
	if got := NewSummaryGenerator(failing).Summarize(context.Background(), emp); got != DescribeProfile(emp) {
		t.Errorf("expected raw attributes on failure, got %q", got)
	}
}

func TestSessionLocks(t *testing.T) {
	l := NewSessionLocks()
	unlock := l.Lock("c1")
	done := make(chan struct{})
	go func() {
		u := l.Lock("c1")
		u()
		close(done)
	}()
	other := l.Lock("c2")
	other()

	select {
	case <-done:
		t.Fatal("second lock on c1 acquired while held")
	default:
	}
	unlock()
	<-done
	if l.Len() != 0 {
		t.Errorf("expected registry to be empty, got %d", l.Len())
	}
}
