package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/VibeCheck/internal/flow"
	"github.com/BTreeMap/VibeCheck/internal/genai"
	"github.com/BTreeMap/VibeCheck/internal/models"
	"github.com/BTreeMap/VibeCheck/internal/questionbank"
	"github.com/BTreeMap/VibeCheck/internal/sentiment"
	"github.com/BTreeMap/VibeCheck/internal/store"
	"github.com/BTreeMap/VibeCheck/internal/testutil"
)

// silentCompleter returns empty completions, which drives the flow down its
// deterministic fallbacks.
type silentCompleter struct{}

func (silentCompleter) GeneratePromptWithContext(ctx context.Context, system, user string) (string, error) {
	return "", nil
}

type sadGenerator struct{}

func (sadGenerator) GenerateStructured(ctx context.Context, req genai.StructuredRequest, out any) error {
	*out.(*sentiment.EmotionScores) = sentiment.EmotionScores{Sadness: 0.9}
	return nil
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	bank, err := questionbank.Load(strings.NewReader(`{"topics":[{"id":"leave","description":"d","questions":["How is your leave balance?","Did you take time off?"]}]}`))
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	st := store.NewInMemoryStore()
	f := flow.NewCheckInFlow(st, silentCompleter{}, bank,
		flow.WithMaxMainQuestions(1),
		flow.WithEmotionAnalyzer(sentiment.NewAnalyzer(sadGenerator{}, time.Second)))
	return NewServer(st, f), st
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, testutil.NewJSONRequest(t, method, path, body))
	return rec, testutil.DecodeAPIResponse(t, rec)
}

const employeeJSON = `{"employee_id":"E1","name":"Asha","feature_vector":["leave"],"shap_nature":{"leave":"Less"},"shap_values":{"leave":0.7}}`

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec, resp := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || resp.Status != string(models.APIStatusOK) {
		t.Errorf("unexpected health response %d %+v", rec.Code, resp)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestEmployeeEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := do(t, s, http.MethodPost, "/employees", employeeJSON)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rec.Code, "create employee")
	rec, _ = do(t, s, http.MethodPost, "/employees", employeeJSON)
	testutil.AssertHTTPStatus(t, http.StatusOK, rec.Code, "update employee")

	rec, resp := do(t, s, http.MethodGet, "/employees/E1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var emp models.Employee
	testutil.DecodeResult(t, resp, &emp)
	if emp.Name != "Asha" || len(emp.FeatureVector) != 1 {
		t.Errorf("unexpected employee %+v", emp)
	}

	_, resp = do(t, s, http.MethodGet, "/employees", "")
	var emps []models.Employee
	testutil.DecodeResult(t, resp, &emps)
	if len(emps) != 1 {
		t.Errorf("expected one employee, got %d", len(emps))
	}

	if rec, _ := do(t, s, http.MethodGet, "/employees/nobody", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown employee, got %d", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodPost, "/employees", `{"employee_id":"E2","name":"x","feature_vector":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty feature vector, got %d", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodPost, "/employees", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestCheckInLifecycle(t *testing.T) {
	s, st := newTestServer(t)
	testutil.SeedEmployees(t, st, testutil.SampleEmployee("E1", "Asha", "leave"))

	rec, resp := do(t, s, http.MethodPost, "/conversations", `{"employee_id":"E1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var start models.StartConversationResult
	testutil.DecodeResult(t, resp, &start)
	if start.ConversationID == "" || !strings.HasPrefix(start.ChatbotResponse, "Hi Asha!") || len(start.SelectedQuestions) != 2 {
		t.Fatalf("unexpected start result %+v", start)
	}
	base := "/conversations/" + start.ConversationID

	rec, resp = do(t, s, http.MethodPost, base+"/messages", `{"message":"Doing fine"}`)
	var reply models.SendMessageResult
	testutil.DecodeResult(t, resp, &reply)
	if rec.Code != http.StatusOK || resp.Status != string(models.APIStatusOK) || reply.MessageType != models.TurnNormalQuestion {
		t.Fatalf("unexpected first reply %d %+v", rec.Code, resp)
	}

	rec, resp = do(t, s, http.MethodPost, base+"/messages", `{"message":"All good"}`)
	testutil.DecodeResult(t, resp, &reply)
	if resp.Status != string(models.APIStatusCompleted) || !reply.Completed || reply.ChatbotResponse != flow.ClosingMessage {
		t.Fatalf("expected completion, got %d %+v", rec.Code, resp)
	}

	if rec, _ := do(t, s, http.MethodPost, base+"/messages", `{"message":"hello?"}`); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 after completion, got %d", rec.Code)
	}

	_, resp = do(t, s, http.MethodGet, base+"/messages", "")
	var msgs []models.Message
	testutil.DecodeResult(t, resp, &msgs)
	if len(msgs) != 5 {
		t.Errorf("expected 5 stored turns, got %d", len(msgs))
	}

	rec, resp = do(t, s, http.MethodPost, base+"/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from report, got %d: %s", rec.Code, rec.Body.String())
	}
	var report models.Report
	testutil.DecodeResult(t, resp, &report)
	if report.Sentiment != models.SentimentSevere || !report.Escalate || report.ShapValues["leave"] != 0.1 {
		t.Errorf("unexpected report %+v", report)
	}
	emp, _ := st.GetEmployee("E1")
	if !emp.IsFlagged || !emp.ConversationCompleted {
		t.Errorf("employee not updated: %+v", emp)
	}

	_, resp = do(t, s, http.MethodGet, "/employees/E1/conversations", "")
	var convs []models.Conversation
	testutil.DecodeResult(t, resp, &convs)
	if len(convs) != 1 || convs[0].Status != models.ConversationStatusCompleted {
		t.Errorf("unexpected conversations %+v", convs)
	}
}

func TestConversationErrors(t *testing.T) {
	s, _ := newTestServer(t)
	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"missing employee id", http.MethodPost, "/conversations", `{}`, http.StatusBadRequest},
		{"unknown employee", http.MethodPost, "/conversations", `{"employee_id":"ghost"}`, http.StatusNotFound},
		{"unknown conversation", http.MethodPost, "/conversations/c_x/messages", `{"message":"hi"}`, http.StatusNotFound},
		{"empty message", http.MethodPost, "/conversations/c_x/messages", `{"message":"  "}`, http.StatusBadRequest},
		{"unknown transcript", http.MethodGet, "/conversations/c_x/messages", "", http.StatusNotFound},
		{"unknown report", http.MethodPost, "/conversations/c_x/report", `{}`, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/conversations", "", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := do(t, s, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if resp.Status != string(models.APIStatusError) {
				t.Errorf("expected error envelope, got %+v", resp)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", models.ErrEmployeeNotFound), http.StatusNotFound},
		{models.ErrConversationClosed, http.StatusConflict},
		{models.ErrNoQuestionsForTopics, http.StatusBadRequest},
		{models.ErrNoMessages, http.StatusBadRequest},
		{flow.ErrReportUnavailable, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, msg := statusFor(tc.err)
		if got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
		if got == http.StatusInternalServerError && msg != "Internal server error" {
			t.Errorf("internal errors must not leak details, got %q", msg)
		}
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("expected the caller's request id, got %q", got)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	st := store.NewInMemoryStore()
	s := NewServer(st, flow.NewCheckInFlow(st, silentCompleter{}, nil), WithAddr("127.0.0.1:0"), WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}
