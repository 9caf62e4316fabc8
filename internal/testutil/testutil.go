// Package testutil provides common test helpers for VibeCheck tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/VibeCheck/internal/models"
	"github.com/BTreeMap/VibeCheck/internal/store"
)

// SampleEmployee returns a profile with the given topics, each marked as a
// negative SHAP factor.
func SampleEmployee(id, name string, topics ...string) models.Employee {
	nature := make(map[string]string, len(topics))
	values := make(map[string]float64, len(topics))
	for i, topic := range topics {
		nature[topic] = "Less"
		values[topic] = float64(len(topics)-i) / 10
	}
	now := time.Now().UTC()
	return models.Employee{
		EmployeeID:    id,
		Name:          name,
		FeatureVector: topics,
		ShapNature:    nature,
		ShapValues:    values,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SeedEmployees saves emps into st and fails the test on error.
func SeedEmployees(t testing.TB, st store.Store, emps ...models.Employee) {
	t.Helper()
	for _, e := range emps {
		if err := st.SaveEmployee(e); err != nil {
			t.Fatalf("failed to seed employee %s: %v", e.EmployeeID, err)
		}
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// NewJSONRequest builds a request whose body is body marshaled as JSON, or
// a raw string when body is a string. A nil body sends no content.
func NewJSONRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var data []byte
	switch b := body.(type) {
	case nil:
	case string:
		data = []byte(b)
	default:
		data = MustMarshalJSON(t, b)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeAPIResponse parses the standard response envelope.
func DecodeAPIResponse(t testing.TB, rr *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode JSON response %q: %v", rr.Body.String(), err)
	}
	return resp
}

// DecodeResult re-decodes an envelope's result into target.
func DecodeResult(t testing.TB, resp models.APIResponse, target interface{}) {
	t.Helper()
	MustUnmarshalJSON(t, MustMarshalJSON(t, resp.Result), target)
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
