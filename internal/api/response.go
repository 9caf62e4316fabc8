package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/VibeCheck/internal/flow"
	"github.com/BTreeMap/VibeCheck/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so an encoding failure can still change the status code
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusFor maps a domain error to an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrEmployeeNotFound),
		errors.Is(err, models.ErrConversationNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrConversationClosed):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrNoQuestionsForTopics),
		errors.Is(err, models.ErrNoMessages),
		errors.Is(err, models.ErrEmptyEmployeeID),
		errors.Is(err, models.ErrEmptyMessage),
		errors.Is(err, models.ErrMessageTooLong):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, flow.ErrReportUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Server."+op+": request failed", "error", err, "status", status)
	} else {
		slog.Warn("Server."+op+": request rejected", "error", err, "status", status)
	}
	writeJSONResponse(w, status, models.Error(msg))
}

// decodeJSON reads a size-limited JSON body into v. An empty body is
// accepted only when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return io.EOF
	}
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)).Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
}

func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	slog.Warn("Server.methodNotAllowedHandler: method not allowed", "method", r.Method, "path", r.URL.Path)
	writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
}
