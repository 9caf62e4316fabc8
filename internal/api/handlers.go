package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "vibecheck"}))
}

// upsertEmployeeHandler handles POST /employees.
func (s *Server) upsertEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpsertEmployeeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		slog.Warn("Server.upsertEmployeeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.upsertEmployeeHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	id := strings.TrimSpace(req.EmployeeID)
	existing, err := s.st.GetEmployee(id)
	if err != nil {
		writeError(w, "upsertEmployeeHandler", err)
		return
	}

	now := time.Now().UTC()
	emp := models.Employee{CreatedAt: now}
	status := http.StatusCreated
	if existing != nil {
		// Keep sentiment results and completion state across profile updates.
		emp = *existing
		status = http.StatusOK
	}
	emp.EmployeeID = id
	emp.Name = strings.TrimSpace(req.Name)
	emp.Email = req.Email
	emp.FeatureVector = req.FeatureVector
	emp.ShapNature = req.ShapNature
	emp.ShapValues = req.ShapValues
	emp.UpdatedAt = now

	if err := s.st.SaveEmployee(emp); err != nil {
		writeError(w, "upsertEmployeeHandler", err)
		return
	}
	slog.Info("Server.upsertEmployeeHandler: employee saved", "employeeID", id, "created", existing == nil)
	writeJSONResponse(w, status, models.SuccessWithMessage("Employee saved", emp))
}

// listEmployeesHandler handles GET /employees.
func (s *Server) listEmployeesHandler(w http.ResponseWriter, r *http.Request) {
	emps, err := s.st.ListEmployees()
	if err != nil {
		writeError(w, "listEmployeesHandler", err)
		return
	}
	if emps == nil {
		emps = []models.Employee{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(emps))
}

// getEmployeeHandler handles GET /employees/{id}.
func (s *Server) getEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	emp, err := s.st.GetEmployee(id)
	if err != nil {
		writeError(w, "getEmployeeHandler", err)
		return
	}
	if emp == nil {
		writeError(w, "getEmployeeHandler", models.ErrEmployeeNotFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(emp))
}

// employeeConversationsHandler handles GET /employees/{id}/conversations.
func (s *Server) employeeConversationsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	emp, err := s.st.GetEmployee(id)
	if err != nil {
		writeError(w, "employeeConversationsHandler", err)
		return
	}
	if emp == nil {
		writeError(w, "employeeConversationsHandler", models.ErrEmployeeNotFound)
		return
	}
	convs, err := s.st.ListConversationsByEmployee(id)
	if err != nil {
		writeError(w, "employeeConversationsHandler", err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(convs))
}

// startConversationHandler handles POST /conversations.
func (s *Server) startConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req models.StartConversationRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		slog.Warn("Server.startConversationHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "startConversationHandler", err)
		return
	}

	res, err := s.checkins.Start(r.Context(), strings.TrimSpace(req.EmployeeID))
	if err != nil {
		writeError(w, "startConversationHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Check-in started", res))
}

// sendMessageHandler handles POST /conversations/{id}/messages.
func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req models.SendMessageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		slog.Warn("Server.sendMessageHandler: failed to decode JSON", "error", err, "conversationID", id)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "sendMessageHandler", err)
		return
	}

	res, err := s.checkins.Respond(r.Context(), id, strings.TrimSpace(req.Message))
	if err != nil {
		writeError(w, "sendMessageHandler", err)
		return
	}
	if res.Completed {
		writeJSONResponse(w, http.StatusOK, models.Completed("Check-in completed", res))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// transcriptHandler handles GET /conversations/{id}/messages.
func (s *Server) transcriptHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.checkins.Transcript(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "transcriptHandler", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msgs))
}

// insightsHandler handles GET /conversations/{id}/insights.
func (s *Server) insightsHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.checkins.Insights(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "insightsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// reportHandler handles POST /conversations/{id}/report. The body is optional.
func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req models.ReportRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		slog.Warn("Server.reportHandler: failed to decode JSON", "error", err, "conversationID", id)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	report, err := s.checkins.Report(r.Context(), id, req)
	if err != nil {
		writeError(w, "reportHandler", err)
		return
	}
	if report.Escalate {
		slog.Warn("Server.reportHandler: conversation flagged for HR", "conversationID", id, "employeeID", report.EmployeeID, "severity", report.SeverityScore)
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}
