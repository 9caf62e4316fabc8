package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/VibeCheck/internal/models"
	"github.com/BTreeMap/VibeCheck/internal/sentiment"
)

// ErrReportUnavailable is returned by Report when no analyzer is configured.
var ErrReportUnavailable = errors.New("sentiment analysis is not configured")

// EmotionAnalyzer scores the employee side of a transcript.
type EmotionAnalyzer interface {
	Analyze(ctx context.Context, msgs []models.Message) sentiment.Analysis
}

// Report builds the sentiment report of a conversation and stores it on the
// conversation and on the employee's profile.
func (f *CheckInFlow) Report(ctx context.Context, conversationID string, req models.ReportRequest) (models.Report, error) {
	if f.analyzer == nil {
		return models.Report{}, ErrReportUnavailable
	}
	unlock := f.locks.Lock(conversationID)
	defer unlock()

	conv, err := f.store.GetConversation(conversationID)
	if err != nil {
		return models.Report{}, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		return models.Report{}, models.ErrConversationNotFound
	}
	msgs, err := f.store.GetMessages(conversationID)
	if err != nil {
		return models.Report{}, fmt.Errorf("load transcript %s: %w", conversationID, err)
	}
	if len(msgs) == 0 {
		return models.Report{}, models.ErrNoMessages
	}
	emp, err := f.store.GetEmployee(conv.EmployeeID)
	if err != nil {
		return models.Report{}, fmt.Errorf("load employee %s: %w", conv.EmployeeID, err)
	}

	shap := req.ShapValues
	if len(shap) == 0 && emp != nil {
		shap = emp.ShapValues
	}

	analysis := f.analyzer.Analyze(ctx, msgs)
	report := sentiment.BuildReport(*conv, msgs, shap, analysis)
	raw, err := json.Marshal(report)
	if err != nil {
		return models.Report{}, fmt.Errorf("encode report: %w", err)
	}

	now := time.Now().UTC()
	conv.Report = string(raw)
	conv.UpdatedAt = now
	if err := f.store.SaveConversation(*conv); err != nil {
		return models.Report{}, fmt.Errorf("save conversation %s: %w", conversationID, err)
	}
	if emp != nil {
		emp.SentimentScore = report.SeverityScore
		emp.IsFlagged = report.Escalate
		emp.Report = string(raw)
		emp.UpdatedAt = now
		if err := f.store.SaveEmployee(*emp); err != nil {
			return models.Report{}, fmt.Errorf("save employee %s: %w", emp.EmployeeID, err)
		}
	}

	slog.Info("CheckInFlow.Report: report generated", "conversationID", conversationID, "severity", report.SeverityScore, "sentiment", report.Sentiment, "escalate", report.Escalate, "classified", analysis.Classified)
	return report, nil
}
