package sentiment

import (
	"math"
	"time"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

const executiveSummary = "This report summarizes the employee’s conversation with the chatbot, highlighting key factors " +
	"affecting their well-being based on provided SHAP values and emotion analysis."

// BuildReport assembles the report for a conversation. shap overrides the
// employee's stored SHAP values when non-empty.
func BuildReport(conv models.Conversation, msgs []models.Message, shap map[string]float64, a Analysis) models.Report {
	label, commentary := Label(a.Severity)

	history := make([]models.ReportTurn, 0, len(msgs))
	for _, m := range msgs {
		role := "Chatbot"
		if m.SenderType == models.SenderEmployee {
			role = "Employee"
		}
		history = append(history, models.ReportTurn{Role: role, Content: m.Content})
	}

	started := conv.CreatedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}

	recommendation := "Monitor employee well-being and consider follow-up discussions."
	if a.Escalate {
		recommendation = "Immediate HR intervention required due to severe emotional state."
	}

	return models.Report{
		ConversationID:      conv.ID,
		EmployeeID:          conv.EmployeeID,
		EmployeeName:        conv.EmployeeName,
		Date:                started.Format("2006-01-02"),
		Time:                started.Format("15:04:05"),
		ExecutiveSummary:    executiveSummary,
		ConversationHistory: history,
		ShapValues:          shap,
		Sentiment:           label,
		SeverityScore:       math.Round(a.Severity*100) / 100,
		SentimentCommentary: commentary,
		Escalate:            a.Escalate,
		DetailedInsights:    "Recommendations: " + recommendation,
	}
}
