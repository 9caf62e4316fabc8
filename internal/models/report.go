package models

// SentimentLabel buckets a severity score.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "Positive"
	SentimentNeutral  SentimentLabel = "Neutral"
	SentimentNegative SentimentLabel = "Negative"
	SentimentSevere   SentimentLabel = "Severe"
)

// ReportTurn is one line of the conversation history embedded in a report.
type ReportTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Report is the sentiment report generated at the end of a check-in.
type Report struct {
	ConversationID      string             `json:"conversation_id"`
	EmployeeID          string             `json:"employee_id"`
	EmployeeName        string             `json:"employee_name"`
	Date                string             `json:"date"`
	Time                string             `json:"time"`
	ExecutiveSummary    string             `json:"executive_summary"`
	ConversationHistory []ReportTurn       `json:"conversation_history"`
	ShapValues          map[string]float64 `json:"shap_values,omitempty"`
	Sentiment           SentimentLabel     `json:"sentiment"`
	SeverityScore       float64            `json:"severity_score"`
	SentimentCommentary string             `json:"sentiment_commentary"`
	Escalate            bool               `json:"escalate"`
	DetailedInsights    string             `json:"detailed_insights"`
}

// ReportRequest optionally overrides the SHAP values shown in the report.
type ReportRequest struct {
	ShapValues map[string]float64 `json:"shap_values,omitempty"`
}
