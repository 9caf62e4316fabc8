package models

import (
	"errors"
	"strings"
	"time"
)

// Employee is the profile the check-in is built from. FeatureVector is the
// ordered list of topic ids derived from SHAP attributions; its first element
// seeds the welcome question.
type Employee struct {
	EmployeeID            string             `json:"employee_id"`
	Name                  string             `json:"name"`
	Email                 string             `json:"email,omitempty"`
	FeatureVector         []string           `json:"feature_vector"`
	ShapNature            map[string]string  `json:"shap_nature,omitempty"`
	ShapValues            map[string]float64 `json:"shap_values,omitempty"`
	SentimentScore        float64            `json:"sentiment_score"`
	IsFlagged             bool               `json:"is_flagged"`
	ConversationCompleted bool               `json:"conversation_completed"`
	Report                string             `json:"report,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// UpsertEmployeeRequest represents the payload for creating or replacing a profile.
type UpsertEmployeeRequest struct {
	EmployeeID    string             `json:"employee_id"`
	Name          string             `json:"name"`
	Email         string             `json:"email,omitempty"`
	FeatureVector []string           `json:"feature_vector"`
	ShapNature    map[string]string  `json:"shap_nature,omitempty"`
	ShapValues    map[string]float64 `json:"shap_values,omitempty"`
}

// Validate validates an UpsertEmployeeRequest.
func (r *UpsertEmployeeRequest) Validate() error {
	if strings.TrimSpace(r.EmployeeID) == "" {
		return ErrEmptyEmployeeID
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if len(r.Name) > MaxNameLength {
		return errors.New("name exceeds maximum length")
	}
	if len(r.FeatureVector) == 0 {
		return errors.New("feature_vector must contain at least one topic")
	}
	for _, topic := range r.FeatureVector {
		if strings.TrimSpace(topic) == "" {
			return errors.New("feature_vector cannot contain empty topics")
		}
	}
	return nil
}
