package models

import (
	"strings"
	"time"
)

// TurnType tags each dialogue turn and drives the check-in state machine.
type TurnType string

const (
	TurnWelcome        TurnType = "welcome"
	TurnNormalQuestion TurnType = "normal_question"
	TurnFollowUp1      TurnType = "followup_1"
	TurnFollowUp2      TurnType = "followup_2"
	TurnInsight        TurnType = "insight"
	TurnUserMessage    TurnType = "user_msg"
)

// IsValidTurnType checks if the given turn type is known.
func IsValidTurnType(t TurnType) bool {
	switch t {
	case TurnWelcome, TurnNormalQuestion, TurnFollowUp1, TurnFollowUp2, TurnInsight, TurnUserMessage:
		return true
	default:
		return false
	}
}

// SenderType identifies who produced a dialogue turn.
type SenderType string

const (
	SenderChatbot  SenderType = "chatbot"
	SenderEmployee SenderType = "employee"
)

// ConversationStatus is the lifecycle state of a check-in.
type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "active"
	ConversationStatusCompleted ConversationStatus = "completed"
)

// Message is one stored dialogue turn. It is never modified after it is appended.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderType     SenderType `json:"sender_type"`
	Content        string     `json:"content"`
	MessageType    TurnType   `json:"message_type"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Conversation is the persisted form of a check-in session, including the
// session-owned question pool and asked-question set.
type Conversation struct {
	ID                 string             `json:"id"`
	EmployeeID         string             `json:"employee_id"`
	EmployeeName       string             `json:"employee_name"`
	Topics             []string           `json:"topics"`
	TurnType           TurnType           `json:"turn_type"`
	QuestionPool       []string           `json:"question_pool"`
	AskedQuestions     []string           `json:"asked_questions"`
	MainQuestionsAsked int                `json:"main_questions_asked"`
	Status             ConversationStatus `json:"status"`
	Report             string             `json:"report,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// StartConversationRequest represents the payload for starting a check-in.
type StartConversationRequest struct {
	EmployeeID string `json:"employee_id"`
}

// Validate validates a StartConversationRequest.
func (r *StartConversationRequest) Validate() error {
	if strings.TrimSpace(r.EmployeeID) == "" {
		return ErrEmptyEmployeeID
	}
	return nil
}

// SendMessageRequest represents the payload for an employee message.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// Validate validates a SendMessageRequest.
func (r *SendMessageRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// StartConversationResult is returned when a check-in begins.
type StartConversationResult struct {
	ConversationID    string   `json:"conversation_id"`
	ChatbotResponse   string   `json:"chatbot_response"`
	SelectedQuestions []string `json:"selected_questions"`
}

// SendMessageResult is returned after each employee message.
type SendMessageResult struct {
	ConversationID  string   `json:"conversation_id"`
	ChatbotResponse string   `json:"chatbot_response"`
	MessageType     TurnType `json:"message_type"`
	Completed       bool     `json:"completed"`
}

// InsightsResult carries generated insights for a conversation.
type InsightsResult struct {
	ConversationID string `json:"conversation_id"`
	EmployeeID     string `json:"employee_id"`
	EmployeeName   string `json:"employee_name"`
	Insights       string `json:"insights"`
}
