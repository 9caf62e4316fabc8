package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/VibeCheck/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// encodeJSON marshals v for a JSON/TEXT column. A nil value is stored as empty.
func encodeJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

type employeeColumns struct {
	featureVector string
	shapNature    string
	shapValues    string
}

func encodeEmployee(e models.Employee) (employeeColumns, error) {
	var cols employeeColumns
	var err error
	if cols.featureVector, err = encodeJSON(e.FeatureVector, "[]"); err != nil {
		return cols, fmt.Errorf("encode feature_vector: %w", err)
	}
	if cols.shapNature, err = encodeJSON(e.ShapNature, "{}"); err != nil {
		return cols, fmt.Errorf("encode shap_nature: %w", err)
	}
	if cols.shapValues, err = encodeJSON(e.ShapValues, "{}"); err != nil {
		return cols, fmt.Errorf("encode shap_values: %w", err)
	}
	return cols, nil
}

type conversationColumns struct {
	topics string
	pool   string
	asked  string
}

func encodeConversation(c models.Conversation) (conversationColumns, error) {
	var cols conversationColumns
	var err error
	if cols.topics, err = encodeJSON(c.Topics, "[]"); err != nil {
		return cols, fmt.Errorf("encode topics: %w", err)
	}
	if cols.pool, err = encodeJSON(c.QuestionPool, "[]"); err != nil {
		return cols, fmt.Errorf("encode question_pool: %w", err)
	}
	if cols.asked, err = encodeJSON(c.AskedQuestions, "[]"); err != nil {
		return cols, fmt.Errorf("encode asked_questions: %w", err)
	}
	return cols, nil
}

// decodeInto unmarshals a JSON column, leaving v untouched when raw is empty.
// Corrupt values are logged and ignored rather than failing the read.
func decodeInto(raw []byte, v any, column, id string) {
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, v); err != nil {
		slog.Error("store.decodeInto: JSON unmarshal failed", "error", err, "column", column, "id", id)
	}
}

const employeeColumnList = `employee_id, name, email, feature_vector, shap_nature, shap_values,
	sentiment_score, is_flagged, conversation_completed, report, created_at, updated_at`

func scanEmployee(row rowScanner) (*models.Employee, error) {
	var e models.Employee
	var fv, nature, values []byte
	var email, report sql.NullString
	if err := row.Scan(&e.EmployeeID, &e.Name, &email, &fv, &nature, &values,
		&e.SentimentScore, &e.IsFlagged, &e.ConversationCompleted, &report,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Email = email.String
	e.Report = report.String
	decodeInto(fv, &e.FeatureVector, "feature_vector", e.EmployeeID)
	decodeInto(nature, &e.ShapNature, "shap_nature", e.EmployeeID)
	decodeInto(values, &e.ShapValues, "shap_values", e.EmployeeID)
	return &e, nil
}

const conversationColumnList = `id, employee_id, employee_name, topics, turn_type, question_pool,
	asked_questions, main_questions_asked, status, report, created_at, updated_at`

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var topics, pool, asked []byte
	var turn, status string
	var report sql.NullString
	if err := row.Scan(&c.ID, &c.EmployeeID, &c.EmployeeName, &topics, &turn, &pool,
		&asked, &c.MainQuestionsAsked, &status, &report, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.TurnType = models.TurnType(turn)
	c.Status = models.ConversationStatus(status)
	c.Report = report.String
	decodeInto(topics, &c.Topics, "topics", c.ID)
	decodeInto(pool, &c.QuestionPool, "question_pool", c.ID)
	decodeInto(asked, &c.AskedQuestions, "asked_questions", c.ID)
	return &c, nil
}

const messageColumnList = `id, conversation_id, sender_type, content, message_type, created_at`

func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var sender, msgType string
	if err := row.Scan(&m.ID, &m.ConversationID, &sender, &m.Content, &msgType, &m.CreatedAt); err != nil {
		return m, err
	}
	m.SenderType = models.SenderType(sender)
	m.MessageType = models.TurnType(msgType)
	return m, nil
}

// collect drains rows with scan, closing rows when done.
func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

func scanEmployeeValue(row rowScanner) (models.Employee, error) {
	e, err := scanEmployee(row)
	if err != nil {
		return models.Employee{}, err
	}
	return *e, nil
}

func scanConversationValue(row rowScanner) (models.Conversation, error) {
	c, err := scanConversation(row)
	if err != nil {
		return models.Conversation{}, err
	}
	return *c, nil
}
