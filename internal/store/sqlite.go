// This file implements an SQLite-backed store for employees, conversations and messages.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/BTreeMap/VibeCheck/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		slog.Debug("SQLite database directory verified/created", "dir", dir)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveEmployee inserts or replaces an employee profile, keeping the first created_at.
func (s *SQLiteStore) SaveEmployee(e models.Employee) error {
	cols, err := encodeEmployee(e)
	if err != nil {
		return err
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	_, err = s.db.Exec(`
		INSERT INTO employees (`+employeeColumnList+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (employee_id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			feature_vector = excluded.feature_vector,
			shap_nature = excluded.shap_nature,
			shap_values = excluded.shap_values,
			sentiment_score = excluded.sentiment_score,
			is_flagged = excluded.is_flagged,
			conversation_completed = excluded.conversation_completed,
			report = excluded.report,
			updated_at = excluded.updated_at`,
		e.EmployeeID, e.Name, e.Email, cols.featureVector, cols.shapNature, cols.shapValues,
		e.SentimentScore, e.IsFlagged, e.ConversationCompleted, e.Report, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveEmployee failed", "error", err, "employeeID", e.EmployeeID)
		return fmt.Errorf("failed to save employee %s: %w", e.EmployeeID, err)
	}
	slog.Debug("SQLiteStore SaveEmployee succeeded", "employeeID", e.EmployeeID)
	return nil
}

func (s *SQLiteStore) GetEmployee(employeeID string) (*models.Employee, error) {
	row := s.db.QueryRow(`SELECT `+employeeColumnList+` FROM employees WHERE employee_id = ?`, employeeID)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetEmployee not found", "employeeID", employeeID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetEmployee failed", "error", err, "employeeID", employeeID)
		return nil, err
	}
	return e, nil
}

func (s *SQLiteStore) ListEmployees() ([]models.Employee, error) {
	rows, err := s.db.Query(`SELECT ` + employeeColumnList + ` FROM employees ORDER BY employee_id`)
	if err != nil {
		slog.Error("SQLiteStore ListEmployees query failed", "error", err)
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	employees, err := collect(rows, scanEmployeeValue)
	if err != nil {
		slog.Error("SQLiteStore ListEmployees failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore ListEmployees succeeded", "count", len(employees))
	return employees, nil
}

// SaveConversation inserts or updates a conversation row.
func (s *SQLiteStore) SaveConversation(c models.Conversation) error {
	cols, err := encodeConversation(c)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO conversations (`+conversationColumnList+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			employee_name = excluded.employee_name,
			topics = excluded.topics,
			turn_type = excluded.turn_type,
			question_pool = excluded.question_pool,
			asked_questions = excluded.asked_questions,
			main_questions_asked = excluded.main_questions_asked,
			status = excluded.status,
			report = excluded.report,
			updated_at = excluded.updated_at`,
		c.ID, c.EmployeeID, c.EmployeeName, cols.topics, string(c.TurnType), cols.pool,
		cols.asked, c.MainQuestionsAsked, string(c.Status), c.Report, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "conversationID", c.ID)
		return fmt.Errorf("failed to save conversation %s: %w", c.ID, err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "conversationID", c.ID, "turnType", c.TurnType)
	return nil
}

func (s *SQLiteStore) GetConversation(id string) (*models.Conversation, error) {
	row := s.db.QueryRow(`SELECT `+conversationColumnList+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetConversation not found", "conversationID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "conversationID", id)
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) ListConversationsByEmployee(employeeID string) ([]models.Conversation, error) {
	rows, err := s.db.Query(`SELECT `+conversationColumnList+` FROM conversations
		WHERE employee_id = ? ORDER BY created_at`, employeeID)
	if err != nil {
		slog.Error("SQLiteStore ListConversationsByEmployee query failed", "error", err, "employeeID", employeeID)
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return collect(rows, scanConversationValue)
}

// AppendMessage adds a dialogue turn. Messages are never updated.
func (s *SQLiteStore) AppendMessage(m models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (`+messageColumnList+`) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, string(m.SenderType), m.Content, string(m.MessageType), m.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AppendMessage failed", "error", err, "conversationID", m.ConversationID)
		return fmt.Errorf("failed to append message to %s: %w", m.ConversationID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT `+messageColumnList+` FROM messages
		WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore GetMessages query failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	msgs, err := collect(rows, scanMessage)
	if err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore GetMessages succeeded", "conversationID", conversationID, "count", len(msgs))
	return msgs, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
