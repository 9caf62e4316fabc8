// This file implements a PostgreSQL-backed store for employees, conversations and messages.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/VibeCheck/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SaveEmployee inserts or replaces an employee profile, keeping the first created_at.
func (s *PostgresStore) SaveEmployee(e models.Employee) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
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
		slog.Error("PostgresStore SaveEmployee failed", "error", err, "employeeID", e.EmployeeID)
		return fmt.Errorf("failed to save employee %s: %w", e.EmployeeID, err)
	}
	slog.Debug("PostgresStore SaveEmployee succeeded", "employeeID", e.EmployeeID)
	return nil
}

func (s *PostgresStore) GetEmployee(employeeID string) (*models.Employee, error) {
	row := s.db.QueryRow(`SELECT `+employeeColumnList+` FROM employees WHERE employee_id = $1`, employeeID)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetEmployee not found", "employeeID", employeeID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetEmployee failed", "error", err, "employeeID", employeeID)
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) ListEmployees() ([]models.Employee, error) {
	rows, err := s.db.Query(`SELECT ` + employeeColumnList + ` FROM employees ORDER BY employee_id`)
	if err != nil {
		slog.Error("PostgresStore ListEmployees query failed", "error", err)
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	employees, err := collect(rows, scanEmployeeValue)
	if err != nil {
		slog.Error("PostgresStore ListEmployees failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore ListEmployees succeeded", "count", len(employees))
	return employees, nil
}

// SaveConversation inserts or updates a conversation row.
func (s *PostgresStore) SaveConversation(c models.Conversation) error {
	cols, err := encodeConversation(c)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO conversations (`+conversationColumnList+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
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
		slog.Error("PostgresStore SaveConversation failed", "error", err, "conversationID", c.ID)
		return fmt.Errorf("failed to save conversation %s: %w", c.ID, err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "conversationID", c.ID, "turnType", c.TurnType)
	return nil
}

func (s *PostgresStore) GetConversation(id string) (*models.Conversation, error) {
	row := s.db.QueryRow(`SELECT `+conversationColumnList+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetConversation not found", "conversationID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "conversationID", id)
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) ListConversationsByEmployee(employeeID string) ([]models.Conversation, error) {
	rows, err := s.db.Query(`SELECT `+conversationColumnList+` FROM conversations
		WHERE employee_id = $1 ORDER BY created_at`, employeeID)
	if err != nil {
		slog.Error("PostgresStore ListConversationsByEmployee query failed", "error", err, "employeeID", employeeID)
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return collect(rows, scanConversationValue)
}

// AppendMessage adds a dialogue turn. Messages are never updated.
func (s *PostgresStore) AppendMessage(m models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (`+messageColumnList+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ConversationID, string(m.SenderType), m.Content, string(m.MessageType), m.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AppendMessage failed", "error", err, "conversationID", m.ConversationID)
		return fmt.Errorf("failed to append message to %s: %w", m.ConversationID, err)
	}
	return nil
}

func (s *PostgresStore) GetMessages(conversationID string) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT `+messageColumnList+` FROM messages
		WHERE conversation_id = $1 ORDER BY seq`, conversationID)
	if err != nil {
		slog.Error("PostgresStore GetMessages query failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	msgs, err := collect(rows, scanMessage)
	if err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore GetMessages succeeded", "conversationID", conversationID, "count", len(msgs))
	return msgs, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
