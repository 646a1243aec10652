// Package store provides conversation-state storage backends for the survey bot.
//
// This file implements a PostgreSQL-backed store for conversation state.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
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

// PostgresStore persists conversation state in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

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
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetConversation retrieves the state for a conversation, or nil when absent.
func (s *PostgresStore) GetConversation(conversationID int64) (*models.ConversationState, error) {
	row := s.db.QueryRow(
		`SELECT conversation_id, current_step, record, created_at, updated_at FROM conversation_states WHERE conversation_id = $1`,
		conversationID,
	)
	state, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to load conversation %d: %w", conversationID, err)
	}
	return state, nil
}

// SaveConversation creates or replaces the state for a conversation.
func (s *PostgresStore) SaveConversation(state models.ConversationState) error {
	recordJSON, err := json.Marshal(state.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO conversation_states (conversation_id, current_step, record, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (conversation_id) DO UPDATE SET current_step = EXCLUDED.current_step, record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`,
		state.ConversationID, string(state.CurrentStep), string(recordJSON), state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "conversation_id", state.ConversationID)
		return fmt.Errorf("failed to save conversation %d: %w", state.ConversationID, err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "conversation_id", state.ConversationID, "step", state.CurrentStep)
	return nil
}

// DeleteConversation removes the state for a conversation.
func (s *PostgresStore) DeleteConversation(conversationID int64) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE conversation_id = $1`, conversationID)
	if err != nil {
		slog.Error("PostgresStore DeleteConversation failed", "error", err, "conversation_id", conversationID)
		return fmt.Errorf("failed to delete conversation %d: %w", conversationID, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
