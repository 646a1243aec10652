// Package store provides conversation-state storage backends for the survey bot.
//
// This file implements an SQLite-backed store for conversation state.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversation state in an SQLite database file.
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

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetConversation retrieves the state for a conversation, or nil when absent.
func (s *SQLiteStore) GetConversation(conversationID int64) (*models.ConversationState, error) {
	row := s.db.QueryRow(
		`SELECT conversation_id, current_step, record, created_at, updated_at FROM conversation_states WHERE conversation_id = ?`,
		conversationID,
	)
	state, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "conversation_id", conversationID)
		return nil, fmt.Errorf("failed to load conversation %d: %w", conversationID, err)
	}
	return state, nil
}

// SaveConversation creates or replaces the state for a conversation.
func (s *SQLiteStore) SaveConversation(state models.ConversationState) error {
	recordJSON, err := json.Marshal(state.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO conversation_states (conversation_id, current_step, record, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET current_step = excluded.current_step, record = excluded.record, updated_at = excluded.updated_at`,
		state.ConversationID, string(state.CurrentStep), string(recordJSON), state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "conversation_id", state.ConversationID)
		return fmt.Errorf("failed to save conversation %d: %w", state.ConversationID, err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "conversation_id", state.ConversationID, "step", state.CurrentStep)
	return nil
}

// DeleteConversation removes the state for a conversation.
func (s *SQLiteStore) DeleteConversation(conversationID int64) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE conversation_id = ?`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversation failed", "error", err, "conversation_id", conversationID)
		return fmt.Errorf("failed to delete conversation %d: %w", conversationID, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
