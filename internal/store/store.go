// Package store provides conversation-state storage backends for the survey bot.
//
// It includes an in-memory store for single-process deployments and persistent
// SQLite and PostgreSQL backends behind the same interface, so the step executor
// never changes when durability requirements do.
package store

import (
	"strings"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// Store defines the conversation state store contract.
//
// Absent state is a valid, common value (no dialogue in progress) and is
// reported as a nil state with a nil error, never as an error. Implementations
// must support concurrent access across distinct conversation keys; updates to
// one key must be atomic.
type Store interface {
	// GetConversation retrieves the state for a conversation, or nil when the
	// conversation has no dialogue in progress.
	GetConversation(conversationID int64) (*models.ConversationState, error)

	// SaveConversation creates or replaces the state for a conversation.
	SaveConversation(state models.ConversationState) error

	// DeleteConversation removes the state for a conversation. Deleting absent
	// state is not an error.
	DeleteConversation(conversationID int64) error

	// Close releases any resources held by the store.
	Close() error
}

// Opts holds configuration options for store constructors.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (a bare file path is treated as SQLite).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	for _, kv := range []string{"host=", "user=", "dbname="} {
		if strings.Contains(dsn, kv) {
			return "postgres"
		}
	}
	return "sqlite"
}
