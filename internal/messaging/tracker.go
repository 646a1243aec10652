// Package messaging provides conversation-scoped bookkeeping of outbound messages.
package messaging

import (
	"sync"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// MessageTracker records outbound message references per conversation so the
// dialogue's own prompts can be removed in bulk on /stop or after finalize.
// The list is keyed by conversation, never process-wide.
type MessageTracker struct {
	mu   sync.Mutex
	sent map[int64][]models.MessageRef
}

// NewMessageTracker creates an empty tracker.
func NewMessageTracker() *MessageTracker {
	return &MessageTracker{sent: make(map[int64][]models.MessageRef)}
}

// Track records an outbound message for a conversation. Zero references are ignored.
func (t *MessageTracker) Track(conversationID int64, ref models.MessageRef) {
	if ref.IsZero() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[conversationID] = append(t.sent[conversationID], ref)
}

// Drain returns all tracked references for a conversation and forgets them.
func (t *MessageTracker) Drain(conversationID int64) []models.MessageRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	refs := t.sent[conversationID]
	delete(t.sent, conversationID)
	return refs
}
