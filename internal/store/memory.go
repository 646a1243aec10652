// Package store provides conversation-state storage backends for the survey bot.
//
// This file implements the volatile in-memory store. State lives only for the
// lifetime of the process and is discarded on restart.
package store

import (
	"sync"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// InMemoryStore keeps conversation state in a map guarded by a RWMutex.
// Reads and writes for distinct conversation keys do not interfere beyond the
// map lock; each Save/Delete replaces the whole entry atomically.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[int64]models.ConversationState
}

// NewInMemoryStore creates an empty in-memory conversation state store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[int64]models.ConversationState)}
}

// GetConversation retrieves a copy of the conversation state, or nil when no
// dialogue is in progress.
func (s *InMemoryStore) GetConversation(conversationID int64) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[conversationID]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate stored state without going through Save.
	out := state
	return &out, nil
}

// SaveConversation creates or replaces the state for a conversation.
func (s *InMemoryStore) SaveConversation(state models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ConversationID] = state
	return nil
}

// DeleteConversation removes the state for a conversation.
func (s *InMemoryStore) DeleteConversation(conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, conversationID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
