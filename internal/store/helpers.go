package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// scanConversation scans a ConversationState from a single sql.Row, decoding the
// record JSON column. Returns sql.ErrNoRows unchanged so callers can map absent
// state to nil.
func scanConversation(row *sql.Row) (*models.ConversationState, error) {
	var state models.ConversationState
	var step, recordJSON string
	err := row.Scan(&state.ConversationID, &step, &recordJSON, &state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		return nil, err
	}
	state.CurrentStep = models.Step(step)
	if err := json.Unmarshal([]byte(recordJSON), &state.Record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &state, nil
}
