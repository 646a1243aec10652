// Package messaging defines the pluggable transport abstraction for the survey bot.
//
// The core never talks to a concrete messenger; it sends and edits text through
// Service and receives normalized events from the Events channel. Delivery
// ordering per conversation is assumed FIFO.
package messaging

import (
	"context"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// SendText sends an HTML-formatted text message to a conversation and
	// returns a reference usable for later edits or deletion.
	SendText(ctx context.Context, conversationID int64, text string) (models.MessageRef, error)

	// SendChoices sends a text message with one inline button per choice.
	// A button press comes back as an EventChoice carrying the chosen value.
	SendChoices(ctx context.Context, conversationID int64, text string, choices []string) (models.MessageRef, error)

	// SendLinks sends a text message with one URL button per link, plus a
	// dismiss button that deletes the message when pressed.
	SendLinks(ctx context.Context, conversationID int64, text string, links []models.Link) (models.MessageRef, error)

	// EditText replaces the text of a previously sent message. Any attached
	// keyboard is removed.
	EditText(ctx context.Context, ref models.MessageRef, text string) error

	// DeleteMessage deletes a previously sent message.
	DeleteMessage(ctx context.Context, ref models.MessageRef) error

	// FileURL resolves a transport file reference into a downloadable URL.
	FileURL(ctx context.Context, fileID string) (string, error)

	// Events returns the channel of normalized inbound events.
	Events() <-chan models.Event

	// Start begins background processing (e.g., long polling for updates).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the events channel.
	Stop() error
}

// DismissCallback is the choice payload of a button that deletes its own
// message. The bot runtime handles it before the step executor sees it.
const DismissCallback = "delete_message"

// Gate decides whether an incoming event may reach the core. Implementations
// return nil to allow, models.ErrNotChannelMember to block a non-member, or any
// other error for a verification failure.
type Gate interface {
	Allow(ctx context.Context, userID int64) error
}

// AllowAllGate is a Gate that admits every user. Used in tests and deployments
// without a membership requirement.
type AllowAllGate struct{}

// Allow always admits the user.
func (AllowAllGate) Allow(ctx context.Context, userID int64) error {
	return nil
}
