package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// memberStatuses are the chat-member statuses admitted by the gate.
var memberStatuses = map[string]bool{
	"creator":       true,
	"administrator": true,
	"member":        true,
	"restricted":    true,
}

// MembershipGate admits only members of the configured channel. The bot must be
// an administrator of the channel for member lookups to work.
type MembershipGate struct {
	bot       *tgbotapi.BotAPI
	channelID int64
}

// NewMembershipGate creates a gate over the transport's bot client.
func NewMembershipGate(svc *Service, channelID int64) *MembershipGate {
	return &MembershipGate{bot: svc.bot, channelID: channelID}
}

// Allow returns nil for channel members, models.ErrNotChannelMember for
// non-members and unknown users, and a wrapped error for API failures.
func (g *MembershipGate) Allow(ctx context.Context, userID int64) error {
	member, err := g.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: g.channelID,
			UserID: userID,
		},
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "user not found") {
			slog.Warn("User not found in channel", "user_id", userID)
			return models.ErrNotChannelMember
		}
		slog.Error("Membership verification failed", "error", err, "user_id", userID)
		return fmt.Errorf("membership verification failed: %w", err)
	}
	if !memberStatuses[member.Status] {
		slog.Warn("User is not a channel member", "user_id", userID, "status", member.Status)
		return models.ErrNotChannelMember
	}
	return nil
}
