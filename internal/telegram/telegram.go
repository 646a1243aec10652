// Package telegram implements the messaging transport over the Telegram Bot API.
//
// It adapts Telegram updates into the core's normalized events and renders
// outbound messages, inline keyboards, and message edits. All outbound text is
// sent with HTML formatting.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// Constants for the Telegram transport configuration.
const (
	// DefaultPollTimeout is the long-polling timeout in seconds.
	DefaultPollTimeout = 60
	// DefaultChannelBufferSize defines the buffer size of the events channel.
	DefaultChannelBufferSize = 100
)

// Opts holds configuration options for the Telegram transport.
type Opts struct {
	Token       string
	PollTimeout int
	Debug       bool
}

// Option defines a configuration option for the Telegram transport.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithPollTimeout sets the long-polling timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(o *Opts) {
		o.PollTimeout = seconds
	}
}

// WithDebug enables the Bot API client's request logging.
func WithDebug() Option {
	return func(o *Opts) {
		o.Debug = true
	}
}

// Service implements messaging.Service over the Telegram Bot API.
type Service struct {
	bot         *tgbotapi.BotAPI
	events      chan models.Event
	pollTimeout int
}

// NewService creates a Telegram transport, authorizing the bot token.
func NewService(opts ...Option) (*Service, error) {
	cfg := Opts{PollTimeout: DefaultPollTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		slog.Error("Telegram bot token not set")
		return nil, fmt.Errorf("telegram bot token not set")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		slog.Error("Failed to authorize Telegram bot", "error", err)
		return nil, fmt.Errorf("failed to authorize telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	return &Service{
		bot:         bot,
		events:      make(chan models.Event, DefaultChannelBufferSize),
		pollTimeout: cfg.PollTimeout,
	}, nil
}

// Start begins long polling for updates and translating them into events.
func (s *Service) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = s.pollTimeout
	updates := s.bot.GetUpdatesChan(u)
	slog.Debug("Telegram transport polling started", "timeout", s.pollTimeout)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				s.handleUpdate(update)
			}
		}
	}()
	return nil
}

// Stop stops polling and closes the events channel.
func (s *Service) Stop() error {
	slog.Info("Telegram transport stopping")
	s.bot.StopReceivingUpdates()
	close(s.events)
	return nil
}

// Events returns the channel of normalized inbound events.
func (s *Service) Events() <-chan models.Event {
	return s.events
}

// handleUpdate maps one Telegram update to a normalized event.
func (s *Service) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		s.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		s.handleMessage(update.Message)
	default:
		slog.Debug("Telegram transport ignoring update", "update_id", update.UpdateID)
	}
}

func (s *Service) handleMessage(msg *tgbotapi.Message) {
	event := models.Event{
		ConversationID: msg.Chat.ID,
		Ref:            models.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID},
		Text:           msg.Text,
	}
	if msg.From != nil {
		event.UserID = msg.From.ID
	}

	switch {
	case msg.IsCommand():
		event.Kind = models.EventCommand
		event.Command = msg.Command()
		event.CommandArgs = msg.CommandArguments()
	case len(msg.Photo) > 0:
		event.Kind = models.EventPhoto
		for _, size := range msg.Photo {
			event.Photos = append(event.Photos, models.PhotoSize{
				FileID: size.FileID,
				Width:  size.Width,
				Height: size.Height,
			})
		}
	case msg.Location != nil:
		event.Kind = models.EventLocation
		event.Location = &models.Location{
			Latitude:   msg.Location.Latitude,
			Longitude:  msg.Location.Longitude,
			LivePeriod: msg.Location.LivePeriod,
		}
	default:
		event.Kind = models.EventText
	}

	s.emit(event)
}

func (s *Service) handleCallback(cq *tgbotapi.CallbackQuery) {
	// Acknowledge immediately so the client stops its spinner.
	if _, err := s.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		slog.Debug("Failed to answer callback query", "error", err)
	}
	if cq.Message == nil {
		slog.Debug("Callback query without message, dropping", "data", cq.Data)
		return
	}

	s.emit(models.Event{
		ConversationID: cq.Message.Chat.ID,
		UserID:         cq.From.ID,
		Kind:           models.EventChoice,
		Choice:         cq.Data,
		ChoiceRef:      models.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID},
	})
}

func (s *Service) emit(event models.Event) {
	select {
	case s.events <- event:
	default:
		slog.Warn("Telegram events channel full, dropping event", "conversation_id", event.ConversationID, "kind", event.Kind)
	}
}

// SendText sends an HTML text message.
func (s *Service) SendText(ctx context.Context, conversationID int64, text string) (models.MessageRef, error) {
	msg := tgbotapi.NewMessage(conversationID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	sent, err := s.bot.Send(msg)
	if err != nil {
		slog.Error("Telegram SendText failed", "error", err, "conversation_id", conversationID)
		return models.MessageRef{}, fmt.Errorf("failed to send message: %w", err)
	}
	return models.MessageRef{ChatID: conversationID, MessageID: sent.MessageID}, nil
}

// SendChoices sends a text message with one inline button per choice; a press
// comes back as a choice event carrying the button's value.
func (s *Service) SendChoices(ctx context.Context, conversationID int64, text string, choices []string) (models.MessageRef, error) {
	msg := tgbotapi.NewMessage(conversationID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = choiceKeyboard(choices)
	sent, err := s.bot.Send(msg)
	if err != nil {
		slog.Error("Telegram SendChoices failed", "error", err, "conversation_id", conversationID)
		return models.MessageRef{}, fmt.Errorf("failed to send choices: %w", err)
	}
	return models.MessageRef{ChatID: conversationID, MessageID: sent.MessageID}, nil
}

// SendLinks sends a text message with URL buttons and a dismiss button.
func (s *Service) SendLinks(ctx context.Context, conversationID int64, text string, links []models.Link) (models.MessageRef, error) {
	msg := tgbotapi.NewMessage(conversationID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = linkKeyboard(links)
	sent, err := s.bot.Send(msg)
	if err != nil {
		slog.Error("Telegram SendLinks failed", "error", err, "conversation_id", conversationID)
		return models.MessageRef{}, fmt.Errorf("failed to send links: %w", err)
	}
	return models.MessageRef{ChatID: conversationID, MessageID: sent.MessageID}, nil
}

// EditText replaces the text of a previously sent message, dropping any keyboard.
func (s *Service) EditText(ctx context.Context, ref models.MessageRef, text string) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := s.bot.Send(edit); err != nil {
		slog.Error("Telegram EditText failed", "error", err, "chat_id", ref.ChatID, "message_id", ref.MessageID)
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// DeleteMessage deletes a previously sent message.
func (s *Service) DeleteMessage(ctx context.Context, ref models.MessageRef) error {
	if _, err := s.bot.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		slog.Debug("Telegram DeleteMessage failed", "error", err, "chat_id", ref.ChatID, "message_id", ref.MessageID)
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// FileURL resolves a Telegram file id to its downloadable URL.
func (s *Service) FileURL(ctx context.Context, fileID string) (string, error) {
	file, err := s.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		slog.Error("Telegram GetFile failed", "error", err, "file_id", fileID)
		return "", fmt.Errorf("failed to resolve file: %w", err)
	}
	return file.Link(s.bot.Token), nil
}
