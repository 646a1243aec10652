// Package bot runs the survey dialogue: it consumes transport events, applies
// the membership gate, and feeds the step executor.
//
// Events for one conversation are processed strictly one at a time, in arrival
// order, on that conversation's lane. Lanes for different conversations run
// concurrently, so one conversation's commit never stalls another dialogue.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Agafia/bot-fire-water-sources/internal/messaging"
	"github.com/Agafia/bot-fire-water-sources/internal/models"
	"github.com/Agafia/bot-fire-water-sources/internal/store"
	"github.com/Agafia/bot-fire-water-sources/internal/survey"
)

// Operator-facing texts of the runtime.
const (
	msgNotMember     = "⚠ Бот доступен только участникам группы ППВ"
	msgGateFailed    = "⚠ Произошла непредвиденная ошибка верификации. Обратитесь к администратору."
	msgInternalError = "⚠ Произошла непредвиденная ошибка. Обратитесь к администратору."
)

// DefaultLaneBufferSize is the per-conversation event queue depth. An event
// arriving for a conversation whose queue is full is dropped with a warning;
// dispatch never blocks on one conversation's backlog.
const DefaultLaneBufferSize = 16

// Opts holds configuration options for the runtime.
type Opts struct {
	LaneBufferSize int
	DenyText       string
}

// Option defines a configuration option for the runtime.
type Option func(*Opts)

// WithLaneBufferSize sets the per-conversation event queue depth.
func WithLaneBufferSize(n int) Option {
	return func(o *Opts) {
		o.LaneBufferSize = n
	}
}

// WithDenyText overrides the message shown to users blocked by the gate.
func WithDenyText(text string) Option {
	return func(o *Opts) {
		o.DenyText = text
	}
}

// Bot wires the transport, the gate, and the step executor together.
type Bot struct {
	transport messaging.Service
	gate      messaging.Gate
	executor  *survey.Executor
	states    store.Store

	laneBuffer int
	denyText   string

	mu    sync.Mutex
	lanes map[int64]chan models.Event
	wg    sync.WaitGroup
}

// New creates the runtime over the given collaborators.
func New(transport messaging.Service, gate messaging.Gate, executor *survey.Executor, states store.Store, opts ...Option) *Bot {
	cfg := Opts{LaneBufferSize: DefaultLaneBufferSize, DenyText: msgNotMember}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bot{
		transport:  transport,
		gate:       gate,
		executor:   executor,
		states:     states,
		laneBuffer: cfg.LaneBufferSize,
		denyText:   cfg.DenyText,
		lanes:      make(map[int64]chan models.Event),
	}
}

// Run starts the transport and processes events until ctx is cancelled or the
// transport's event channel closes.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.transport.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	slog.Info("Survey bot running")

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return ctx.Err()
		case event, ok := <-b.transport.Events():
			if !ok {
				b.shutdown()
				return nil
			}
			b.dispatch(ctx, event)
		}
	}
}

// dispatch applies the gate and hands the event to its conversation's lane.
func (b *Bot) dispatch(ctx context.Context, event models.Event) {
	// The dismiss button works everywhere, before gating and state routing.
	if event.Kind == models.EventChoice && event.Choice == messaging.DismissCallback {
		if err := b.transport.DeleteMessage(ctx, event.ChoiceRef); err != nil {
			slog.Debug("Failed to delete dismissed message", "error", err)
		}
		return
	}

	if err := b.gate.Allow(ctx, event.UserID); err != nil {
		if errors.Is(err, models.ErrNotChannelMember) {
			slog.Warn("Event blocked by membership gate", "user_id", event.UserID, "conversation_id", event.ConversationID)
			b.send(ctx, event.ConversationID, b.denyText)
		} else {
			slog.Error("Membership gate failure", "error", err, "user_id", event.UserID)
			b.send(ctx, event.ConversationID, msgGateFailed)
		}
		return
	}

	// Enqueue without blocking: a saturated lane (a commit in flight plus a
	// burst of taps) loses the extra event instead of stalling dispatch for
	// every other conversation.
	select {
	case b.lane(ctx, event.ConversationID) <- event:
	default:
		slog.Warn("Conversation lane full, dropping event", "conversation_id", event.ConversationID, "kind", event.Kind)
	}
}

// lane returns the conversation's serial event queue, starting its worker on
// first use.
func (b *Bot) lane(ctx context.Context, conversationID int64) chan models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.lanes[conversationID]; ok {
		return ch
	}
	ch := make(chan models.Event, b.laneBuffer)
	b.lanes[conversationID] = ch
	b.wg.Add(1)
	go b.runLane(ctx, conversationID, ch)
	return ch
}

// runLane processes one conversation's events in arrival order. An unexpected
// executor error is treated as fatal for the dialogue: it is logged with
// context, the half-finished state is cleared, and the operator is told to
// contact an administrator.
func (b *Bot) runLane(ctx context.Context, conversationID int64, events <-chan models.Event) {
	defer b.wg.Done()
	for event := range events {
		// Events still queued when the context dies would only fail against
		// dead collaborators and spam operators with internal errors.
		if ctx.Err() != nil {
			slog.Debug("Dropping queued event on shutdown", "conversation_id", conversationID, "kind", event.Kind)
			continue
		}
		if err := b.executor.HandleEvent(ctx, event); err != nil {
			slog.Error("Executor failed on event", "error", err, "conversation_id", conversationID, "kind", event.Kind)
			if clearErr := b.states.DeleteConversation(conversationID); clearErr != nil {
				slog.Error("State clear after executor failure failed", "error", clearErr, "conversation_id", conversationID)
			}
			b.send(ctx, conversationID, msgInternalError)
		}
	}
}

func (b *Bot) send(ctx context.Context, conversationID int64, text string) {
	if _, err := b.transport.SendText(ctx, conversationID, text); err != nil {
		slog.Error("Failed to send runtime message", "error", err, "conversation_id", conversationID)
	}
}

// shutdown closes all lanes and waits for in-flight events to finish.
func (b *Bot) shutdown() {
	b.mu.Lock()
	for id, ch := range b.lanes {
		close(ch)
		delete(b.lanes, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
	if err := b.transport.Stop(); err != nil {
		slog.Error("Transport stop failed", "error", err)
	}
	slog.Info("Survey bot stopped")
}
