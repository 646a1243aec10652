package survey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Agafia/bot-fire-water-sources/internal/geo"
	"github.com/Agafia/bot-fire-water-sources/internal/messaging"
	"github.com/Agafia/bot-fire-water-sources/internal/models"
	"github.com/Agafia/bot-fire-water-sources/internal/store"
)

// Operator-facing texts of the step executor.
const (
	msgSendStart      = "<i>Для запуска введите команду /start</i>"
	msgDialogRunning  = "<i>Диалог ввода данных уже запущен.\nТекущий статус: %s</i>"
	msgStopped        = "Диалог прерван. Все данные удалены."
	msgNothingToStop  = "Нет активного диалога для остановки."
	msgWrongInput     = "<i>Неверный ввод для текущего шага: %s</i>\n<i>Для отмены введите /stop</i>"
	msgBadChoice      = "⚠ Нужно выбрать один из предложенных вариантов."
	msgLookupPending  = "<i>Запрос к NextGIS WEB ...</i>"
	msgLookupNotFound = "<i>NextGIS не ответил или не нашёл ИД. \nПроверьте ИД или попробуйте позже</i>"
	msgLookupFailed   = "<b>Произошла ошибка при запросе к NextGIS.</b>\n<i>Пожалуйста, проверьте настройки и доступность сервиса.</i>\n<code>Ошибка: %v</code>"
	msgChosen         = "Выбрано: %s"
	msgHelp           = "📖 <b>Помощь</b>"
	msgStartEcho      = "🆔 <b>1. Числовой идентификатор:</b> %s"
)

// DefaultNoticeTTL is how long transient notices (failed identifier lookup)
// stay visible before self-deleting.
const DefaultNoticeTTL = 4 * time.Second

// ExecutorOpts holds configuration options for the step executor.
type ExecutorOpts struct {
	PointsResource int
	Timezone       *time.Location
	Clock          func() time.Time
	NoticeTTL      time.Duration
	HelpLinks      []models.Link
}

// ExecutorOption defines a configuration option for the step executor.
type ExecutorOption func(*ExecutorOpts)

// WithPointsResource sets the feature-store resource id of the water-source table.
func WithPointsResource(id int) ExecutorOption {
	return func(o *ExecutorOpts) {
		o.PointsResource = id
	}
}

// WithTimezone sets the time zone used to compute the capture timestamp.
func WithTimezone(loc *time.Location) ExecutorOption {
	return func(o *ExecutorOpts) {
		o.Timezone = loc
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) ExecutorOption {
	return func(o *ExecutorOpts) {
		o.Clock = clock
	}
}

// WithNoticeTTL sets the self-delete delay of transient notices. Zero disables
// self-deletion.
func WithNoticeTTL(ttl time.Duration) ExecutorOption {
	return func(o *ExecutorOpts) {
		o.NoticeTTL = ttl
	}
}

// WithHelpLinks sets the link buttons attached to the /help reply.
func WithHelpLinks(links []models.Link) ExecutorOption {
	return func(o *ExecutorOpts) {
		o.HelpLinks = links
	}
}

// Executor is the conversation state machine engine. Given the current state
// and an incoming event it validates the event against the expected input kind,
// updates the accumulated record, determines the next step, and emits the next
// prompt. State is mutated exactly once per accepted input, and only after any
// triggering collaborator call has fully succeeded.
type Executor struct {
	states      store.Store
	features    FeatureStore
	transport   messaging.Service
	tracker     *messaging.MessageTracker
	coordinator *Coordinator

	pointsResource int
	loc            *time.Location
	now            func() time.Time
	noticeTTL      time.Duration
	helpLinks      []models.Link
}

// NewExecutor creates a step executor over the given collaborators.
func NewExecutor(states store.Store, features FeatureStore, transport messaging.Service, tracker *messaging.MessageTracker, coordinator *Coordinator, opts ...ExecutorOption) *Executor {
	cfg := ExecutorOpts{
		Timezone:  time.UTC,
		Clock:     time.Now,
		NoticeTTL: DefaultNoticeTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating survey executor", "points_resource", cfg.PointsResource, "timezone", cfg.Timezone.String())
	return &Executor{
		states:         states,
		features:       features,
		transport:      transport,
		tracker:        tracker,
		coordinator:    coordinator,
		pointsResource: cfg.PointsResource,
		loc:            cfg.Timezone,
		now:            cfg.Clock,
		noticeTTL:      cfg.NoticeTTL,
		helpLinks:      cfg.HelpLinks,
	}
}

// HandleEvent processes one inbound event for its conversation. Events for one
// conversation must be delivered strictly one at a time; the bot runtime
// guarantees that.
func (e *Executor) HandleEvent(ctx context.Context, event models.Event) error {
	kind := Classify(&event)
	slog.Debug("Executor handling event", "conversation_id", event.ConversationID, "kind", kind)

	if kind == models.InputCommand {
		return e.handleCommand(ctx, event)
	}

	state, err := e.states.GetConversation(event.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation state: %w", err)
	}
	if state == nil {
		e.send(ctx, event.ConversationID, msgSendStart)
		return nil
	}
	return e.handleStep(ctx, state, event, kind)
}

// handleCommand routes the commands available in every state.
func (e *Executor) handleCommand(ctx context.Context, event models.Event) error {
	switch event.Command {
	case "start":
		return e.handleStart(ctx, event)
	case "stop":
		return e.handleStop(ctx, event)
	case "help":
		return e.handleHelp(ctx, event)
	case "save":
		// The coordinator surfaces commit failures to the operator itself and
		// clears state; there is nothing further to recover here.
		if err := e.coordinator.Finalize(ctx, event.ConversationID); err != nil {
			slog.Error("Commit failed", "error", err, "conversation_id", event.ConversationID)
		}
		return nil
	default:
		return e.handleUnknown(ctx, event)
	}
}

// handleStart begins a fresh dialogue, or reports the current step when one is
// already in progress. An inline numeric argument is fed directly to step 1.
func (e *Executor) handleStart(ctx context.Context, event models.Event) error {
	state, err := e.states.GetConversation(event.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation state: %w", err)
	}
	if state != nil {
		e.send(ctx, event.ConversationID, fmt.Sprintf(msgDialogRunning, models.StepTitle(state.CurrentStep)))
		return nil
	}

	now := e.now().In(e.loc)
	state = &models.ConversationState{
		ConversationID: event.ConversationID,
		CurrentStep:    models.StepIdentifier,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.states.SaveConversation(*state); err != nil {
		return fmt.Errorf("failed to create conversation state: %w", err)
	}
	slog.Info("Survey started", "conversation_id", event.ConversationID, "user_id", event.UserID)

	if arg := event.CommandArgs; arg != "" && isAllDigits(arg) {
		e.send(ctx, event.ConversationID, fmt.Sprintf(msgStartEcho, arg))
		return e.processIdentifier(ctx, state, arg)
	}

	spec, _ := Describe(models.StepIdentifier)
	e.sendPrompt(ctx, event.ConversationID, spec)
	return nil
}

// handleStop clears state unconditionally and removes the dialogue's own
// prompts from the chat.
func (e *Executor) handleStop(ctx context.Context, event models.Event) error {
	state, err := e.states.GetConversation(event.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation state: %w", err)
	}
	if state == nil {
		e.send(ctx, event.ConversationID, msgNothingToStop)
		return nil
	}
	if err := e.states.DeleteConversation(event.ConversationID); err != nil {
		return fmt.Errorf("failed to clear conversation state: %w", err)
	}
	for _, ref := range e.tracker.Drain(event.ConversationID) {
		if err := e.transport.DeleteMessage(ctx, ref); err != nil {
			slog.Debug("Failed to delete tracked message", "error", err, "conversation_id", event.ConversationID)
		}
	}
	if !event.Ref.IsZero() {
		if err := e.transport.DeleteMessage(ctx, event.Ref); err != nil {
			slog.Debug("Failed to delete stop command message", "error", err, "conversation_id", event.ConversationID)
		}
	}
	slog.Info("Survey stopped, state cleared", "conversation_id", event.ConversationID)
	e.send(ctx, event.ConversationID, msgStopped)
	return nil
}

// handleHelp is a side channel: it never changes state.
func (e *Executor) handleHelp(ctx context.Context, event models.Event) error {
	ref, err := e.transport.SendLinks(ctx, event.ConversationID, msgHelp, e.helpLinks)
	if err != nil {
		slog.Error("Failed to send help message", "error", err, "conversation_id", event.ConversationID)
		return nil
	}
	e.tracker.Track(event.ConversationID, ref)
	return nil
}

// handleUnknown covers unrecognized commands the same way as unrecognized input.
func (e *Executor) handleUnknown(ctx context.Context, event models.Event) error {
	state, err := e.states.GetConversation(event.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation state: %w", err)
	}
	if state == nil {
		e.send(ctx, event.ConversationID, msgSendStart)
		return nil
	}
	e.send(ctx, event.ConversationID, fmt.Sprintf(msgWrongInput, models.StepTitle(state.CurrentStep)))
	return nil
}

// handleStep validates the event against the current step and dispatches to the
// step's handler. A classification mismatch reports expected-vs-actual and
// leaves state untouched.
func (e *Executor) handleStep(ctx context.Context, state *models.ConversationState, event models.Event, kind models.InputKind) error {
	spec, ok := Describe(state.CurrentStep)
	if !ok {
		return fmt.Errorf("no catalog entry for step %q", state.CurrentStep)
	}

	if state.CurrentStep == models.StepFinalize || kind != spec.ExpectedKind {
		slog.Debug("Input mismatch", "conversation_id", state.ConversationID, "step", state.CurrentStep, "expected", spec.ExpectedKind, "actual", kind)
		if state.CurrentStep == models.StepFinalize {
			e.send(ctx, state.ConversationID, spec.Prompt)
		} else {
			e.send(ctx, state.ConversationID, fmt.Sprintf(msgWrongInput, models.StepTitle(state.CurrentStep)))
		}
		return nil
	}

	switch spec.ExpectedKind {
	case models.InputDigits:
		return e.processIdentifier(ctx, state, event.Text)
	case models.InputOneShotLocation:
		return e.processPosition(ctx, state, event.Location)
	case models.InputChoice:
		return e.processChoice(ctx, state, spec, event)
	case models.InputPhoto:
		return e.processPhoto(ctx, state, event)
	default:
		return fmt.Errorf("unsupported expected kind %q for step %q", spec.ExpectedKind, state.CurrentStep)
	}
}

// processIdentifier resolves the numeric identifier against the feature store
// and seeds the record. Not-found and transport errors keep the state at the
// identifier step so the operator can retry.
func (e *Executor) processIdentifier(ctx context.Context, state *models.ConversationState, text string) error {
	notice := e.send(ctx, state.ConversationID, msgLookupPending)

	id, err := strconv.Atoi(text)
	if err != nil {
		// Classification guarantees digits; overflow is the only way here.
		e.editOrSend(ctx, state.ConversationID, notice, msgLookupNotFound)
		e.deleteLater(notice)
		return nil
	}

	feature, err := e.features.GetFeature(ctx, e.pointsResource, id)
	if errors.Is(err, models.ErrFeatureNotFound) {
		slog.Info("Identifier not found in feature store", "conversation_id", state.ConversationID, "identifier", id)
		e.editOrSend(ctx, state.ConversationID, notice, msgLookupNotFound)
		e.deleteLater(notice)
		return nil
	}
	if err != nil {
		slog.Error("Feature store lookup failed", "error", err, "conversation_id", state.ConversationID, "identifier", id)
		e.editOrSend(ctx, state.ConversationID, notice, fmt.Sprintf(msgLookupFailed, err))
		return nil
	}

	name := fmt.Sprintf("%s\n%s, %s, %s",
		feature.StringField(fieldName),
		feature.StringField(fieldLocality),
		feature.StringField(fieldStreet),
		feature.StringField(fieldBuilding))
	e.editOrSend(ctx, state.ConversationID, notice, fmt.Sprintf("<i>%s</i>", name))

	state.Record.Identifier = id
	state.Record.DisplayName = name
	state.Record.CapturedAt = models.CaptureTimeAt(e.now().In(e.loc))
	e.advance(ctx, state)
	return nil
}

// processPosition converts a one-shot geoposition to a projected WKT point.
func (e *Executor) processPosition(ctx context.Context, state *models.ConversationState, loc *models.Location) error {
	point, err := geo.PointWKT(loc.Latitude, loc.Longitude)
	if err != nil {
		return fmt.Errorf("failed to project position: %w", err)
	}
	state.Record.ProjectedPosition = point
	e.advance(ctx, state)
	return nil
}

// processChoice validates the chosen value against the step's fixed list,
// acknowledges it, and records it. Any value outside the list is a mismatch,
// never a silent default.
func (e *Executor) processChoice(ctx context.Context, state *models.ConversationState, spec StepSpec, event models.Event) error {
	if !models.InList(event.Choice, spec.Choices) {
		slog.Debug("Choice outside fixed list", "conversation_id", state.ConversationID, "step", state.CurrentStep, "choice", event.Choice)
		e.send(ctx, state.ConversationID, msgBadChoice)
		return nil
	}

	switch state.CurrentStep {
	case models.StepControlMethod:
		state.Record.ControlMethod = event.Choice
	case models.StepWaterPresence:
		state.Record.WaterPresence = event.Choice
	case models.StepInstallFeasibility:
		state.Record.InstallFeasibility = event.Choice
	case models.StepAccessFeasibility:
		state.Record.AccessFeasibility = event.Choice
	case models.StepPlateExistence:
		state.Record.PlateExistence = event.Choice
		if event.Choice == models.PlateAbsent {
			state.Record.PlateShot = nil
		}
	default:
		return fmt.Errorf("step %q does not accept choices", state.CurrentStep)
	}

	// Acknowledge on the keyboard message itself, dropping the buttons.
	if !event.ChoiceRef.IsZero() {
		if err := e.transport.EditText(ctx, event.ChoiceRef, fmt.Sprintf(msgChosen, event.Choice)); err != nil {
			slog.Debug("Failed to acknowledge choice", "error", err, "conversation_id", state.ConversationID)
		}
	} else {
		e.send(ctx, state.ConversationID, fmt.Sprintf(msgChosen, event.Choice))
	}
	e.advance(ctx, state)
	return nil
}

// processPhoto retains the highest-resolution representation of the attachment.
func (e *Executor) processPhoto(ctx context.Context, state *models.ConversationState, event models.Event) error {
	best := event.LargestPhoto()
	if best == nil {
		e.send(ctx, state.ConversationID, fmt.Sprintf(msgWrongInput, models.StepTitle(state.CurrentStep)))
		return nil
	}

	switch state.CurrentStep {
	case models.StepPhotoNode:
		state.Record.NodeShot = best.FileID
	case models.StepPhotoOverview:
		state.Record.OverviewShot = best.FileID
	case models.StepPhotoOrienting:
		state.Record.OrientingShot = best.FileID
	case models.StepPhotoPlate:
		shot := best.FileID
		state.Record.PlateShot = &shot
	default:
		return fmt.Errorf("step %q does not accept photos", state.CurrentStep)
	}
	e.advance(ctx, state)
	return nil
}

// advance moves the conversation to the current step's successor, persists the
// state, and emits the next prompt.
func (e *Executor) advance(ctx context.Context, state *models.ConversationState) {
	spec, _ := Describe(state.CurrentStep)
	next := spec.Successor(&state.Record)
	slog.Debug("Advancing step", "conversation_id", state.ConversationID, "from", state.CurrentStep, "to", next)

	state.CurrentStep = next
	state.UpdatedAt = e.now().In(e.loc)
	if err := e.states.SaveConversation(*state); err != nil {
		slog.Error("Failed to persist conversation state", "error", err, "conversation_id", state.ConversationID)
		return
	}

	nextSpec, _ := Describe(next)
	e.sendPrompt(ctx, state.ConversationID, nextSpec)
}

// sendPrompt sends a step's prompt, with the choice keyboard for single-choice steps.
func (e *Executor) sendPrompt(ctx context.Context, conversationID int64, spec StepSpec) {
	var ref models.MessageRef
	var err error
	if spec.Choices != nil {
		ref, err = e.transport.SendChoices(ctx, conversationID, spec.Prompt, spec.Choices)
	} else {
		ref, err = e.transport.SendText(ctx, conversationID, spec.Prompt)
	}
	if err != nil {
		slog.Error("Failed to send step prompt", "error", err, "conversation_id", conversationID, "step", spec.Step)
		return
	}
	e.tracker.Track(conversationID, ref)
}

// send sends a plain text message, tracking it for later cleanup.
func (e *Executor) send(ctx context.Context, conversationID int64, text string) models.MessageRef {
	ref, err := e.transport.SendText(ctx, conversationID, text)
	if err != nil {
		slog.Error("Failed to send message", "error", err, "conversation_id", conversationID)
		return models.MessageRef{}
	}
	e.tracker.Track(conversationID, ref)
	return ref
}

// editOrSend edits a previously sent notice, falling back to a fresh message
// when the notice could not be sent or edited.
func (e *Executor) editOrSend(ctx context.Context, conversationID int64, ref models.MessageRef, text string) {
	if ref.IsZero() {
		e.send(ctx, conversationID, text)
		return
	}
	if err := e.transport.EditText(ctx, ref, text); err != nil {
		slog.Debug("Failed to edit notice, sending a new message", "error", err, "conversation_id", conversationID)
		e.send(ctx, conversationID, text)
	}
}

// deleteLater schedules a transient notice for deletion after the configured TTL.
func (e *Executor) deleteLater(ref models.MessageRef) {
	if ref.IsZero() || e.noticeTTL <= 0 {
		return
	}
	time.AfterFunc(e.noticeTTL, func() {
		if err := e.transport.DeleteMessage(context.Background(), ref); err != nil {
			slog.Debug("Failed to delete transient notice", "error", err)
		}
	})
}
