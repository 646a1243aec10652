package survey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Agafia/bot-fire-water-sources/internal/messaging"
	"github.com/Agafia/bot-fire-water-sources/internal/models"
	"github.com/Agafia/bot-fire-water-sources/internal/store"
)

// Operator-facing texts of the commit coordinator.
const (
	msgNothingToSave = "<i>Нечего сохранять.\nДля запуска введите команду /start</i>"
	msgNotFinished   = "<i>Ввод данных ещё не завершен.\nТекущий статус: %s</i>"
	msgCommitHeader  = "<b>Передача данных...</b>\n<i>ИД: %d</i>"
	msgCommitFailed  = "<b>Произошла ошибка при сохранении данных.</b>\n<i>Обратитесь к администратору.</i>\n<code>%v</code>"
	stageFetch       = "1. Запрос к NextGIS WEB..."
	stageFolder      = "2. Обращение к папке Google Drive..."
	stageFolderPatch = "Добавление каталога в NextGIS WEB..."
	stageCheckup     = "7. Запись о проверке в NextGIS WEB..."
	stageDone        = "8. Сохранение данных завершено"
)

// photoStages pairs each photo field with its progress line, in upload order.
var photoStages = []struct {
	shot  func(*models.PartialRecord) string
	stage string
}{
	{func(r *models.PartialRecord) string { return r.NodeShot }, "3. Передача узлового снимка..."},
	{func(r *models.PartialRecord) string { return r.OverviewShot }, "4. Передача обзорного снимка..."},
	{func(r *models.PartialRecord) string { return r.OrientingShot }, "5. Передача ориентирующего снимка..."},
	{func(r *models.PartialRecord) string {
		if r.PlateShot == nil {
			return ""
		}
		return *r.PlateShot
	}, "6. Передача снимка указателя..."},
}

// DefaultConfirmTTL is how long the completion confirmation stays visible
// before self-deleting.
const DefaultConfirmTTL = 2 * time.Second

// CoordinatorOpts holds configuration options for the commit coordinator.
type CoordinatorOpts struct {
	PointsResource       int
	CheckupResource      int
	OrganizationResource int
	ParentFolder         string
	NotifyChat           int64
	ErrorChat            int64
	BotURL               string
	ConfirmTTL           time.Duration
}

// CoordinatorOption defines a configuration option for the commit coordinator.
type CoordinatorOption func(*CoordinatorOpts)

// WithResources sets the feature-store resource ids of the water-source table,
// the checkup table, and the organizations table.
func WithResources(points, checkup, organization int) CoordinatorOption {
	return func(o *CoordinatorOpts) {
		o.PointsResource = points
		o.CheckupResource = checkup
		o.OrganizationResource = organization
	}
}

// WithParentFolder sets the file-storage parent folder holding per-source folders.
func WithParentFolder(id string) CoordinatorOption {
	return func(o *CoordinatorOpts) {
		o.ParentFolder = id
	}
}

// WithNotifyChat sets the conversation the completion broadcast goes to.
func WithNotifyChat(id int64) CoordinatorOption {
	return func(o *CoordinatorOpts) {
		o.NotifyChat = id
	}
}

// WithErrorChat sets an optional conversation that receives commit failures.
func WithErrorChat(id int64) CoordinatorOption {
	return func(o *CoordinatorOpts) {
		o.ErrorChat = id
	}
}

// WithBotURL sets the deep-link base used in regenerated descriptions.
func WithBotURL(url string) CoordinatorOption {
	return func(o *CoordinatorOpts) {
		o.BotURL = url
	}
}

// WithConfirmTTL sets the self-delete delay of the completion confirmation.
// Zero disables self-deletion.
func WithConfirmTTL(ttl time.Duration) CoordinatorOption {
	return func(o *CoordinatorOpts) {
		o.ConfirmTTL = ttl
	}
}

// Coordinator executes the ordered, multi-stage commit of a completed record to
// the feature store and the file storage. Each stage's outcome is surfaced to
// the operator before the next stage starts, so a failed run leaves a readable
// trail of how far it got. Any stage failure stops the sequence and clears
// state; there is no partial retry across finalize invocations.
type Coordinator struct {
	states    store.Store
	features  FeatureStore
	storage   FileStorage
	transport messaging.Service
	tracker   *messaging.MessageTracker
	cfg       CoordinatorOpts
}

// NewCoordinator creates a commit coordinator over the given collaborators.
func NewCoordinator(states store.Store, features FeatureStore, storage FileStorage, transport messaging.Service, tracker *messaging.MessageTracker, opts ...CoordinatorOption) *Coordinator {
	cfg := CoordinatorOpts{ConfirmTTL: DefaultConfirmTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating commit coordinator",
		"points_resource", cfg.PointsResource,
		"checkup_resource", cfg.CheckupResource,
		"notify_chat", cfg.NotifyChat)
	return &Coordinator{
		states:    states,
		features:  features,
		storage:   storage,
		transport: transport,
		tracker:   tracker,
		cfg:       cfg,
	}
}

// Finalize runs the commit protocol for a conversation. It re-checks state at
// invocation: a finalize request before the terminal step, or a duplicate after
// state was already cleared, is an informative no-op.
func (c *Coordinator) Finalize(ctx context.Context, conversationID int64) error {
	state, err := c.states.GetConversation(conversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation state: %w", err)
	}
	if state == nil {
		slog.Debug("Finalize with no conversation in progress", "conversation_id", conversationID)
		c.sendText(ctx, conversationID, msgNothingToSave)
		return nil
	}
	if state.CurrentStep != models.StepFinalize {
		slog.Debug("Finalize before terminal step", "conversation_id", conversationID, "step", state.CurrentStep)
		c.sendText(ctx, conversationID, fmt.Sprintf(msgNotFinished, models.StepTitle(state.CurrentStep)))
		return nil
	}

	record := &state.Record
	progress := newProgress(ctx, c.transport, conversationID, fmt.Sprintf(msgCommitHeader, record.Identifier))

	// Stage 1: re-fetch the canonical asset record.
	progress.Append(ctx, stageFetch)
	feature, err := c.features.GetFeature(ctx, c.cfg.PointsResource, record.Identifier)
	if err != nil {
		return c.fail(ctx, conversationID, progress, fmt.Errorf("fetch of water source %d failed: %w", record.Identifier, err))
	}

	// Stage 2: reconcile the destination folder; write back a changed id.
	progress.Append(ctx, stageFolder)
	existingFolder := feature.StringField(fieldDriveFolder)
	folderName := fmt.Sprintf("ИД-%d %s %s, %s, %s",
		record.Identifier,
		feature.StringField(fieldName),
		feature.StringField(fieldLocality),
		feature.StringField(fieldStreet),
		feature.StringField(fieldBuilding))
	folderID, err := c.storage.EnsureFolder(ctx, existingFolder, folderName, c.cfg.ParentFolder)
	if err != nil {
		return c.fail(ctx, conversationID, progress, fmt.Errorf("folder reconciliation failed: %w", err))
	}
	if folderID != existingFolder {
		progress.Append(ctx, stageFolderPatch)
		description := c.buildDescription(ctx, record.Identifier, feature, folderID)
		patch := map[string]any{
			fieldDescription: description,
			fieldDriveFolder: folderID,
		}
		if err := c.features.PutFeature(ctx, c.cfg.PointsResource, record.Identifier, patch); err != nil {
			return c.fail(ctx, conversationID, progress, fmt.Errorf("folder id write-back failed: %w", err))
		}
	}

	// Stage 3: upload each captured photo, in fixed order. The optional plate
	// shot is skipped without error.
	stamp := record.CapturedAt.Stamp()
	for i, photo := range photoStages {
		fileID := photo.shot(record)
		if fileID == "" {
			continue
		}
		progress.Append(ctx, photo.stage)
		sourceURL, err := c.transport.FileURL(ctx, fileID)
		if err != nil {
			return c.fail(ctx, conversationID, progress, fmt.Errorf("photo %d reference resolution failed: %w", i+1, err))
		}
		fileName := fmt.Sprintf("%d_%s", i+1, stamp)
		if err := c.storage.UploadFromURL(ctx, sourceURL, fileName, folderID); err != nil {
			return c.fail(ctx, conversationID, progress, fmt.Errorf("photo %d upload failed: %w", i+1, err))
		}
	}

	// Stage 4: post the checkup record, then the mandatory self-referential
	// id patch the store's data model requires.
	progress.Append(ctx, stageCheckup)
	checkupID, err := c.features.CreateFeature(ctx, c.cfg.CheckupResource, map[string]any{
		fieldCheckupPoint:   record.Identifier,
		fieldCheckupControl: record.ControlMethod,
		fieldCheckupWater:   record.WaterPresence,
		fieldCheckupInstall: record.InstallFeasibility,
		fieldCheckupAccess:  record.AccessFeasibility,
		fieldCheckupPlate:   record.PlateExistence,
		fieldCheckupDateTime: map[string]int{
			"year":   record.CapturedAt.Year,
			"month":  record.CapturedAt.Month,
			"day":    record.CapturedAt.Day,
			"hour":   record.CapturedAt.Hour,
			"minute": record.CapturedAt.Minute,
			"second": 0,
		},
	}, record.ProjectedPosition)
	if err != nil {
		return c.fail(ctx, conversationID, progress, fmt.Errorf("checkup create failed: %w", err))
	}
	if err := c.features.PutFeature(ctx, c.cfg.CheckupResource, checkupID, map[string]any{fieldCheckupID: checkupID}); err != nil {
		return c.fail(ctx, conversationID, progress, fmt.Errorf("checkup id patch failed: %w", err))
	}

	// Stage 5: broadcast the notification.
	if c.cfg.NotifyChat != 0 {
		notice := fmt.Sprintf("%s\n%s", record.DisplayName, stamp)
		if _, err := c.transport.SendText(ctx, c.cfg.NotifyChat, notice); err != nil {
			return c.fail(ctx, conversationID, progress, fmt.Errorf("notification broadcast failed: %w", err))
		}
	}

	// Stage 6: clear state and confirm.
	if err := c.states.DeleteConversation(conversationID); err != nil {
		return c.fail(ctx, conversationID, progress, fmt.Errorf("state cleanup failed: %w", err))
	}
	c.tracker.Drain(conversationID)
	progress.Append(ctx, stageDone)
	slog.Info("Commit completed", "conversation_id", conversationID, "identifier", record.Identifier, "checkup_id", checkupID)
	c.deleteLater(progress.ref)
	return nil
}

// buildDescription regenerates the feature's rich-text description, resolving
// the serving organization when one is referenced. Organization lookup failures
// only drop that line; they never abort the commit.
func (c *Coordinator) buildDescription(ctx context.Context, featureID int, feature *models.Feature, folderID string) string {
	params := DescriptionParams{
		FeatureID:     featureID,
		Locality:      feature.StringField(fieldLocality),
		Street:        feature.StringField(fieldStreet),
		Building:      feature.StringField(fieldBuilding),
		Landmark:      feature.StringField(fieldLandmark),
		Specification: feature.StringField(fieldSpecification),
		FlowRate:      feature.StringField(fieldFlowRate),
		DriveFolder:   folderID,
		StreetViewURL: feature.StringField(fieldStreetView),
		BotURL:        c.cfg.BotURL,
	}
	if orgID, ok := feature.IntField(fieldOrganization); ok && orgID != 0 {
		org, err := c.features.GetFeature(ctx, c.cfg.OrganizationResource, orgID)
		if err != nil {
			slog.Debug("Organization lookup failed, omitting from description", "error", err, "organization_id", orgID)
		} else {
			params.Organization = org.StringField(fieldOrgName)
		}
	}
	return BuildDescription(params)
}

// fail surfaces a stage failure, clears state, and reports the raw error detail
// for diagnostics. The accumulated record is discarded; the operator must
// restart data entry.
func (c *Coordinator) fail(ctx context.Context, conversationID int64, progress *progressMessage, err error) error {
	slog.Error("Commit failed", "error", err, "conversation_id", conversationID)
	if dbErr := c.states.DeleteConversation(conversationID); dbErr != nil {
		slog.Error("Failed to clear state after commit failure", "error", dbErr, "conversation_id", conversationID)
	}
	c.tracker.Drain(conversationID)
	progress.Replace(ctx, fmt.Sprintf(msgCommitFailed, err))
	if c.cfg.ErrorChat != 0 {
		if _, sendErr := c.transport.SendText(ctx, c.cfg.ErrorChat, fmt.Sprintf("Ошибка сохранения (чат %d):\n<code>%v</code>", conversationID, err)); sendErr != nil {
			slog.Debug("Failed to report commit failure to error chat", "error", sendErr)
		}
	}
	return err
}

// sendText sends a plain message, logging failures.
func (c *Coordinator) sendText(ctx context.Context, conversationID int64, text string) {
	if _, err := c.transport.SendText(ctx, conversationID, text); err != nil {
		slog.Error("Failed to send message", "error", err, "conversation_id", conversationID)
	}
}

// deleteLater schedules the confirmation message for deletion.
func (c *Coordinator) deleteLater(ref models.MessageRef) {
	if ref.IsZero() || c.cfg.ConfirmTTL <= 0 {
		return
	}
	transport := c.transport
	time.AfterFunc(c.cfg.ConfirmTTL, func() {
		if err := transport.DeleteMessage(context.Background(), ref); err != nil {
			slog.Debug("Failed to delete confirmation message", "error", err)
		}
	})
}

// progressMessage is the single transport message the commit appends its stage
// trail to, one line per stage.
type progressMessage struct {
	transport messaging.Service
	chatID    int64
	ref       models.MessageRef
	text      string
}

func newProgress(ctx context.Context, transport messaging.Service, chatID int64, header string) *progressMessage {
	p := &progressMessage{transport: transport, chatID: chatID, text: header}
	ref, err := transport.SendText(ctx, chatID, header)
	if err != nil {
		slog.Error("Failed to send progress message", "error", err, "conversation_id", chatID)
		return p
	}
	p.ref = ref
	return p
}

// Append adds a stage line and pushes the updated trail to the operator.
func (p *progressMessage) Append(ctx context.Context, line string) {
	p.text += "\n<i>" + line + "</i>"
	p.push(ctx)
}

// Replace swaps the whole trail for a terminal message.
func (p *progressMessage) Replace(ctx context.Context, text string) {
	p.text = text
	p.push(ctx)
}

func (p *progressMessage) push(ctx context.Context) {
	if p.ref.IsZero() {
		ref, err := p.transport.SendText(ctx, p.chatID, p.text)
		if err != nil {
			slog.Error("Failed to send progress update", "error", err, "conversation_id", p.chatID)
			return
		}
		p.ref = ref
		return
	}
	if err := p.transport.EditText(ctx, p.ref, p.text); err != nil {
		slog.Debug("Failed to edit progress message", "error", err, "conversation_id", p.chatID)
	}
}
