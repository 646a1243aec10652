package survey

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Agafia/bot-fire-water-sources/internal/messaging"
	"github.com/Agafia/bot-fire-water-sources/internal/models"
	"github.com/Agafia/bot-fire-water-sources/internal/store"
)

// callLog records collaborator calls in order so tests can assert the commit
// sequence.
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type sentMessage struct {
	ChatID  int64
	Text    string
	Choices []string
	Links   []models.Link
	Ref     models.MessageRef
}

type editedMessage struct {
	Ref  models.MessageRef
	Text string
}

// fakeTransport implements messaging.Service, assigning sequential message ids
// and recording every outbound interaction.
type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	Sent    []sentMessage
	Edits   []editedMessage
	Deleted []models.MessageRef

	SendErr error
	EditErr error
	FileErr error

	log *callLog
}

func (f *fakeTransport) send(chatID int64, text string, choices []string, links []models.Link) (models.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return models.MessageRef{}, f.SendErr
	}
	f.nextID++
	ref := models.MessageRef{ChatID: chatID, MessageID: f.nextID}
	f.Sent = append(f.Sent, sentMessage{ChatID: chatID, Text: text, Choices: choices, Links: links, Ref: ref})
	return ref, nil
}

func (f *fakeTransport) SendText(_ context.Context, conversationID int64, text string) (models.MessageRef, error) {
	return f.send(conversationID, text, nil, nil)
}

func (f *fakeTransport) SendChoices(_ context.Context, conversationID int64, text string, choices []string) (models.MessageRef, error) {
	return f.send(conversationID, text, choices, nil)
}

func (f *fakeTransport) SendLinks(_ context.Context, conversationID int64, text string, links []models.Link) (models.MessageRef, error) {
	return f.send(conversationID, text, nil, links)
}

func (f *fakeTransport) EditText(_ context.Context, ref models.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EditErr != nil {
		return f.EditErr
	}
	f.Edits = append(f.Edits, editedMessage{Ref: ref, Text: text})
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, ref models.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, ref)
	return nil
}

func (f *fakeTransport) FileURL(_ context.Context, fileID string) (string, error) {
	if f.FileErr != nil {
		return "", f.FileErr
	}
	if f.log != nil {
		f.log.add("transport.fileurl %s", fileID)
	}
	return "https://files.example/" + fileID, nil
}

func (f *fakeTransport) Events() <-chan models.Event { return nil }

func (f *fakeTransport) Start(context.Context) error { return nil }

func (f *fakeTransport) Stop() error { return nil }

// lastSent returns the most recent message sent to any chat.
func (f *fakeTransport) lastSent(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.Sent[len(f.Sent)-1]
}

// lastEdit returns the most recent edit.
func (f *fakeTransport) lastEdit(t *testing.T) editedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Edits) == 0 {
		t.Fatal("no messages edited")
	}
	return f.Edits[len(f.Edits)-1]
}

// sentTo returns every message sent to one chat, in order.
func (f *fakeTransport) sentTo(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.Sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

type putCall struct {
	ResourceID int
	FeatureID  int
	Fields     map[string]any
}

type createCall struct {
	ResourceID int
	Fields     map[string]any
	Geom       string
}

// fakeFeatures implements FeatureStore over an in-memory feature map.
type fakeFeatures struct {
	Features map[string]*models.Feature
	Puts     []putCall
	Creates  []createCall

	GetErr    error
	PutErr    error
	CreateErr error
	CreatedID int

	log *callLog
}

func featureKey(resourceID, featureID int) string {
	return fmt.Sprintf("%d/%d", resourceID, featureID)
}

func (f *fakeFeatures) GetFeature(_ context.Context, resourceID, featureID int) (*models.Feature, error) {
	if f.log != nil {
		f.log.add("features.get %d/%d", resourceID, featureID)
	}
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	feature, ok := f.Features[featureKey(resourceID, featureID)]
	if !ok {
		return nil, models.ErrFeatureNotFound
	}
	return feature, nil
}

func (f *fakeFeatures) PutFeature(_ context.Context, resourceID, featureID int, fields map[string]any) error {
	if f.log != nil {
		f.log.add("features.put %d/%d", resourceID, featureID)
	}
	if f.PutErr != nil {
		return f.PutErr
	}
	f.Puts = append(f.Puts, putCall{ResourceID: resourceID, FeatureID: featureID, Fields: fields})
	return nil
}

func (f *fakeFeatures) CreateFeature(_ context.Context, resourceID int, fields map[string]any, geom string) (int, error) {
	if f.log != nil {
		f.log.add("features.create %d", resourceID)
	}
	if f.CreateErr != nil {
		return 0, f.CreateErr
	}
	f.Creates = append(f.Creates, createCall{ResourceID: resourceID, Fields: fields, Geom: geom})
	return f.CreatedID, nil
}

type uploadCall struct {
	SourceURL string
	Name      string
	FolderID  string
}

// fakeStorage implements FileStorage, returning a fixed folder id.
type fakeStorage struct {
	FolderID string
	Ensures  []string
	Uploads  []uploadCall

	EnsureErr error
	UploadErr error

	log *callLog
}

func (f *fakeStorage) EnsureFolder(_ context.Context, existingID, name, parentID string) (string, error) {
	if f.log != nil {
		f.log.add("storage.ensure existing=%s parent=%s", existingID, parentID)
	}
	if f.EnsureErr != nil {
		return "", f.EnsureErr
	}
	f.Ensures = append(f.Ensures, name)
	return f.FolderID, nil
}

func (f *fakeStorage) UploadFromURL(_ context.Context, sourceURL, name, folderID string) error {
	if f.log != nil {
		f.log.add("storage.upload %s", name)
	}
	if f.UploadErr != nil {
		return f.UploadErr
	}
	f.Uploads = append(f.Uploads, uploadCall{SourceURL: sourceURL, Name: name, FolderID: folderID})
	return nil
}

// Shared harness wiring for executor and coordinator tests.
const (
	testPointsResource       = 11
	testCheckupResource      = 22
	testOrganizationResource = 33
	testNotifyChat           = int64(900)
	testErrorChat            = int64(901)
	testParentFolder         = "parent-folder"
	testBotURL               = "https://t.me/testbot?start"
)

// testClock is the fixed wall clock survey tests run under.
var testClock = time.Date(2024, time.May, 17, 9, 30, 0, 0, time.UTC)

// testStamp is testClock rendered in the upload file name format.
const testStamp = "2024-5-17_9:30"

type harness struct {
	states    store.Store
	features  *fakeFeatures
	storage   *fakeStorage
	transport *fakeTransport
	tracker   *messaging.MessageTracker
	coord     *Coordinator
	exec      *Executor
	log       *callLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &callLog{}
	states := store.NewInMemoryStore()
	features := &fakeFeatures{
		Features:  map[string]*models.Feature{},
		CreatedID: 777,
		log:       log,
	}
	features.Features[featureKey(testPointsResource, 42)] = &models.Feature{
		ID: 42,
		Fields: map[string]any{
			"name":      "ПГ-42",
			"Поселение": "Сургут",
			"Улица":     "Ленина",
			"Дом":       "10",
			"Ориентир":  "у школы",
		},
	}
	storage := &fakeStorage{FolderID: "folder-42", log: log}
	transport := &fakeTransport{log: log}
	tracker := messaging.NewMessageTracker()
	coord := NewCoordinator(states, features, storage, transport, tracker,
		WithResources(testPointsResource, testCheckupResource, testOrganizationResource),
		WithParentFolder(testParentFolder),
		WithNotifyChat(testNotifyChat),
		WithErrorChat(testErrorChat),
		WithBotURL(testBotURL),
		WithConfirmTTL(0),
	)
	exec := NewExecutor(states, features, transport, tracker, coord,
		WithPointsResource(testPointsResource),
		WithClock(func() time.Time { return testClock }),
		WithNoticeTTL(0),
	)
	return &harness{
		states:    states,
		features:  features,
		storage:   storage,
		transport: transport,
		tracker:   tracker,
		coord:     coord,
		exec:      exec,
		log:       log,
	}
}

// state loads the conversation state, failing the test on store errors.
func (h *harness) state(t *testing.T, conversationID int64) *models.ConversationState {
	t.Helper()
	state, err := h.states.GetConversation(conversationID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	return state
}

// handle feeds one event to the executor and fails the test on error.
func (h *harness) handle(t *testing.T, event models.Event) {
	t.Helper()
	if err := h.exec.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent(%s): %v", event.Kind, err)
	}
}

func commandEvent(conversationID int64, command, args string) models.Event {
	return models.Event{
		ConversationID: conversationID,
		Kind:           models.EventCommand,
		Command:        command,
		CommandArgs:    args,
	}
}

func textEvent(conversationID int64, text string) models.Event {
	return models.Event{
		ConversationID: conversationID,
		Kind:           models.EventText,
		Text:           text,
	}
}

func photoEvent(conversationID int64, fileID string) models.Event {
	return models.Event{
		ConversationID: conversationID,
		Kind:           models.EventPhoto,
		Photos: []models.PhotoSize{
			{FileID: fileID + "-thumb", Width: 90, Height: 90},
			{FileID: fileID, Width: 800, Height: 600},
		},
	}
}

func locationEvent(conversationID int64, lat, lon float64) models.Event {
	return models.Event{
		ConversationID: conversationID,
		Kind:           models.EventLocation,
		Location:       &models.Location{Latitude: lat, Longitude: lon},
	}
}

func choiceEvent(conversationID int64, value string, ref models.MessageRef) models.Event {
	return models.Event{
		ConversationID: conversationID,
		Kind:           models.EventChoice,
		Choice:         value,
		ChoiceRef:      ref,
	}
}
