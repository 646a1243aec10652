package survey

import (
	"errors"
	"strings"
	"testing"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

const testConversation = int64(100)

// runToStep drives a fresh conversation forward until it reaches target,
// answering every step with valid input. The plate is reported present so the
// full chain, plate photo included, is exercised.
func runToStep(t *testing.T, h *harness, target models.Step) {
	t.Helper()
	inputs := []struct {
		step  models.Step
		event models.Event
	}{
		{models.StepIdentifier, textEvent(testConversation, "42")},
		{models.StepPosition, locationEvent(testConversation, 61.25, 73.39)},
		{models.StepControlMethod, choiceEvent(testConversation, "установка с пуском воды", models.MessageRef{})},
		{models.StepWaterPresence, choiceEvent(testConversation, "имеется", models.MessageRef{})},
		{models.StepInstallFeasibility, choiceEvent(testConversation, "возможна", models.MessageRef{})},
		{models.StepAccessFeasibility, choiceEvent(testConversation, "возможен", models.MessageRef{})},
		{models.StepPhotoNode, photoEvent(testConversation, "node")},
		{models.StepPhotoOverview, photoEvent(testConversation, "overview")},
		{models.StepPhotoOrienting, photoEvent(testConversation, "orienting")},
		{models.StepPlateExistence, choiceEvent(testConversation, "есть (по ГОСТ)", models.MessageRef{})},
		{models.StepPhotoPlate, photoEvent(testConversation, "plate")},
	}

	h.handle(t, commandEvent(testConversation, "start", ""))
	for _, in := range inputs {
		if in.step == target {
			return
		}
		state := h.state(t, testConversation)
		if state == nil || state.CurrentStep != in.step {
			t.Fatalf("expected conversation at step %q, got %+v", in.step, state)
		}
		h.handle(t, in.event)
	}
	if target != models.StepFinalize {
		t.Fatalf("runToStep: unknown target %q", target)
	}
}

func TestExecutorFullPath(t *testing.T) {
	h := newHarness(t)
	runToStep(t, h, models.StepFinalize)

	state := h.state(t, testConversation)
	if state == nil || state.CurrentStep != models.StepFinalize {
		t.Fatalf("expected terminal step, got %+v", state)
	}

	r := state.Record
	if r.Identifier != 42 {
		t.Errorf("Identifier = %d, want 42", r.Identifier)
	}
	if want := "ПГ-42\nСургут, Ленина, 10"; r.DisplayName != want {
		t.Errorf("DisplayName = %q, want %q", r.DisplayName, want)
	}
	if r.CapturedAt.Stamp() != testStamp {
		t.Errorf("capture stamp = %q, want %q", r.CapturedAt.Stamp(), testStamp)
	}
	if !strings.HasPrefix(r.ProjectedPosition, "POINT") {
		t.Errorf("ProjectedPosition = %q, want a WKT point", r.ProjectedPosition)
	}
	if r.ControlMethod != "установка с пуском воды" || r.WaterPresence != "имеется" {
		t.Errorf("choices not recorded: %+v", r)
	}
	if r.NodeShot != "node" || r.OverviewShot != "overview" || r.OrientingShot != "orienting" {
		t.Errorf("photos not recorded: %+v", r)
	}
	if r.PlateShot == nil || *r.PlateShot != "plate" {
		t.Errorf("PlateShot = %v, want plate", r.PlateShot)
	}

	last := h.transport.lastSent(t)
	if !strings.Contains(last.Text, "/save") {
		t.Errorf("final prompt = %q, want the save instruction", last.Text)
	}
}

func TestExecutorPlateAbsentSkipsPlatePhoto(t *testing.T) {
	h := newHarness(t)
	runToStep(t, h, models.StepPlateExistence)
	h.handle(t, choiceEvent(testConversation, models.PlateAbsent, models.MessageRef{}))

	state := h.state(t, testConversation)
	if state == nil || state.CurrentStep != models.StepFinalize {
		t.Fatalf("expected jump to terminal step, got %+v", state)
	}
	if state.Record.PlateShot != nil {
		t.Errorf("PlateShot = %v, want nil when the plate is absent", state.Record.PlateShot)
	}
}

func TestExecutorMismatchLeavesState(t *testing.T) {
	h := newHarness(t)
	runToStep(t, h, models.StepPosition)
	before := h.state(t, testConversation)

	// A photo where a geoposition is expected.
	h.handle(t, photoEvent(testConversation, "wrong"))

	after := h.state(t, testConversation)
	if after.CurrentStep != before.CurrentStep {
		t.Errorf("step changed on mismatch: %q -> %q", before.CurrentStep, after.CurrentStep)
	}
	if after.Record != before.Record {
		t.Errorf("record changed on mismatch")
	}
	last := h.transport.lastSent(t)
	if !strings.Contains(last.Text, "Неверный ввод") {
		t.Errorf("last message = %q, want a wrong-input notice", last.Text)
	}
}

func TestExecutorLiveLocationRejected(t *testing.T) {
	h := newHarness(t)
	runToStep(t, h, models.StepPosition)

	live := locationEvent(testConversation, 61.25, 73.39)
	live.Location.LivePeriod = 600
	h.handle(t, live)

	state := h.state(t, testConversation)
	if state.CurrentStep != models.StepPosition {
		t.Errorf("live location accepted as one-shot position, step = %q", state.CurrentStep)
	}
}

func TestExecutorIdentifierNotFound(t *testing.T) {
	h := newHarness(t)
	h.handle(t, commandEvent(testConversation, "start", ""))
	h.handle(t, textEvent(testConversation, "999"))

	state := h.state(t, testConversation)
	if state == nil || state.CurrentStep != models.StepIdentifier {
		t.Fatalf("expected state kept at identifier step, got %+v", state)
	}
	if state.Record.Identifier != 0 {
		t.Errorf("Identifier = %d, want unset", state.Record.Identifier)
	}
	edit := h.transport.lastEdit(t)
	if !strings.Contains(edit.Text, "не нашёл") {
		t.Errorf("notice = %q, want a not-found notice", edit.Text)
	}
}

func TestExecutorIdentifierLookupFailure(t *testing.T) {
	h := newHarness(t)
	h.handle(t, commandEvent(testConversation, "start", ""))

	h.features.GetErr = errors.New("connection refused")
	h.handle(t, textEvent(testConversation, "42"))

	state := h.state(t, testConversation)
	if state == nil || state.CurrentStep != models.StepIdentifier {
		t.Fatalf("expected state kept at identifier step, got %+v", state)
	}
	edit := h.transport.lastEdit(t)
	if !strings.Contains(edit.Text, "Произошла ошибка") {
		t.Errorf("notice = %q, want a lookup-failure notice", edit.Text)
	}

	// The same identifier works once the store is reachable again.
	h.features.GetErr = nil
	h.handle(t, textEvent(testConversation, "42"))
	state = h.state(t, testConversation)
	if state.CurrentStep != models.StepPosition {
		t.Errorf("retry did not advance, step = %q", state.CurrentStep)
	}
}

func TestExecutorChoiceOutsideList(t *testing.T) {
	h := newHarness(t)
	runToStep(t, h, models.StepControlMethod)
	before := h.state(t, testConversation)

	h.handle(t, choiceEvent(testConversation, "Осмотр Полный", models.MessageRef{}))

	after := h.state(t, testConversation)
	if after.CurrentStep != before.CurrentStep || after.Record.ControlMethod != "" {
		t.Errorf("off-list choice recorded: %+v", after)
	}
	last := h.transport.lastSent(t)
	if !strings.Contains(last.Text, "вариантов") {
		t.Errorf("last message = %q, want a bad-choice notice", last.Text)
	}
}

func TestExecutorChoiceAcknowledgedOnKeyboard(t *testing.T) {
	h := newHarness(t)
	runToStep(t, h, models.StepControlMethod)

	keyboard := h.transport.lastSent(t)
	if keyboard.Choices == nil {
		t.Fatalf("expected a choice keyboard, got %+v", keyboard)
	}
	h.handle(t, choiceEvent(testConversation, "осмотр полный", keyboard.Ref))

	edit := h.transport.lastEdit(t)
	if edit.Ref != keyboard.Ref {
		t.Errorf("acknowledgement edited %+v, want the keyboard message %+v", edit.Ref, keyboard.Ref)
	}
	if !strings.Contains(edit.Text, "осмотр полный") {
		t.Errorf("acknowledgement = %q, want the chosen value", edit.Text)
	}
}

func TestExecutorStartWhileRunning(t *testing.T) {
	h := newHarness(t)
	runToStep(t, h, models.StepControlMethod)

	h.handle(t, commandEvent(testConversation, "start", ""))

	state := h.state(t, testConversation)
	if state.CurrentStep != models.StepControlMethod {
		t.Errorf("second /start changed step to %q", state.CurrentStep)
	}
	last := h.transport.lastSent(t)
	if !strings.Contains(last.Text, "уже запущен") {
		t.Errorf("last message = %q, want an already-running notice", last.Text)
	}
}

func TestExecutorStartWithInlineIdentifier(t *testing.T) {
	h := newHarness(t)
	h.handle(t, commandEvent(testConversation, "start", "42"))

	state := h.state(t, testConversation)
	if state == nil || state.CurrentStep != models.StepPosition {
		t.Fatalf("inline identifier not consumed, got %+v", state)
	}
	if state.Record.Identifier != 42 {
		t.Errorf("Identifier = %d, want 42", state.Record.Identifier)
	}
}

func TestExecutorInputBeforeStart(t *testing.T) {
	h := newHarness(t)
	h.handle(t, textEvent(testConversation, "42"))

	if state := h.state(t, testConversation); state != nil {
		t.Fatalf("input before /start created state: %+v", state)
	}
	last := h.transport.lastSent(t)
	if !strings.Contains(last.Text, "/start") {
		t.Errorf("last message = %q, want a start hint", last.Text)
	}
}

func TestExecutorStopClearsEverything(t *testing.T) {
	h := newHarness(t)
	runToStep(t, h, models.StepPhotoNode)

	stop := commandEvent(testConversation, "stop", "")
	stop.Ref = models.MessageRef{ChatID: testConversation, MessageID: 5000}
	h.handle(t, stop)

	if state := h.state(t, testConversation); state != nil {
		t.Fatalf("state survived /stop: %+v", state)
	}
	if len(h.transport.Deleted) == 0 {
		t.Error("no tracked messages were deleted on /stop")
	}
	deletedStop := false
	for _, ref := range h.transport.Deleted {
		if ref == stop.Ref {
			deletedStop = true
		}
	}
	if !deletedStop {
		t.Error("the /stop command message itself was not deleted")
	}
	last := h.transport.lastSent(t)
	if !strings.Contains(last.Text, "прерван") {
		t.Errorf("last message = %q, want a stopped notice", last.Text)
	}

	// A fresh dialogue starts from a clean record.
	h.handle(t, commandEvent(testConversation, "start", ""))
	state := h.state(t, testConversation)
	if state == nil || state.CurrentStep != models.StepIdentifier || state.Record.Identifier != 0 {
		t.Errorf("restart after /stop not clean: %+v", state)
	}
}

func TestExecutorStopWithoutDialogue(t *testing.T) {
	h := newHarness(t)
	h.handle(t, commandEvent(testConversation, "stop", ""))

	last := h.transport.lastSent(t)
	if !strings.Contains(last.Text, "Нет активного диалога") {
		t.Errorf("last message = %q, want a nothing-to-stop notice", last.Text)
	}
}

func TestExecutorHelpKeepsState(t *testing.T) {
	h := newHarness(t)
	h.exec.helpLinks = []models.Link{{Label: "Карта", URL: "https://example.com/map"}}
	runToStep(t, h, models.StepWaterPresence)
	before := h.state(t, testConversation)

	h.handle(t, commandEvent(testConversation, "help", ""))

	after := h.state(t, testConversation)
	if after.CurrentStep != before.CurrentStep {
		t.Errorf("/help changed step to %q", after.CurrentStep)
	}
	last := h.transport.lastSent(t)
	if len(last.Links) != 1 || last.Links[0].URL != "https://example.com/map" {
		t.Errorf("help message carries links %+v", last.Links)
	}
}

func TestExecutorSaveBeforeTerminalStep(t *testing.T) {
	h := newHarness(t)
	runToStep(t, h, models.StepPhotoNode)

	h.handle(t, commandEvent(testConversation, "save", ""))

	state := h.state(t, testConversation)
	if state == nil || state.CurrentStep != models.StepPhotoNode {
		t.Fatalf("premature /save disturbed state: %+v", state)
	}
	if len(h.storage.Uploads) != 0 || len(h.features.Creates) != 0 {
		t.Error("premature /save reached the stores")
	}
	last := h.transport.lastSent(t)
	if !strings.Contains(last.Text, "не завершен") {
		t.Errorf("last message = %q, want a not-finished notice", last.Text)
	}
}
