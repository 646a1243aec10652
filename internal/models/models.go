// Package models defines the core data structures for the fire-water-source survey bot.
//
// It includes the dialogue step enumeration, inbound transport events and their
// classification kinds, and the record accumulated over one conversation. These types
// are shared across modules.
package models

import "errors"

// Step identifies one named stage of the guided dialogue.
type Step string

// The twelve dialogue steps, in survey order. PhotoPlate is skipped when the
// operator reports the plate as absent; Finalize is terminal.
const (
	StepIdentifier         Step = "identifier"
	StepPosition           Step = "position"
	StepControlMethod      Step = "control_method"
	StepWaterPresence      Step = "water_presence"
	StepInstallFeasibility Step = "install_feasibility"
	StepAccessFeasibility  Step = "access_feasibility"
	StepPhotoNode          Step = "photo_node"
	StepPhotoOverview      Step = "photo_overview"
	StepPhotoOrienting     Step = "photo_orienting"
	StepPlateExistence     Step = "plate_existence"
	StepPhotoPlate         Step = "photo_plate"
	StepFinalize           Step = "finalize"
)

// Steps lists every dialogue step in survey order.
var Steps = []Step{
	StepIdentifier,
	StepPosition,
	StepControlMethod,
	StepWaterPresence,
	StepInstallFeasibility,
	StepAccessFeasibility,
	StepPhotoNode,
	StepPhotoOverview,
	StepPhotoOrienting,
	StepPlateExistence,
	StepPhotoPlate,
	StepFinalize,
}

// IsValidStep checks if the given step is one of the recognized dialogue steps.
func IsValidStep(s Step) bool {
	for _, known := range Steps {
		if s == known {
			return true
		}
	}
	return false
}

// InputKind classifies the shape of an inbound event, independent of the current step.
type InputKind string

const (
	// InputDigits is a text event composed entirely of digit characters.
	InputDigits InputKind = "digits"
	// InputText is any other plain text event.
	InputText InputKind = "text"
	// InputChoice is a button-press event carrying the chosen value.
	InputChoice InputKind = "choice"
	// InputPhoto is an event carrying one or more image attachments.
	InputPhoto InputKind = "photo"
	// InputOneShotLocation is a single geoposition fix.
	InputOneShotLocation InputKind = "one_shot_location"
	// InputLiveLocation is a live/sharing location event, never accepted by the position step.
	InputLiveLocation InputKind = "live_location"
	// InputCommand is a slash command.
	InputCommand InputKind = "command"
	// InputOther is anything the classifier does not recognize.
	InputOther InputKind = "other"
)

// EventKind is the transport-level shape of an inbound event.
type EventKind string

const (
	EventText     EventKind = "text"
	EventPhoto    EventKind = "photo"
	EventLocation EventKind = "location"
	EventCommand  EventKind = "command"
	EventChoice   EventKind = "choice"
)

// Link is one labeled URL attached to an outbound message as a button.
type Link struct {
	Label string
	URL   string
}

// MessageRef identifies one outbound message so it can later be edited or deleted.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// IsZero reports whether the reference has not been set.
func (r MessageRef) IsZero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}

// PhotoSize is one representation of an attached image. The transport orders
// representations from smallest to largest, matching the Telegram Bot API.
type PhotoSize struct {
	FileID string
	Width  int
	Height int
}

// Location is a geoposition attached to an event. LivePeriod is non-zero for
// live/sharing locations.
type Location struct {
	Latitude   float64
	Longitude  float64
	LivePeriod int
}

// Event is one inbound transport event, already normalized from the concrete
// messenger's update format.
type Event struct {
	ConversationID int64
	UserID         int64
	Kind           EventKind
	Ref            MessageRef // the inbound message itself, when addressable

	Text        string
	Command     string // without leading slash
	CommandArgs string

	Photos   []PhotoSize
	Location *Location

	Choice    string     // callback payload of a button press
	ChoiceRef MessageRef // the message carrying the pressed keyboard
}

// LargestPhoto returns the highest-resolution representation of an attached
// image, or nil when the event carries none.
func (e *Event) LargestPhoto() *PhotoSize {
	var best *PhotoSize
	bestArea := -1
	for i := range e.Photos {
		area := e.Photos[i].Width * e.Photos[i].Height
		if area > bestArea {
			best = &e.Photos[i]
			bestArea = area
		}
	}
	return best
}

// Feature is one record of a feature-store resource.
type Feature struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

// StringField returns the named field as a string, or "" when absent or not a string.
func (f *Feature) StringField(name string) string {
	if f == nil || f.Fields == nil {
		return ""
	}
	s, _ := f.Fields[name].(string)
	return s
}

// IntField returns the named field as an int and whether the conversion succeeded.
// The feature store decodes numeric fields as float64 through encoding/json.
func (f *Feature) IntField(name string) (int, bool) {
	if f == nil || f.Fields == nil {
		return 0, false
	}
	switch v := f.Fields[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Error variables shared across modules for better error handling and testability.
var (
	// ErrFeatureNotFound indicates the identifier did not resolve in the feature store.
	ErrFeatureNotFound = errors.New("feature not found")
	// ErrInputMismatch indicates the event kind does not match the step's expected kind.
	ErrInputMismatch = errors.New("input does not match expected kind for current step")
	// ErrNoConversation indicates no dialogue is in progress for the conversation.
	ErrNoConversation = errors.New("no conversation in progress")
	// ErrNotAtFinalize indicates a finalize request arrived before the terminal step.
	ErrNotAtFinalize = errors.New("conversation has not reached the finalize step")
	// ErrNotChannelMember indicates the user is not a member of the required channel.
	ErrNotChannelMember = errors.New("user is not a member of the required channel")
)
