// Package models defines state structures accumulated over one conversation.
package models

import (
	"fmt"
	"time"
)

// CaptureTime is the wall-clock moment the survey was started, broken into the
// calendar fields the feature store's date_time object expects.
type CaptureTime struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// CaptureTimeAt builds a CaptureTime from t.
func CaptureTimeAt(t time.Time) CaptureTime {
	return CaptureTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// IsZero reports whether the capture time has not been recorded yet.
func (ct CaptureTime) IsZero() bool {
	return ct == CaptureTime{}
}

// Stamp renders the capture time as "2006-1-2_15:04", the format used for
// uploaded file names and the notification broadcast.
func (ct CaptureTime) Stamp() string {
	return fmt.Sprintf("%d-%d-%d_%d:%02d", ct.Year, ct.Month, ct.Day, ct.Hour, ct.Minute)
}

// PartialRecord is the set of answers accumulated across steps for one
// conversation. Fields are append-only until finalize; no step revises an
// earlier field.
type PartialRecord struct {
	Identifier        int         `json:"identifier"`
	DisplayName       string      `json:"display_name"`
	CapturedAt        CaptureTime `json:"captured_at"`
	ProjectedPosition string      `json:"projected_position"` // WKT POINT, EPSG:3857

	ControlMethod      string `json:"control_method"`
	WaterPresence      string `json:"water_presence"`
	InstallFeasibility string `json:"install_feasibility"`
	AccessFeasibility  string `json:"access_feasibility"`
	PlateExistence     string `json:"plate_existence"`

	NodeShot      string  `json:"node_shot"`
	OverviewShot  string  `json:"overview_shot"`
	OrientingShot string  `json:"orienting_shot"`
	PlateShot     *string `json:"plate_shot"` // nil when the plate is absent
}

// ConversationState is the per-conversation dialogue state: the current step and
// the record accumulated so far. It is created on /start, mutated exactly once
// per accepted input, and destroyed on /stop, successful finalize, or fatal
// commit error.
type ConversationState struct {
	ConversationID int64         `json:"conversation_id"`
	CurrentStep    Step          `json:"current_step"`
	Record         PartialRecord `json:"record"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
