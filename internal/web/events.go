package web

import (
	"encoding/json"
	"time"
)

// WebSocket event types
const (
	EventDashboardUpdated = "dashboard.updated"
)

// WSEvent represents a structured WebSocket message
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// DashboardUpdatedPayload is the payload for EventDashboardUpdated
type DashboardUpdatedPayload struct {
	SessionID string    `json:"session_id"`
	StudyID   int64     `json:"study_id"`
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// DashboardUpdatedEvent creates a JSON message telling a session's tabs to
// refresh their dashboard.
func DashboardUpdatedEvent(sessionID string, studyID int64, loading bool, errMsg string) []byte {
	evt := WSEvent{
		Type: EventDashboardUpdated,
		Payload: DashboardUpdatedPayload{
			SessionID: sessionID,
			StudyID:   studyID,
			Loading:   loading,
			Error:     errMsg,
			At:        time.Now().UTC(),
		},
	}
	b, _ := json.Marshal(evt)
	return b
}
