package models

import "time"

// EventType names the realtime notifications fanned out to owners.
type EventType string

const (
	EventFilesUploaded    EventType = "files-uploaded"
	EventFileProcessed    EventType = "file-processed"
	EventFileFailed       EventType = "file-failed"
	EventNewInteraction   EventType = "new-interaction"
	EventResponseApproved EventType = "response-approved"
)

// Event is one realtime notification delivered to an owner's subscribers.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}
