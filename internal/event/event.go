package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of task mutation an event describes.
type Type string

const (
	TypeOwnershipTaken    Type = "ownership_taken"
	TypeOwnershipReleased Type = "ownership_released"
	TypeStatusChanged     Type = "status_changed"
)

// Event is one task mutation as carried on the wire, one JSON object per frame.
// Which fields are populated depends on Type:
//
//	ownership_taken     → OwnerUserID
//	ownership_released  → PreviousOwnerUserID
//	status_changed      → OldStatus, NewStatus, ChangedByUserID
type Event struct {
	Type                Type      `json:"type"`
	TaskID              string    `json:"task_id"`
	StoryID             string    `json:"story_id"`
	Timestamp           time.Time `json:"timestamp"`
	OwnerUserID         string    `json:"owner_user_id,omitempty"`
	PreviousOwnerUserID string    `json:"previous_owner_user_id,omitempty"`
	OldStatus           string    `json:"old_status,omitempty"`
	NewStatus           string    `json:"new_status,omitempty"`
	ChangedByUserID     string    `json:"changed_by_user_id,omitempty"`
}

// Key returns the event's identity for deduplication: (type, task_id, timestamp).
// Two deliveries of the same logical event produce the same key.
func (e Event) Key() string {
	return fmt.Sprintf("%s|%s|%s", e.Type, e.TaskID, e.Timestamp.UTC().Format(time.RFC3339Nano))
}

// Actor returns the user who caused the event, regardless of type.
func (e Event) Actor() string {
	switch e.Type {
	case TypeOwnershipTaken:
		return e.OwnerUserID
	case TypeOwnershipReleased:
		return e.PreviousOwnerUserID
	case TypeStatusChanged:
		return e.ChangedByUserID
	}
	return ""
}

// Encode serializes the event to its wire form.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}
	return data, nil
}

// Decode parses one wire frame into a typed Event. A frame with an unknown
// type or missing required fields is rejected; callers drop such frames
// without closing the connection.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("parsing event frame: %w", err)
	}

	switch e.Type {
	case TypeOwnershipTaken, TypeOwnershipReleased, TypeStatusChanged:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", e.Type)
	}

	if e.TaskID == "" {
		return Event{}, fmt.Errorf("event missing task_id")
	}
	if e.Timestamp.IsZero() {
		return Event{}, fmt.Errorf("event missing timestamp")
	}

	return e, nil
}
