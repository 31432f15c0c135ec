package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is also the routing key of the event.
type EventType string

const (
	// EventProjectSync tells consumers that a project's transactions or
	// schema changed and derived copies should be rebuilt.
	EventProjectSync EventType = "project_sync"
	// EventInvitation records an invitation lifecycle change.
	EventInvitation EventType = "invitation"
)

// Event is a lightweight notification. It carries identifiers only; the
// consumer reads current state from the database.
type Event struct {
	Type      EventType `json:"type"`
	ProjectID string    `json:"project_id"`
	Action    string    `json:"action"`
	IDs       []string  `json:"ids,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewProjectSyncEvent creates a sync event for the affected record ids.
func NewProjectSyncEvent(projectID, action string, ids ...string) *Event {
	return &Event{
		Type:      EventProjectSync,
		ProjectID: projectID,
		Action:    action,
		IDs:       ids,
		Timestamp: time.Now(),
	}
}

// NewInvitationEvent creates an invitation event for one invitation.
func NewInvitationEvent(projectID, action, invitationID string) *Event {
	return &Event{
		Type:      EventInvitation,
		ProjectID: projectID,
		Action:    action,
		IDs:       []string{invitationID},
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and rejects payloads without a type or
// project.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Type == "" || e.ProjectID == "" {
		return nil, fmt.Errorf("incomplete event: type=%q project=%q", e.Type, e.ProjectID)
	}
	return &e, nil
}
