package models

import (
	"encoding/json"
	"time"
)

// Tables carrying realtime change events
const (
	TableGroupActivities   = "group_activities"
	TableGroupParticipants = "group_activity_participants"
)

// ChangeType kind of row change
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent one committed row change on a watched table
type ChangeEvent struct {
	Table          string          `json:"table"`
	Type           ChangeType      `json:"type"`
	OrganizationID string          `json:"organization_id,omitempty"`
	New            json.RawMessage `json:"new,omitempty"`
	Old            json.RawMessage `json:"old,omitempty"`
	CommittedAt    time.Time       `json:"committed_at"`
}

// NewChangeEvent encodes the old/new rows of a change.
func NewChangeEvent(table string, typ ChangeType, orgID string, newRow, oldRow interface{}) (ChangeEvent, error) {
	ev := ChangeEvent{
		Table:          table,
		Type:           typ,
		OrganizationID: orgID,
		CommittedAt:    time.Now().UTC(),
	}
	if newRow != nil {
		b, err := json.Marshal(newRow)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.New = b
	}
	if oldRow != nil {
		b, err := json.Marshal(oldRow)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.Old = b
	}
	return ev, nil
}
