package model

import (
	"encoding/json"
	"time"
)

// EventType is the kind of row change carried by a realtime event.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is the realtime envelope broadcast for every changed row.
// New is set for INSERT and UPDATE, Old for UPDATE and DELETE.
type ChangeEvent struct {
	Type            EventType       `json:"type"`
	Table           string          `json:"table"`
	New             json.RawMessage `json:"new,omitempty"`
	Old             json.RawMessage `json:"old,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

// Topic returns the realtime topic for a household.
func Topic(householdID string) string {
	return "sync-" + householdID
}
