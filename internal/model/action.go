package model

import "time"

// ActionType names a queued mutation.
type ActionType string

const (
	ActionAddItem    ActionType = "ADD_ITEM"
	ActionUpdateItem ActionType = "UPDATE_ITEM"
	ActionDeleteItem ActionType = "DELETE_ITEM"
	ActionToggleItem ActionType = "TOGGLE_ITEM"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionAddItem, ActionUpdateItem, ActionDeleteItem, ActionToggleItem:
		return true
	}
	return false
}

// ActionPayload carries everything needed to replay an action without any
// other context. Which fields are set depends on the action type:
//
//	ADD_ITEM     Item
//	UPDATE_ITEM  ItemID, Updates
//	TOGGLE_ITEM  ItemID, Status, BoughtBy
//	DELETE_ITEM  ItemID, DeletedAt
type ActionPayload struct {
	ItemID    string     `json:"item_id"`
	Item      *Item      `json:"item,omitempty"`
	Updates   *ItemPatch `json:"updates,omitempty"`
	Status    bool       `json:"status"`
	BoughtBy  *string    `json:"bought_by,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// PendingAction is a mutation waiting to be committed to the remote store.
type PendingAction struct {
	ID          string        `json:"id"`
	Type        ActionType    `json:"type"`
	Payload     ActionPayload `json:"payload"`
	Timestamp   time.Time     `json:"timestamp"`
	RetryCount  int           `json:"retry_count"`
	NextAttempt *time.Time    `json:"next_attempt,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

// EntityID returns the id of the item the action targets.
func (a PendingAction) EntityID() string {
	if a.Payload.ItemID != "" {
		return a.Payload.ItemID
	}
	if a.Payload.Item != nil {
		return a.Payload.Item.ID
	}
	return ""
}

// Due reports whether the action may be attempted at now.
func (a PendingAction) Due(now time.Time) bool {
	return a.NextAttempt == nil || !now.Before(*a.NextAttempt)
}

// DeadLetter is an action that will not be retried automatically.
type DeadLetter struct {
	Action   PendingAction `json:"action"`
	Reason   string        `json:"reason"`
	FailedAt time.Time     `json:"failed_at"`
}
