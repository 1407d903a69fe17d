package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/remote"
)

// ErrMalformed marks an action that can never be dispatched.
var ErrMalformed = errors.New("malformed pending action")

// Dispatch commits a to the remote store. The mutation gateway uses it for
// first attempts and the queue for replays, so both send the same request.
func Dispatch(ctx context.Context, rs remote.Store, a model.PendingAction) error {
	switch a.Type {
	case model.ActionAddItem:
		if a.Payload.Item == nil {
			return fmt.Errorf("%w: %s without item", ErrMalformed, a.Type)
		}
		_, err := rs.Insert(ctx, remote.CollectionItems, a.Payload.Item)
		if isConflict(err) {
			// An earlier attempt reached the server but its response was lost.
			return nil
		}
		return err

	case model.ActionUpdateItem:
		if a.Payload.ItemID == "" || a.Payload.Updates == nil {
			return fmt.Errorf("%w: %s without item id or updates", ErrMalformed, a.Type)
		}
		return rs.Update(ctx, remote.CollectionItems, remote.ByID(a.Payload.ItemID), a.Payload.Updates.Fields())

	case model.ActionToggleItem:
		if a.Payload.ItemID == "" {
			return fmt.Errorf("%w: %s without item id", ErrMalformed, a.Type)
		}
		patch := map[string]any{
			"in_pantry":  a.Payload.Status,
			"bought_by":  nil,
			"updated_at": stamp(a.Timestamp),
		}
		if a.Payload.BoughtBy != nil {
			patch["bought_by"] = *a.Payload.BoughtBy
		}
		return rs.Update(ctx, remote.CollectionItems, remote.ByID(a.Payload.ItemID), patch)

	case model.ActionDeleteItem:
		if a.Payload.ItemID == "" {
			return fmt.Errorf("%w: %s without item id", ErrMalformed, a.Type)
		}
		deletedAt := a.Timestamp
		if a.Payload.DeletedAt != nil {
			deletedAt = *a.Payload.DeletedAt
		}
		patch := map[string]any{
			"deleted_at": stamp(deletedAt),
			"updated_at": stamp(deletedAt),
		}
		return rs.Update(ctx, remote.CollectionItems, remote.ByID(a.Payload.ItemID), patch)
	}
	return fmt.Errorf("%w: unknown type %q", ErrMalformed, a.Type)
}

// Terminal reports whether err will recur on every retry.
func Terminal(err error) bool {
	return errors.Is(err, ErrMalformed) || remote.IsTerminal(err)
}

func isConflict(err error) bool {
	var re *remote.Error
	return errors.As(err, &re) && re.Code == "conflict"
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
