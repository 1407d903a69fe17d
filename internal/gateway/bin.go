package gateway

import (
	"context"
	"fmt"

	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/remote"
)

// Recycle bin operations talk to the remote store directly and return its
// errors; they are not queued.

// ListDeleted returns the household's soft-deleted items.
func (g *Gateway) ListDeleted(ctx context.Context) ([]model.Item, error) {
	hh := g.state.Household()
	if hh == nil {
		return nil, ErrNoHousehold
	}
	var items []model.Item
	where := remote.Where(remote.Eq("household_id", hh.ID), remote.NotNull("deleted_at"))
	if err := g.remote.Select(ctx, remote.CollectionItems, where, &items); err != nil {
		return nil, fmt.Errorf("list deleted items: %w", err)
	}
	return items, nil
}

// RestoreItem clears deleted_at remotely and puts the item back in the local
// list.
func (g *Gateway) RestoreItem(ctx context.Context, id string) (model.Item, error) {
	var rows []model.Item
	if err := g.remote.Select(ctx, remote.CollectionItems, remote.ByID(id), &rows); err != nil {
		return model.Item{}, fmt.Errorf("get deleted item: %w", err)
	}
	if len(rows) == 0 {
		return model.Item{}, ErrNotFound
	}

	now := g.now().UTC()
	patch := model.ItemPatch{ClearDeletedAt: true, UpdatedAt: &now}
	if err := g.remote.Update(ctx, remote.CollectionItems, remote.ByID(id), patch.Fields()); err != nil {
		return model.Item{}, fmt.Errorf("restore item: %w", err)
	}

	item := patch.Apply(rows[0])
	if !g.state.AddItem(item) {
		g.state.MergeItem(item)
	}
	return item, nil
}

// PurgeItem removes the item for good.
func (g *Gateway) PurgeItem(ctx context.Context, id string) error {
	if err := g.remote.Delete(ctx, remote.CollectionItems, remote.ByID(id)); err != nil {
		return fmt.Errorf("purge item: %w", err)
	}
	g.state.RemoveItem(id)
	return nil
}
