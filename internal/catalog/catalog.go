// Package catalog keeps the household's product memory: last price and
// category for pre-filling new items, purchase counts, and recurrence for
// automatic re-adding.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/remote"
	"github.com/dukerupert/shopmate/internal/state"
)

// DefaultInterval is used when a due product has no usable interval.
const DefaultInterval = 7

type Catalog struct {
	state  *state.Store
	remote remote.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(st *state.Store, rs remote.Store, logger *slog.Logger) *Catalog {
	return &Catalog{state: st, remote: rs, logger: logger, now: time.Now}
}

// Lookup finds a product by name, ignoring case.
func (c *Catalog) Lookup(name string) (model.HouseholdProduct, bool) {
	name = strings.TrimSpace(name)
	for _, p := range c.state.Catalog() {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return model.HouseholdProduct{}, false
}

// Refresh reloads the household's products from the remote store.
func (c *Catalog) Refresh(ctx context.Context) error {
	hh := c.state.Household()
	if hh == nil {
		return nil
	}
	var products []model.HouseholdProduct
	if err := c.remote.Select(ctx, remote.CollectionProducts, remote.Where(remote.Eq("household_id", hh.ID)), &products); err != nil {
		return fmt.Errorf("select products: %w", err)
	}
	c.state.SetCatalog(products)
	return nil
}

// RecordPurchase counts a purchase of item and remembers its price and
// category.
func (c *Catalog) RecordPurchase(ctx context.Context, item model.Item) error {
	now := c.now().UTC()
	p, ok := c.Lookup(item.Name)
	if !ok {
		p = model.HouseholdProduct{
			ID:          uuid.NewString(),
			HouseholdID: item.HouseholdID,
			Name:        item.Name,
		}
	}
	p.TimesBought++
	p.LastBoughtAt = &now
	if item.Price.Valid {
		p.LastPrice = item.Price
	}
	if item.Category != "" {
		category := item.Category
		p.CategoryName = &category
	}

	if ok {
		patch := map[string]any{
			"times_bought":   p.TimesBought,
			"last_bought_at": now.Format(time.RFC3339Nano),
			"last_price":     nullDecimal(p),
			"category_name":  p.CategoryName,
		}
		if err := c.remote.Update(ctx, remote.CollectionProducts, remote.ByID(p.ID), patch); err != nil {
			return fmt.Errorf("update product %s: %w", p.Name, err)
		}
	} else if _, err := c.remote.Insert(ctx, remote.CollectionProducts, p); err != nil {
		return fmt.Errorf("insert product %s: %w", p.Name, err)
	}

	c.state.PutProduct(p)
	return nil
}

// SetRecurrence schedules name to be re-added every intervalDays days, or
// stops it when intervalDays is nil.
func (c *Catalog) SetRecurrence(ctx context.Context, name, category string, intervalDays *int) (model.HouseholdProduct, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.HouseholdProduct{}, fmt.Errorf("product name is required")
	}
	if intervalDays != nil && *intervalDays <= 0 {
		return model.HouseholdProduct{}, fmt.Errorf("recurrence interval must be positive, got %d", *intervalDays)
	}
	hh := c.state.Household()
	if hh == nil {
		return model.HouseholdProduct{}, fmt.Errorf("no active household")
	}

	p, ok := c.Lookup(name)
	if !ok {
		p = model.HouseholdProduct{ID: uuid.NewString(), HouseholdID: hh.ID, Name: name}
	}
	if category != "" {
		p.CategoryName = &category
	}
	p.RecurrenceInterval = nil
	p.NextOccurrence = nil
	if intervalDays != nil {
		days := *intervalDays
		next := c.now().UTC().AddDate(0, 0, days)
		p.RecurrenceInterval = &days
		p.NextOccurrence = &next
	}

	if ok {
		patch := map[string]any{
			"category_name":       p.CategoryName,
			"recurrence_interval": p.RecurrenceInterval,
			"next_occurrence":     stamp(p.NextOccurrence),
		}
		if err := c.remote.Update(ctx, remote.CollectionProducts, remote.ByID(p.ID), patch); err != nil {
			return model.HouseholdProduct{}, fmt.Errorf("update recurrence: %w", err)
		}
	} else if _, err := c.remote.Insert(ctx, remote.CollectionProducts, p); err != nil {
		return model.HouseholdProduct{}, fmt.Errorf("insert recurrence: %w", err)
	}

	c.state.PutProduct(p)
	return p, nil
}

// Due returns recurring products whose next occurrence is at or before now.
func (c *Catalog) Due(ctx context.Context, now time.Time) ([]model.HouseholdProduct, error) {
	hh := c.state.Household()
	if hh == nil {
		return nil, nil
	}
	where := remote.Where(
		remote.Eq("household_id", hh.ID),
		remote.NotNull("recurrence_interval"),
		remote.Lte("next_occurrence", now.UTC().Format(time.RFC3339Nano)),
	)
	var due []model.HouseholdProduct
	if err := c.remote.Select(ctx, remote.CollectionProducts, where, &due); err != nil {
		return nil, fmt.Errorf("select due products: %w", err)
	}
	return due, nil
}

// Advance moves the product's next occurrence one interval past now.
func (c *Catalog) Advance(ctx context.Context, p model.HouseholdProduct, now time.Time) (model.HouseholdProduct, error) {
	days := DefaultInterval
	if p.Recurring() {
		days = *p.RecurrenceInterval
	}
	next := now.UTC().AddDate(0, 0, days)
	patch := map[string]any{"next_occurrence": next.Format(time.RFC3339Nano)}
	if err := c.remote.Update(ctx, remote.CollectionProducts, remote.ByID(p.ID), patch); err != nil {
		return p, fmt.Errorf("advance %s: %w", p.Name, err)
	}
	p.NextOccurrence = &next
	c.state.PutProduct(p)
	return p, nil
}

func nullDecimal(p model.HouseholdProduct) any {
	if !p.LastPrice.Valid {
		return nil
	}
	return p.LastPrice.Decimal.String()
}

func stamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
