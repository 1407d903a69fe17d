// Package gateway turns user intents into an immediate local change plus a
// best-effort remote commit. Commits that fail for a transient reason land in
// the offline queue; commits the remote store rejects outright are
// dead-lettered and reported to the user. Either way the local change stays.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/shopmate/internal/grocery"
	"github.com/dukerupert/shopmate/internal/metrics"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/notify"
	"github.com/dukerupert/shopmate/internal/queue"
	"github.com/dukerupert/shopmate/internal/remote"
	"github.com/dukerupert/shopmate/internal/state"
)

var (
	ErrNameRequired = errors.New("item name is required")
	ErrNoHousehold  = errors.New("no active household")
	ErrNotFound     = errors.New("item not found")
)

// Catalog is the product memory used to pre-fill new items and to count
// purchases.
type Catalog interface {
	Lookup(name string) (model.HouseholdProduct, bool)
	RecordPurchase(ctx context.Context, item model.Item) error
}

// NewItem is the input to AddItem. Empty Category means auto-detect; nil
// Price means use the last known price.
type NewItem struct {
	Name     string
	Category string
	Quantity string
	Price    *decimal.Decimal
	InPantry bool
	ListID   *string
}

type job struct {
	action model.PendingAction
	after  func(context.Context)
	done   chan struct{} // set for flush barriers
}

type Gateway struct {
	state   *state.Store
	remote  remote.Store
	queue   *queue.Queue
	catalog Catalog
	notify  notify.Notifier
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	jobs   []job
	closed bool
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a gateway and starts its commit worker. cat may be nil.
func New(st *state.Store, rs remote.Store, q *queue.Queue, cat Catalog, n notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Gateway {
	if n == nil {
		n = notify.Discard
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		state:   st,
		remote:  rs,
		queue:   q,
		catalog: cat,
		notify:  n,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go g.run()
	return g
}

// AddItem creates an item locally and commits it.
func (g *Gateway) AddItem(in NewItem) (model.Item, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Item{}, ErrNameRequired
	}
	hh := g.state.Household()
	if hh == nil {
		return model.Item{}, ErrNoHousehold
	}

	var known *model.HouseholdProduct
	if g.catalog != nil {
		if p, ok := g.catalog.Lookup(name); ok {
			known = &p
		}
	}

	category := strings.TrimSpace(in.Category)
	if category == "" && known != nil && known.CategoryName != nil {
		category = *known.CategoryName
	}
	if category == "" {
		category = grocery.Categorize(name, g.state.Categories())
	}

	now := g.now().UTC()
	item := model.Item{
		ID:          uuid.NewString(),
		Name:        name,
		Category:    category,
		Quantity:    strings.TrimSpace(in.Quantity),
		InPantry:    in.InPantry,
		CreatedBy:   g.userID(),
		HouseholdID: hh.ID,
		ListID:      in.ListID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch {
	case in.Price != nil:
		item.Price = decimal.NewNullDecimal(*in.Price)
	case known != nil:
		item.Price = known.LastPrice
	}
	if item.ListID == nil {
		if l := g.state.CurrentList(); l != nil {
			id := l.ID
			item.ListID = &id
		}
	}

	g.state.AddItem(item)
	g.submit(model.PendingAction{
		ID:        uuid.NewString(),
		Type:      model.ActionAddItem,
		Payload:   model.ActionPayload{ItemID: item.ID, Item: &item},
		Timestamp: now,
	}, nil)
	return item, nil
}

// ToggleItem moves an item between the shopping list and the pantry.
// Consuming an item whose quantity is an integer above one takes one unit
// instead, unless forceMove is set.
func (g *Gateway) ToggleItem(id string, currentStatus, forceMove bool) {
	item, ok := g.state.Item(id)
	if !ok {
		g.logger.Debug("toggle of unknown item ignored", "item_id", id)
		return
	}
	now := g.now().UTC()

	if currentStatus && !forceMove {
		if n, ok := item.Units(); ok && n > 1 {
			qty := strconv.Itoa(n - 1)
			g.update(id, model.ItemPatch{Quantity: &qty, UpdatedAt: &now}, now)
			return
		}
	}

	target := !currentStatus
	patch := model.ItemPatch{InPantry: &target, UpdatedAt: &now}
	var boughtBy *string
	if target {
		user := g.userID()
		boughtBy = &user
		patch.BoughtBy = boughtBy
	} else {
		patch.ClearBoughtBy = true
	}
	g.state.UpdateItem(id, patch)

	var after func(context.Context)
	if target && g.catalog != nil {
		bought := patch.Apply(item)
		after = func(ctx context.Context) {
			if err := g.catalog.RecordPurchase(ctx, bought); err != nil {
				g.logger.Warn("record purchase failed", "item", bought.Name, "error", err)
			}
		}
	}
	g.submit(model.PendingAction{
		ID:        uuid.NewString(),
		Type:      model.ActionToggleItem,
		Payload:   model.ActionPayload{ItemID: id, Status: target, BoughtBy: boughtBy},
		Timestamp: now,
	}, after)
}

// UpdateItem merges patch into the item locally and commits it.
func (g *Gateway) UpdateItem(id string, patch model.ItemPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return ErrNameRequired
		}
		patch.Name = &name
	}
	if patch.Empty() {
		return nil
	}
	if _, ok := g.state.Item(id); !ok {
		g.logger.Debug("update of unknown item ignored", "item_id", id)
		return nil
	}
	now := g.now().UTC()
	if patch.UpdatedAt == nil {
		patch.UpdatedAt = &now
	}
	g.update(id, patch, now)
	return nil
}

func (g *Gateway) update(id string, patch model.ItemPatch, now time.Time) {
	g.state.UpdateItem(id, patch)
	g.submit(model.PendingAction{
		ID:        uuid.NewString(),
		Type:      model.ActionUpdateItem,
		Payload:   model.ActionPayload{ItemID: id, Updates: &patch},
		Timestamp: now,
	}, nil)
}

// SoftDeleteItem hides the item at once and marks it deleted remotely. It
// stays recoverable from the recycle bin until purged.
func (g *Gateway) SoftDeleteItem(id string) {
	if !g.state.RemoveItem(id) {
		g.logger.Debug("delete of unknown item ignored", "item_id", id)
		return
	}
	now := g.now().UTC()
	g.submit(model.PendingAction{
		ID:        uuid.NewString(),
		Type:      model.ActionDeleteItem,
		Payload:   model.ActionPayload{ItemID: id, DeletedAt: &now},
		Timestamp: now,
	}, nil)
}

// DuplicateItem adds a new item with the name, category and price of an
// existing one.
func (g *Gateway) DuplicateItem(id, quantity string) (model.Item, error) {
	src, ok := g.state.Item(id)
	if !ok {
		return model.Item{}, ErrNotFound
	}
	in := NewItem{
		Name:     src.Name,
		Category: src.Category,
		Quantity: quantity,
		ListID:   src.ListID,
	}
	if src.Price.Valid {
		p := src.Price.Decimal
		in.Price = &p
	}
	return g.AddItem(in)
}

// Flush blocks until every commit submitted before the call has been
// attempted.
func (g *Gateway) Flush(ctx context.Context) error {
	done := make(chan struct{})
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.jobs = append(g.jobs, job{done: done})
	g.mu.Unlock()
	g.signal()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush gateway: %w", ctx.Err())
	}
}

// Close stops the commit worker. Commits not yet attempted are moved to the
// offline queue.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()
	g.cancel()
	<-g.done
}

func (g *Gateway) userID() string {
	if p := g.state.Profile(); p != nil {
		return p.ID
	}
	return ""
}

func (g *Gateway) submit(a model.PendingAction, after func(context.Context)) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.queue.Enqueue(a, errors.New("gateway closed"))
		return
	}
	g.jobs = append(g.jobs, job{action: a, after: after})
	g.mu.Unlock()
	g.signal()
}

func (g *Gateway) signal() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *Gateway) run() {
	defer close(g.done)
	for {
		g.mu.Lock()
		for len(g.jobs) == 0 && !g.closed {
			g.mu.Unlock()
			select {
			case <-g.wake:
			case <-g.ctx.Done():
			}
			g.mu.Lock()
		}
		if g.closed {
			rest := g.jobs
			g.jobs = nil
			g.mu.Unlock()
			for _, j := range rest {
				if j.done != nil {
					close(j.done)
					continue
				}
				g.queue.Enqueue(j.action, errors.New("gateway closed"))
			}
			return
		}
		j := g.jobs[0]
		g.jobs = g.jobs[1:]
		g.mu.Unlock()

		if j.done != nil {
			close(j.done)
			continue
		}
		g.commit(g.ctx, j)
	}
}

func (g *Gateway) commit(ctx context.Context, j job) {
	a := j.action
	kind := string(a.Type)

	// Queue behind an earlier action for the same item so replay keeps
	// them in order.
	if g.state.HasPendingFor(a.EntityID()) {
		g.queue.Enqueue(a, nil)
		g.metrics.Commit(kind, "queued")
		return
	}

	err := queue.Dispatch(ctx, g.remote, a)
	switch {
	case err == nil:
		g.metrics.Commit(kind, "ok")
		g.logger.Debug("committed", "type", a.Type, "item_id", a.EntityID())
		if j.after != nil {
			j.after(ctx)
		}
	case queue.Terminal(err):
		g.metrics.Commit(kind, "rejected")
		g.queue.DeadLetter(a, err)
	default:
		g.metrics.Commit(kind, "queued")
		g.queue.Enqueue(a, err)
		g.notify.Notify(notify.Notification{
			Level:   notify.LevelInfo,
			Message: "Saved offline. Changes will sync when you're back online.",
		})
	}
}
