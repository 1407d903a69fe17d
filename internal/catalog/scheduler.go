package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/shopmate/internal/gateway"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/state"
)

// Adder puts items on the shopping list.
type Adder interface {
	AddItem(gateway.NewItem) (model.Item, error)
}

// Scheduler periodically re-adds recurring products that have come due.
type Scheduler struct {
	mu       sync.RWMutex
	catalog  *Catalog
	state    *state.Store
	adder    Adder
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a recurring auto-add scheduler checking every
// interval.
func NewScheduler(c *Catalog, st *state.Store, adder Adder, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		catalog:  c,
		state:    st,
		adder:    adder,
		logger:   logger,
		interval: interval,
	}
}

// Start runs one check immediately and then one per interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.Tick(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick adds every due product once and returns how many were added. It does
// nothing unless auto-add is enabled in settings. A product's next occurrence
// is moved forward before its item is added, so a failed write leaves it due
// without adding anything. Products already waiting on the shopping list are
// only advanced.
func (s *Scheduler) Tick(ctx context.Context) int {
	if !s.state.Settings().AutoAddRecurring {
		return 0
	}
	now := s.catalog.now()
	due, err := s.catalog.Due(ctx, now)
	if err != nil {
		s.logger.Warn("recurring: list due products", "error", err)
		return 0
	}

	added := 0
	for _, p := range due {
		if _, err := s.catalog.Advance(ctx, p, now); err != nil {
			s.logger.Warn("recurring: advance", "product", p.Name, "error", err)
			continue
		}
		if it, ok := s.state.FindByName(p.Name); ok && !it.InPantry {
			s.logger.Debug("recurring: already on the list", "product", p.Name)
			continue
		}

		in := gateway.NewItem{Name: p.Name, Quantity: "1"}
		if p.CategoryName != nil {
			in.Category = *p.CategoryName
		}
		if _, err := s.adder.AddItem(in); err != nil {
			s.logger.Warn("recurring: add item", "product", p.Name, "error", err)
			continue
		}
		added++
	}
	if added > 0 {
		s.logger.Info("recurring products added", "count", added)
	}
	return added
}
