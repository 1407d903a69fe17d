// Package realtime keeps the local state store convergent with changes made
// on other devices. It owns the household subscription and is the only writer
// of the connection status.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/shopmate/internal/connstatus"
	"github.com/dukerupert/shopmate/internal/metrics"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/state"
)

const (
	DefaultDebounce = 250 * time.Millisecond
	itemsTable      = "items"
)

type Listener struct {
	transport Transport
	state     *state.Store
	status    *connstatus.Tracker
	metrics   *metrics.Metrics
	logger    *slog.Logger
	debounce  time.Duration

	mu        sync.Mutex
	household string
	sub       Subscription
	timer     *time.Timer
	cancel    context.CancelFunc
	gen       uint64 // bumped on teardown; callbacks from older generations are dropped
	closed    bool

	// statusMu orders status writes so a stale one can't land after a newer
	// one. It is never held together with mu while callbacks run.
	statusMu sync.Mutex
}

// NewListener creates a listener. A zero debounce uses DefaultDebounce.
func NewListener(t Transport, st *state.Store, status *connstatus.Tracker, m *metrics.Metrics, debounce time.Duration, logger *slog.Logger) *Listener {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Listener{
		transport: t,
		state:     st,
		status:    status,
		metrics:   m,
		logger:    logger,
		debounce:  debounce,
	}
}

// Household returns the household the listener is bound to.
func (l *Listener) Household() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.household
}

// Connect subscribes to the household's change topic after the debounce
// delay. A subscription for a different household is torn down first; a
// subscription already live or pending for the same household is kept.
// An empty id disconnects.
func (l *Listener) Connect(householdID string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if householdID != "" && householdID == l.household && (l.sub != nil || l.timer != nil || l.cancel != nil) {
		l.mu.Unlock()
		return
	}
	old := l.teardownLocked()
	gen := l.gen
	if householdID == "" {
		l.mu.Unlock()
		release(old)
		l.setStatus(gen, connstatus.Disconnected)
		return
	}
	l.household = householdID
	l.mu.Unlock()

	release(old)
	// Connecting goes out before the timer exists, so the subscribe can't
	// race ahead of it.
	l.setStatus(gen, connstatus.Connecting)

	l.mu.Lock()
	if gen == l.gen && !l.closed {
		l.timer = time.AfterFunc(l.debounce, func() { l.subscribe(gen) })
	}
	l.mu.Unlock()
	l.logger.Debug("realtime connect scheduled", "household_id", householdID, "debounce", l.debounce)
}

// Reconnect drops the current subscription and opens a fresh one for the same
// household.
func (l *Listener) Reconnect() {
	l.mu.Lock()
	householdID := l.household
	old := l.teardownLocked()
	l.mu.Unlock()
	release(old)

	if householdID == "" {
		return
	}
	l.Connect(householdID)
}

// Close releases the subscription. The listener can't be reused.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	old := l.teardownLocked()
	l.mu.Unlock()

	release(old)
	l.statusMu.Lock()
	l.status.Set(connstatus.Disconnected)
	l.statusMu.Unlock()
}

// setStatus publishes s unless gen has been superseded or the listener is
// closed.
func (l *Listener) setStatus(gen uint64, s connstatus.Status) {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	if !l.current(gen) {
		return
	}
	l.status.Set(s)
}

// teardownLocked cancels a pending or in-flight subscribe and detaches the
// live subscription, which the caller releases after unlocking.
func (l *Listener) teardownLocked() Subscription {
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	sub := l.sub
	l.sub = nil
	l.household = ""
	return sub
}

func release(sub Subscription) {
	if sub == nil {
		return
	}
	_ = sub.Unsubscribe()
}

func (l *Listener) subscribe(gen uint64) {
	l.mu.Lock()
	if gen != l.gen || l.closed {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	householdID := l.household
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.mu.Unlock()

	topic := model.Topic(householdID)
	sub, err := l.transport.Subscribe(ctx, topic, Handlers{
		OnEvent: func(ev model.ChangeEvent) { l.handle(gen, householdID, ev) },
		OnState: func(s State, err error) { l.lifecycle(gen, s, err) },
	})

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		cancel()
		release(sub)
		return
	}
	if err != nil {
		l.cancel = nil
		l.mu.Unlock()
		cancel()
		l.logger.Warn("realtime subscribe failed", "topic", topic, "error", err)
		l.setStatus(gen, connstatus.Disconnected)
		return
	}
	l.sub = sub
	l.mu.Unlock()
	l.logger.Info("realtime subscribed", "topic", topic)
}

func (l *Listener) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gen == l.gen && !l.closed
}

func (l *Listener) lifecycle(gen uint64, s State, err error) {
	if !l.current(gen) {
		return
	}
	switch s {
	case StateSubscribed:
		l.setStatus(gen, connstatus.Connected)
	case StateChannelError, StateTimedOut, StateClosed:
		l.mu.Lock()
		if gen != l.gen {
			l.mu.Unlock()
			return
		}
		l.gen++
		lost := l.gen
		sub := l.sub
		l.sub = nil
		if l.cancel != nil {
			l.cancel()
			l.cancel = nil
		}
		l.mu.Unlock()
		release(sub)
		l.logger.Warn("realtime channel lost", "state", s, "error", err)
		// Skipped if a Connect or Reconnect already started over.
		l.setStatus(lost, connstatus.Disconnected)
	}
}

func (l *Listener) handle(gen uint64, householdID string, ev model.ChangeEvent) {
	if !l.current(gen) {
		return
	}
	l.setStatus(gen, connstatus.Connected)

	outcome := "applied"
	if err := l.apply(householdID, ev); err != nil {
		outcome = "dropped"
		l.logger.Warn("realtime event dropped", "type", ev.Type, "table", ev.Table, "error", err)
	} else if ev.Table != itemsTable {
		outcome = "ignored"
	}
	l.metrics.RealtimeEvent(string(ev.Type), outcome)
}

// apply maps one change event onto the store. Rows are validated before
// they touch state.
func (l *Listener) apply(householdID string, ev model.ChangeEvent) error {
	if ev.Table != itemsTable {
		return nil
	}
	switch ev.Type {
	case model.EventInsert:
		row, err := decodeRow(ev.New, householdID)
		if err != nil {
			return err
		}
		l.state.AddItem(row)

	case model.EventUpdate:
		row, err := decodeRow(ev.New, householdID)
		if err != nil {
			return err
		}
		if row.Deleted() {
			l.state.RemoveItem(row.ID)
			return nil
		}
		l.state.MergeItem(row)

	case model.EventDelete:
		var old struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return fmt.Errorf("decode old row: %w", err)
		}
		if old.ID == "" {
			return model.ErrMissingID
		}
		l.state.RemoveItem(old.ID)

	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

func decodeRow(raw json.RawMessage, householdID string) (model.Item, error) {
	var row model.Item
	if len(raw) == 0 {
		return row, fmt.Errorf("event has no row")
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, fmt.Errorf("decode row: %w", err)
	}
	if err := row.Validate(); err != nil {
		return row, err
	}
	if row.HouseholdID != householdID {
		return row, fmt.Errorf("row %s belongs to household %s", row.ID, row.HouseholdID)
	}
	return row, nil
}
