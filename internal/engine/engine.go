// Package engine owns and wires the sync engine: local state, snapshot
// persistence, the mutation gateway, the offline queue, the realtime listener
// and the recurring scheduler.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/shopmate/internal/catalog"
	"github.com/dukerupert/shopmate/internal/config"
	"github.com/dukerupert/shopmate/internal/connstatus"
	"github.com/dukerupert/shopmate/internal/database"
	"github.com/dukerupert/shopmate/internal/gateway"
	"github.com/dukerupert/shopmate/internal/metrics"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/notify"
	"github.com/dukerupert/shopmate/internal/queue"
	"github.com/dukerupert/shopmate/internal/realtime"
	"github.com/dukerupert/shopmate/internal/remote"
	"github.com/dukerupert/shopmate/internal/snapshot"
	"github.com/dukerupert/shopmate/internal/state"
	"github.com/dukerupert/shopmate/internal/store"
)

var ErrNoHousehold = errors.New("no household selected")

// Options configure New. Remote, Transport and DB are built from Config when
// nil.
type Options struct {
	Config     config.Config
	Remote     remote.Store
	Transport  realtime.Transport
	DB         *sql.DB
	Registerer prometheus.Registerer
	Notifier   notify.Notifier
	Logger     *slog.Logger
}

type Engine struct {
	State     *state.Store
	Status    *connstatus.Tracker
	Metrics   *metrics.Metrics
	Remote    remote.Store
	Queue     *queue.Queue
	Gateway   *gateway.Gateway
	Catalog   *catalog.Catalog
	Listener  *realtime.Listener
	Scheduler *catalog.Scheduler
	Persister *snapshot.Persister

	cfg     config.Config
	db      *sql.DB
	ownsDB  bool
	logger  *slog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	unsub   func()
	started bool
}

// New builds the engine and restores the saved snapshot. It makes no network
// calls.
func New(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := opts.Notifier
	if n == nil {
		n = notify.Logger{Log: logger}
	}

	e := &Engine{
		State:  state.New(),
		Status: connstatus.New(),
		cfg:    cfg,
		db:     opts.DB,
		logger: logger.With("component", "engine"),
	}

	if e.db == nil {
		db, err := database.Open(cfg.DBPath, database.SchemaLocal)
		if err != nil {
			return nil, fmt.Errorf("open local database: %w", err)
		}
		e.db = db
		e.ownsDB = true
	}

	e.Metrics = metrics.New(opts.Registerer)

	e.Remote = opts.Remote
	if e.Remote == nil {
		e.Remote = remote.NewClient(remote.Config{BaseURL: cfg.ServerURL, SelectRetries: 2})
	}
	transport := opts.Transport
	if transport == nil {
		transport = realtime.NewWSTransport(cfg.ServerURL, 10*time.Second, logger.With("component", "realtime"))
	}

	e.Persister = snapshot.New(store.NewSnapshotStore(e.db), e.State, snapshot.Config{
		Name:       cfg.SnapshotName,
		Passphrase: cfg.SnapshotPassphrase,
	}, logger.With("component", "snapshot"))

	if _, err := e.Persister.Load(ctx); err != nil {
		e.closeDB()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	e.applyIdentity()

	e.Queue = queue.New(queue.Config{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BackoffBase,
		MaxDelay:   cfg.BackoffCap,
	}, e.State, e.Remote, e.Status, n, e.Metrics, logger.With("component", "queue"))
	e.Catalog = catalog.New(e.State, e.Remote, logger.With("component", "catalog"))
	e.Queue.OnSynced(e.recordReplayedPurchase)
	e.Gateway = gateway.New(e.State, e.Remote, e.Queue, e.Catalog, n, e.Metrics, logger.With("component", "gateway"))
	e.Listener = realtime.NewListener(transport, e.State, e.Status, e.Metrics, cfg.Debounce, logger.With("component", "listener"))
	e.Scheduler = catalog.NewScheduler(e.Catalog, e.State, e.Gateway, cfg.RecurringInterval, logger.With("component", "recurring"))

	e.Metrics.SetQueueDepth(e.Queue.Len())
	e.Metrics.SetDeadLetters(len(e.Queue.DeadLetters()))
	return e, nil
}

// recordReplayedPurchase updates the catalog for a pantry toggle that was
// committed by replay instead of by the gateway.
func (e *Engine) recordReplayedPurchase(ctx context.Context, a model.PendingAction) {
	if a.Type != model.ActionToggleItem || !a.Payload.Status {
		return
	}
	item, ok := e.State.Item(a.Payload.ItemID)
	if !ok {
		return
	}
	if err := e.Catalog.RecordPurchase(ctx, item); err != nil {
		e.logger.Warn("record purchase failed", "item", item.Name, "error", err)
	}
}

// applyIdentity points the restored state at the configured household and
// user. Switching households drops the previous household's cached rows.
func (e *Engine) applyIdentity() {
	if id := e.cfg.HouseholdID; id != "" {
		if hh := e.State.Household(); hh == nil || hh.ID != id {
			if hh != nil {
				e.logger.Info("household changed, clearing cached rows", "from", hh.ID, "to", id)
			}
			e.resetHousehold(id)
		}
	}
	if id := e.cfg.UserID; id != "" {
		if p := e.State.Profile(); p == nil || p.ID != id {
			e.State.SetProfile(&model.Profile{ID: id})
		}
	}
}

func (e *Engine) resetHousehold(id string) {
	e.State.SetHousehold(&model.Household{ID: id})
	e.State.SetItems(nil)
	e.State.SetCatalog(nil)
	e.State.SetLists(nil)
	e.State.SetCurrentList(nil)
	e.State.SetMembers(nil)
}

func (e *Engine) householdID() string {
	if hh := e.State.Household(); hh != nil {
		return hh.ID
	}
	return ""
}

// Start begins background work: snapshot writes, queue replay, the realtime
// subscription and the recurring scheduler.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.started = true

	all := []string{string(connstatus.Connected), string(connstatus.Connecting), string(connstatus.Disconnected)}
	e.Metrics.SetConnectionState(string(e.Status.Get()), all...)
	e.unsub = e.Status.Subscribe(func(prev, next connstatus.Status) {
		e.Metrics.SetConnectionState(string(next), all...)
		e.logger.Info("connection status", "from", prev, "to", next)
	})

	e.Persister.Start(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.Queue.Run(ctx)
	}()

	e.Listener.Connect(e.householdID())
	e.Scheduler.Start(ctx)
}

// Refresh reloads the household's rows from the remote store. Rows with
// mutations still pending keep their local version.
func (e *Engine) Refresh(ctx context.Context) error {
	hhID := e.householdID()
	if hhID == "" {
		return ErrNoHousehold
	}
	if err := e.Gateway.Flush(ctx); err != nil {
		return err
	}

	var households []model.Household
	if err := e.Remote.Select(ctx, remote.CollectionHouseholds, remote.ByID(hhID), &households); err != nil {
		return fmt.Errorf("select household: %w", err)
	}
	if len(households) > 0 {
		e.State.SetHousehold(&households[0])
	}

	categories, err := e.categories(ctx, hhID)
	if err != nil {
		return err
	}
	e.State.SetCategories(categories)

	var lists []model.List
	if err := e.Remote.Select(ctx, remote.CollectionLists, remote.Where(remote.Eq("household_id", hhID)), &lists); err != nil {
		return fmt.Errorf("select lists: %w", err)
	}
	e.State.SetLists(lists)
	if cur := e.State.CurrentList(); cur != nil && !containsList(lists, cur.ID) {
		e.State.SetCurrentList(nil)
	}

	var items []model.Item
	where := remote.Where(remote.Eq("household_id", hhID), remote.IsNull("deleted_at"))
	if err := e.Remote.Select(ctx, remote.CollectionItems, where, &items); err != nil {
		return fmt.Errorf("select items: %w", err)
	}
	e.State.SetItems(e.mergePending(items))

	if err := e.Catalog.Refresh(ctx); err != nil {
		return err
	}

	if p := e.State.Profile(); p != nil && len(e.State.Members()) == 0 {
		e.State.SetMembers([]model.Profile{*p})
	}

	e.logger.Info("refreshed", "household", hhID, "items", len(items), "categories", len(categories), "lists", len(lists))
	return nil
}

// categories returns the household's own categories ahead of the system
// ones, so household keywords win when categorizing.
func (e *Engine) categories(ctx context.Context, hhID string) ([]model.Category, error) {
	var own, system []model.Category
	if err := e.Remote.Select(ctx, remote.CollectionCategories, remote.Where(remote.Eq("household_id", hhID)), &own); err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	if err := e.Remote.Select(ctx, remote.CollectionCategories, remote.Where(remote.IsNull("household_id")), &system); err != nil {
		return nil, fmt.Errorf("select system categories: %w", err)
	}
	return append(own, system...), nil
}

// mergePending combines fetched rows with local rows that still have queued
// mutations.
func (e *Engine) mergePending(fetched []model.Item) []model.Item {
	pending := make(map[string]bool)
	for _, a := range e.State.PendingActions() {
		pending[a.EntityID()] = true
	}
	if len(pending) == 0 {
		return fetched
	}

	local := make(map[string]model.Item)
	var unsynced []model.Item
	for _, it := range e.State.Items() {
		local[it.ID] = it
	}

	seen := make(map[string]bool, len(fetched))
	merged := make([]model.Item, 0, len(fetched))
	for _, it := range fetched {
		seen[it.ID] = true
		if !pending[it.ID] {
			merged = append(merged, it)
			continue
		}
		// A pending delete removed it locally.
		if l, ok := local[it.ID]; ok {
			merged = append(merged, l)
		}
	}
	for _, it := range e.State.Items() {
		if pending[it.ID] && !seen[it.ID] {
			unsynced = append(unsynced, it)
		}
	}
	return append(unsynced, merged...)
}

func containsList(lists []model.List, id string) bool {
	for _, l := range lists {
		if l.ID == id {
			return true
		}
	}
	return false
}

// SwitchHousehold moves the engine to another household and reloads it.
func (e *Engine) SwitchHousehold(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoHousehold
	}
	if id == e.householdID() {
		return e.Refresh(ctx)
	}
	if err := e.Gateway.Flush(ctx); err != nil {
		return err
	}
	e.resetHousehold(id)
	if e.started {
		e.Listener.Connect(id)
	}
	return e.Refresh(ctx)
}

// Reconnect forces a fresh realtime subscription.
func (e *Engine) Reconnect() {
	e.Listener.Reconnect()
}

// Sync waits for in-flight commits and then replays the offline queue,
// ignoring backoff.
func (e *Engine) Sync(ctx context.Context) (queue.Result, error) {
	if err := e.Gateway.Flush(ctx); err != nil {
		return queue.Result{}, err
	}
	return e.Queue.Replay(ctx), nil
}

// Close stops background work and writes a final snapshot.
func (e *Engine) Close(ctx context.Context) error {
	e.Scheduler.Stop()
	e.Listener.Close()
	e.Gateway.Close()

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.unsub != nil {
		e.unsub()
	}

	var err error
	if e.started {
		err = e.Persister.Close(ctx)
	} else {
		err = e.Persister.Save(ctx)
	}
	if cerr := e.closeDB(); err == nil {
		err = cerr
	}
	return err
}

func (e *Engine) closeDB() error {
	if !e.ownsDB || e.db == nil {
		return nil
	}
	return e.db.Close()
}
