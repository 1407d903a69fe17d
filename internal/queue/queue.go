// Package queue is the offline queue: an ordered, durable log of mutations
// that could not be committed. The log itself lives in the state store so it
// is persisted with the snapshot; this package owns enqueueing, replay and the
// dead-letter policy.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/shopmate/internal/connstatus"
	"github.com/dukerupert/shopmate/internal/metrics"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/notify"
	"github.com/dukerupert/shopmate/internal/remote"
	"github.com/dukerupert/shopmate/internal/state"
)

// Config holds the retry policy.
type Config struct {
	// MaxRetries is the number of failed replays after which an action is
	// moved to the dead letters.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 8
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Minute
	}
	return c
}

// backoff returns the wait before the next attempt after the given number of
// failures.
func (c Config) backoff(failures int) time.Duration {
	b := retry.WithCappedDuration(c.MaxDelay, retry.NewExponential(c.BaseDelay))
	d := c.BaseDelay
	for i := 0; i < failures; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	return d
}

// Result summarizes one replay pass.
type Result struct {
	Synced       int `json:"synced"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
	Skipped      int `json:"skipped"`
}

type Queue struct {
	cfg     Config
	state   *state.Store
	remote  remote.Store
	status  *connstatus.Tracker
	notify  notify.Notifier
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	// onSynced runs after a replayed action reaches the server.
	onSynced func(context.Context, model.PendingAction)

	mu          sync.Mutex // one replay pass at a time
	kick        chan struct{}
	reconnected chan struct{}
}

// New creates an offline queue over the pending log held by st.
func New(cfg Config, st *state.Store, rs remote.Store, status *connstatus.Tracker, n notify.Notifier, m *metrics.Metrics, logger *slog.Logger) *Queue {
	if n == nil {
		n = notify.Discard
	}
	q := &Queue{
		cfg:         cfg.withDefaults(),
		state:       st,
		remote:      rs,
		status:      status,
		notify:      n,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
		kick:        make(chan struct{}, 1),
		reconnected: make(chan struct{}, 1),
	}
	m.SetQueueDepth(len(st.PendingActions()))
	m.SetDeadLetters(len(st.DeadLetters()))
	return q
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	return len(q.state.PendingActions())
}

// Pending returns the pending actions in replay order.
func (q *Queue) Pending() []model.PendingAction {
	return q.state.PendingActions()
}

// Enqueue appends a to the log after a failed commit. The action waits one
// base delay before a replay may pick it up, unless the connection comes
// back first.
func (q *Queue) Enqueue(a model.PendingAction, cause error) model.PendingAction {
	now := q.now()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	next := now.Add(q.cfg.BaseDelay)
	a.NextAttempt = &next
	if cause != nil {
		a.LastError = cause.Error()
	}

	q.state.QueueAction(a)
	q.metrics.SetQueueDepth(q.Len())
	q.logger.Info("action queued", "id", a.ID, "type", a.Type, "item_id", a.EntityID(), "error", a.LastError)

	select {
	case q.kick <- struct{}{}:
	default:
	}
	return a
}

// DeadLetter records a as needing manual resolution and tells the user.
func (q *Queue) DeadLetter(a model.PendingAction, cause error) {
	d := model.DeadLetter{
		Action:   a,
		Reason:   cause.Error(),
		FailedAt: q.now(),
	}
	q.state.AddDeadLetter(d)
	q.metrics.SetDeadLetters(len(q.state.DeadLetters()))
	q.metrics.Replay("dead_letter")
	q.logger.Warn("action dead-lettered", "id", a.ID, "type", a.Type, "item_id", a.EntityID(), "reason", d.Reason)
	q.notify.Notify(notify.Notification{
		Level:   notify.LevelError,
		Message: fmt.Sprintf("A change could not be saved and needs your attention: %s", d.Reason),
		Count:   1,
	})
}

// DeadLetters returns actions awaiting manual resolution.
func (q *Queue) DeadLetters() []model.DeadLetter {
	return q.state.DeadLetters()
}

// RetryDeadLetter moves a dead-lettered action back to the end of the log with
// a fresh retry budget.
func (q *Queue) RetryDeadLetter(actionID string) bool {
	d, ok := q.state.RemoveDeadLetter(actionID)
	if !ok {
		return false
	}
	a := d.Action
	a.RetryCount = 0
	a.NextAttempt = nil
	a.LastError = ""
	q.state.QueueAction(a)
	q.metrics.SetQueueDepth(q.Len())
	q.metrics.SetDeadLetters(len(q.state.DeadLetters()))
	return true
}

// OnSynced registers fn to run after each replayed action is committed. It
// covers follow-up work that a first-attempt commit would have done inline.
// Call it before Run.
func (q *Queue) OnSynced(fn func(context.Context, model.PendingAction)) {
	q.onSynced = fn
}

// DiscardDeadLetter drops a dead-lettered action for good.
func (q *Queue) DiscardDeadLetter(actionID string) bool {
	_, ok := q.state.RemoveDeadLetter(actionID)
	q.metrics.SetDeadLetters(len(q.state.DeadLetters()))
	return ok
}

// Replay runs one pass over the whole log, ignoring backoff gates.
func (q *Queue) Replay(ctx context.Context) Result {
	return q.replay(ctx, true)
}

// replay walks the log in insertion order, one action at a time. A failed or
// not-yet-due action blocks the later actions for the same item for the rest
// of the pass so they can't overtake it; actions for other items continue.
func (q *Queue) replay(ctx context.Context, force bool) Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	var res Result
	actions := q.state.PendingActions()
	if len(actions) == 0 {
		return res
	}
	q.logger.Info("replaying pending actions", "count", len(actions), "forced", force)

	blocked := make(map[string]bool)
	for _, a := range actions {
		if ctx.Err() != nil {
			break
		}
		id := a.EntityID()
		if blocked[id] || (!force && !a.Due(q.now())) {
			blocked[id] = true
			res.Skipped++
			continue
		}

		err := Dispatch(ctx, q.remote, a)
		if err == nil {
			q.state.RemoveAction(a.ID)
			q.metrics.Replay("synced")
			res.Synced++
			if q.onSynced != nil {
				q.onSynced(ctx, a)
			}
			continue
		}
		if ctx.Err() != nil {
			break
		}
		blocked[id] = true

		if Terminal(err) {
			q.state.RemoveAction(a.ID)
			q.DeadLetter(a, err)
			res.DeadLettered++
			continue
		}

		a.RetryCount++
		a.LastError = err.Error()
		if a.RetryCount >= q.cfg.MaxRetries {
			q.state.RemoveAction(a.ID)
			q.DeadLetter(a, fmt.Errorf("gave up after %d attempts: %w", a.RetryCount, err))
			res.DeadLettered++
			continue
		}
		next := q.now().Add(q.cfg.backoff(a.RetryCount))
		a.NextAttempt = &next
		q.state.ReplaceAction(a)
		q.metrics.Replay("failed")
		q.logger.Warn("replay failed", "id", a.ID, "type", a.Type, "item_id", id, "retry", a.RetryCount, "next_attempt", next, "error", err)
		res.Failed++
	}

	q.metrics.SetQueueDepth(q.Len())
	if res.Synced > 0 {
		q.notify.Notify(notify.Notification{
			Level:   notify.LevelSuccess,
			Message: fmt.Sprintf("Synchronized %d pending changes", res.Synced),
			Count:   res.Synced,
		})
	}
	return res
}

// nextDue returns how long until the earliest gated action becomes due. Only
// the oldest action per item counts: the ones behind it stay blocked until it
// has been sent, whatever their own NextAttempt says.
func (q *Queue) nextDue() (time.Duration, bool) {
	actions := q.state.PendingActions()
	if len(actions) == 0 {
		return 0, false
	}
	now := q.now()
	heads := make(map[string]bool, len(actions))
	var earliest time.Duration = -1
	for _, a := range actions {
		id := a.EntityID()
		if heads[id] {
			continue
		}
		heads[id] = true

		var d time.Duration
		if a.NextAttempt != nil {
			d = a.NextAttempt.Sub(now)
		}
		if d < 0 {
			d = 0
		}
		if earliest < 0 || d < earliest {
			earliest = d
		}
	}
	return earliest, true
}

// Run replays the log whenever the connection status becomes connected and,
// while connected, when backed-off actions become due. It blocks until ctx is
// done.
func (q *Queue) Run(ctx context.Context) {
	unsub := q.status.Subscribe(func(_, next connstatus.Status) {
		if next != connstatus.Connected {
			return
		}
		select {
		case q.reconnected <- struct{}{}:
		default:
		}
	})
	defer unsub()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	if q.status.Get() == connstatus.Connected && q.Len() > 0 {
		q.Replay(ctx)
	}
	q.schedule(timer)

	for {
		force := false
		select {
		case <-ctx.Done():
			return
		case <-q.reconnected:
			force = true
		case <-q.kick:
		case <-timer.C:
		}

		if q.status.Get() == connstatus.Connected && q.Len() > 0 {
			q.replay(ctx, force)
		}
		q.schedule(timer)
	}
}

func (q *Queue) schedule(timer *time.Timer) {
	timer.Stop()
	if q.status.Get() != connstatus.Connected {
		return
	}
	if d, ok := q.nextDue(); ok {
		timer.Reset(d)
	}
}
