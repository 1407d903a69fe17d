package realtime_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shopmate/internal/connstatus"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/realtime"
	"github.com/dukerupert/shopmate/internal/state"
	"github.com/dukerupert/shopmate/internal/testutil"
)

const debounce = 10 * time.Millisecond

type fixture struct {
	l      *realtime.Listener
	tr     *testutil.Transport
	st     *state.Store
	status *connstatus.Tracker
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tr:     testutil.NewTransport(),
		st:     state.New(),
		status: connstatus.New(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.l = realtime.NewListener(f.tr, f.st, f.status, nil, debounce, logger)
	t.Cleanup(f.l.Close)
	return f
}

func (f *fixture) connect(t *testing.T, hh string) {
	t.Helper()
	f.l.Connect(hh)
	require.Eventually(t, func() bool {
		return f.status.Get() == connstatus.Connected
	}, time.Second, time.Millisecond)
}

func item(id, hh string) model.Item {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return model.Item{ID: id, Name: "Leche", Category: "Dairy", HouseholdID: hh, CreatedAt: now, UpdatedAt: now}
}

func TestConnectSubscribesAfterDebounce(t *testing.T) {
	f := setup(t)
	f.l.Connect("h1")
	assert.Equal(t, connstatus.Connecting, f.status.Get())
	assert.Empty(t, f.tr.Subscribes(), "subscription must wait for the debounce")

	require.Eventually(t, func() bool { return f.status.Get() == connstatus.Connected }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"sync-h1"}, f.tr.Active())
}

func TestTeardownCancelsDebounce(t *testing.T) {
	f := setup(t)
	f.l.Connect("h1")
	f.l.Close()

	time.Sleep(5 * debounce)
	assert.Empty(t, f.tr.Subscribes())
	assert.Equal(t, connstatus.Disconnected, f.status.Get())
}

func TestNoDuplicateSubscriptions(t *testing.T) {
	f := setup(t)
	f.l.Connect("h1")
	f.l.Connect("h1")
	f.connect(t, "h1")
	f.l.Connect("h1")

	time.Sleep(5 * debounce)
	assert.Equal(t, []string{"sync-h1"}, f.tr.Subscribes())
	assert.Len(t, f.tr.Active(), 1)
}

func TestHouseholdSwitchTearsDownOldTopic(t *testing.T) {
	f := setup(t)
	f.connect(t, "h1")

	f.l.Connect("h2")
	assert.Empty(t, f.tr.Active(), "old topic is released before the new one opens")
	require.Eventually(t, func() bool { return len(f.tr.Active()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"sync-h2"}, f.tr.Active())

	assert.Zero(t, f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventInsert, item("a", "h1"), nil)))
	assert.Empty(t, f.st.Items())
}

func TestEventMapping(t *testing.T) {
	f := setup(t)
	f.connect(t, "h1")

	row := item("k", "h1")
	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventInsert, row, nil))
	require.Len(t, f.st.Items(), 1)

	row.Name = "Leche entera"
	row.InPantry = true
	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventUpdate, row, nil))
	got, _ := f.st.Item("k")
	assert.Equal(t, "Leche entera", got.Name)
	assert.True(t, got.InPantry)

	deleted := time.Now()
	row.DeletedAt = &deleted
	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventUpdate, row, nil))
	_, ok := f.st.Item("k")
	assert.False(t, ok, "soft-deleted update removes the item")

	f.st.AddItem(item("d", "h1"))
	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventDelete, nil, map[string]string{"id": "d"}))
	_, ok = f.st.Item("d")
	assert.False(t, ok)
}

func TestUpdateForUnknownItemIsIgnored(t *testing.T) {
	f := setup(t)
	f.connect(t, "h1")
	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventUpdate, item("x", "h1"), nil))
	assert.Empty(t, f.st.Items())
}

func TestEchoIsIdempotent(t *testing.T) {
	f := setup(t)
	f.connect(t, "h1")

	local := item("k", "h1")
	local.Quantity = "2"
	f.st.AddItem(local)

	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventInsert, local, nil))
	items := f.st.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "2", items[0].Quantity)
	assert.Equal(t, "Leche", items[0].Name)
}

func TestMalformedRowsAreDropped(t *testing.T) {
	f := setup(t)
	f.connect(t, "h1")

	noName := item("a", "h1")
	noName.Name = "  "
	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventInsert, noName, nil))
	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventInsert, item("b", "h2"), nil))
	f.tr.Publish("sync-h1", model.ChangeEvent{Type: model.EventInsert, Table: "items", New: []byte(`{"id":`)})
	f.tr.Publish("sync-h1", model.ChangeEvent{Type: model.EventInsert, Table: "lists", New: []byte(`{"id":"l1"}`)})
	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventDelete, nil, map[string]string{}))

	assert.Empty(t, f.st.Items())
}

func TestEventReinforcesConnected(t *testing.T) {
	f := setup(t)
	f.connect(t, "h1")
	f.status.Set(connstatus.Connecting)

	f.tr.Publish("sync-h1", testutil.ItemEvent(model.EventInsert, item("a", "h1"), nil))
	assert.Equal(t, connstatus.Connected, f.status.Get())
}

func TestChannelErrorDisconnectsAndReconnectRecovers(t *testing.T) {
	f := setup(t)
	f.connect(t, "h1")

	f.tr.Drop("sync-h1", realtime.StateChannelError, errors.New("socket reset"))
	assert.Equal(t, connstatus.Disconnected, f.status.Get())
	assert.Empty(t, f.tr.Active())

	time.Sleep(5 * debounce)
	assert.Equal(t, connstatus.Disconnected, f.status.Get(), "no automatic retry")

	f.l.Reconnect()
	require.Eventually(t, func() bool { return f.status.Get() == connstatus.Connected }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"sync-h1"}, f.tr.Active())
	assert.Len(t, f.tr.Subscribes(), 2)
}

func TestReconnectReplacesLiveSubscription(t *testing.T) {
	f := setup(t)
	f.connect(t, "h1")

	f.l.Reconnect()
	require.Eventually(t, func() bool { return len(f.tr.Subscribes()) == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.status.Get() == connstatus.Connected }, time.Second, time.Millisecond)
	assert.Len(t, f.tr.Active(), 1)
}

func TestSubscribeErrorDisconnects(t *testing.T) {
	f := setup(t)
	f.tr.Err = errors.New("dial refused")
	f.l.Connect("h1")

	require.Eventually(t, func() bool { return len(f.tr.Subscribes()) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.status.Get() == connstatus.Disconnected }, time.Second, time.Millisecond)
	assert.Equal(t, "h1", f.l.Household())
}

func TestConnectEmptyHouseholdDisconnects(t *testing.T) {
	f := setup(t)
	f.connect(t, "h1")
	f.l.Connect("")
	assert.Empty(t, f.tr.Active())
	assert.Equal(t, connstatus.Disconnected, f.status.Get())
	assert.Empty(t, f.l.Household())
}

func TestFastSubscribeEndsConnected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for i := 0; i < 50; i++ {
		status := connstatus.New()
		l := realtime.NewListener(testutil.NewTransport(), state.New(), status, nil, time.Nanosecond, logger)
		l.Connect("h1")
		require.Eventually(t, func() bool { return status.Get() == connstatus.Connected }, time.Second, time.Millisecond, "run %d", i)
		time.Sleep(time.Millisecond)
		assert.Equal(t, connstatus.Connected, status.Get(), "run %d", i)
		l.Close()
	}
}

// heldTransport keeps the handlers of every subscription so a test can
// deliver callbacks after the listener has moved on.
type heldTransport struct {
	mu       sync.Mutex
	handlers []realtime.Handlers
}

type heldSub struct{ topic string }

func (s heldSub) Topic() string      { return s.topic }
func (s heldSub) Unsubscribe() error { return nil }

func (t *heldTransport) Subscribe(_ context.Context, topic string, h realtime.Handlers) (realtime.Subscription, error) {
	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()
	return heldSub{topic: topic}, nil
}

func (t *heldTransport) last() (realtime.Handlers, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.handlers) == 0 {
		return realtime.Handlers{}, false
	}
	return t.handlers[len(t.handlers)-1], true
}

func TestLateCallbacksAfterCloseStayDisconnected(t *testing.T) {
	tr := &heldTransport{}
	st := state.New()
	status := connstatus.New()
	l := realtime.NewListener(tr, st, status, nil, debounce, slog.New(slog.NewTextHandler(io.Discard, nil)))

	l.Connect("h1")
	require.Eventually(t, func() bool { _, ok := tr.last(); return ok }, time.Second, time.Millisecond)
	h, _ := tr.last()
	h.OnState(realtime.StateSubscribed, nil)
	require.Equal(t, connstatus.Connected, status.Get())

	l.Close()
	require.Equal(t, connstatus.Disconnected, status.Get())

	h.OnEvent(testutil.ItemEvent(model.EventInsert, item("i1", "h1"), nil))
	h.OnState(realtime.StateSubscribed, nil)
	assert.Equal(t, connstatus.Disconnected, status.Get())
	assert.Empty(t, st.Items())
}

func TestLateChannelErrorDoesNotUndoReconnect(t *testing.T) {
	tr := &heldTransport{}
	status := connstatus.New()
	l := realtime.NewListener(tr, state.New(), status, nil, debounce, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(l.Close)

	l.Connect("h1")
	require.Eventually(t, func() bool { _, ok := tr.last(); return ok }, time.Second, time.Millisecond)
	first, _ := tr.last()
	first.OnState(realtime.StateSubscribed, nil)

	l.Reconnect()
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.handlers) == 2
	}, time.Second, time.Millisecond)
	second, _ := tr.last()
	second.OnState(realtime.StateSubscribed, nil)

	first.OnState(realtime.StateChannelError, errors.New("stale socket"))
	assert.Equal(t, connstatus.Connected, status.Get())
}
