package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shopmate/internal/config"
	"github.com/dukerupert/shopmate/internal/connstatus"
	"github.com/dukerupert/shopmate/internal/database"
	"github.com/dukerupert/shopmate/internal/engine"
	"github.com/dukerupert/shopmate/internal/gateway"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/notify"
	"github.com/dukerupert/shopmate/internal/remote"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func startServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	db, err := database.Open(":memory:", database.SchemaRemote)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := New(db, cfg, discard)
	require.NoError(t, srv.Seed(context.Background()))

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func startDevice(t *testing.T, baseURL, userID string) *engine.Engine {
	t.Helper()
	local, err := database.Open(":memory:", database.SchemaLocal)
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	cfg := config.Default()
	cfg.ServerURL = baseURL
	cfg.HouseholdID = "h-perez"
	cfg.UserID = userID
	cfg.Debounce = 5 * time.Millisecond

	e, err := engine.New(context.Background(), engine.Options{
		Config:   cfg,
		DB:       local,
		Notifier: notify.Discard,
		Logger:   discard,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, e.Refresh(ctx))
	e.Start(ctx)
	t.Cleanup(func() { e.Close(context.Background()) })

	require.Eventually(t, func() bool { return e.Status.Get() == connstatus.Connected }, 5*time.Second, 10*time.Millisecond)
	return e
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := startServer(t, Config{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	client := remote.NewClient(remote.Config{BaseURL: ts.URL})
	var cats []model.Category
	require.NoError(t, client.Select(context.Background(), remote.CollectionCategories, remote.Where(remote.IsNull("household_id")), &cats))

	mresp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	data, _ := io.ReadAll(mresp.Body)
	assert.Contains(t, string(data), "shopmate_server_mutations_total")
}

func TestSeedIsIdempotent(t *testing.T) {
	srv, ts := startServer(t, Config{})
	require.NoError(t, srv.Seed(context.Background()))

	client := remote.NewClient(remote.Config{BaseURL: ts.URL})
	var cats []model.Category
	require.NoError(t, client.Select(context.Background(), remote.CollectionCategories, nil, &cats))
	require.NotEmpty(t, cats)

	seen := map[string]bool{}
	for _, c := range cats {
		assert.False(t, seen[c.ID], "category %s seeded twice", c.ID)
		seen[c.ID] = true
		assert.True(t, c.IsSystem)
	}
}

func TestRealtimeTopicValidation(t *testing.T) {
	_, ts := startServer(t, Config{})

	resp, err := http.Get(ts.URL + "/realtime?topic=h-perez")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubscribeRateLimit(t *testing.T) {
	_, ts := startServer(t, Config{SubscribeRate: 1, SubscribeWindow: time.Minute})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/realtime?topic=nope")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestTwoDevicesConverge(t *testing.T) {
	srv, ts := startServer(t, Config{})
	ana := startDevice(t, ts.URL, "u-ana")
	luis := startDevice(t, ts.URL, "u-luis")

	require.Eventually(t, func() bool { return srv.Hub().ClientCount(model.Topic("h-perez")) == 2 }, 5*time.Second, 10*time.Millisecond)

	item, err := ana.Gateway.AddItem(gateway.NewItem{Name: "Whole milk", Quantity: "1"})
	require.NoError(t, err)
	assert.Equal(t, "Dairy", item.Category, "categorized from seeded keywords")

	require.Eventually(t, func() bool {
		_, ok := luis.State.Item(item.ID)
		return ok
	}, 5*time.Second, 10*time.Millisecond, "other device receives the insert")

	// The echo of Ana's own insert leaves a single copy.
	assert.Len(t, ana.State.Items(), 1)

	luis.Gateway.ToggleItem(item.ID, false, false)
	require.Eventually(t, func() bool {
		got, ok := ana.State.Item(item.ID)
		return ok && got.InPantry && got.BoughtBy != nil && *got.BoughtBy == "u-luis"
	}, 5*time.Second, 10*time.Millisecond, "toggle reaches the first device")

	ana.Gateway.SoftDeleteItem(item.ID)
	require.Eventually(t, func() bool {
		_, ok := luis.State.Item(item.ID)
		return !ok
	}, 5*time.Second, 10*time.Millisecond, "soft delete removes the item everywhere")

	deleted, err := luis.Gateway.ListDeleted(context.Background())
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, item.ID, deleted[0].ID)

	assert.Zero(t, ana.Queue.Len())
	assert.Zero(t, luis.Queue.Len())
}
