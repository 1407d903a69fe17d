package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shopmate/internal/database"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/server"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"ls", "add", "toggle", "edit", "rm", "dup", "sync", "watch", "status", "queue", "bin", "recur", "settings"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"config", "server", "household", "user", "db", "log-level", "format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCLI(t, "--format", "yaml", "ls")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingHousehold(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SHOPMATE_HOUSEHOLD", "")

	_, err := runCLI(t, "--db", filepath.Join(t.TempDir(), "local.db"), "ls")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no household")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := WrapExitError(ExitFailure, "sync", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, "sync: "+assert.AnError.Error(), wrapped.Error())
}

func TestResolveItem(t *testing.T) {
	items := []model.Item{
		{ID: "7f3a9c10-0000-0000-0000-000000000001", Name: "Milk"},
		{ID: "7f3a9c10-0000-0000-0000-000000000002", Name: "Bread"},
		{ID: "b2c4d6e8-0000-0000-0000-000000000003", Name: "Eggs"},
	}

	it, err := resolveItem(items, "b2c4")
	require.NoError(t, err)
	assert.Equal(t, "Eggs", it.Name)

	it, err = resolveItem(items, "bread")
	require.NoError(t, err)
	assert.Equal(t, "Bread", it.Name)

	_, err = resolveItem(items, "7f3a9c10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matches 2 items")

	_, err = resolveItem(items, "Butter")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

// device runs commands as one member against a shared local database.
type device struct {
	t      *testing.T
	server string
	db     string
}

func (d *device) run(args ...string) (string, error) {
	base := []string{"--server", d.server, "--db", d.db, "--household", "h-cli", "--user", "u-ana", "--format", "json"}
	return runCLI(d.t, append(base, args...)...)
}

func (d *device) must(args ...string) json.RawMessage {
	d.t.Helper()
	out, err := d.run(args...)
	require.NoError(d.t, err, "shopmate %v: %s", args, out)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(d.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(d.t, "ok", resp.Status)
	return resp.Data
}

func (d *device) items(args ...string) []model.Item {
	d.t.Helper()
	var items []model.Item
	require.NoError(d.t, json.Unmarshal(d.must(append([]string{"ls"}, args...)...), &items))
	return items
}

func TestItemLifecycle(t *testing.T) {
	t.Chdir(t.TempDir())
	ts := startServer(t)
	d := &device{t: t, server: ts.URL, db: filepath.Join(t.TempDir(), "local.db")}

	var added model.Item
	require.NoError(t, json.Unmarshal(d.must("add", "Whole", "milk"), &added))
	assert.Equal(t, "Whole milk", added.Name)
	assert.Equal(t, "Dairy", added.Category)
	assert.Equal(t, "u-ana", added.CreatedBy)

	list := d.items()
	require.Len(t, list, 1)
	assert.Equal(t, added.ID, list[0].ID)

	var toggled model.Item
	require.NoError(t, json.Unmarshal(d.must("toggle", added.ID[:8]), &toggled))
	assert.True(t, toggled.InPantry)
	assert.Empty(t, d.items())
	assert.Len(t, d.items("--pantry"), 1)

	var edited model.Item
	require.NoError(t, json.Unmarshal(d.must("edit", "whole milk", "--qty", "3", "--price", "1.25"), &edited))
	assert.Equal(t, "3", edited.Quantity)
	assert.Equal(t, "1.25", edited.Price.Decimal.String())

	d.must("rm", "Whole milk")
	assert.Empty(t, d.items("--all"))

	var bin []model.Item
	require.NoError(t, json.Unmarshal(d.must("bin", "ls"), &bin))
	require.Len(t, bin, 1)
	assert.Equal(t, added.ID, bin[0].ID)

	d.must("bin", "restore", added.ID)
	all := d.items("--all")
	require.Len(t, all, 1)
	assert.Nil(t, all[0].DeletedAt)

	var q queueListing
	require.NoError(t, json.Unmarshal(d.must("queue", "ls"), &q))
	assert.Empty(t, q.Pending)
	assert.Empty(t, q.DeadLetters)
}

func TestOfflineAddSyncsLater(t *testing.T) {
	t.Chdir(t.TempDir())
	down := startServer(t)
	down.Close()
	d := &device{t: t, server: down.URL, db: filepath.Join(t.TempDir(), "local.db")}

	var added model.Item
	require.NoError(t, json.Unmarshal(d.must("add", "Coffee"), &added))

	var q queueListing
	require.NoError(t, json.Unmarshal(d.must("queue", "ls"), &q))
	require.Len(t, q.Pending, 1)
	assert.Equal(t, model.ActionAddItem, q.Pending[0].Type)
	assert.Equal(t, added.ID, q.Pending[0].EntityID())

	_, err := d.run("sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	up := startServer(t)
	d.server = up.URL
	d.must("sync")

	list := d.items()
	require.Len(t, list, 1)
	assert.Equal(t, added.ID, list[0].ID)

	var st statusReport
	require.NoError(t, json.Unmarshal(d.must("status"), &st))
	assert.True(t, st.Online)
	assert.Zero(t, st.Pending)
	assert.Equal(t, 1, st.ToBuy)
}

func TestSettingsPersist(t *testing.T) {
	t.Chdir(t.TempDir())
	ts := startServer(t)
	d := &device{t: t, server: ts.URL, db: filepath.Join(t.TempDir(), "local.db")}

	var s model.Settings
	require.NoError(t, json.Unmarshal(d.must("settings"), &s))
	assert.Equal(t, model.DefaultSettings(), s)

	d.must("settings", "--auto-add", "--view", "pantry")

	require.NoError(t, json.Unmarshal(d.must("settings"), &s))
	assert.True(t, s.AutoAddRecurring)
	assert.Equal(t, model.ViewPantry, s.ActiveView)

	_, err := d.run("settings", "--view", "fridge")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecurringRun(t *testing.T) {
	t.Chdir(t.TempDir())
	ts := startServer(t)
	d := &device{t: t, server: ts.URL, db: filepath.Join(t.TempDir(), "local.db")}

	var p model.HouseholdProduct
	require.NoError(t, json.Unmarshal(d.must("recur", "set", "Coffee", "--days", "14"), &p))
	require.NotNil(t, p.RecurrenceInterval)
	assert.Equal(t, 14, *p.RecurrenceInterval)

	var recurring []model.HouseholdProduct
	require.NoError(t, json.Unmarshal(d.must("recur", "ls"), &recurring))
	require.Len(t, recurring, 1)
	assert.Equal(t, "Coffee", recurring[0].Name)

	_, err := d.run("recur", "run")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// Not due for two weeks.
	d.must("settings", "--auto-add")
	var out map[string]int
	require.NoError(t, json.Unmarshal(d.must("recur", "run"), &out))
	assert.Zero(t, out["added"])

	d.must("recur", "clear", "Coffee")
	require.NoError(t, json.Unmarshal(d.must("recur", "ls"), &recurring))
	assert.Empty(t, recurring)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.Open(":memory:", database.SchemaRemote)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := server.New(db, server.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, srv.Seed(context.Background()))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}
