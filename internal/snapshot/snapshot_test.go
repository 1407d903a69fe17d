package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shopmate/internal/database"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/state"
	"github.com/dukerupert/shopmate/internal/store"
)

func setupSnapshotStore(t *testing.T) *store.SnapshotStore {
	t.Helper()
	db, err := database.Open(":memory:", database.SchemaLocal)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewSnapshotStore(db)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func populated() *state.Store {
	st := state.New()
	st.SetHousehold(&model.Household{ID: "h1", Name: "Pérez"})
	st.AddItem(model.Item{ID: "a", Name: "Leche", Category: "Dairy", HouseholdID: "h1", Quantity: "2"})
	st.QueueAction(model.PendingAction{ID: "p1", Type: model.ActionDeleteItem, Payload: model.ActionPayload{ItemID: "a"}})
	settings := st.Settings()
	settings.AutoAddRecurring = true
	settings.ThemeColor = "violet"
	st.SetSettings(settings)
	return st
}

func TestSealOpenRoundTrip(t *testing.T) {
	plain := []byte(`{"items":[]}`)
	sealed, err := Seal(plain, "correct horse", DefaultName)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, plain))

	again, err := Seal(plain, "correct horse", DefaultName)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh salt and nonce per seal")

	opened, err := Open(sealed, "correct horse", DefaultName)
	require.NoError(t, err)
	assert.Equal(t, plain, opened)

	_, err = Open(sealed, "wrong", DefaultName)
	assert.ErrorIs(t, err, ErrWrongPassphrase)
	_, err = Open(sealed, "correct horse", "other-device")
	assert.ErrorIs(t, err, ErrWrongPassphrase)
	_, err = Open([]byte("short"), "correct horse", DefaultName)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = Open(sealed[:len(magic)+saltSize+4], "correct horse", DefaultName)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("1234567890abcdef")
	assert.Equal(t, deriveKey("a", salt), deriveKey("a", salt))
	assert.NotEqual(t, deriveKey("a", salt), deriveKey("b", salt))
	assert.Len(t, deriveKey("a", salt), keySize)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, pass := range []string{"", "hunter2"} {
		ss := setupSnapshotStore(t)
		ctx := context.Background()

		src := New(ss, populated(), Config{Passphrase: pass}, discard)
		require.NoError(t, src.Save(ctx))

		saved, err := ss.Get(ctx, DefaultName)
		require.NoError(t, err)
		assert.Equal(t, pass != "", saved.Sealed)

		dst := state.New()
		ok, err := New(ss, dst, Config{Passphrase: pass}, discard).Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		items := dst.Items()
		require.Len(t, items, 1)
		assert.Equal(t, "Leche", items[0].Name)
		assert.Equal(t, "Pérez", dst.Household().Name)
		assert.Len(t, dst.PendingActions(), 1)
		assert.True(t, dst.Settings().AutoAddRecurring)
		assert.Equal(t, "violet", dst.Settings().ThemeColor)
	}
}

func TestLoadMissingAndSealed(t *testing.T) {
	ss := setupSnapshotStore(t)
	ctx := context.Background()

	ok, err := New(ss, state.New(), Config{}, discard).Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, New(ss, populated(), Config{Passphrase: "x"}, discard).Save(ctx))
	_, err = New(ss, state.New(), Config{}, discard).Load(ctx)
	assert.True(t, errors.Is(err, ErrSealed))
}

func TestPersisterWritesOnChange(t *testing.T) {
	ss := setupSnapshotStore(t)
	ctx := context.Background()
	st := state.New()

	p := New(ss, st, Config{Delay: time.Millisecond}, discard)
	p.Start(ctx)

	st.AddItem(model.Item{ID: "a", Name: "Pan", HouseholdID: "h1"})
	require.Eventually(t, func() bool {
		saved, err := ss.Get(ctx, DefaultName)
		return err == nil && saved != nil && bytes.Contains(saved.Data, []byte("Pan"))
	}, 2*time.Second, 5*time.Millisecond)

	st.AddItem(model.Item{ID: "b", Name: "Queso", HouseholdID: "h1"})
	require.NoError(t, p.Close(ctx))

	saved, err := ss.Get(ctx, DefaultName)
	require.NoError(t, err)
	assert.Contains(t, string(saved.Data), "Queso")
}
