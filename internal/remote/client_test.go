package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertPostsRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/items", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var row map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		assert.Equal(t, "k1", row["id"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(row)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL + "/"})
	out, err := c.Insert(context.Background(), CollectionItems, map[string]any{"id": "k1", "name": "Leche"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"k1"`)
}

func TestUpdateSendsFilterAndPatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/items/update", r.URL.Path)

		var req MutationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Where, 1)
		assert.Equal(t, "id", req.Where[0].Column)
		assert.Equal(t, OpEq, req.Where[0].Op)
		assert.Equal(t, true, req.Patch["in_pantry"])

		json.NewEncoder(w).Encode(CountResponse{Count: 1})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	err := c.Update(context.Background(), CollectionItems, ByID("k1"), map[string]any{"in_pantry": true})
	require.NoError(t, err)
}

func TestRejectionIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "name is required", Code: "invalid_row"})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	_, err := c.Insert(context.Background(), CollectionItems, map[string]any{"id": "k1"})
	require.Error(t, err)
	assert.True(t, IsTerminal(err))

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "invalid_row", re.Code)
}

func TestServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database is locked", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	err := c.Delete(context.Background(), CollectionItems, ByID("k1"))
	require.Error(t, err)
	assert.False(t, IsTerminal(err))
}

func TestNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewClient(Config{BaseURL: url, Timeout: time.Second})
	err := c.Update(context.Background(), CollectionItems, ByID("k1"), map[string]any{"name": "x"})
	require.Error(t, err)
	assert.False(t, IsTerminal(err))
}

func TestSelectRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{{"id": "a"}, {"id": "b"}})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, SelectRetries: 3, RetryBase: time.Millisecond})

	var rows []map[string]any
	err := c.Select(context.Background(), CollectionItems, Where(Eq("household_id", "hh-1"), IsNull("deleted_at")), &rows)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSelectDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "unknown column", Code: "invalid_filter"})
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, SelectRetries: 3, RetryBase: time.Millisecond})
	var rows []map[string]any
	err := c.Select(context.Background(), CollectionItems, Where(Eq("nope", 1)), &rows)
	require.Error(t, err)
	assert.True(t, IsTerminal(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Where(Eq("id", "x"), IsNull("deleted_at")).Validate())
	assert.Error(t, Where(Cond{Column: "id", Op: "like", Value: "x"}).Validate())
	assert.Error(t, Where(Cond{Column: "id", Op: OpEq}).Validate())
	assert.Error(t, Where(Cond{Op: OpIsNull}).Validate())
}
