// Package remote defines the contract of the remote data store the sync
// engine commits to, and an HTTP client implementing it.
package remote

import (
	"context"
	"encoding/json"
)

// Collections served by the remote store.
const (
	CollectionItems      = "items"
	CollectionCategories = "categories"
	CollectionProducts   = "household_products"
	CollectionLists      = "lists"
	CollectionHouseholds = "households"
)

// Store is a request/response row store. Rows are JSON-serializable values
// matching the model package shapes.
type Store interface {
	Insert(ctx context.Context, collection string, row any) (json.RawMessage, error)
	Update(ctx context.Context, collection string, where Filter, patch map[string]any) error
	Delete(ctx context.Context, collection string, where Filter) error
	Select(ctx context.Context, collection string, where Filter, dst any) error
}

// MutationRequest is the body of update, delete and select calls.
type MutationRequest struct {
	Where Filter         `json:"where"`
	Patch map[string]any `json:"patch,omitempty"`
}

// CountResponse reports how many rows an update or delete touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// ErrorResponse is the JSON error body returned by the server.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
