// Package testutil holds in-memory fakes of the engine's external
// collaborators.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dukerupert/shopmate/internal/remote"
)

// ErrOffline is returned by RemoteStore calls while it is offline.
var ErrOffline = errors.New("testutil: offline")

// Call records one request made to a RemoteStore.
type Call struct {
	Op         string
	Collection string
	Where      remote.Filter
	Patch      map[string]any
	Row        map[string]any
}

// ChangeFunc observes a committed row change. newRow or oldRow is nil for
// inserts and deletes respectively.
type ChangeFunc func(collection, op string, newRow, oldRow map[string]any)

// RemoteStore is an in-memory remote.Store. Rows are kept as decoded JSON
// objects, so callers see the same coercions a real server would apply.
type RemoteStore struct {
	mu      sync.Mutex
	tables  map[string][]map[string]any
	offline bool
	fail    []error
	calls   []Call

	OnChange ChangeFunc
}

func NewRemoteStore() *RemoteStore {
	return &RemoteStore{tables: make(map[string][]map[string]any)}
}

var _ remote.Store = (*RemoteStore)(nil)

// SetOffline makes every call fail with ErrOffline until cleared.
func (s *RemoteStore) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

// FailNext makes the next calls return errs, one per call, in order.
func (s *RemoteStore) FailNext(errs ...error) {
	s.mu.Lock()
	s.fail = append(s.fail, errs...)
	s.mu.Unlock()
}

// Calls returns every request made so far, failed ones included.
func (s *RemoteStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Rows returns a copy of the rows in collection.
func (s *RemoteStore) Rows(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.tables[collection]))
	for _, r := range s.tables[collection] {
		out = append(out, copyRow(r))
	}
	return out
}

// Row returns the row with the given id.
func (s *RemoteStore) Row(collection, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.tables[collection] {
		if r["id"] == id {
			return copyRow(r), true
		}
	}
	return nil, false
}

// Seed inserts rows without recording calls or emitting changes.
func (s *RemoteStore) Seed(collection string, rows ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		m, err := toRow(row)
		if err != nil {
			return err
		}
		s.tables[collection] = append(s.tables[collection], m)
	}
	return nil
}

func (s *RemoteStore) begin(c Call) error {
	s.calls = append(s.calls, c)
	if s.offline {
		return ErrOffline
	}
	if len(s.fail) > 0 {
		err := s.fail[0]
		s.fail = s.fail[1:]
		return err
	}
	return nil
}

func (s *RemoteStore) Insert(ctx context.Context, collection string, row any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := toRow(row)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.begin(Call{Op: "insert", Collection: collection, Row: m}); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if id, ok := m["id"]; ok {
		for _, r := range s.tables[collection] {
			if r["id"] == id {
				s.mu.Unlock()
				return nil, &remote.Error{Status: http.StatusConflict, Code: "conflict", Message: "duplicate id"}
			}
		}
	}
	s.tables[collection] = append(s.tables[collection], m)
	hook := s.OnChange
	s.mu.Unlock()

	if hook != nil {
		hook(collection, "INSERT", copyRow(m), nil)
	}
	return json.Marshal(m)
}

func (s *RemoteStore) Update(ctx context.Context, collection string, where remote.Filter, patch map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := where.Validate(); err != nil {
		return &remote.Error{Status: http.StatusBadRequest, Code: "invalid_filter", Message: err.Error()}
	}

	type change struct{ newRow, oldRow map[string]any }
	var changes []change

	s.mu.Lock()
	if err := s.begin(Call{Op: "update", Collection: collection, Where: where, Patch: patch}); err != nil {
		s.mu.Unlock()
		return err
	}
	for _, r := range s.tables[collection] {
		if !matches(r, where) {
			continue
		}
		old := copyRow(r)
		for k, v := range patch {
			r[k] = normalize(v)
		}
		changes = append(changes, change{copyRow(r), old})
	}
	hook := s.OnChange
	s.mu.Unlock()

	if hook != nil {
		for _, c := range changes {
			hook(collection, "UPDATE", c.newRow, c.oldRow)
		}
	}
	return nil
}

func (s *RemoteStore) Delete(ctx context.Context, collection string, where remote.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := where.Validate(); err != nil {
		return &remote.Error{Status: http.StatusBadRequest, Code: "invalid_filter", Message: err.Error()}
	}

	var removed []map[string]any
	s.mu.Lock()
	if err := s.begin(Call{Op: "delete", Collection: collection, Where: where}); err != nil {
		s.mu.Unlock()
		return err
	}
	kept := s.tables[collection][:0]
	for _, r := range s.tables[collection] {
		if matches(r, where) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	s.tables[collection] = kept
	hook := s.OnChange
	s.mu.Unlock()

	if hook != nil {
		for _, r := range removed {
			hook(collection, "DELETE", nil, r)
		}
	}
	return nil
}

func (s *RemoteStore) Select(ctx context.Context, collection string, where remote.Filter, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := where.Validate(); err != nil {
		return &remote.Error{Status: http.StatusBadRequest, Code: "invalid_filter", Message: err.Error()}
	}

	s.mu.Lock()
	if err := s.begin(Call{Op: "select", Collection: collection, Where: where}); err != nil {
		s.mu.Unlock()
		return err
	}
	rows := []map[string]any{}
	for _, r := range s.tables[collection] {
		if matches(r, where) {
			rows = append(rows, copyRow(r))
		}
	}
	s.mu.Unlock()

	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func toRow(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return m, nil
}

// normalize gives patch values the shape they would have after a JSON round
// trip.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func copyRow(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func matches(row map[string]any, where remote.Filter) bool {
	for _, c := range where {
		v, present := row[c.Column]
		isNull := !present || v == nil
		switch c.Op {
		case remote.OpIsNull:
			if !isNull {
				return false
			}
		case remote.OpNotNull:
			if isNull {
				return false
			}
		case remote.OpEq:
			if isNull || compare(v, c.Value) != 0 {
				return false
			}
		case remote.OpNeq:
			if !isNull && compare(v, c.Value) == 0 {
				return false
			}
		case remote.OpLte:
			if isNull || compare(v, c.Value) > 0 {
				return false
			}
		case remote.OpGte:
			if isNull || compare(v, c.Value) < 0 {
				return false
			}
		}
	}
	return true
}

// compare orders two scalar values, trying times, then numbers, then
// strings.
func compare(a, b any) int {
	as, bs := scalar(a), scalar(b)
	if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
		if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
			return at.Compare(bt)
		}
	}
	if af, err := strconv.ParseFloat(as, 64); err == nil {
		if bf, err := strconv.ParseFloat(bs, 64); err == nil {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
