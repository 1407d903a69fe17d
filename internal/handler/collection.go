package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/shopmate/internal/metrics"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/remote"
	"github.com/dukerupert/shopmate/internal/store"
)

const maxBodyBytes = 1 << 20

// Publisher fans a change event out to a realtime topic.
type Publisher interface {
	Publish(topic string, ev model.ChangeEvent) int
}

// CollectionHandler serves the generic row API used by the sync engine.
type CollectionHandler struct {
	store   *store.CollectionStore
	pub     Publisher
	metrics *metrics.ServerMetrics
	logger  *slog.Logger
}

func NewCollectionHandler(cs *store.CollectionStore, pub Publisher, m *metrics.ServerMetrics, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{store: cs, pub: pub, metrics: m, logger: logger}
}

// Insert handles POST /api/{collection}.
func (h *CollectionHandler) Insert(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	var row store.Row
	if !h.decode(w, r, collection, "insert", &row) {
		return
	}

	stored, err := h.store.Insert(r.Context(), collection, row)
	if err != nil {
		h.fail(w, collection, "insert", err)
		return
	}
	h.record(collection, "insert", "ok")
	h.publish(collection, model.EventInsert, []store.RowChange{{New: stored}})
	writeJSON(w, http.StatusCreated, stored)
}

// Update handles POST /api/{collection}/update.
func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	var req remote.MutationRequest
	if !h.decode(w, r, collection, "update", &req) {
		return
	}
	if len(req.Patch) == 0 {
		h.fail(w, collection, "update", &store.ValidationError{Msg: "patch is required"})
		return
	}

	changes, err := h.store.Update(r.Context(), collection, req.Where, req.Patch)
	if err != nil {
		h.fail(w, collection, "update", err)
		return
	}
	h.record(collection, "update", "ok")
	h.publish(collection, model.EventUpdate, changes)
	writeJSON(w, http.StatusOK, remote.CountResponse{Count: int64(len(changes))})
}

// Delete handles POST /api/{collection}/delete.
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	var req remote.MutationRequest
	if !h.decode(w, r, collection, "delete", &req) {
		return
	}

	changes, err := h.store.Delete(r.Context(), collection, req.Where)
	if err != nil {
		h.fail(w, collection, "delete", err)
		return
	}
	h.record(collection, "delete", "ok")
	h.publish(collection, model.EventDelete, changes)
	writeJSON(w, http.StatusOK, remote.CountResponse{Count: int64(len(changes))})
}

// Select handles POST /api/{collection}/select.
func (h *CollectionHandler) Select(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	var req remote.MutationRequest
	if !h.decode(w, r, collection, "select", &req) {
		return
	}

	rows, err := h.store.Select(r.Context(), collection, req.Where)
	if err != nil {
		h.fail(w, collection, "select", err)
		return
	}
	if rows == nil {
		rows = []store.Row{}
	}
	h.record(collection, "select", "ok")
	writeJSON(w, http.StatusOK, rows)
}

func (h *CollectionHandler) decode(w http.ResponseWriter, r *http.Request, collection, op string, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		h.record(collection, op, "invalid")
		writeError(w, http.StatusBadRequest, "invalid", "invalid JSON")
		return false
	}
	return true
}

// fail maps store errors onto the wire error contract: 4xx for requests that
// will never succeed, 500 for everything else.
func (h *CollectionHandler) fail(w http.ResponseWriter, collection, op string, err error) {
	var verr *store.ValidationError
	switch {
	case errors.Is(err, store.ErrUnknownCollection):
		h.record(collection, op, "not_found")
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrConflict):
		h.record(collection, op, "conflict")
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &verr):
		h.record(collection, op, "invalid")
		writeError(w, http.StatusBadRequest, "invalid", verr.Msg)
	default:
		h.record(collection, op, "error")
		h.logger.Error("collection request failed", "collection", collection, "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *CollectionHandler) record(collection, op, result string) {
	if h.metrics == nil {
		return
	}
	h.metrics.Mutations.WithLabelValues(collection, op, result).Inc()
}

// publish broadcasts changed rows of realtime tables to their household's
// topic.
func (h *CollectionHandler) publish(collection string, typ model.EventType, changes []store.RowChange) {
	if h.pub == nil {
		return
	}
	t, err := h.store.Table(collection)
	if err != nil || !t.Realtime {
		return
	}

	now := time.Now().UTC()
	for _, c := range changes {
		row := c.New
		if row == nil {
			row = c.Old
		}
		hh, _ := row["household_id"].(string)
		if hh == "" {
			continue
		}

		ev := model.ChangeEvent{Type: typ, Table: collection, CommitTimestamp: now}
		if c.New != nil {
			if ev.New, err = json.Marshal(c.New); err != nil {
				h.logger.Error("marshal new row", "error", err)
				continue
			}
		}
		if c.Old != nil {
			if ev.Old, err = json.Marshal(c.Old); err != nil {
				h.logger.Error("marshal old row", "error", err)
				continue
			}
		}
		n := h.pub.Publish(model.Topic(hh), ev)
		h.logger.Debug("change published", "topic", model.Topic(hh), "type", typ, "subscribers", n)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, remote.ErrorResponse{Error: msg, Code: code})
}
