package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/shopmate/internal/metrics"
	"github.com/dukerupert/shopmate/internal/model"
)

// Hub keeps realtime subscribers grouped by topic and fans change events out
// to them.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	logger  *slog.Logger
	metrics *metrics.ServerMetrics
}

// NewHub creates a new Hub. m may be nil.
func NewHub(logger *slog.Logger, m *metrics.ServerMetrics) *Hub {
	return &Hub{
		topics:  make(map[string]map[*Client]struct{}),
		logger:  logger,
		metrics: m,
	}
}

// Register adds a client to its topic.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	subs, ok := h.topics[c.topic]
	if !ok {
		subs = make(map[*Client]struct{})
		h.topics[c.topic] = subs
	}
	subs[c] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribers.Inc()
	}
	h.logger.Debug("subscriber joined", "topic", c.topic)
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	subs, ok := h.topics[c.topic]
	if ok {
		_, ok = subs[c]
	}
	if ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, c.topic)
		}
		close(c.send)
	}
	h.mu.Unlock()

	if ok && h.metrics != nil {
		h.metrics.Subscribers.Dec()
	}
}

// Publish sends ev to every subscriber of topic and returns how many were
// handed the message.
func (h *Hub) Publish(topic string, ev model.ChangeEvent) int {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal change event", "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.topics[topic] {
		select {
		case c.send <- data:
			sent++
		default:
			// Client buffer full, drop rather than block the publisher.
			h.logger.Warn("subscriber buffer full, event dropped", "topic", topic, "type", ev.Type)
		}
	}
	if h.metrics != nil {
		h.metrics.Broadcasts.WithLabelValues(string(ev.Type)).Inc()
	}
	return sent
}

// ClientCount returns the number of subscribers to topic, or to every topic
// when topic is empty.
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if topic != "" {
		return len(h.topics[topic])
	}
	n := 0
	for _, subs := range h.topics {
		n += len(subs)
	}
	return n
}
