package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/realtime"
)

// Transport is an in-memory realtime.Transport. Subscriptions are
// acknowledged with StateSubscribed synchronously unless Err is set.
type Transport struct {
	mu         sync.Mutex
	next       int
	subs       map[int]*fakeSub
	subscribes []string

	// Err, when set, is returned by Subscribe.
	Err error
}

func NewTransport() *Transport {
	return &Transport{subs: make(map[int]*fakeSub)}
}

var _ realtime.Transport = (*Transport)(nil)

type fakeSub struct {
	t     *Transport
	id    int
	topic string
	h     realtime.Handlers
}

func (s *fakeSub) Topic() string { return s.topic }

func (s *fakeSub) Unsubscribe() error {
	s.t.mu.Lock()
	delete(s.t.subs, s.id)
	s.t.mu.Unlock()
	return nil
}

func (t *Transport) Subscribe(_ context.Context, topic string, h realtime.Handlers) (realtime.Subscription, error) {
	t.mu.Lock()
	t.subscribes = append(t.subscribes, topic)
	if t.Err != nil {
		err := t.Err
		t.mu.Unlock()
		return nil, err
	}
	s := &fakeSub{t: t, id: t.next, topic: topic, h: h}
	t.next++
	t.subs[s.id] = s
	t.mu.Unlock()

	if h.OnState != nil {
		h.OnState(realtime.StateSubscribed, nil)
	}
	return s, nil
}

// Subscribes returns every topic Subscribe was called with, in order.
func (t *Transport) Subscribes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.subscribes...)
}

// Active returns the topics of live subscriptions.
func (t *Transport) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, s := range t.subs {
		out = append(out, s.topic)
	}
	return out
}

func (t *Transport) matching(topic string) []*fakeSub {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*fakeSub
	for _, s := range t.subs {
		if s.topic == topic {
			out = append(out, s)
		}
	}
	return out
}

// Publish delivers ev to every subscriber of topic on the calling goroutine
// and returns how many received it.
func (t *Transport) Publish(topic string, ev model.ChangeEvent) int {
	subs := t.matching(topic)
	for _, s := range subs {
		if s.h.OnEvent != nil {
			s.h.OnEvent(ev)
		}
	}
	return len(subs)
}

// Drop ends every subscription to topic with the given lifecycle state.
func (t *Transport) Drop(topic string, state realtime.State, err error) {
	for _, s := range t.matching(topic) {
		s.Unsubscribe()
		if s.h.OnState != nil {
			s.h.OnState(state, err)
		}
	}
}

// ItemEvent builds an items change event.
func ItemEvent(typ model.EventType, newRow, oldRow any) model.ChangeEvent {
	ev := model.ChangeEvent{Type: typ, Table: "items"}
	if newRow != nil {
		ev.New, _ = json.Marshal(newRow)
	}
	if oldRow != nil {
		ev.Old, _ = json.Marshal(oldRow)
	}
	return ev
}

// Bridge publishes the remote store's item changes on the household topics
// of tr, the way the realtime server does.
func Bridge(rs *RemoteStore, tr *Transport) {
	rs.mu.Lock()
	rs.OnChange = func(collection, op string, newRow, oldRow map[string]any) {
		if collection != "items" {
			return
		}
		row := newRow
		if row == nil {
			row = oldRow
		}
		hh, _ := row["household_id"].(string)
		if strings.TrimSpace(hh) == "" {
			return
		}
		ev := ItemEvent(model.EventType(op), nilIfEmpty(newRow), nilIfEmpty(oldRow))
		tr.Publish(model.Topic(hh), ev)
	}
	rs.mu.Unlock()
}

func nilIfEmpty(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
