// Package connstatus holds the realtime connection state shared by the
// listener, the offline queue and the UI.
package connstatus

import "sync"

// Status represents the realtime connection state.
type Status string

const (
	Disconnected Status = "disconnected"
	Connecting   Status = "connecting"
	Connected    Status = "connected"
)

// Callback is called whenever the status changes. prev is the status before
// the transition.
type Callback func(prev, next Status)

// Tracker is a tri-state signal. Only the realtime listener sets it.
type Tracker struct {
	mu        sync.RWMutex
	status    Status
	nextID    int
	callbacks map[int]Callback
}

// New returns a tracker that starts disconnected.
func New() *Tracker {
	return &Tracker{
		status:    Disconnected,
		callbacks: make(map[int]Callback),
	}
}

// Get returns the current status.
func (t *Tracker) Get() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Set updates the status and notifies subscribers when it changed.
// Callbacks run on the caller's goroutine.
func (t *Tracker) Set(s Status) {
	t.mu.Lock()
	prev := t.status
	if prev == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	cbs := make([]Callback, 0, len(t.callbacks))
	for _, cb := range t.callbacks {
		cbs = append(cbs, cb)
	}
	t.mu.Unlock()

	for _, cb := range cbs {
		cb(prev, s)
	}
}

// Subscribe registers cb for transitions and returns a function that removes
// it.
func (t *Tracker) Subscribe(cb Callback) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.callbacks[id] = cb
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.callbacks, id)
		t.mu.Unlock()
	}
}
