package connstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartsDisconnected(t *testing.T) {
	assert.Equal(t, Disconnected, New().Get())
}

func TestSetNotifiesOnTransitionOnly(t *testing.T) {
	tr := New()

	var seen [][2]Status
	tr.Subscribe(func(prev, next Status) {
		seen = append(seen, [2]Status{prev, next})
	})

	tr.Set(Connecting)
	tr.Set(Connected)
	tr.Set(Connected) // repeated signal from inbound events
	tr.Set(Disconnected)

	assert.Equal(t, [][2]Status{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connected, Disconnected},
	}, seen)
}

func TestUnsubscribe(t *testing.T) {
	tr := New()
	calls := 0
	unsub := tr.Subscribe(func(_, _ Status) { calls++ })

	tr.Set(Connected)
	unsub()
	tr.Set(Disconnected)

	assert.Equal(t, 1, calls)
}
