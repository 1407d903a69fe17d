package realtime

import (
	"context"

	"github.com/dukerupert/shopmate/internal/model"
)

// State is a subscription lifecycle event reported by a Transport.
type State string

const (
	StateSubscribed   State = "SUBSCRIBED"
	StateChannelError State = "CHANNEL_ERROR"
	StateTimedOut     State = "TIMED_OUT"
	StateClosed       State = "CLOSED"
)

// Handlers receive what a subscription delivers. Both may be called from a
// transport goroutine.
type Handlers struct {
	OnEvent func(model.ChangeEvent)
	OnState func(State, error)
}

// Transport opens topic subscriptions on the realtime change feed.
type Transport interface {
	// Subscribe starts delivering events for topic. It reports
	// StateSubscribed through h once the subscription is live, and one of
	// the failure states if it ends for any reason other than Unsubscribe.
	Subscribe(ctx context.Context, topic string, h Handlers) (Subscription, error)
}

type Subscription interface {
	Topic() string
	// Unsubscribe releases the subscription. It is safe to call more than
	// once and from a handler.
	Unsubscribe() error
}
