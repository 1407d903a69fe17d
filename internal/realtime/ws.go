package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/shopmate/internal/model"
)

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 10 * time.Second
)

// WSTransport subscribes to topics over WebSocket at <base>/realtime.
type WSTransport struct {
	baseURL     string
	dialTimeout time.Duration
	logger      *slog.Logger
}

func NewWSTransport(baseURL string, dialTimeout time.Duration, logger *slog.Logger) *WSTransport {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &WSTransport{baseURL: baseURL, dialTimeout: dialTimeout, logger: logger}
}

// Endpoint returns the WebSocket URL for topic.
func (t *WSTransport) Endpoint(topic string) (string, error) {
	u, err := url.Parse(strings.TrimRight(t.baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += "/realtime"
	u.RawQuery = url.Values{"topic": {topic}}.Encode()
	return u.String(), nil
}

func (t *WSTransport) Subscribe(ctx context.Context, topic string, h Handlers) (Subscription, error) {
	endpoint, err := t.Endpoint(topic)
	if err != nil {
		return nil, err
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, t.dialTimeout)
	conn, _, err := ws.Dial(dialCtx, endpoint, nil)
	cancelDial()
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", topic, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &wsSubscription{topic: topic, conn: conn, cancel: cancel, logger: t.logger}
	if h.OnState != nil {
		h.OnState(StateSubscribed, nil)
	}
	go s.pingLoop(ctx)
	go s.readLoop(ctx, h)
	return s, nil
}

type wsSubscription struct {
	topic  string
	conn   *ws.Conn
	cancel context.CancelFunc
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	timedOut bool
}

func (s *wsSubscription) Topic() string { return s.topic }

func (s *wsSubscription) Unsubscribe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close(ws.StatusNormalClosure, "unsubscribe")
	s.cancel()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("realtime: close", "topic", s.topic, "error", err)
	}
	return nil
}

func (s *wsSubscription) readLoop(ctx context.Context, h Handlers) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			closed, timedOut := s.closed, s.timedOut
			s.mu.Unlock()
			if closed {
				return
			}

			state := StateChannelError
			switch {
			case timedOut:
				state = StateTimedOut
			case ws.CloseStatus(err) == ws.StatusNormalClosure, ws.CloseStatus(err) == ws.StatusGoingAway:
				state = StateClosed
			}
			if h.OnState != nil {
				h.OnState(state, err)
			}
			return
		}

		var ev model.ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("realtime: malformed event", "topic", s.topic, "error", err)
			continue
		}
		if h.OnEvent != nil {
			h.OnEvent(ev)
		}
	}
}

func (s *wsSubscription) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				s.mu.Lock()
				s.timedOut = true
				s.mu.Unlock()
				s.conn.CloseNow()
				return
			}
		}
	}
}
