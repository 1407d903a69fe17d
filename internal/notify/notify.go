// Package notify carries user-facing messages (the toasts of the UI) out of
// the sync engine.
package notify

import (
	"context"
	"log/slog"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a passive, non-blocking message for the user.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

type Notifier interface {
	Notify(Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Logger writes notifications to a structured logger.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) Notify(n Notification) {
	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelWarn
	}
	l.Log.Log(context.Background(), level, n.Message, "level", string(n.Level), "count", n.Count)
}

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})
