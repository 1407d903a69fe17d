package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/shopmate/internal/config"
	"github.com/dukerupert/shopmate/internal/engine"
	"github.com/dukerupert/shopmate/internal/logging"
	"github.com/dukerupert/shopmate/internal/model"
	"github.com/dukerupert/shopmate/internal/notify"
)

// session is one command's view of the engine.
type session struct {
	cfg    config.Config
	engine *engine.Engine
	logger *slog.Logger
	online bool
}

func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.Server != "" {
		cfg.ServerURL = o.Server
	}
	if o.Household != "" {
		cfg.HouseholdID = o.Household
	}
	if o.User != "" {
		cfg.UserID = o.User
	}
	if o.DB != "" {
		cfg.DBPath = o.DB
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	} else if cfg.LogLevel == config.Default().LogLevel {
		// Keep one-shot commands quiet unless asked.
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}

func (o *RootOptions) notifier() notify.Notifier {
	return notify.Func(func(n notify.Notification) {
		fmt.Fprintf(o.stderr, "[%s] %s\n", n.Level, n.Message)
	})
}

// open builds the engine from the saved snapshot and, when refresh is set,
// reloads the household from the server. A failed refresh leaves the
// session offline on the saved data.
func (o *RootOptions) open(ctx context.Context, refresh bool) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(o.stderr, cfg.LogLevel, cfg.LogFormat)

	e, err := engine.New(ctx, engine.Options{
		Config:   cfg,
		Notifier: o.notifier(),
		Logger:   logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "start engine", err)
	}
	s := &session{cfg: cfg, engine: e, logger: logger}

	if e.State.Household() == nil {
		e.Close(ctx)
		return nil, NewExitError(ExitCommandError, "no household: pass --household or set SHOPMATE_HOUSEHOLD")
	}

	if refresh {
		if err := e.Refresh(ctx); err != nil {
			logger.Warn("refresh failed, using saved data", "error", err)
			if o.Format != "json" {
				fmt.Fprintln(o.stderr, "offline: showing saved data")
			}
		} else {
			s.online = true
		}
	}
	return s, nil
}

// close waits for in-flight commits and saves the snapshot.
func (s *session) close(ctx context.Context) error {
	if err := s.engine.Gateway.Flush(ctx); err != nil {
		s.logger.Warn("flush", "error", err)
	}
	if err := s.engine.Close(ctx); err != nil {
		return WrapExitError(ExitFailure, "save local state", err)
	}
	return nil
}

// resolveItem finds an item by full id, unique id prefix, or name.
func resolveItem(items []model.Item, ref string) (model.Item, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.Item{}, NewExitError(ExitCommandError, "item reference is required")
	}
	var byPrefix []model.Item
	for _, it := range items {
		if it.ID == ref {
			return it, nil
		}
		if len(ref) >= 4 && strings.HasPrefix(it.ID, ref) {
			byPrefix = append(byPrefix, it)
		}
	}
	if len(byPrefix) == 1 {
		return byPrefix[0], nil
	}
	if len(byPrefix) > 1 {
		return model.Item{}, NewExitError(ExitFailure, fmt.Sprintf("%q matches %d items, use more of the id", ref, len(byPrefix)))
	}
	for _, it := range items {
		if strings.EqualFold(it.Name, ref) {
			return it, nil
		}
	}
	return model.Item{}, NewExitError(ExitFailure, fmt.Sprintf("no item matches %q", ref))
}
