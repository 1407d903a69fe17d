package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shopmate/internal/connstatus"
	"github.com/dukerupert/shopmate/internal/queue"
	"github.com/dukerupert/shopmate/internal/state"
)

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes and reload from the server",
		Long: `Replay every queued change now, ignoring retry backoff, then reload the
household from the server.

Exit codes:
  0 - queue is empty afterwards
  1 - changes are still queued or need attention`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := rootOpts.open(ctx, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			res, err := s.engine.Sync(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "sync", err)
			}
			if err := s.engine.Refresh(ctx); err != nil {
				s.logger.Warn("refresh after sync", "error", err)
			}

			type syncResult struct {
				queue.Result
				Pending     int `json:"pending"`
				DeadLetters int `json:"dead_letters"`
			}
			out := syncResult{Result: res, Pending: s.engine.Queue.Len(), DeadLetters: len(s.engine.Queue.DeadLetters())}
			err = rootOpts.printer().message(out, "synced %d, failed %d, dead-lettered %d, %d still queued",
				res.Synced, res.Failed, res.DeadLettered, out.Pending)
			if err != nil {
				return err
			}
			if out.Pending > 0 || out.DeadLetters > 0 {
				return NewExitError(ExitFailure, "some changes are not synchronized")
			}
			return nil
		},
	}
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print changes as they arrive",
		Long: `Keep a realtime subscription open, replay the offline queue whenever the
connection comes back, and print the shopping list each time it changes.
Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := rootOpts.open(ctx, true)
			if err != nil {
				return err
			}
			// ctx is done by the time we close.
			defer s.close(context.Background())

			e := s.engine
			w := rootOpts.stdout
			changed := make(chan struct{}, 1)
			unsub := e.State.Subscribe(func(c state.Change) {
				if c.Kind != state.ChangeItems && c.Kind != state.ChangeRestore {
					return
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			defer unsub()
			unsubStatus := e.Status.Subscribe(func(_, next connstatus.Status) {
				fmt.Fprintf(rootOpts.stderr, "connection: %s\n", next)
			})
			defer unsubStatus()

			e.Start(ctx)
			if err := rootOpts.printer().items(e.State.ShoppingList()); err != nil {
				return err
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					// Let bursts settle before redrawing.
					time.Sleep(100 * time.Millisecond)
					drain(changed)
					fmt.Fprintln(w)
					if err := rootOpts.printer().items(e.State.ShoppingList()); err != nil {
						return err
					}
				}
			}
		},
	}
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type statusReport struct {
	Household   string `json:"household"`
	User        string `json:"user"`
	Server      string `json:"server"`
	Online      bool   `json:"online"`
	ToBuy       int    `json:"to_buy"`
	InPantry    int    `json:"in_pantry"`
	Pending     int    `json:"pending"`
	DeadLetters int    `json:"dead_letters"`
	OldestQueue string `json:"oldest_queued,omitempty"`
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the household, server reachability and offline queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			e := s.engine
			r := statusReport{
				Household:   e.State.Household().ID,
				Server:      s.cfg.ServerURL,
				Online:      s.online,
				ToBuy:       len(e.State.ShoppingList()),
				InPantry:    len(e.State.Pantry()),
				Pending:     e.Queue.Len(),
				DeadLetters: len(e.Queue.DeadLetters()),
			}
			if p := e.State.Profile(); p != nil {
				r.User = p.ID
			}
			if name := e.State.Household().Name; name != "" {
				r.Household = fmt.Sprintf("%s (%s)", name, r.Household)
			}
			if pending := e.Queue.Pending(); len(pending) > 0 {
				r.OldestQueue = ago(pending[0].Timestamp, time.Now())
			}

			return rootOpts.printer().result(r, func(w io.Writer) {
				online := "offline"
				if r.Online {
					online = "online"
				}
				fmt.Fprintf(w, "household:    %s\n", r.Household)
				fmt.Fprintf(w, "user:         %s\n", r.User)
				fmt.Fprintf(w, "server:       %s (%s)\n", r.Server, online)
				fmt.Fprintf(w, "to buy:       %d\n", r.ToBuy)
				fmt.Fprintf(w, "pantry:       %d\n", r.InPantry)
				fmt.Fprintf(w, "queued:       %d", r.Pending)
				if r.OldestQueue != "" {
					fmt.Fprintf(w, " (oldest %s)", r.OldestQueue)
				}
				fmt.Fprintln(w)
				fmt.Fprintf(w, "dead letters: %d\n", r.DeadLetters)
			})
		},
	}
}
