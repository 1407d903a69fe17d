package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shopmate/internal/model"
)

func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and resolve changes waiting for the server",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	cmd.AddCommand(newQueueRetryCommand(rootOpts))
	cmd.AddCommand(newQueueDiscardCommand(rootOpts))
	return cmd
}

type queueListing struct {
	Pending     []model.PendingAction `json:"pending"`
	DeadLetters []model.DeadLetter    `json:"dead_letters"`
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List queued changes and dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			l := queueListing{Pending: s.engine.Queue.Pending(), DeadLetters: s.engine.Queue.DeadLetters()}
			if l.Pending == nil {
				l.Pending = []model.PendingAction{}
			}
			if l.DeadLetters == nil {
				l.DeadLetters = []model.DeadLetter{}
			}
			now := time.Now()
			return rootOpts.printer().result(l, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tACTION\tITEM\tQUEUED\tRETRIES\tLAST ERROR")
				for _, a := range l.Pending {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", shortID(a.ID), a.Type, shortID(a.EntityID()), ago(a.Timestamp, now), a.RetryCount, a.LastError)
				}
				tw.Flush()
				if len(l.DeadLetters) == 0 {
					return
				}
				fmt.Fprintln(w, "\nNeeds attention (retry or discard):")
				tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tACTION\tITEM\tFAILED\tREASON")
				for _, d := range l.DeadLetters {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortID(d.Action.ID), d.Action.Type, shortID(d.Action.EntityID()), ago(d.FailedAt, now), d.Reason)
				}
				tw.Flush()
			})
		},
	}
}

// deadLetterID expands a dead letter id prefix.
func deadLetterID(dead []model.DeadLetter, ref string) (string, error) {
	var found []string
	for _, d := range dead {
		if d.Action.ID == ref {
			return ref, nil
		}
		if strings.HasPrefix(d.Action.ID, ref) {
			found = append(found, d.Action.ID)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", NewExitError(ExitFailure, fmt.Sprintf("no dead letter matches %q", ref))
	default:
		return "", NewExitError(ExitFailure, fmt.Sprintf("%q matches %d dead letters", ref, len(found)))
	}
}

func newQueueRetryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry ID",
		Short: "Put a dead letter back on the queue and replay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := rootOpts.open(ctx, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			id, err := deadLetterID(s.engine.Queue.DeadLetters(), args[0])
			if err != nil {
				return err
			}
			s.engine.Queue.RetryDeadLetter(id)
			res, err := s.engine.Sync(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "replay", err)
			}
			return rootOpts.printer().message(res, "requeued %s: synced %d, %d still queued", shortID(id), res.Synced, s.engine.Queue.Len())
		},
	}
}

func newQueueDiscardCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discard ID",
		Short: "Drop a dead letter for good",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			id, err := deadLetterID(s.engine.Queue.DeadLetters(), args[0])
			if err != nil {
				return err
			}
			s.engine.Queue.DiscardDeadLetter(id)
			return rootOpts.printer().message(map[string]string{"discarded": id}, "discarded %s", shortID(id))
		},
	}
}
