package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shopmate/internal/gateway"
	"github.com/dukerupert/shopmate/internal/model"
)

func NewBinCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bin",
		Short: "Recycle bin: deleted items that can be restored",
		Long: `Deleted items stay in the recycle bin until purged. These commands need
the server; they are not queued while offline.`,
	}
	cmd.AddCommand(newBinListCommand(rootOpts))
	cmd.AddCommand(newBinRestoreCommand(rootOpts))
	cmd.AddCommand(newBinPurgeCommand(rootOpts))
	return cmd
}

func (s *session) deleted(cmd *cobra.Command) ([]model.Item, error) {
	items, err := s.engine.Gateway.ListDeleted(cmd.Context())
	if err != nil {
		return nil, WrapExitError(ExitFailure, "list recycle bin", err)
	}
	return items, nil
}

func newBinListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List deleted items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			items, err := s.deleted(cmd)
			if err != nil {
				return err
			}
			if items == nil {
				items = []model.Item{}
			}
			now := time.Now()
			return rootOpts.printer().result(items, func(w io.Writer) {
				if len(items) == 0 {
					fmt.Fprintln(w, "Recycle bin is empty.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tQTY\tDELETED")
				for _, it := range items {
					deleted := ""
					if it.DeletedAt != nil {
						deleted = ago(*it.DeletedAt, now)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(it.ID), it.Name, it.Quantity, deleted)
				}
				tw.Flush()
			})
		},
	}
}

func newBinRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore ITEM",
		Short: "Put a deleted item back on the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			items, err := s.deleted(cmd)
			if err != nil {
				return err
			}
			target, err := resolveItem(items, args[0])
			if err != nil {
				return err
			}
			restored, err := s.engine.Gateway.RestoreItem(cmd.Context(), target.ID)
			if errors.Is(err, gateway.ErrNotFound) {
				return NewExitError(ExitFailure, fmt.Sprintf("%s is no longer in the recycle bin", target.Name))
			}
			if err != nil {
				return WrapExitError(ExitFailure, "restore", err)
			}
			return rootOpts.printer().item("Restored", restored)
		},
	}
}

func newBinPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge ITEM",
		Short: "Delete an item from the recycle bin for good",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			items, err := s.deleted(cmd)
			if err != nil {
				return err
			}
			target, err := resolveItem(items, args[0])
			if err != nil {
				return err
			}
			if err := s.engine.Gateway.PurgeItem(cmd.Context(), target.ID); err != nil {
				return WrapExitError(ExitFailure, "purge", err)
			}
			return rootOpts.printer().item("Purged", target)
		},
	}
}
