package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shopmate/internal/model"
)

func NewRecurCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recur",
		Short: "Products re-added to the list on a schedule",
	}
	cmd.AddCommand(newRecurListCommand(rootOpts))
	cmd.AddCommand(newRecurSetCommand(rootOpts))
	cmd.AddCommand(newRecurClearCommand(rootOpts))
	cmd.AddCommand(newRecurRunCommand(rootOpts))
	return cmd
}

func newRecurListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List recurring products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			recurring := []model.HouseholdProduct{}
			for _, p := range s.engine.State.Catalog() {
				if p.Recurring() {
					recurring = append(recurring, p)
				}
			}
			return rootOpts.printer().result(recurring, func(w io.Writer) {
				if len(recurring) == 0 {
					fmt.Fprintln(w, "No recurring products.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tEVERY\tNEXT")
				for _, p := range recurring {
					next := ""
					if p.NextOccurrence != nil {
						next = p.NextOccurrence.Local().Format("2006-01-02")
					}
					fmt.Fprintf(tw, "%s\t%dd\t%s\n", p.Name, *p.RecurrenceInterval, next)
				}
				tw.Flush()
			})
		},
	}
}

type recurSetOptions struct {
	*RootOptions
	Days     int
	Category string
}

func newRecurSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &recurSetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Re-add a product every N days",
		Long: `Schedule a product to be put back on the shopping list every N days.
Automatic adding only happens when auto-add is on (shopmate settings --auto-add).

Examples:
  shopmate recur set Coffee --days 14
  shopmate recur set "Dish soap" --days 30 --category Household`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Days <= 0 {
				return NewExitError(ExitCommandError, "--days must be a positive number")
			}
			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			days := opts.Days
			p, err := s.engine.Catalog.SetRecurrence(cmd.Context(), args[0], opts.Category, &days)
			if err != nil {
				return WrapExitError(ExitFailure, "set recurrence", err)
			}
			return opts.printer().message(p, "%s will be added every %d days", p.Name, days)
		},
	}

	cmd.Flags().IntVar(&opts.Days, "days", 7, "Interval in days")
	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "Category for the added item")
	return cmd
}

func newRecurClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear NAME",
		Short: "Stop re-adding a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			p, err := s.engine.Catalog.SetRecurrence(cmd.Context(), args[0], "", nil)
			if err != nil {
				return WrapExitError(ExitFailure, "clear recurrence", err)
			}
			return rootOpts.printer().message(p, "%s is no longer recurring", p.Name)
		},
	}
}

func newRecurRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Add every recurring product that is due now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			if !s.engine.State.Settings().AutoAddRecurring {
				return NewExitError(ExitFailure, "auto-add is off: enable it with shopmate settings --auto-add")
			}
			added := s.engine.Scheduler.Tick(cmd.Context())
			return rootOpts.printer().message(map[string]int{"added": added}, "added %d recurring items", added)
		},
	}
}
