package cli

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dukerupert/shopmate/internal/gateway"
	"github.com/dukerupert/shopmate/internal/model"
)

type listOptions struct {
	*RootOptions
	Pantry   bool
	All      bool
	Category string
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &listOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "Show the shopping list",
		Long: `Show the items still to buy. Use --pantry for stocked items or --all for both.

Examples:
  shopmate ls
  shopmate ls --pantry
  shopmate ls --category Dairy --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			st := s.engine.State
			var items []model.Item
			switch {
			case opts.All:
				items = append(st.ShoppingList(), st.Pantry()...)
			case opts.Pantry:
				items = st.Pantry()
			default:
				items = st.ShoppingList()
			}
			if opts.Category != "" {
				filtered := items[:0]
				for _, it := range items {
					if strings.EqualFold(it.Category, opts.Category) {
						filtered = append(filtered, it)
					}
				}
				items = filtered
			}
			return opts.printer().items(items)
		},
	}

	cmd.Flags().BoolVar(&opts.Pantry, "pantry", false, "show the pantry instead of the shopping list")
	cmd.Flags().BoolVar(&opts.All, "all", false, "show shopping list and pantry")
	cmd.Flags().StringVar(&opts.Category, "category", "", "only show one category")
	return cmd
}

type addOptions struct {
	*RootOptions
	Quantity string
	Category string
	Price    string
	Pantry   bool
}

func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &addOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add NAME...",
		Short: "Add an item to the shopping list",
		Long: `Add an item. The category is guessed from the name when not given, and the
last known price is remembered from earlier purchases.

Examples:
  shopmate add Leche --qty 2
  shopmate add "olive oil" --price 7.49`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := gateway.NewItem{
				Name:     strings.Join(args, " "),
				Category: opts.Category,
				Quantity: opts.Quantity,
				InPantry: opts.Pantry,
			}
			if opts.Price != "" {
				p, err := decimal.NewFromString(opts.Price)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --price", err)
				}
				in.Price = &p
			}

			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			item, err := s.engine.Gateway.AddItem(in)
			if err != nil {
				return WrapExitError(ExitFailure, "add item", err)
			}
			return opts.printer().item("Added", item)
		},
	}

	cmd.Flags().StringVarP(&opts.Quantity, "qty", "q", "", "quantity, e.g. 2 or 500g")
	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "category (guessed when empty)")
	cmd.Flags().StringVar(&opts.Price, "price", "", "price")
	cmd.Flags().BoolVar(&opts.Pantry, "pantry", false, "add straight to the pantry")
	return cmd
}

type toggleOptions struct {
	*RootOptions
	Force bool
}

func NewToggleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &toggleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "toggle ITEM",
		Short: "Move an item between the shopping list and the pantry",
		Long: `Mark a shopping list item as bought, or use up a pantry item.

Using up a pantry item with a whole-number quantity above one takes a single
unit; pass --force to move it back to the list regardless.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			it, err := resolveItem(s.engine.State.Items(), args[0])
			if err != nil {
				return err
			}
			s.engine.Gateway.ToggleItem(it.ID, it.InPantry, opts.Force)

			updated, _ := s.engine.State.Item(it.ID)
			verb := "Bought"
			switch {
			case it.InPantry && updated.InPantry:
				verb = "Used one of"
			case it.InPantry:
				verb = "Back on the list:"
			}
			return opts.printer().item(verb, updated)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "move the whole item even if the quantity is above one")
	return cmd
}

type editOptions struct {
	*RootOptions
	Name       string
	Quantity   string
	Category   string
	Price      string
	ClearPrice bool
}

func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &editOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit ITEM",
		Short: "Change an item's name, quantity, category or price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch model.ItemPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &opts.Name
			}
			if flags.Changed("qty") {
				patch.Quantity = &opts.Quantity
			}
			if flags.Changed("category") {
				patch.Category = &opts.Category
			}
			if opts.ClearPrice {
				patch.ClearPrice = true
			} else if flags.Changed("price") {
				p, err := decimal.NewFromString(opts.Price)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --price", err)
				}
				patch.Price = &p
			}
			if patch.Empty() {
				return NewExitError(ExitCommandError, "nothing to change")
			}

			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			it, err := resolveItem(s.engine.State.Items(), args[0])
			if err != nil {
				return err
			}
			if err := s.engine.Gateway.UpdateItem(it.ID, patch); err != nil {
				return WrapExitError(ExitFailure, "edit item", err)
			}
			updated, _ := s.engine.State.Item(it.ID)
			return opts.printer().item("Updated", updated)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "new name")
	cmd.Flags().StringVarP(&opts.Quantity, "qty", "q", "", "new quantity")
	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "new category")
	cmd.Flags().StringVar(&opts.Price, "price", "", "new price")
	cmd.Flags().BoolVar(&opts.ClearPrice, "clear-price", false, "forget the price")
	return cmd
}

func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ITEM",
		Aliases: []string{"remove"},
		Short:   "Move an item to the recycle bin",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			it, err := resolveItem(s.engine.State.Items(), args[0])
			if err != nil {
				return err
			}
			s.engine.Gateway.SoftDeleteItem(it.ID)
			return rootOpts.printer().item("Removed", it)
		},
	}
}

type duplicateOptions struct {
	*RootOptions
	Quantity string
}

func NewDuplicateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &duplicateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dup ITEM",
		Short: "Put another one of an item on the shopping list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			it, err := resolveItem(s.engine.State.Items(), args[0])
			if err != nil {
				return err
			}
			copied, err := s.engine.Gateway.DuplicateItem(it.ID, opts.Quantity)
			if err != nil {
				return WrapExitError(ExitFailure, "duplicate item", err)
			}
			return opts.printer().item("Added", copied)
		},
	}

	cmd.Flags().StringVarP(&opts.Quantity, "qty", "q", "", "quantity for the copy")
	return cmd
}
