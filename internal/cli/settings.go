package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dukerupert/shopmate/internal/model"
)

type settingsOptions struct {
	*RootOptions
	AutoAdd bool
	Haptic  bool
	Theme   string
	View    string
}

func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &settingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change device preferences",
		Long: `Show device preferences, or change the ones given as flags.
Preferences are stored locally with the saved list.

Examples:
  shopmate settings
  shopmate settings --auto-add --view pantry`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.close(cmd.Context())

			st := s.engine.State
			settings := st.Settings()
			flags := cmd.Flags()
			changed := false
			if flags.Changed("auto-add") {
				settings.AutoAddRecurring = opts.AutoAdd
				changed = true
			}
			if flags.Changed("haptic") {
				settings.HapticFeedback = opts.Haptic
				changed = true
			}
			if flags.Changed("theme") {
				settings.ThemeColor = opts.Theme
				changed = true
			}
			if flags.Changed("view") {
				v := model.View(opts.View)
				if v != model.ViewShoppingList && v != model.ViewPantry {
					return NewExitError(ExitCommandError, fmt.Sprintf("--view must be %s or %s", model.ViewShoppingList, model.ViewPantry))
				}
				settings.ActiveView = v
				changed = true
			}
			if changed {
				st.SetSettings(settings)
			}

			return opts.printer().result(settings, func(w io.Writer) {
				fmt.Fprintf(w, "auto-add recurring: %t\n", settings.AutoAddRecurring)
				fmt.Fprintf(w, "haptic feedback:    %t\n", settings.HapticFeedback)
				fmt.Fprintf(w, "theme color:        %s\n", settings.ThemeColor)
				fmt.Fprintf(w, "active view:        %s\n", settings.ActiveView)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.AutoAdd, "auto-add", false, "Re-add recurring products automatically")
	cmd.Flags().BoolVar(&opts.Haptic, "haptic", true, "Haptic feedback on toggle")
	cmd.Flags().StringVar(&opts.Theme, "theme", "", "Theme color")
	cmd.Flags().StringVar(&opts.View, "view", "", "Default view: shopping-list or pantry")
	return cmd
}
