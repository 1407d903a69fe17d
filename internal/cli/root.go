// Package cli is the shopmate command line client.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Server     string
	Household  string
	User       string
	DB         string
	LogLevel   string
	Format     string // "json" | "text"

	stdout io.Writer
	stderr io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the shopmate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shopmate",
		Short: "Shared household shopping list",
		Long: `shopmate keeps a household's shopping list and pantry in sync across devices.

Changes apply locally first and are committed to the server in the
background; anything that can't reach the server waits in an offline queue
and is replayed when the connection comes back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.stdout = cmd.OutOrStdout()
			opts.stderr = cmd.ErrOrStderr()
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.Server, "server", "", "server base URL (overrides SHOPMATE_SERVER_URL)")
	flags.StringVar(&opts.Household, "household", "", "household id (overrides SHOPMATE_HOUSEHOLD)")
	flags.StringVar(&opts.User, "user", "", "acting member id (overrides SHOPMATE_USER)")
	flags.StringVar(&opts.DB, "db", "", "local database path (overrides SHOPMATE_DB_PATH)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewToggleCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewDuplicateCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewBinCommand(opts))
	cmd.AddCommand(NewRecurCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
