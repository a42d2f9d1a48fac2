// Package cli is the ledger command line: the HTTP server plus one-shot
// commands for bookings, assets, reports and the year-end closing.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

type rootFlags struct {
	config string
	user   string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}
	var a *app

	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Double-entry general ledger with year-end closing",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = openApp(cmd.Context(), flags.config, cmd.ErrOrStderr())
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", os.Getenv("LEDGER_CONFIG"), "path to ledger.yaml")
	rootCmd.PersistentFlags().StringVarP(&flags.user, "user", "u", defaultUser(), "acting user recorded on bookings")

	get := func() *app { return a }
	rootCmd.AddCommand(
		newServeCommand(get),
		newPostCommand(get, flags),
		newStornoCommand(get, flags),
		newEntriesCommand(get),
		newAssetCommand(get),
		newDepreciationCommand(get, flags),
		newReportCommand(get),
		newCloseCommand(get, flags),
	)
	return rootCmd
}

func defaultUser() string {
	if u := os.Getenv("LEDGER_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
