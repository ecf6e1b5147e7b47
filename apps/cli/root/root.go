package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the QuillBooks admin CLI. Subcommands (auth, bootstrap, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "quillbooks",
	Short:         "QuillBooks admin CLI",
	Long:          "Administrative utilities for QuillBooks (dev tokens, database bootstrap, tenant provisioning).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
