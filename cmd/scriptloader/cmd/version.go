package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PrintVersion returns the version banner.
func PrintVersion() string {
	return fmt.Sprintf("scriptloader v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}
