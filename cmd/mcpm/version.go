package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd builds `mcpm version`, which prints the CLI's build version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mcpm CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcpm version %s\n", rootCmd.Version)
		},
	}
}
