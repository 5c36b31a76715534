package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "report",
		Short:         "Build person and contact reports",
		Long:          "report loads person and contact datasets, fixes mistyped names, normalizes them and writes the derived reports to the result directory.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newCredentialsCmd(),
	)

	return rootCmd
}
