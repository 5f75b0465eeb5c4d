// Package cmd implements the relocator command line.
package cmd

import (
	"github.com/spf13/cobra"
)

// RootCommand returns the relocator command tree.
func RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "relocator",
		Short: "Move the packages of a jar under shaded names",
		Long: `relocator rewrites a jar in place so that classes and resources of the
configured packages appear under new package names. Class files are rewritten
so that every reference to a relocated class follows it.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		relocateCommand(),
		planCommand(),
		versionCommand(),
	)

	return root
}
