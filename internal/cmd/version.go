package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/nc9/taskmux/internal/cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: GroupDiag,
	Short:   "Print the taskmux version",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "taskmux version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
