package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/botaas/flowengine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of flowengine",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flowengine version %s\n", strings.TrimSpace(flowengine.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
