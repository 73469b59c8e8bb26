package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botaas/flowengine"
	"github.com/botaas/flowengine/internal/cli"
	"github.com/botaas/flowengine/pkg/adapters/memory"
	"github.com/botaas/flowengine/pkg/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate FLOW_FILE...",
	Short: "Check flow files for structural errors",
	Long: `Compiles each flow file (JSON or YAML) and reports every violation:
missing start node, dangling edges, unknown node types and malformed node data.
Warnings such as unreachable nodes are printed but do not fail validation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng := flowengine.New(memory.NewFlowStore(), memory.NewStore())
		out := cmd.OutOrStdout()

		failed := 0
		for _, path := range args {
			flow, err := cli.LoadFlowFile(path)
			if err != nil {
				fmt.Fprintf(out, "%s: %v\n", path, err)
				failed++
				continue
			}

			warnings, err := eng.Validate(flow)
			var invalid *domain.InvalidFlowError
			switch {
			case errors.As(err, &invalid):
				fmt.Fprintf(out, "%s: %d violation(s)\n", path, len(invalid.Violations))
				for _, v := range invalid.Violations {
					fmt.Fprintf(out, "  x %s\n", v)
				}
				failed++
				continue
			case err != nil:
				return err
			}

			for _, w := range warnings {
				fmt.Fprintf(out, "  ! %s\n", w)
			}
			fmt.Fprintf(out, "%s: ok\n", path)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d flow(s) failed validation", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
