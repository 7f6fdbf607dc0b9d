package cmd

import (
	"github.com/opentdf/drmpolicy/pkg/drm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:       "list [all|keys|policies|options]",
	Short:     "List content keys, authorization policies and their options",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"all", "keys", "policies", "options"},
	RunE: func(cmd *cobra.Command, args []string) error {
		op := drm.ListAll
		if len(args) == 1 {
			switch args[0] {
			case "keys":
				op = drm.ListKeys
			case "policies":
				op = drm.ListPolicies
			case "options":
				op = drm.ListOptions
			}
		}
		return runOperation(cmd, op, nil)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
