package cmd

import (
	"github.com/opentdf/drmpolicy/pkg/drm"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove content keys, authorization policies or policy options by id",
}

func removeSubcommand(use, short string, op drm.Operation) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <ids...>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, op, args)
		},
	}
}

func init() {
	removeCmd.AddCommand(
		removeSubcommand("key", "Delete content keys", drm.RemoveKey),
		removeSubcommand("policy", "Delete authorization policies and their options", drm.RemovePolicy),
		removeSubcommand("option", "Delete authorization policy options", drm.RemoveOption),
	)
	rootCmd.AddCommand(removeCmd)
}
