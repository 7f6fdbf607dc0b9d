package cmd

import (
	"github.com/opentdf/drmpolicy/pkg/drm"
	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage the common DRM authorization policies",
}

func init() {
	policyCmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the CENC and CENC cbcs authorization policies unless they exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, drm.CreateDRMPolicy, nil)
		},
	}, &cobra.Command{
		Use:   "delete",
		Short: "Delete the CENC and CENC cbcs authorization policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, drm.DeleteDRMPolicy, nil)
		},
	})
	rootCmd.AddCommand(policyCmd)
}
