package cmd

import (
	"fmt"

	"github.com/opentdf/drmpolicy/pkg/drm"
	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/spf13/cobra"
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Apply or remove DRM protection on assets",
}

var assetCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register an asset and its files in the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		files, err := cmd.Flags().GetStringArray("file")
		if err != nil {
			return err
		}
		s, err := newSession(ctx, cfg, cmd.OutOrStdout(), logger)
		if err != nil {
			return err
		}
		defer s.Close()

		a := media.Asset{Name: args[0]}
		for _, f := range files {
			a.Files = append(a.Files, media.AssetFile{Name: f})
		}
		created, err := s.store.CreateAsset(ctx, a)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), created.ID)
		return nil
	},
}

var assetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assets with their keys and delivery policies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		s, err := newSession(ctx, cfg, cmd.OutOrStdout(), logger)
		if err != nil {
			return err
		}
		defer s.Close()

		assets, err := s.store.ListAssets(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, a := range assets {
			fmt.Fprintf(out, "%s = %s (%d key(s), %d delivery policy(ies), %d locator(s))\n",
				a.ID, a.Name, len(a.ContentKeys), len(a.DeliveryPolicies), len(a.Locators))
		}
		return nil
	},
}

func init() {
	assetCreateCmd.Flags().StringArray("file", nil, "file name to register, repeatable")
	assetCmd.AddCommand(
		assetCreateCmd,
		assetListCmd,
		&cobra.Command{
			Use:   "apply <ids...>",
			Short: "Protect assets with fresh keys, the common policies and dynamic encryption",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOperation(cmd, drm.ApplyDRMPolicyToAsset, args)
			},
		},
		&cobra.Command{
			Use:   "remove <ids...>",
			Short: "Remove locators, DRM delivery policies and content keys from assets",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOperation(cmd, drm.RemoveDRMPolicyFromAsset, args)
			},
		},
	)
	rootCmd.AddCommand(assetCmd)
}
