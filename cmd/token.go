package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/token"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and verify test tokens for token restricted key delivery",
}

func requirements() (token.Requirements, error) {
	r, err := cfg.TokenRequirements()
	if err != nil {
		return token.Requirements{}, err
	}
	if r == nil {
		return token.Requirements{}, errors.Join(media.ErrConfiguration, errors.New("token.restricted is not set"))
	}
	return *r, nil
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Print a token accepted by the token restriction",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := requirements()
		if err != nil {
			return err
		}
		kid, _ := cmd.Flags().GetString("kid")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		raw, err := token.Issue(r, kid, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), raw)
		return nil
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Check a token against the token restriction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := requirements()
		if err != nil {
			return err
		}
		kid, _ := cmd.Flags().GetString("kid")
		if err := token.Verify(r, args[0], kid, time.Now()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "token is valid")
		return nil
	},
}

var tokenTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print the token restriction template stored on policy options",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := requirements()
		if err != nil {
			return err
		}
		tmpl, err := token.Build(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tmpl)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{tokenIssueCmd, tokenVerifyCmd} {
		c.Flags().String("kid", "", "content key id the token is scoped to")
	}
	tokenIssueCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	tokenCmd.AddCommand(tokenIssueCmd, tokenVerifyCmd, tokenTemplateCmd)
	rootCmd.AddCommand(tokenCmd)
}
