package cmd

import (
	"fmt"

	"github.com/opentdf/drmpolicy/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the postgres schema migrations with atlas",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, err := db.NewClient(ctx, cfg.Store.URL, logger.Named("db"))
		if err != nil {
			return err
		}
		defer client.Close()
		applied, err := client.RunMigrations(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
