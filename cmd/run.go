package cmd

import (
	"fmt"
	"strings"

	"github.com/opentdf/drmpolicy/pkg/drm"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <operation> [ids...]",
	Short: "Run a named operation",
	Long: fmt.Sprintf(`Run one of the named operations:

  %s

The historical flag spellings (--listall, --removecontentkey, --createdrmauthpolicy,
--applydrmauthpolicytoasset, ...) are accepted in place of the operation name.
Flags are not parsed by this command; use the config file or DRMPOLICY_*
environment variables for settings.`, strings.Join(drm.Operations(), "\n  ")),
	DisableFlagParsing: true,
	Args:               cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, ids, err := drm.ParseArgs(args)
		if err != nil {
			return err
		}
		return runOperation(cmd, op, ids)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runOperation builds a session, runs op and turns failed items into a
// non-zero exit.
func runOperation(cmd *cobra.Command, op drm.Operation, ids []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := newSession(ctx, cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.engine.Run(ctx, op, ids)
	if err != nil {
		return err
	}
	return batchError(drm.Failed(results), len(results))
}
