package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorbuild/conveyor/src/proc"
	"github.com/conveyorbuild/conveyor/src/session"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config and task graph without running anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Assembling the session surfaces unresolved dependencies and
		// cycles on top of the structural config validation.
		s, err := session.New(cfg, ".", &proc.Local{})
		if err != nil {
			return err
		}
		fmt.Printf("ok: %d tasks, %d registries\n", len(s.Graph.Tasks()), len(cfg.Registries))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
