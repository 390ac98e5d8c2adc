package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conveyorbuild/conveyor/src/config"
	"github.com/conveyorbuild/conveyor/src/output"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "conveyor",
	Short: "Build and publish automation",
	Long:  "Conveyor — task-graph builds with scoped, always-restored credential injection.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it.
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		warnings, err := config.Validate(cfg)
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .conveyor.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "mirror task output while running")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func printer() *output.Printer {
	return output.NewPrinter()
}
