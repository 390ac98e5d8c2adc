package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conveyorbuild/conveyor/src/output"
	"github.com/conveyorbuild/conveyor/src/proc"
	"github.com/conveyorbuild/conveyor/src/session"
)

var junitDir string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the configured task graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runner := &proc.Local{}
		if verbose {
			runner.Mirror = os.Stdout
		}

		s, err := session.New(cfg, ".", runner)
		if err != nil {
			return err
		}

		p := printer()
		output.CIHeader(p.Writer)
		if v := s.Version; v != nil {
			output.ContextBlock(p.Writer, []output.KV{
				{Key: "version", Value: v.Version},
				{Key: "branch", Value: v.Branch},
				{Key: "sha", Value: v.SHA},
			})
		}

		output.SectionStart(p.Writer, "conveyor_run", "Tasks")
		report, findings, runErr := s.Run(ctx)
		output.SectionEnd(p.Writer, "conveyor_run")

		ok := true
		if report != nil {
			ok = p.PrintReport(report)
			if junitDir != "" {
				if err := output.WriteRunJUnit(junitDir, report); err != nil {
					fmt.Fprintf(os.Stderr, "warning: %s\n", err)
				}
			}
		}
		leaked := p.PrintFindings(findings)

		if runErr != nil {
			return runErr
		}
		if leaked {
			return fmt.Errorf("credentials left on disk, see audit findings")
		}
		if !ok {
			return fmt.Errorf("run failed")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&junitDir, "junit-dir", "", "write a JUnit XML report into this directory")
	rootCmd.AddCommand(runCmd)
}
