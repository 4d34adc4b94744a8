package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/correlator-io/alertmon/internal/monitor"
)

func newReportCmd(opts *rootOptions, build sessionFactory) *cobra.Command {
	var (
		filter filterFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize test results and invocation history",
		Example: `  alertmon report --select last_invocation
  alertmon report --select invocation_time:2026-10-15T08:00:00 --output report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.newLogger(cmd.ErrOrStderr())

			s, err := build(cmd.Context(), opts, monitor.LoadConfig(), logger)
			if err != nil {
				return err
			}
			defer closeSession(s)

			report, err := s.service.Report(cmd.Context(), filter.request())
			if err != nil {
				return err
			}

			if output == "" {
				return writeJSON(cmd.OutOrStdout(), report)
			}

			f, err := os.Create(output) //nolint:gosec // path comes from the operator
			if err != nil {
				return fmt.Errorf("failed to create report file: %w", err)
			}

			if err := writeJSON(f, report); err != nil {
				_ = f.Close()

				return err
			}

			if err := f.Close(); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)

			return nil
		},
	}

	filter.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report JSON to a file instead of stdout")

	return cmd
}
