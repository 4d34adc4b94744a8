package main

import (
	"github.com/spf13/cobra"
)

func newMonitorCmd(opts *rootOptions, build sessionFactory) *cobra.Command {
	var (
		filter      filterFlags
		suppression suppressionFlags
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Filter pending alerts, publish them and record their delivery status",
		Example: `  alertmon monitor --filters tags:finance --filters statuses:fail,error
  alertmon monitor --select "config.meta.owner:dana" --days-back 3 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.newLogger(cmd.ErrOrStderr())

			s, err := build(cmd.Context(), opts, suppression.monitorConfig(cmd), logger)
			if err != nil {
				return err
			}
			defer closeSession(s)

			req := filter.request()
			req.DryRun = dryRun

			result, err := s.service.Alerts(cmd.Context(), req)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	filter.register(cmd)
	suppression.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "filter and print alerts without publishing or marking them")

	return cmd
}
