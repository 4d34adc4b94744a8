package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/correlator-io/alertmon/internal/api"
	"github.com/correlator-io/alertmon/internal/api/middleware"
	"github.com/correlator-io/alertmon/internal/monitor"
)

func newServeCmd(opts *rootOptions, build sessionFactory) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve filtered alerts and reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.newLogger(cmd.ErrOrStderr())

			serverCfg := api.LoadServerConfig()
			serverCfg.Version = version

			if port > 0 {
				serverCfg.Port = port
			}

			if err := serverCfg.Validate(); err != nil {
				return err
			}

			s, err := build(cmd.Context(), opts, monitor.LoadConfig(), logger)
			if err != nil {
				return err
			}
			defer closeSession(s)

			limiterCfg := middleware.LoadConfig()
			limiter := middleware.NewInMemoryRateLimiter(limiterCfg)

			logger.Info("Rate limiter initialized",
				slog.Int("global_rps", limiterCfg.GlobalRPS),
				slog.Int("client_rps", limiterCfg.ClientRPS),
				slog.Int("max_clients", limiterCfg.MaxClients),
			)

			return api.NewServer(serverCfg, s.service, limiter, logger).Start(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (env ALERTMON_SERVER_PORT, default 8080)")

	return cmd
}
