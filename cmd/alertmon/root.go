package main

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/correlator-io/alertmon/internal/config"
	"github.com/correlator-io/alertmon/internal/monitor"
	"github.com/correlator-io/alertmon/internal/publish"
	"github.com/correlator-io/alertmon/internal/selection"
	"github.com/correlator-io/alertmon/internal/storage"
)

type (
	// rootOptions are the persistent flags shared by every subcommand. Empty
	// values fall back to the environment.
	rootOptions struct {
		configPath  string
		warehouse   string
		databaseURL string
		schema      string
		logLevel    string
	}

	// session is the wired monitor with everything that has to be released afterwards.
	session struct {
		service   *monitor.Service
		conn      *storage.Connection
		publisher publish.Publisher
		logger    *slog.Logger
	}

	// sessionFactory builds the session; tests replace it.
	sessionFactory func(ctx context.Context, opts *rootOptions, monitorCfg *monitor.Config, logger *slog.Logger) (*session, error)
)

func newRootCmd(out io.Writer) *cobra.Command {
	return newRootCmdWith(out, buildSession)
}

func newRootCmdWith(out io.Writer, build sessionFactory) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           name,
		Short:         "Filter elementary alerts and report dbt test results",
		Long:          "alertmon reads pending alerts and test results from the elementary schema of a dbt warehouse, filters them, publishes alerts downstream and summarizes test invocations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "selector config file (env ALERTMON_CONFIG_PATH, default .alertmon.yaml)")
	flags.StringVar(&opts.warehouse, "warehouse", "", "warehouse type: postgres, mysql, sqlserver or sqlite (env ALERTMON_WAREHOUSE_TYPE)")
	flags.StringVar(&opts.databaseURL, "database-url", "", "warehouse connection string (env ALERTMON_DATABASE_URL)")
	flags.StringVar(&opts.schema, "schema", "", "elementary schema (env ALERTMON_ELEMENTARY_SCHEMA)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (env ALERTMON_LOG_LEVEL)")

	root.AddCommand(
		newMonitorCmd(opts, build),
		newReportCmd(opts, build),
		newServeCmd(opts, build),
		newWatchCmd(opts, build),
		newVersionCmd(),
	)

	return root
}

// newLogger writes JSON logs to stderr so command output on stdout stays parseable.
func (o *rootOptions) newLogger(errOut io.Writer) *slog.Logger {
	level := config.GetEnvLogLevel("ALERTMON_LOG_LEVEL", slog.LevelInfo)
	if o.logLevel != "" {
		_ = level.UnmarshalText([]byte(o.logLevel))
	}

	return slog.New(slog.NewJSONHandler(errOut, &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) storageConfig() (*storage.Config, error) {
	cfg := storage.LoadConfig()

	if o.warehouse != "" {
		warehouse, err := storage.ParseWarehouseType(o.warehouse)
		if err != nil {
			return nil, err
		}

		cfg.Warehouse = warehouse
	}

	if o.databaseURL != "" {
		cfg = cfg.WithDatabaseURL(o.databaseURL)
	}

	if o.schema != "" {
		cfg.Schema = o.schema
	}

	return cfg, nil
}

func (o *rootOptions) selectionConfig() (*selection.Config, error) {
	if o.configPath != "" {
		return selection.LoadConfig(o.configPath)
	}

	return selection.LoadConfigFromEnv()
}

// buildSession connects to the warehouse and wires store, publisher and resolver into a monitor.
func buildSession(ctx context.Context, opts *rootOptions, monitorCfg *monitor.Config, logger *slog.Logger) (*session, error) {
	storageCfg, err := opts.storageConfig()
	if err != nil {
		return nil, err
	}

	conn, err := storage.NewConnection(ctx, storageCfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewResultsStore(conn, storage.WithLogger(logger))
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	publisher, err := publish.New(publish.LoadConfig(), logger)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	selectionCfg, err := opts.selectionConfig()
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	svc, err := monitor.NewService(store, publisher, monitorCfg,
		monitor.WithLogger(logger),
		monitor.WithResolver(selection.NewResolver(selectionCfg, logger)),
	)
	if err != nil {
		_ = publisher.Close()
		_ = conn.Close()

		return nil, err
	}

	return &session{service: svc, conn: conn, publisher: publisher, logger: logger}, nil
}

// Close releases the publisher and the warehouse connection.
func (r *session) Close() error {
	var errs []error

	if r.publisher != nil {
		errs = append(errs, r.publisher.Close())
	}

	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}

	return errors.Join(errs...)
}

func closeSession(s *session) {
	if err := s.Close(); err != nil {
		s.logger.Warn("Failed to release resources", slog.String("error", err.Error()))
	}
}
