package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const defaultSchedule = "*/30 * * * *"

// cronLogger adapts slog to the cron.Logger interface. Scheduler chatter goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}

func newWatchCmd(opts *rootOptions, build sessionFactory) *cobra.Command {
	var (
		filter      filterFlags
		suppression suppressionFlags
		schedule    string
		runNow      bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run monitor passes on a cron schedule until interrupted",
		Example: `  alertmon watch --schedule "*/15 * * * *" --filters tags:critical
  alertmon watch --schedule @hourly --run-now`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.newLogger(cmd.ErrOrStderr())

			if _, err := cron.ParseStandard(schedule); err != nil {
				return fmt.Errorf("invalid schedule '%s': %w", schedule, err)
			}

			s, err := build(cmd.Context(), opts, suppression.monitorConfig(cmd), logger)
			if err != nil {
				return err
			}
			defer closeSession(s)

			req := filter.request()

			pass := func(ctx context.Context) {
				result, err := s.service.Alerts(ctx, req)
				if err != nil {
					logger.Error("Monitor pass failed", slog.String("error", err.Error()))

					return
				}

				logger.Info("Monitor pass finished",
					slog.String("batch_id", result.Receipt.BatchID),
					slog.Int("matched", result.Matched),
					slog.Int("sent", result.Receipt.Published),
					slog.Int("skipped", len(result.Skipped)))
			}

			return runWatch(cmd.Context(), schedule, runNow, pass, logger)
		},
	}

	filter.register(cmd)
	suppression.register(cmd)
	cmd.Flags().StringVar(&schedule, "schedule", defaultSchedule, "cron expression or descriptor such as @hourly")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run one pass immediately before waiting for the schedule")

	return cmd
}

// runWatch runs pass on schedule until ctx is done. Overlapping passes are
// skipped and a panicking pass does not stop the scheduler.
func runWatch(ctx context.Context, schedule string, runNow bool, pass func(context.Context), logger *slog.Logger) error {
	cl := cronLogger{logger: logger}
	scheduler := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	job := cron.FuncJob(func() { pass(ctx) })

	id, err := scheduler.AddJob(schedule, job)
	if err != nil {
		return fmt.Errorf("invalid schedule '%s': %w", schedule, err)
	}

	if runNow {
		pass(ctx)
	}

	scheduler.Start()

	logger.Info("Watching for alerts",
		slog.String("schedule", schedule),
		slog.Time("next_run", scheduler.Entry(id).Schedule.Next(time.Now())))

	<-ctx.Done()

	logger.Info("Stopping scheduler, waiting for the running pass")
	<-scheduler.Stop().Done()

	return nil
}
