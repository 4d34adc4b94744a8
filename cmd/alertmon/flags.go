package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/correlator-io/alertmon/internal/monitor"
)

// filterFlags are the filter inputs shared by monitor, report and watch.
type filterFlags struct {
	filters  []string
	excludes []string
	selector string
	daysBack int
}

// register binds the flags. Clauses are StringArray so "statuses:fail,warn" stays one clause.
func (f *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVar(&f.filters, "filters", nil, `filter clause "key:v1,v2" (tags, owners, models, statuses, resource_types), repeatable`)
	flags.StringArrayVar(&f.excludes, "excludes", nil, "exclude clause with the same keys as --filters, repeatable")
	flags.StringVar(&f.selector, "select", "", "free-text selector, e.g. tag:finance, model:orders, last_invocation")
	flags.IntVar(&f.daysBack, "days-back", 0, "look-back window in days, 1-365 (default from env)")
}

func (f *filterFlags) request() monitor.Request {
	return monitor.Request{
		Filters:  f.filters,
		Excludes: f.excludes,
		Selector: f.selector,
		DaysBack: f.daysBack,
	}
}

// suppressionFlags override the monitor's suppression defaults.
type suppressionFlags struct {
	intervalHours float64
	override      bool
}

func (s *suppressionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Float64Var(&s.intervalHours, "suppression-interval", -1,
		"hours an alert class stays quiet after it was sent (default from env)")
	flags.BoolVar(&s.override, "override-meta-suppression", false,
		"apply --suppression-interval even when test or model meta sets alert_suppression_interval")
}

// monitorConfig loads the env defaults and applies the flags that were set.
func (s *suppressionFlags) monitorConfig(cmd *cobra.Command) *monitor.Config {
	cfg := monitor.LoadConfig()

	if s.intervalHours >= 0 {
		cfg.SuppressionInterval = time.Duration(s.intervalHours * float64(time.Hour))
	}

	if cmd.Flags().Changed("override-meta-suppression") {
		cfg.OverrideSuppression = s.override
	}

	return cfg
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
