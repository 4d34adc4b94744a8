// Package main provides the alertmon CLI: alert filtering and test result
// reports over the elementary tables of a dbt warehouse.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "alertmon"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above
	}
}
