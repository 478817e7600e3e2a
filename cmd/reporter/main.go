// Package main provides the entry point for the violation reporter CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/trafficai/violation-reporter/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
