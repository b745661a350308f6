package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"inferclient/internal/cli"
)

func main() {
	// Ctrl+C / SIGTERM cancel the running request or stop serve-mock.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
