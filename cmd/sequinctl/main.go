// sequinctl is a command-line client for Sequin streams.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sequinstream/sequin-go/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewApp().Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
