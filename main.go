package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-policy-agent/jar-relocator/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.RootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
