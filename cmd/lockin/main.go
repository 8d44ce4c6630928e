package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oremus-labs/lockin/internal/lockincli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := lockincli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
