package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/command"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.NewRootCmd(Version).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
