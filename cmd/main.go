package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"runserver.dev/cli/internal/interfaces/cli"
	"runserver.dev/cli/internal/interfaces/di"
)

func main() {
	container, err := di.NewContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Cancellation interrupts a running server and aborts downloads; the
	// cache never publishes a partial artifact
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx, container.GetCLIContainer())
}
