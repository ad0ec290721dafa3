package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/birdnet-batch/cmd"
	"github.com/tphakala/birdnet-batch/internal/config"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := config.NewContext()
	rootCmd, err := cmd.RootCommand(app)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	runErr := rootCmd.ExecuteContext(ctx)
	if err := app.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		return 1
	}
	return 0
}
