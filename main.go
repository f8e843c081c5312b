// Package main is the entry point for the seclabel security event labeling server.
package main

import (
	"context"
	"fmt"
	"os"

	"seclabel/bootstrap"
	"seclabel/cmd"
)

// run initializes and starts the labeling server.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

func main() {
	// "console" runs the command-line client against a running server
	if len(os.Args) > 1 && os.Args[1] == "console" {
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		if err := cmd.NewConsoleCmd().Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
