// Package main is the entry point for the shipward CLI.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Interrupt cancels the run context; no remote cleanup is attempted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	os.Stderr.WriteString("Error: " + err.Error() + "\n")
	return 1
}

// exitError carries a process exit code out of a cobra command. The
// failure itself has already been printed by the time it is returned.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return "exit"
}
