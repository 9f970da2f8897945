package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/council-da-scraper/internal/da"
)

// Process exit statuses.
const (
	ExitOK                     = 0
	ExitMultiplePages          = 1
	ExitPaginationUndetermined = 2
	ExitFailure                = 3
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, da.ErrMultiplePages):
		return ExitMultiplePages
	case errors.Is(err, da.ErrPaginationUndetermined):
		return ExitPaginationUndetermined
	default:
		return ExitFailure
	}
}

// Execute runs the CLI and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, os.Args[1:])
}

func run(ctx context.Context, args []string) int {
	root, cleanup := newRootCmd()
	defer cleanup()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "da-scraper: %v\n", err)
	}
	return ExitCode(err)
}
