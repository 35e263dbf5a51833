package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"pixelbatch/core"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signal
	var received atomic.Value
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			received.Store(sig)
			fmt.Fprintln(stderr, "Received interrupt signal. Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	root := newRootCmd(&rootOptions{stdin: stdin, stdout: stdout, stderr: stderr})
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if sig, ok := received.Load().(os.Signal); ok {
		if sig == syscall.SIGTERM {
			return core.ExitCodeSIGTERM
		}
		return core.ExitCodeSIGINT
	}
	if err == nil {
		return core.ExitCodeSuccess
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return core.ExitCodeSuccess
	case errors.As(err, &usage), isRejection(err):
		return core.ExitCodeUsage
	case errors.Is(err, context.Canceled):
		return core.ExitCodeSIGINT
	default:
		return core.ExitCodeError
	}
}
