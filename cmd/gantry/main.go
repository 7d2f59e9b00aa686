// File: cmd/gantry/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/gantryhq/gantry/cmd"
	"github.com/gantryhq/gantry/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables allow mocking in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	// Interrupts cancel the run context so sessions tear down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		// An aborted run exits non-zero too: no outcome was captured.
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "aborted")
		}
		osExit(1)
	}
}

// handlePanic writes crash details to a local file before exiting, so
// an operator's closing terminal does not swallow the trace.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()

		stackTrace := debug.Stack()
		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, stackTrace)

		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(1)
			return
		}

		fmt.Fprintf(os.Stderr, "crash detected; details logged to %s\n", panicLogFile)
		osExit(1)
	}
}
