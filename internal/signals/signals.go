// Package signals turns SIGINT and SIGTERM into context cancellation.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Context returns a context that is canceled on the first SIGINT or SIGTERM.
// A second signal terminates the process immediately.
func Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		<-sigCh
		os.Exit(1)
	}()
	return ctx
}
