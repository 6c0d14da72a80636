package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// signalContext returns a context cancelled on the first SIGINT or SIGTERM,
// letting a backfill finish its current batch. A second signal exits at once.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %v, stopping after the current batch (send again to exit now)\n", sig)
		cancel()

		<-sigCh
		os.Exit(130)
	}()
	return ctx
}
