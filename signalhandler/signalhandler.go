package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"imagemanager/logging"
)

// SetupHandler cancels the returned context on the first SIGINT or SIGTERM
// and exits the process on the second one.
func SetupHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logging.LogWarning("received %s, stopping workers (repeat to force exit)", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		<-sigChan
		os.Exit(130)
	}()

	return ctx, cancel
}

// GetOptimalProcs returns the number of hashing workers to run.
// GOMAXPROCS is already tuned to the container quota at startup.
func GetOptimalProcs() int {
	procs := runtime.GOMAXPROCS(0)
	if procs < 1 {
		procs = 1
	}
	return procs
}
