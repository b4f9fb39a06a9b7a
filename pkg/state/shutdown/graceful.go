// Package shutdown turns process signals into context cancellation.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/karthiknish/aroosi-sub016/pkg/state"
	"github.com/karthiknish/aroosi-sub016/pkg/state/logger"
)

var (
	osExit = os.Exit
	// exit is swapped in tests.
	exit = osExit
)

// SetupSignalHandler returns a context cancelled on the first SIGINT or
// SIGTERM. A second one exits immediately with status 130, for operators
// who do not want to wait for open streams to drain. SIGUSR1 logs all
// goroutine stacks and keeps running.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := make(chan os.Signal, 2)
	dump := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	signal.Notify(dump, syscall.SIGUSR1)

	go func() {
		defer signal.Stop(dump)
		for {
			select {
			case <-dump:
				logger.Info("goroutine_dump", "stacks", string(state.Stacks()))
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer signal.Stop(stop)
		select {
		case s := <-stop:
			logger.Info("shutdown_requested", "signal", s.String())
			cancel()
		case <-ctx.Done():
			return
		}
		s := <-stop
		logger.Warn("shutdown_forced", "signal", s.String())
		exit(130)
	}()

	return ctx, cancel
}

// Abort logs a fatal startup error and exits.
func Abort(msg string, err error) {
	logger.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	exit(1)
}
