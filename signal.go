package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// errStopSignal is the cancel cause of a run stopped by SIGINT or SIGTERM.
var errStopSignal = errors.New("stop signal")

// signalSource delivers stop signals on ch until the returned func is called.
type signalSource func(ch chan<- os.Signal) (stop func())

func notifyStopSignals(ch chan<- os.Signal) func() {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	return func() { signal.Stop(ch) }
}

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	return stopOnSignal(parent, logger, notifyStopSignals, func() { os.Exit(1) })
}

// stopOnSignal is shutdownContext with the signal source and the forced exit
// injected. On the first signal every instance finishes the change it is
// copying before its watch loop returns, and the context's cause names the
// signal. A second signal calls forceExit for a target that keeps an
// instance busy.
func stopOnSignal(parent context.Context, logger *slog.Logger, source signalSource, forceExit func()) context.Context {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 1)
	stop := source(sigCh)

	go func() {
		defer stop()

		select {
		case sig := <-sigCh:
			logger.Info("received signal, stopping instances", slog.String("signal", sig.String()))
			cancel(fmt.Errorf("%w: %s", errStopSignal, sig))
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, abandoning in-flight copies", slog.String("signal", sig.String()))
			forceExit()
		case <-parent.Done():
			return
		}
	}()

	return ctx
}
