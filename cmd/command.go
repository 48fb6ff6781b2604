// Package cmd provides common command line tools for the vaultcert binary.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// FailOnError logs err with msg and exits when err is not nil.
func FailOnError(log *zap.Logger, err error, msg string) {
	// If there wasn't an error, return
	if err == nil {
		return
	}

	// Otherwise, log the error and fail
	log.Fatal(msg, zap.Error(err))
}

var signalToName = map[os.Signal]string{
	syscall.SIGTERM: "SIGTERM",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGHUP:  "SIGHUP",
}

// CatchSignals returns a context that is cancelled when SIGTERM, SIGINT or
// SIGHUP is received. The callback, if any, runs once after the signal. The
// returned stop function releases the signal handler.
func CatchSignals(parent context.Context, log *zap.Logger, callback func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn("caught signal", zap.String("signal", signalToName[sig]))
			if callback != nil {
				callback()
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// NewLogger builds the process logger. debug selects the development config
// with debug level output.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
