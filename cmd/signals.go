package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

const (
	exitFailure = 1
	// exitInterrupted follows the shell convention of 128 + SIGINT.
	exitInterrupted = 130
)

// watchInterrupts returns a context cancelled by the first SIGINT or SIGTERM.
// A second signal calls exit with exitInterrupted without waiting for
// in-flight probes. The returned func stops watching and cancels the context.
func watchInterrupts(parent context.Context, logger *zap.Logger, exit func(int)) (context.Context, func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go relayInterrupts(sigs, done, cancel, logger, exit)

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
			cancel()
		})
	}
}

func relayInterrupts(
	sigs <-chan os.Signal,
	done <-chan struct{},
	cancel context.CancelFunc,
	logger *zap.Logger,
	exit func(int),
) {
	received := 0
	for {
		select {
		case <-done:
			return
		case sig := <-sigs:
			received++
			if received == 1 {
				logger.Warn("interrupt received, finishing in-flight probes; interrupt again to exit now",
					zap.String("signal", sig.String()))
				cancel()
				continue
			}
			logger.Error("second interrupt received, exiting", zap.String("signal", sig.String()))
			_ = logger.Sync()
			exit(exitInterrupted)
			return
		}
	}
}
