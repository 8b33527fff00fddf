package osutil

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Interrupt is a context that lives until Ctrl+C (or SIGTERM) is received.
type Interrupt struct {
	context.Context
	received *atomic.Bool
}

// Received reports whether the context ended because of a signal.
func (i Interrupt) Received() bool {
	return i.received.Load()
}

// SignalContext returns a context that will live until Ctrl+C is pressed
func SignalContext(parent context.Context) Interrupt {
	ctx, cancel := context.WithCancel(parent)
	received := &atomic.Bool{}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			received.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	return Interrupt{Context: ctx, received: received}
}
